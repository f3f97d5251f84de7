package model

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// Extraction is the grouped result of running the top-level selectors over
// one file.
type Extraction struct {
	Classes      []*ClassEntity
	Functions    []*FunctionEntity
	Dependencies []*DependencyEntity
}

// Clone returns a deep copy made through the flattened form. Spans are not
// carried over.
func (x *Extraction) Clone() (*Extraction, error) {
	m := &Model{Extraction: *x}
	c, err := LoadModel(m.Flatten())
	if err != nil {
		return nil, fmt.Errorf("model: clone: %w", err)
	}
	return &c.Extraction, nil
}

// Model is the persisted document of one source file.
type Model struct {
	ModelID        string
	Hash           string
	FileName       string
	DateGenerated  string
	SourceLanguage string
	Extraction
}

// Flatten returns the document form of m.
func (m *Model) Flatten() Document {
	return Document{
		"model_id":        m.ModelID,
		"hash":            m.Hash,
		"file_name":       m.FileName,
		"date_generated":  m.DateGenerated,
		"source_language": m.SourceLanguage,
		"classes":         flattenList(m.Classes),
		"functions":       flattenList(m.Functions),
		"dependencies":    flattenList(m.Dependencies),
	}
}

// LoadModel rebuilds a Model from its document form.
func LoadModel(doc Document) (*Model, error) {
	m := &Model{
		ModelID:        str(doc, "model_id"),
		Hash:           str(doc, "hash"),
		FileName:       str(doc, "file_name"),
		DateGenerated:  str(doc, "date_generated"),
		SourceLanguage: str(doc, "source_language"),
	}
	var err error
	if m.Classes, err = loadList[*ClassEntity](doc, "classes"); err != nil {
		return nil, err
	}
	if m.Functions, err = loadList[*FunctionEntity](doc, "functions"); err != nil {
		return nil, err
	}
	if m.Dependencies, err = loadList[*DependencyEntity](doc, "dependencies"); err != nil {
		return nil, err
	}
	return m, nil
}

// Decode parses JSON model bytes.
func Decode(data []byte) (*Model, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("model: decode: %w", err)
	}
	m, err := LoadModel(doc)
	if err != nil {
		return nil, fmt.Errorf("model: decode: %w", err)
	}
	return m, nil
}

// ReadFile loads the model document at path.
func ReadFile(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("model: read %s: %w", path, err)
	}
	return Decode(data)
}

// ReadHash returns only the stored source hash of the document at path.
func ReadHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var head struct {
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", fmt.Errorf("model: read hash %s: %w", path, err)
	}
	return head.Hash, nil
}

//go:embed schema.json
var schemaJSON []byte

var (
	schemaOnce     sync.Once
	schemaResolved *jsonschema.Resolved
	schemaErr      error
)

func resolvedSchema() (*jsonschema.Resolved, error) {
	schemaOnce.Do(func() {
		var s jsonschema.Schema
		if err := json.Unmarshal(schemaJSON, &s); err != nil {
			schemaErr = fmt.Errorf("model: parse schema: %w", err)
			return
		}
		schemaResolved, schemaErr = s.Resolve(nil)
	})
	return schemaResolved, schemaErr
}

// Schema returns the JSON Schema every model document must satisfy.
func Schema() []byte { return schemaJSON }

// Validate checks doc against the model schema.
func Validate(doc Document) error {
	rs, err := resolvedSchema()
	if err != nil {
		return err
	}
	// Normalise through JSON so the validator only sees JSON value types.
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("model: validate: %w", err)
	}
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("model: validate: %w", err)
	}
	if err := rs.Validate(instance); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}
