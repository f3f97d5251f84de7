// Package grammar loads the declarative per-language descriptors that drive
// extraction, and keeps the registry of known languages.
package grammar

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for descriptor files that are neither
// TOML nor YAML.
var ErrUnsupportedFormat = errors.New("unsupported grammar format")

// Grammar is one language descriptor.
type Grammar struct {
	Info          Info                    `toml:"info" yaml:"info"`
	Snippets      map[string]string       `toml:"snippets" yaml:"snippets"`
	FormatStrings map[string]FormatString `toml:"format_strings" yaml:"format_strings"`
	Directives    []Directive             `toml:"directives" yaml:"directives"`
	Selectors     map[string]Selector     `toml:"selectors" yaml:"selectors"`
	JSONMappings  map[string]string       `toml:"json_mappings" yaml:"json_mappings"`

	// Path is the file the grammar was read from, if any. For grammars
	// loaded with Registry.LoadFS it is relative to that file system.
	Path string `toml:"-" yaml:"-"`
	hash string
	fsys fs.FS
}

// Info names the language and lists its per-language defaults.
type Info struct {
	Name           string   `toml:"name" yaml:"name"`
	FileExtensions []string `toml:"file_extensions" yaml:"file_extensions"`
	GlobalSources  []string `toml:"global_sources" yaml:"global_sources"`
	Builtins       []string `toml:"builtins" yaml:"builtins"`
	Sinks          []string `toml:"sinks" yaml:"sinks"`
	Sources        []string `toml:"sources" yaml:"sources"`
	Cleaners       []string `toml:"cleaners" yaml:"cleaners"`
}

// FormatString is a regex template and the names it depends on.
type FormatString struct {
	Regex        string   `toml:"regex" yaml:"regex"`
	Dependencies []string `toml:"dependencies" yaml:"dependencies"`
}

// Directive is a named preprocessing rewrite.
type Directive struct {
	Name       string               `toml:"name" yaml:"name"`
	Variations []DirectiveVariation `toml:"variations" yaml:"variations"`
}

// DirectiveVariation replaces every match of a built regex. Replacement may
// reference groups as $1 or ${name}. Script, or the file named by
// ScriptFile, is a Risor expression evaluated per match instead.
type DirectiveVariation struct {
	RegexFormatString string `toml:"regex_format_string" yaml:"regex_format_string"`
	Replacement       string `toml:"replacement" yaml:"replacement"`
	Script            string `toml:"script" yaml:"script"`
	ScriptFile        string `toml:"script_file" yaml:"script_file"`
}

// Selector is a declarative extraction rule.
type Selector struct {
	ModelElement string                 `toml:"model_element" yaml:"model_element"`
	TopLevel     bool                   `toml:"top_level_selector" yaml:"top_level_selector"`
	Variations   []Variation            `toml:"variations" yaml:"variations"`
	Subselectors map[string]Subselector `toml:"subselectors" yaml:"subselectors"`
}

// Variation maps capture groups of one regex onto entity fields.
type Variation struct {
	RegexFormatString string         `toml:"regex_format_string" yaml:"regex_format_string"`
	Fields            map[string]int `toml:"fields" yaml:"fields"`
}

// Subselector applies Selector to the text captured for Field. Dedent strips
// the common indentation of that text first.
type Subselector struct {
	Field    string `toml:"field" yaml:"field"`
	Selector string `toml:"selector" yaml:"selector"`
	Dedent   bool   `toml:"dedent" yaml:"dedent"`
}

// Parse decodes a descriptor. format is a file extension: .toml, .yaml or .yml.
func Parse(data []byte, format string) (*Grammar, error) {
	g := &Grammar{}
	switch strings.ToLower(format) {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(g); err != nil {
			return nil, fmt.Errorf("grammar: decode toml: %w", err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(g); err != nil {
			return nil, fmt.Errorf("grammar: decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("grammar: %q: %w", format, ErrUnsupportedFormat)
	}
	if g.Info.Name == "" {
		return nil, errors.New("grammar: [info] name is required")
	}
	g.hash = fmt.Sprintf("%x", sha256.Sum256(data))
	return g, nil
}

// Load reads the descriptor at path.
func Load(path string) (*Grammar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("grammar: %w", err)
	}
	g, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	g.Path = path
	return g, nil
}

// IsDescriptor reports whether path has a descriptor extension.
func IsDescriptor(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml", ".yaml", ".yml":
		return true
	}
	return false
}

// Name returns the language name.
func (g *Grammar) Name() string { return g.Info.Name }

// FS returns the file system the grammar was loaded from, or nil for a
// grammar read from disk or parsed from bytes.
func (g *Grammar) FS() fs.FS { return g.fsys }

// Hash returns the sha256 of the descriptor source.
func (g *Grammar) Hash() string { return g.hash }

// Extensions returns the file extensions normalised to a leading dot.
func (g *Grammar) Extensions() []string {
	out := make([]string, 0, len(g.Info.FileExtensions))
	for _, e := range g.Info.FileExtensions {
		out = append(out, NormalizeExt(e))
	}
	return out
}

// NormalizeExt lowercases ext and ensures a leading dot.
func NormalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
