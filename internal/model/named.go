package model

import (
	"errors"
	"fmt"
	"strings"
)

// ClassEntity is a class with its bases, attributes, methods and nested
// classes. Members are identified beneath the class identifier.
type ClassEntity struct {
	Named
	Bases      []*ReferenceEntity
	Attributes []*VariableEntity
	Methods    []*FunctionEntity
	Classes    []*ClassEntity
}

func newClass(src Source) (Entity, error) {
	c := &ClassEntity{Named: newNamed(src)}
	if c.Name == "" {
		return nil, errors.New("class match has no name")
	}
	for _, b := range SplitArgs(src.field("bases")) {
		c.Bases = append(c.Bases, &ReferenceEntity{Ref: b})
	}
	return c, nil
}

func (c *ClassEntity) Kind() Kind { return KindClass }

// AddSubselection attaches children by variant: references become bases,
// variables attributes, functions methods and classes nested classes.
func (c *ClassEntity) AddSubselection(children map[string][]Entity) {
	if bases := collect[*ReferenceEntity](children); len(bases) > 0 {
		c.Bases = bases
	}
	c.Attributes = append(c.Attributes, collect[*VariableEntity](children)...)
	c.Methods = append(c.Methods, collect[*FunctionEntity](children)...)
	c.Classes = append(c.Classes, collect[*ClassEntity](children)...)
}

func (c *ClassEntity) Flatten() Document {
	doc := Document{"type": string(KindClass)}
	c.flattenInto(doc)
	doc["bases"] = flattenList(c.Bases)
	doc["attributes"] = flattenList(c.Attributes)
	doc["methods"] = flattenList(c.Methods)
	doc["classes"] = flattenList(c.Classes)
	return doc
}

func loadClass(doc Document) (Entity, error) {
	c := &ClassEntity{}
	c.loadFrom(doc)
	var err error
	if c.Bases, err = loadList[*ReferenceEntity](doc, "bases"); err != nil {
		return nil, err
	}
	if c.Attributes, err = loadList[*VariableEntity](doc, "attributes"); err != nil {
		return nil, err
	}
	if c.Methods, err = loadList[*FunctionEntity](doc, "methods"); err != nil {
		return nil, err
	}
	if c.Classes, err = loadList[*ClassEntity](doc, "classes"); err != nil {
		return nil, err
	}
	return c, nil
}

// FunctionEntity is a function or method.
type FunctionEntity struct {
	Named
	Parameters []*VariableEntity
	Statements []Entity
}

func newFunction(src Source) (Entity, error) {
	f := &FunctionEntity{Named: newNamed(src)}
	if f.Name == "" {
		return nil, errors.New("function match has no name")
	}
	for _, p := range SplitArgs(src.field("parameters")) {
		f.Parameters = append(f.Parameters, parameterFromText(src, f.GlobalIdentifier, p))
	}
	return f, nil
}

func parameterFromText(src Source, prefix, text string) *VariableEntity {
	v := &VariableEntity{}
	name, def, hasDefault := strings.Cut(text, "=")
	name, typ, _ := strings.Cut(name, ":")
	v.Name = strings.TrimSpace(name)
	v.Type = strings.TrimSpace(typ)
	if hasDefault {
		v.Default = strings.TrimSpace(def)
	}
	v.GlobalIdentifier = JoinID(prefix, v.Name)
	v.ContentHash = HashText(text)
	v.Language = src.Language
	v.Text = text
	return v
}

func (f *FunctionEntity) Kind() Kind { return KindFunction }
func (f *FunctionEntity) Body() []Entity { return f.Statements }

// AddSubselection attaches variables as parameters and everything that can
// appear in a body as statements, pruned of duplicate representations.
func (f *FunctionEntity) AddSubselection(children map[string][]Entity) {
	if params := collect[*VariableEntity](children); len(params) > 0 {
		f.Parameters = params
	}
	f.Statements = PruneBody(bodyChildren(children))
}

func (f *FunctionEntity) Flatten() Document {
	doc := Document{"type": string(KindFunction)}
	f.flattenInto(doc)
	doc["parameters"] = flattenList(f.Parameters)
	doc["statements"] = flattenList(f.Statements)
	return doc
}

func loadFunction(doc Document) (Entity, error) {
	f := &FunctionEntity{}
	f.loadFrom(doc)
	var err error
	if f.Parameters, err = loadList[*VariableEntity](doc, "parameters"); err != nil {
		return nil, err
	}
	if f.Statements, err = loadBody(doc); err != nil {
		return nil, err
	}
	return f, nil
}

// VariableEntity is a parameter, attribute or call argument. Call
// arguments carry their source text in Default.
type VariableEntity struct {
	Named
	Type    string
	Default string
}

func newVariable(src Source) (Entity, error) {
	v := &VariableEntity{
		Named:   newNamed(src),
		Type:    src.field("type"),
		Default: src.field("default"),
	}
	if v.Name == "" && v.Default == "" {
		return nil, errors.New("variable match has neither name nor default")
	}
	return v, nil
}

func (v *VariableEntity) Kind() Kind { return KindVariable }

func (v *VariableEntity) Flatten() Document {
	doc := Document{"type": string(KindVariable)}
	v.flattenInto(doc)
	doc["var_type"] = v.Type
	doc["default"] = v.Default
	return doc
}

func loadVariable(doc Document) (Entity, error) {
	v := &VariableEntity{Type: str(doc, "var_type"), Default: str(doc, "default")}
	v.loadFrom(doc)
	return v, nil
}

// DependencyEntity is an import of names from another module.
type DependencyEntity struct {
	base
	Source   string
	Provides []*BasicStringEntity
}

func newDependency(src Source) (Entity, error) {
	d := &DependencyEntity{Source: src.field("source")}
	if d.Source == "" {
		return nil, errors.New("dependency match has no source")
	}
	for _, p := range SplitArgs(src.field("provides")) {
		d.Provides = append(d.Provides, &BasicStringEntity{Value: p})
	}
	return d, nil
}

func (d *DependencyEntity) Kind() Kind { return KindDependency }

// AddSubselection replaces the provided names with selected strings.
func (d *DependencyEntity) AddSubselection(children map[string][]Entity) {
	if names := collect[*BasicStringEntity](children); len(names) > 0 {
		d.Provides = names
	}
}

// Exports reports whether the dependency names name in its provides list.
func (d *DependencyEntity) Exports(name string) bool {
	for _, p := range d.Provides {
		if p.Value == name {
			return true
		}
	}
	return false
}

// IsWildcard reports whether the dependency provides the wildcard marker.
func (d *DependencyEntity) IsWildcard() bool { return d.Exports(Wildcard) }

func (d *DependencyEntity) Flatten() Document {
	return Document{
		"type":     string(KindDependency),
		"source":   d.Source,
		"provides": flattenList(d.Provides),
	}
}

func loadDependency(doc Document) (Entity, error) {
	d := &DependencyEntity{Source: str(doc, "source")}
	var err error
	if d.Provides, err = loadList[*BasicStringEntity](doc, "provides"); err != nil {
		return nil, fmt.Errorf("dependency %s: %w", d.Source, err)
	}
	return d, nil
}
