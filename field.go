package strata

import (
	"fmt"
	"reflect"
)

// missingType is the absent sentinel. It is distinct from every valid field
// value, including zero values, so a merge can tell "unset" apart from "set
// to zero/false/empty".
type missingType struct{}

func (missingType) String() string { return "<missing>" }

// Missing marks a field value that no layer has supplied.
var Missing = missingType{}

// IsMissing reports whether v is the absent sentinel.
func IsMissing(v any) bool {
	_, ok := v.(missingType)
	return ok
}

// Field is an immutable schema-level descriptor for one named slot: either a
// leaf value (*DataField) or a nested sub-schema (*SectionField). A Field's
// identity is stable and shared across every Config instance built from the
// same schema; it never holds a value itself.
type Field interface {
	Ref

	// Name returns the field name assigned when the field was bound to a
	// schema, or "" while unbound.
	Name() string

	// Owner returns the schema the field is bound to, or nil while unbound.
	Owner() *Schema

	// Description returns the human-readable description, if any.
	Description() string

	bind(owner *Schema, name string) error
	createDefault(inst *Config) (any, error)
}

// ConverterFunc coerces a raw value into a field's declared type.
type ConverterFunc func(f *DataField, value any) (any, error)

// DefaultFunc computes a field default from the owning instance, enabling
// defaults derived from sibling field values.
type DefaultFunc func(f *DataField, inst *Config) (any, error)

// DataField describes a leaf value slot: declared type, optional default,
// optional environment alias, optional converter.
type DataField struct {
	name      string
	owner     *Schema
	desc      string
	typ       reflect.Type
	alts      []reflect.Type
	def       any
	defaultFn DefaultFunc
	converter ConverterFunc
	env       string
}

// FieldOption customizes a DataField at construction time.
type FieldOption func(*DataField)

// WithDefault sets the static default value.
func WithDefault(v any) FieldOption {
	return func(f *DataField) { f.def = v }
}

// WithDescription sets the field description.
func WithDescription(s string) FieldOption {
	return func(f *DataField) { f.desc = s }
}

// WithEnv sets the environment variable alias consulted by EnvSource.
func WithEnv(name string) FieldOption {
	return func(f *DataField) { f.env = name }
}

// WithConverter installs a custom value converter, replacing the built-in
// type coercion.
func WithConverter(fn ConverterFunc) FieldOption {
	return func(f *DataField) { f.converter = fn }
}

// WithDefaultFunc installs a computed default, used when no static default
// is present. The function sees the instance that owns the field, so it can
// read sibling values that were defaulted earlier in walk order.
func WithDefaultFunc(fn DefaultFunc) FieldOption {
	return func(f *DataField) { f.defaultFn = fn }
}

// OneOf declares a union type: conversion accepts the first alternative the
// value is already compatible with, trying candidates in declaration order,
// and falls back to forcing the first alternative if none match.
func OneOf(types ...reflect.Type) FieldOption {
	return func(f *DataField) { f.alts = types }
}

// NewField creates an unbound leaf field with declared type T.
func NewField[T any](opts ...FieldOption) *DataField {
	f := &DataField{
		typ: reflect.TypeFor[T](),
		def: Missing,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name returns the bound field name.
func (f *DataField) Name() string { return f.name }

// Owner returns the owning schema.
func (f *DataField) Owner() *Schema { return f.owner }

// Description returns the field description.
func (f *DataField) Description() string { return f.desc }

// Type returns the declared type. For union fields this is the first
// alternative.
func (f *DataField) Type() reflect.Type {
	if len(f.alts) > 0 {
		return f.alts[0]
	}
	return f.typ
}

// Env returns the environment variable alias, or "".
func (f *DataField) Env() string { return f.env }

// Default returns the static default value, or Missing.
func (f *DataField) Default() any { return f.def }

func (f *DataField) String() string {
	if f.owner == nil {
		return fmt.Sprintf("<unbound field: %s>", f.Type())
	}
	return fmt.Sprintf("<field %s.%s: %s>", f.owner.name, f.name, f.Type())
}

func (f *DataField) bind(owner *Schema, name string) error {
	if f.owner != nil {
		return fmt.Errorf("%w: field %q is already bound to schema %q",
			ErrSchema, f.name, f.owner.name)
	}
	f.owner = owner
	f.name = name
	return nil
}

// Convert coerces value to the declared type. Missing passes through
// unchanged so absent values never get half-converted.
func (f *DataField) Convert(value any) (any, error) {
	if IsMissing(value) {
		return Missing, nil
	}
	if f.converter != nil {
		v, err := f.converter(f, value)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %w", ErrConversion, f.name, err)
		}
		return v, nil
	}
	if len(f.alts) > 0 {
		vt := reflect.TypeOf(value)
		for _, t := range f.alts {
			if vt == t || (vt != nil && vt.AssignableTo(t)) {
				return value, nil
			}
		}
		return convertValue(value, f.alts[0])
	}
	return convertValue(value, f.typ)
}

func (f *DataField) createDefault(inst *Config) (any, error) {
	if !IsMissing(f.def) {
		return f.Convert(f.def)
	}
	if f.defaultFn != nil {
		v, err := f.defaultFn(f, inst)
		if err != nil {
			return nil, fmt.Errorf("computing default for %q: %w", f.name, err)
		}
		return f.Convert(v)
	}
	return Missing, nil
}

// SectionField describes a nested sub-schema slot. It carries no default or
// converter: construction always materializes a fresh nested instance owned
// by the parent.
type SectionField struct {
	name   string
	owner  *Schema
	desc   string
	schema *Schema
}

// Name returns the bound section name.
func (f *SectionField) Name() string { return f.name }

// Owner returns the owning schema.
func (f *SectionField) Owner() *Schema { return f.owner }

// Description returns the section description.
func (f *SectionField) Description() string { return f.desc }

// Schema returns the nested schema this section materializes.
func (f *SectionField) Schema() *Schema { return f.schema }

func (f *SectionField) String() string {
	if f.owner == nil {
		return fmt.Sprintf("<unbound section: %s>", f.schema.name)
	}
	return fmt.Sprintf("<section %s.%s: %s>", f.owner.name, f.name, f.schema.name)
}

func (f *SectionField) bind(owner *Schema, name string) error {
	if f.owner != nil {
		return fmt.Errorf("%w: section %q is already bound to schema %q",
			ErrSchema, f.name, f.owner.name)
	}
	f.owner = owner
	f.name = name
	return nil
}

func (f *SectionField) createDefault(inst *Config) (any, error) {
	return newInstance(f.schema, inst, nil)
}
