package strata

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Schema is an immutable descriptor of a configuration shape: an ordered set
// of named fields, some of which are nested sections. A schema is built once
// at startup; it seals on first instantiation (or when attached as a section)
// and rejects further mutation.
type Schema struct {
	name     string
	order    []string
	fields   map[string]Field
	sections map[string]*Schema
	strict   bool
	mutable  bool
	sealed   bool
	attached bool
}

// SchemaOption customizes schema behavior.
type SchemaOption func(*Schema)

// Strict makes construction fail with ErrUnknownField when given an
// undeclared name. Non-strict schemas silently ignore unknown names.
func Strict() SchemaOption {
	return func(s *Schema) { s.strict = true }
}

// Mutable makes instances start out unfrozen. By default instances freeze at
// the end of construction.
func Mutable() SchemaOption {
	return func(s *Schema) { s.mutable = true }
}

// NewSchema creates an empty schema.
func NewSchema(name string, opts ...SchemaOption) *Schema {
	s := &Schema{
		name:     name,
		fields:   make(map[string]Field),
		sections: make(map[string]*Schema),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the schema name.
func (s *Schema) Name() string { return s.name }

// Fields returns the schema's fields in declaration order.
func (s *Schema) Fields() []Field {
	out := make([]Field, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.fields[name])
	}
	return out
}

// Field returns the field bound under name.
func (s *Schema) Field(name string) (Field, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// Sections returns the nested schemas keyed by section name.
func (s *Schema) Sections() map[string]*Schema {
	out := make(map[string]*Schema, len(s.sections))
	for name, sub := range s.sections {
		out[name] = sub
	}
	return out
}

// AddField binds an unbound field under name. Binding assigns the field's
// name and owner exactly once; rebinding, duplicate names, and mutation of a
// sealed schema all fail wrapping ErrSchema.
func (s *Schema) AddField(name string, f Field) error {
	if s.sealed {
		return fmt.Errorf("%w: schema %q is sealed", ErrSchema, s.name)
	}
	if !isValidKeySegment(name) {
		return fmt.Errorf("%w: invalid field name %q", ErrSchema, name)
	}
	if _, exists := s.fields[name]; exists {
		return fmt.Errorf("%w: duplicate field %q in schema %q", ErrSchema, name, s.name)
	}
	if sf, ok := f.(*SectionField); ok && sf.schema.attached {
		// A schema attached twice would give its fields two homes inside
		// one instance tree, breaking field-identity addressing.
		return fmt.Errorf("%w: schema %q is already attached as a section",
			ErrSchema, sf.schema.name)
	}
	if err := f.bind(s, name); err != nil {
		return err
	}
	s.fields[name] = f
	s.order = append(s.order, name)
	if sf, ok := f.(*SectionField); ok {
		s.sections[name] = sf.schema
		sf.schema.attached = true
		sf.schema.seal()
	}
	return nil
}

// AddSection binds sub as a nested section under name. The sub-schema is
// sealed in the process.
func (s *Schema) AddSection(name string, sub *Schema) error {
	return s.AddField(name, &SectionField{schema: sub, desc: sub.name})
}

// MustField is AddField for fluent declaration; it panics on schema misuse,
// which is a programming error caught at startup.
func (s *Schema) MustField(name string, f Field) *Schema {
	if err := s.AddField(name, f); err != nil {
		panic(err)
	}
	return s
}

// MustSection is AddSection for fluent declaration.
func (s *Schema) MustSection(name string, sub *Schema) *Schema {
	if err := s.AddSection(name, sub); err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) seal() { s.sealed = true }

// SchemaFromStruct derives a schema from a struct definition. Field names
// come from `toml` tags (falling back to the Go field name), environment
// aliases from `env` tags, descriptions from `desc` tags. Nested structs
// become sections. Every leaf takes the struct field's value as its static
// default, so a populated prototype doubles as the defaults layer.
func SchemaFromStruct(name string, proto any, opts ...SchemaOption) (*Schema, error) {
	v := reflect.ValueOf(proto)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, fmt.Errorf("%w: nil struct pointer", ErrSchema)
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: want struct, got %T", ErrSchema, proto)
	}

	s := NewSchema(name, opts...)
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		sf := t.Field(i)
		fv := v.Field(i)

		if !sf.IsExported() {
			continue
		}

		tag := sf.Tag.Get("toml")
		if tag == "-" {
			continue
		}
		key := sf.Name
		if tag != "" {
			if first, _, _ := strings.Cut(tag, ","); first != "" {
				key = first
			}
		}

		if fv.Kind() == reflect.Ptr && fv.Type().Elem().Kind() == reflect.Struct {
			if fv.IsNil() {
				continue
			}
			fv = fv.Elem()
		}

		if fv.Kind() == reflect.Struct && fv.Type() != timeType {
			sub, err := SchemaFromStruct(key, fv.Interface(), opts...)
			if err != nil {
				return nil, fmt.Errorf("section %q: %w", key, err)
			}
			if err := s.AddSection(key, sub); err != nil {
				return nil, err
			}
			continue
		}

		df := &DataField{
			typ:  fv.Type(),
			def:  fv.Interface(),
			env:  sf.Tag.Get("env"),
			desc: sf.Tag.Get("desc"),
		}
		if err := s.AddField(key, df); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// AssembleSchemas builds section hierarchies out of independently declared
// schema fragments keyed by dotted name ("app", "app.db", "app.db.pool").
// Fragments attach to their ancestors deepest first; the returned map holds
// the remaining roots. This is how independently discovered plugin fragments
// become one schema tree.
func AssembleSchemas(fragments map[string]*Schema) (map[string]*Schema, error) {
	remaining := make(map[string]*Schema, len(fragments))
	keys := make([]string, 0, len(fragments))
	for k, v := range fragments {
		remaining[k] = v
		keys = append(keys, k)
	}

	// Deepest paths first so grandchildren attach before their parents move
	// up the tree.
	sort.Slice(keys, func(i, j int) bool {
		di, dj := strings.Count(keys[i], "."), strings.Count(keys[j], ".")
		if di != dj {
			return di > dj
		}
		return keys[i] < keys[j]
	})

	for _, k := range keys {
		parent, ok := remaining[k]
		if !ok {
			continue
		}
		depth := strings.Count(k, ".")
		prefix := k + "."

		childKeys := make([]string, 0)
		for ck := range remaining {
			if strings.Count(ck, ".") == depth+1 && strings.HasPrefix(ck, prefix) {
				childKeys = append(childKeys, ck)
			}
		}
		sort.Strings(childKeys)

		for _, ck := range childKeys {
			name := ck[strings.LastIndex(ck, ".")+1:]
			if err := parent.AddSection(name, remaining[ck]); err != nil {
				return nil, fmt.Errorf("assembling %q: %w", ck, err)
			}
			delete(remaining, ck)
		}
	}

	return remaining, nil
}
