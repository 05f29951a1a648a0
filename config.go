package strata

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Ref addresses a field inside a Config instance: either a Field identity
// (O(1) through the field-instance mapping, independent of nesting) or a
// FieldPath walked segment by segment.
type Ref interface {
	resolve(root *Config) (*Config, Field, error)
}

// FieldPath is an ordered sequence of names from a root instance to a field,
// used when the Field object itself is not at hand.
type FieldPath []string

// ParsePath splits a dotted path into a FieldPath.
func ParsePath(s string) FieldPath {
	return strings.Split(s, ".")
}

func (p FieldPath) String() string { return strings.Join(p, ".") }

// Child returns a copy of p extended by name.
func (p FieldPath) Child(name string) FieldPath {
	out := make(FieldPath, len(p)+1)
	copy(out, p)
	out[len(p)] = name
	return out
}

func (p FieldPath) resolve(root *Config) (*Config, Field, error) {
	if len(p) == 0 {
		return nil, nil, fmt.Errorf("%w: empty path", ErrFieldNotFound)
	}
	c := root
	for _, seg := range p[:len(p)-1] {
		child, ok := c.children[seg]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %q has no section %q",
				ErrFieldNotFound, p, seg)
		}
		c = child
	}
	f, ok := c.schema.fields[p[len(p)-1]]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrFieldNotFound, p)
	}
	return c, f, nil
}

func (f *DataField) resolve(root *Config) (*Config, Field, error) {
	inst, ok := root.byField[f]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s is not reachable from schema %q",
			ErrFieldNotFound, f, root.schema.name)
	}
	return inst, f, nil
}

func (f *SectionField) resolve(root *Config) (*Config, Field, error) {
	inst, ok := root.byField[f]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s is not reachable from schema %q",
			ErrFieldNotFound, f, root.schema.name)
	}
	return inst, f, nil
}

// Config is a materialized instance of a schema. Every leaf slot holds
// either a typed value or the Missing sentinel; section slots hold nested
// instances owned exclusively by this parent. A frozen instance rejects all
// field mutation.
type Config struct {
	schema   *Schema
	parent   *Config
	name     string // section name inside parent, "" for a root
	frozen   bool
	values   map[string]any
	children map[string]*Config
	byField  map[Field]*Config
}

// New materializes an instance from a nested value map. Fields not supplied
// hold Missing; they are never auto-defaulted (defaulting is a Source's
// job). Unknown names fail wrapping ErrUnknownField on strict schemas and
// are ignored otherwise. The instance is returned frozen unless the schema
// was declared Mutable.
func (s *Schema) New(values map[string]any) (*Config, error) {
	c, err := newInstance(s, nil, values)
	if err != nil {
		return nil, err
	}
	if !s.mutable {
		c.Freeze()
	}
	return c, nil
}

func newInstance(s *Schema, parent *Config, values map[string]any) (*Config, error) {
	s.seal()
	c := &Config{
		schema:   s,
		parent:   parent,
		values:   make(map[string]any, len(s.order)),
		children: make(map[string]*Config, len(s.sections)),
		byField:  make(map[Field]*Config, len(s.order)),
	}

	leftover := make(map[string]any, len(values))
	for k, v := range values {
		leftover[k] = v
	}

	for _, name := range s.order {
		field := s.fields[name]
		raw, provided := leftover[name]
		delete(leftover, name)

		switch f := field.(type) {
		case *SectionField:
			var sub map[string]any
			if provided && raw != nil && !IsMissing(raw) {
				m, ok := raw.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("%w: section %q wants a map, got %T",
						ErrConversion, name, raw)
				}
				sub = m
			}
			child, err := newInstance(f.schema, c, sub)
			if err != nil {
				return nil, fmt.Errorf("section %q: %w", name, err)
			}
			child.name = name
			c.children[name] = child
			c.byField[f] = c
			for cf, inst := range child.byField {
				c.byField[cf] = inst
			}

		case *DataField:
			v := any(Missing)
			if provided {
				converted, err := f.Convert(raw)
				if err != nil {
					return nil, err
				}
				v = converted
			}
			c.values[name] = v
			c.byField[f] = c
		}
	}

	if s.strict && len(leftover) > 0 {
		names := make([]string, 0, len(leftover))
		for k := range leftover {
			names = append(names, k)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("%w: %q in schema %q", ErrUnknownField, names[0], s.name)
	}

	return c, nil
}

// Schema returns the schema this instance materializes.
func (c *Config) Schema() *Schema { return c.schema }

// pathFromRoot returns the section path from the root instance down to c.
func (c *Config) pathFromRoot() FieldPath {
	if c.parent == nil {
		return nil
	}
	return c.parent.pathFromRoot().Child(c.name)
}

// Parent returns the owning parent instance, or nil for a root.
func (c *Config) Parent() *Config { return c.parent }

// Section returns the nested instance bound under name.
func (c *Config) Section(name string) (*Config, bool) {
	child, ok := c.children[name]
	return child, ok
}

// Frozen reports whether the instance currently rejects mutation.
func (c *Config) Frozen() bool { return c.frozen }

// Freeze marks the instance read-only, cascading through every nested
// section.
func (c *Config) Freeze() {
	c.frozen = true
	for _, child := range c.children {
		child.Freeze()
	}
}

// Unfreeze makes the instance mutable, cascading through every nested
// section. Ancestors and siblings are untouched.
func (c *Config) Unfreeze() {
	c.frozen = false
	for _, child := range c.children {
		child.Unfreeze()
	}
}

// Unfrozen runs fn with c temporarily mutable and restores the previous
// frozen state on every exit path, including a panic escaping fn. No
// instance is left accidentally mutable after a failed bulk edit.
func Unfrozen(c *Config, fn func(*Config) error) error {
	prev := c.frozen
	c.Unfreeze()
	defer func() {
		if prev {
			c.Freeze()
		} else {
			c.Unfreeze()
		}
	}()
	return fn(c)
}

// Get resolves ref inside this instance and returns the stored value, the
// Missing sentinel, or the nested *Config for a section ref.
func (c *Config) Get(ref Ref) (any, error) {
	owner, field, err := ref.resolve(c)
	if err != nil {
		return nil, err
	}
	if _, ok := field.(*SectionField); ok {
		return owner.children[field.Name()], nil
	}
	return owner.values[field.Name()], nil
}

// Set resolves ref and stores value after type conversion. Setting a
// section ref accepts a nested value map applied leaf by leaf; a section
// instance itself can never be replaced.
func (c *Config) Set(ref Ref, value any) error {
	owner, field, err := ref.resolve(c)
	if err != nil {
		return err
	}

	switch f := field.(type) {
	case *SectionField:
		child := owner.children[f.name]
		if child.frozen {
			return fmt.Errorf("%w: cannot write section %q", ErrFrozen, f.name)
		}
		m, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: section %q wants a map, got %T",
				ErrConversion, f.name, value)
		}
		return child.apply(m)

	case *DataField:
		if owner.frozen {
			return fmt.Errorf("%w: cannot write %q", ErrFrozen, f.name)
		}
		v, err := f.Convert(value)
		if err != nil {
			return err
		}
		owner.values[f.name] = v
		return nil
	}
	return fmt.Errorf("%w: %v", ErrFieldNotFound, ref)
}

// apply writes a nested value map into the instance, recursing into
// sections. Unknown names follow the schema's strictness.
func (c *Config) apply(values map[string]any) error {
	names := make([]string, 0, len(values))
	for k := range values {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, known := c.schema.fields[name]; !known {
			if c.schema.strict {
				return fmt.Errorf("%w: %q in schema %q", ErrUnknownField, name, c.schema.name)
			}
			continue
		}
		if err := c.Set(FieldPath{name}, values[name]); err != nil {
			return err
		}
	}
	return nil
}

// Delete resets a leaf to the Missing sentinel. Sections cannot be deleted.
func (c *Config) Delete(ref Ref) error {
	owner, field, err := ref.resolve(c)
	if err != nil {
		return err
	}
	if _, ok := field.(*SectionField); ok {
		return fmt.Errorf("section %q cannot be deleted", field.Name())
	}
	if owner.frozen {
		return fmt.Errorf("%w: cannot delete %q", ErrFrozen, field.Name())
	}
	owner.values[field.Name()] = Missing
	return nil
}

// Equal reports whether two instances of the same schema hold equal values
// for every field, recursing into sections. Missing only equals Missing.
func (c *Config) Equal(other *Config) bool {
	if other == nil || c.schema != other.schema {
		return false
	}
	for _, name := range c.schema.order {
		if child, ok := c.children[name]; ok {
			if !child.Equal(other.children[name]) {
				return false
			}
			continue
		}
		if !reflect.DeepEqual(c.values[name], other.values[name]) {
			return false
		}
	}
	return true
}

// Map exports the instance as a nested map, skipping Missing leaves and
// empty sections.
func (c *Config) Map() map[string]any {
	out := make(map[string]any)
	for _, name := range c.schema.order {
		if child, ok := c.children[name]; ok {
			if m := child.Map(); len(m) > 0 {
				out[name] = m
			}
			continue
		}
		if v := c.values[name]; !IsMissing(v) {
			out[name] = v
		}
	}
	return out
}

func (c *Config) String() string {
	var b strings.Builder
	b.WriteString(c.schema.name)
	b.WriteByte('(')
	first := true
	for _, name := range c.schema.order {
		var repr string
		if child, ok := c.children[name]; ok {
			repr = child.String()
		} else if v := c.values[name]; !IsMissing(v) {
			repr = fmt.Sprintf("%v", v)
		} else {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(name)
		b.WriteString("=")
		b.WriteString(repr)
	}
	b.WriteByte(')')
	return b.String()
}
