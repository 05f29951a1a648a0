package strata

import (
	"fmt"
	"os"
	"strings"
)

// Source is a named configuration layer. Load must return an instance of
// exactly the given schema, with the Missing sentinel for every value the
// source does not provide. Most sources produce frozen instances; a source
// whose product stays mutable (CustomSource) is the exception.
type Source interface {
	Name() string
	Load(s *Schema) (*Config, error)

	// Validate is a best-effort static check of the source against a
	// schema. strict tightens the check (a defaults source is only strictly
	// valid when every leaf has a default).
	Validate(s *Schema, strict bool) error
}

// WritableSource is a source that accepts single-field write-backs against
// its loaded instance. Sources that do not implement it are read-only; the
// engine surfaces ErrReadOnly for them.
type WritableSource interface {
	Source
	Set(inst *Config, ref Ref, value any) error
	Delete(inst *Config, ref Ref) error
}

// FieldFetcher is a source that supports ad-hoc single-field re-fetch from
// its own representation, used by MultiSourceConfig.RefreshField to avoid a
// full reload.
type FieldFetcher interface {
	Fetch(path FieldPath, f Field) (any, bool, error)
}

// DefaultSource populates every leaf from its static default or its
// default-reference function, in walk order, so computed defaults can read
// siblings defaulted earlier.
type DefaultSource struct {
	name string
}

// NewDefaultSource creates a defaults layer named "default".
func NewDefaultSource() *DefaultSource {
	return &DefaultSource{name: "default"}
}

// Name returns the source name.
func (s *DefaultSource) Name() string { return s.name }

// Load materializes an instance holding every field's default.
func (s *DefaultSource) Load(schema *Schema) (*Config, error) {
	c, err := schema.New(nil)
	if err != nil {
		return nil, err
	}
	err = Unfrozen(c, func(c *Config) error {
		for _, df := range DataFields(schema) {
			owner := c.byField[df]
			v, err := df.createDefault(owner)
			if err != nil {
				return err
			}
			if IsMissing(v) {
				continue
			}
			owner.values[df.name] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Validate passes unless strict demands every leaf have a default and one
// doesn't.
func (s *DefaultSource) Validate(schema *Schema, strict bool) error {
	if !strict {
		return nil
	}
	var missing []string
	for path, df := range DataFields(schema) {
		if IsMissing(df.def) && df.defaultFn == nil {
			missing = append(missing, path.String())
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("fields without defaults: %s", strings.Join(missing, ", "))
	}
	return nil
}

// DataSource loads from an in-memory nested value map. Its product is
// frozen like any other read-only layer.
type DataSource struct {
	name string
	data map[string]any
}

// NewDataSource creates a read-only in-memory layer.
func NewDataSource(name string, data map[string]any) *DataSource {
	if data == nil {
		data = make(map[string]any)
	}
	return &DataSource{name: name, data: data}
}

// Name returns the source name.
func (s *DataSource) Name() string { return s.name }

// Load constructs an instance from the backing map.
func (s *DataSource) Load(schema *Schema) (*Config, error) {
	return schema.New(s.data)
}

// Validate checks that, under strict, every backing key resolves to a
// declared field.
func (s *DataSource) Validate(schema *Schema, strict bool) error {
	if !strict {
		return nil
	}
	probe, err := schema.New(nil)
	if err != nil {
		return err
	}
	for path := range flattenMap(s.data, "") {
		if _, _, err := ParsePath(path).resolve(probe); err != nil {
			return err
		}
	}
	return nil
}

// Fetch re-reads a single field from the backing map.
func (s *DataSource) Fetch(path FieldPath, _ Field) (any, bool, error) {
	v := navigateToPath(s.data, path.String())
	if v == nil {
		return Missing, false, nil
	}
	return v, true, nil
}

// CustomSource is the canonical writable layer: it loads from an internal
// map and its returned instance is deliberately left mutable, unlike every
// other source's product.
type CustomSource struct {
	DataSource
}

// NewCustomSource creates a writable override layer named "custom".
func NewCustomSource(data map[string]any) *CustomSource {
	if data == nil {
		data = make(map[string]any)
	}
	return &CustomSource{DataSource{name: "custom", data: data}}
}

// Load constructs a mutable instance from the backing map.
func (s *CustomSource) Load(schema *Schema) (*Config, error) {
	c, err := schema.New(s.data)
	if err != nil {
		return nil, err
	}
	c.Unfreeze()
	return c, nil
}

// Set writes a field on the loaded instance and records it in the backing
// map so a reload reproduces it.
func (s *CustomSource) Set(inst *Config, ref Ref, value any) error {
	if err := inst.Set(ref, value); err != nil {
		return err
	}
	owner, field, err := ref.resolve(inst)
	if err != nil {
		return err
	}
	path := owner.pathFromRoot().Child(field.Name())
	stored, err := inst.Get(ref)
	if err != nil {
		return err
	}
	setNestedValue(s.data, path.String(), stored)
	return nil
}

// Delete resets a field on the loaded instance and drops it from the
// backing map.
func (s *CustomSource) Delete(inst *Config, ref Ref) error {
	if err := inst.Delete(ref); err != nil {
		return err
	}
	owner, field, err := ref.resolve(inst)
	if err != nil {
		return err
	}
	path := owner.pathFromRoot().Child(field.Name())
	deleteNestedValue(s.data, path.String())
	return nil
}

// EnvSource reads values from environment variables. A field with an env
// alias maps to that variable; with auto mode enabled, aliasless fields map
// to PREFIX + path with dots as underscores, uppercased. Values arrive as
// strings and go through field conversion.
type EnvSource struct {
	name      string
	lookup    func(string) (string, bool)
	prefix    string
	auto      bool
	transform func(string) string
}

// EnvOption customizes an EnvSource.
type EnvOption func(*EnvSource)

// EnvAuto derives variable names for fields without an explicit alias.
func EnvAuto() EnvOption {
	return func(s *EnvSource) { s.auto = true }
}

// EnvPrefix prepends a prefix to auto-derived variable names.
func EnvPrefix(prefix string) EnvOption {
	return func(s *EnvSource) { s.prefix = prefix }
}

// EnvTransform replaces the default path-to-variable transformation.
func EnvTransform(fn func(path string) string) EnvOption {
	return func(s *EnvSource) { s.transform = fn }
}

// EnvLookup replaces the process environment, mainly for tests.
func EnvLookup(fn func(string) (string, bool)) EnvOption {
	return func(s *EnvSource) { s.lookup = fn }
}

// NewEnvSource creates an environment layer named "environment".
func NewEnvSource(opts ...EnvOption) *EnvSource {
	s := &EnvSource{
		name:   "environment",
		lookup: os.LookupEnv,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the source name.
func (s *EnvSource) Name() string { return s.name }

func (s *EnvSource) varName(path FieldPath, df *DataField) (string, bool) {
	if df.env != "" {
		return df.env, true
	}
	if !s.auto {
		return "", false
	}
	if s.transform != nil {
		return s.transform(path.String()), true
	}
	env := strings.ToUpper(strings.ReplaceAll(path.String(), ".", "_"))
	return s.prefix + env, true
}

// Load materializes an instance from whatever variables are currently set.
func (s *EnvSource) Load(schema *Schema) (*Config, error) {
	c, err := schema.New(nil)
	if err != nil {
		return nil, err
	}
	err = Unfrozen(c, func(c *Config) error {
		for path, df := range DataFields(schema) {
			key, ok := s.varName(path, df)
			if !ok {
				continue
			}
			if raw, exists := s.lookup(key); exists {
				if err := c.Set(df, raw); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Validate is a no-op: any subset of variables may legitimately be unset.
func (s *EnvSource) Validate(schema *Schema, strict bool) error {
	return nil
}

// Fetch re-reads a single field's variable.
func (s *EnvSource) Fetch(path FieldPath, f Field) (any, bool, error) {
	df, ok := f.(*DataField)
	if !ok {
		return Missing, false, nil
	}
	key, ok := s.varName(path, df)
	if !ok {
		return Missing, false, nil
	}
	raw, exists := s.lookup(key)
	if !exists {
		return Missing, false, nil
	}
	return raw, true, nil
}
