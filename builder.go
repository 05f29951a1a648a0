package strata

import (
	"errors"
	"fmt"

	"github.com/spf13/pflag"
)

// ValidatorFunc validates a fully built MultiSourceConfig and returns an
// error if the resolved configuration is unacceptable.
type ValidatorFunc func(m *MultiSourceConfig) error

// Builder provides a fluent interface for assembling a multi-source
// configuration. Sources are added lowest precedence first.
type Builder struct {
	schema     *Schema
	sources    []Source
	mutable    bool
	validators []ValidatorFunc
	err        error
}

// NewBuilder creates a new configuration builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithSchema sets the schema the built configuration resolves against.
func (b *Builder) WithSchema(s *Schema) *Builder {
	b.schema = s
	return b
}

// WithDefaults derives the schema from a struct prototype. Field values in
// the prototype become static defaults. Shorthand for SchemaFromStruct
// followed by WithSchema.
func (b *Builder) WithDefaults(name string, proto any, opts ...SchemaOption) *Builder {
	if b.err != nil {
		return b
	}
	s, err := SchemaFromStruct(name, proto, opts...)
	if err != nil {
		b.err = fmt.Errorf("failed to derive schema from defaults: %w", err)
		return b
	}
	b.schema = s
	return b
}

// WithSource appends a source. Later sources take precedence over earlier
// ones.
func (b *Builder) WithSource(src Source) *Builder {
	b.sources = append(b.sources, src)
	return b
}

// WithFile appends a file source for the given path.
func (b *Builder) WithFile(path string, opts ...FileOption) *Builder {
	return b.WithSource(NewFileSource(path, opts...))
}

// WithDiscoveredFile locates a config file via the standard search order
// and appends a file source for it. A file that cannot be found is skipped.
func (b *Builder) WithDiscoveredFile(d Discovery) *Builder {
	if b.err != nil {
		return b
	}
	path, found := d.Find()
	if !found {
		return b
	}
	return b.WithSource(NewFileSource(path))
}

// WithEnv appends an environment variable source.
func (b *Builder) WithEnv(opts ...EnvOption) *Builder {
	return b.WithSource(NewEnvSource(opts...))
}

// WithFlags appends a command-line flag source bound to the given flag set.
// The flag set must already be parsed; only flags explicitly set on the
// command line contribute values.
func (b *Builder) WithFlags(flags *pflag.FlagSet) *Builder {
	if b.err != nil {
		return b
	}
	if b.schema == nil {
		b.err = errors.New("WithFlags requires a schema; call WithSchema or WithDefaults first")
		return b
	}
	fs := NewFlagSource()
	fs.Register(flags, b.schema)
	fs.Bind(flags)
	return b.WithSource(fs)
}

// WithData appends a named in-memory source.
func (b *Builder) WithData(name string, data map[string]any) *Builder {
	return b.WithSource(NewDataSource(name, data))
}

// WithCustom appends a writable in-memory source seeded with data. A nil
// map starts the source empty.
func (b *Builder) WithCustom(data map[string]any) *Builder {
	return b.WithSource(NewCustomSource(data))
}

// Mutable builds a configuration whose merged instance accepts writes,
// routed to the highest-precedence writable source.
func (b *Builder) Mutable() *Builder {
	b.mutable = true
	return b
}

// WithValidator adds a validation function that runs after the build.
// Multiple validators run in the order they were added.
func (b *Builder) WithValidator(fn ValidatorFunc) *Builder {
	if fn != nil {
		b.validators = append(b.validators, fn)
	}
	return b
}

// Build assembles the multi-source configuration. The defaults source is
// always included at the lowest precedence. A missing config file is not
// fatal: Build returns the configuration alongside ErrConfigNotFound so
// callers can decide whether to proceed.
func (b *Builder) Build() (*MultiSourceConfig, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.schema == nil {
		return nil, errors.New("no schema: call WithSchema or WithDefaults")
	}

	sources := make([]Source, 0, len(b.sources)+1)
	sources = append(sources, NewDefaultSource())
	var notFound error
	for _, src := range b.sources {
		if fs, ok := src.(*FileSource); ok {
			if err := fs.Validate(b.schema, false); err != nil {
				return nil, err
			}
			if _, err := fs.read(); errors.Is(err, ErrConfigNotFound) {
				notFound = err
				continue
			}
		}
		sources = append(sources, src)
	}

	var m *MultiSourceConfig
	var err error
	if b.mutable {
		m, err = NewMutableMultiSource(b.schema, sources...)
	} else {
		m, err = NewMultiSource(b.schema, sources...)
	}
	if err != nil {
		return nil, err
	}

	for _, validator := range b.validators {
		if err := validator(m); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}

	// notFound is nil or ErrConfigNotFound
	return m, notFound
}

// MustBuild is like Build but panics on error. A missing config file does
// not panic; the configuration proceeds with the remaining sources.
func (b *Builder) MustBuild() *MultiSourceConfig {
	m, err := b.Build()
	if err != nil && !errors.Is(err, ErrConfigNotFound) {
		panic(fmt.Sprintf("config build failed: %v", err))
	}
	return m
}

// BuildAndScan builds and unmarshals the merged configuration into the
// provided target struct pointer.
func (b *Builder) BuildAndScan(target any) error {
	m, err := b.Build()
	if err != nil && !errors.Is(err, ErrConfigNotFound) {
		return err
	}
	if scanErr := m.Scan("", target); scanErr != nil {
		return fmt.Errorf("failed to scan merged config: %w", scanErr)
	}
	// nil or ErrConfigNotFound
	return err
}
