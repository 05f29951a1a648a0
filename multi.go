package strata

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
)

// MultiSourceConfig owns an ordered list of sources (later entries override
// earlier ones: highest precedence last), a per-source cache of loaded
// instances, and one derived merged instance. The merged instance is frozen
// unless the engine was constructed mutable, in which case writes route to
// the highest-precedence writable source.
type MultiSourceConfig struct {
	schema  *Schema
	sources []Source
	configs map[string]*Config
	merged  *Config
	mutable bool
}

// NewMultiSource loads every source and merges them. A failing load fails
// construction: a broken layer is never silently treated as all-absent.
func NewMultiSource(schema *Schema, sources ...Source) (*MultiSourceConfig, error) {
	return newMultiSource(schema, false, sources)
}

// NewMutableMultiSource is NewMultiSource with a mutable merged view whose
// writes route to the highest-precedence writable source.
func NewMutableMultiSource(schema *Schema, sources ...Source) (*MultiSourceConfig, error) {
	return newMultiSource(schema, true, sources)
}

func newMultiSource(schema *Schema, mutable bool, sources []Source) (*MultiSourceConfig, error) {
	m := &MultiSourceConfig{
		schema:  schema,
		sources: make([]Source, 0, len(sources)),
		configs: make(map[string]*Config, len(sources)),
		mutable: mutable,
	}
	for _, src := range sources {
		if _, exists := m.configs[src.Name()]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateSource, src.Name())
		}
		cfg, err := src.Load(schema)
		if err != nil {
			return nil, fmt.Errorf("loading source %q: %w", src.Name(), err)
		}
		m.sources = append(m.sources, src)
		m.configs[src.Name()] = cfg
	}

	merged, err := m.buildMerged(nil)
	if err != nil {
		return nil, err
	}
	if mutable {
		merged.Unfreeze()
	}
	m.merged = merged
	return m, nil
}

// Merged returns the current merged instance. It is replaced wholesale, not
// patched, whenever a source is added, removed, or reloaded.
func (m *MultiSourceConfig) Merged() *Config { return m.merged }

// Sources returns the source names in precedence order (lowest first).
func (m *MultiSourceConfig) Sources() []string {
	names := make([]string, len(m.sources))
	for i, src := range m.sources {
		names[i] = src.Name()
	}
	return names
}

// SourceConfig returns the cached loaded instance for a named source.
func (m *MultiSourceConfig) SourceConfig(name string) (*Config, error) {
	cfg, ok := m.configs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSourceNotFound, name)
	}
	return cfg, nil
}

// Get reads a field from the merged view.
func (m *MultiSourceConfig) Get(ref Ref) (any, error) {
	return m.merged.Get(ref)
}

// Set writes a field through the highest-precedence writable source and
// re-merges the affected path. It fails with ErrFrozen on an immutable
// engine and ErrReadOnly when no source accepts writes.
func (m *MultiSourceConfig) Set(ref Ref, value any) error {
	if !m.mutable {
		return fmt.Errorf("%w: merged view of %q", ErrFrozen, m.schema.name)
	}
	ws, cfg, err := m.writableSource()
	if err != nil {
		return err
	}
	if err := ws.Set(cfg, ref, value); err != nil {
		return err
	}
	return m.remerge(ref)
}

// Delete removes a field's override from the highest-precedence writable
// source and re-merges the affected path.
func (m *MultiSourceConfig) Delete(ref Ref) error {
	if !m.mutable {
		return fmt.Errorf("%w: merged view of %q", ErrFrozen, m.schema.name)
	}
	ws, cfg, err := m.writableSource()
	if err != nil {
		return err
	}
	if err := ws.Delete(cfg, ref); err != nil {
		return err
	}
	return m.remerge(ref)
}

func (m *MultiSourceConfig) writableSource() (WritableSource, *Config, error) {
	for i := len(m.sources) - 1; i >= 0; i-- {
		if ws, ok := m.sources[i].(WritableSource); ok {
			return ws, m.configs[ws.Name()], nil
		}
	}
	return nil, nil, fmt.Errorf("%w: no writable source", ErrReadOnly)
}

// buildMerged resolves every leaf to the value from the highest-precedence
// source that is not absent for it. Sources named in exclude are skipped.
func (m *MultiSourceConfig) buildMerged(exclude []string) (*Config, error) {
	merged, err := m.schema.New(nil)
	if err != nil {
		return nil, err
	}
	err = Unfrozen(merged, func(c *Config) error {
		for _, df := range DataFields(m.schema) {
			for i := len(m.sources) - 1; i >= 0; i-- {
				name := m.sources[i].Name()
				if slices.Contains(exclude, name) {
					continue
				}
				v, err := m.configs[name].Get(df)
				if err != nil {
					return err
				}
				if !IsMissing(v) {
					c.byField[df].values[df.name] = v
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// rebuild replaces the merged instance, preserving its frozen flag.
func (m *MultiSourceConfig) rebuild() error {
	frozen := m.merged.Frozen()
	merged, err := m.buildMerged(nil)
	if err != nil {
		return err
	}
	if frozen {
		merged.Freeze()
	} else {
		merged.Unfreeze()
	}
	m.merged = merged
	return nil
}

// remerge re-resolves a single field (or, for a section ref, the whole
// subtree via rebuild) without reloading any source.
func (m *MultiSourceConfig) remerge(ref Ref) error {
	_, field, err := ref.resolve(m.merged)
	if err != nil {
		return err
	}
	df, ok := field.(*DataField)
	if !ok {
		return m.rebuild()
	}
	return Unfrozen(m.merged, func(c *Config) error {
		for i := len(m.sources) - 1; i >= 0; i-- {
			v, err := m.configs[m.sources[i].Name()].Get(df)
			if err != nil {
				return err
			}
			if !IsMissing(v) {
				c.byField[df].values[df.name] = v
				return nil
			}
		}
		c.byField[df].values[df.name] = Missing
		return nil
	})
}

// AddSource appends a source at the highest-precedence position and rebuilds
// the merged view.
func (m *MultiSourceConfig) AddSource(src Source) error {
	return m.InsertSource(src, len(m.sources))
}

// InsertSource inserts a source at the given precedence index (0 is lowest)
// and rebuilds the merged view. An already-cached load under the same name
// is reused.
func (m *MultiSourceConfig) InsertSource(src Source, index int) error {
	for _, s := range m.sources {
		if s.Name() == src.Name() {
			return fmt.Errorf("%w: %q", ErrDuplicateSource, src.Name())
		}
	}
	if index < 0 || index > len(m.sources) {
		return fmt.Errorf("source index %d out of range [0, %d]", index, len(m.sources))
	}

	cfg, cached := m.configs[src.Name()]
	if !cached {
		loaded, err := src.Load(m.schema)
		if err != nil {
			return fmt.Errorf("loading source %q: %w", src.Name(), err)
		}
		cfg = loaded
	}

	m.sources = slices.Insert(m.sources, index, src)
	m.configs[src.Name()] = cfg
	return m.rebuild()
}

// RemoveSource drops a source and its cached instance and rebuilds the
// merged view.
func (m *MultiSourceConfig) RemoveSource(name string) error {
	idx := -1
	for i, src := range m.sources {
		if src.Name() == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %q", ErrSourceNotFound, name)
	}
	m.sources = slices.Delete(m.sources, idx, idx+1)
	delete(m.configs, name)
	return m.rebuild()
}

// Overrides computes the minimal override set the named writable layer must
// hold to reproduce the current merged state once that layer is excluded
// from a re-merge: for each leaf, the merged value is recorded iff it
// differs from what the remaining layers would resolve to.
func (m *MultiSourceConfig) Overrides(customName string) (*Config, error) {
	if _, ok := m.configs[customName]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrSourceNotFound, customName)
	}
	without, err := m.buildMerged([]string{customName})
	if err != nil {
		return nil, err
	}

	diff, err := m.schema.New(nil)
	if err != nil {
		return nil, err
	}
	err = Unfrozen(diff, func(c *Config) error {
		for _, df := range DataFields(m.schema) {
			cur, err := m.merged.Get(df)
			if err != nil {
				return err
			}
			base, err := without.Get(df)
			if err != nil {
				return err
			}
			if !reflect.DeepEqual(cur, base) {
				c.byField[df].values[df.name] = cur
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return diff, nil
}

// RefreshField re-fetches one field from each named source (all sources if
// none are named) that supports ad-hoc re-fetch, then re-resolves just that
// path, avoiding a full rebuild when only one value is known to have changed.
func (m *MultiSourceConfig) RefreshField(ref Ref, sourceNames ...string) error {
	for _, name := range sourceNames {
		if _, ok := m.configs[name]; !ok {
			return fmt.Errorf("%w: %q", ErrSourceNotFound, name)
		}
	}

	owner, field, err := ref.resolve(m.merged)
	if err != nil {
		return err
	}
	df, ok := field.(*DataField)
	if !ok {
		return fmt.Errorf("%w: cannot refresh section %q", ErrFieldNotFound, field.Name())
	}
	path := owner.pathFromRoot().Child(df.Name())

	for _, src := range m.sources {
		if len(sourceNames) > 0 && !slices.Contains(sourceNames, src.Name()) {
			continue
		}
		fetcher, ok := src.(FieldFetcher)
		if !ok {
			continue
		}
		raw, present, err := fetcher.Fetch(path, df)
		if err != nil {
			return fmt.Errorf("refreshing %q from %q: %w", path, src.Name(), err)
		}
		cfg := m.configs[src.Name()]
		err = Unfrozen(cfg, func(c *Config) error {
			if !present {
				return c.Delete(df)
			}
			return c.Set(df, raw)
		})
		if err != nil {
			return err
		}
	}

	return m.remerge(df)
}

// Saver persists an instance to an external representation. FileSource
// implements it.
type Saver interface {
	Save(c *Config) error
}

// Save writes the merged view through dst.
func (m *MultiSourceConfig) Save(dst Saver) error {
	return dst.Save(m.merged)
}

// SaveSource writes a single layer's loaded instance through dst.
func (m *MultiSourceConfig) SaveSource(name string, dst Saver) error {
	cfg, err := m.SourceConfig(name)
	if err != nil {
		return err
	}
	return dst.Save(cfg)
}

// Reload re-loads every source from its own representation and rebuilds the
// merged view.
func (m *MultiSourceConfig) Reload() error {
	fresh := make(map[string]*Config, len(m.sources))
	for _, src := range m.sources {
		cfg, err := src.Load(m.schema)
		if err != nil {
			return fmt.Errorf("reloading source %q: %w", src.Name(), err)
		}
		fresh[src.Name()] = cfg
	}
	m.configs = fresh
	return m.rebuild()
}

// Validate fans a static check out across every source.
func (m *MultiSourceConfig) Validate(strict bool) error {
	var errs []error
	for _, src := range m.sources {
		if err := src.Validate(m.schema, strict); err != nil {
			errs = append(errs, fmt.Errorf("source %q: %w", src.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSourceConfig) String() string {
	names := m.Sources()
	return fmt.Sprintf("[%v] -> %s", names, m.merged)
}
