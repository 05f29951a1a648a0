package strata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mergeSchema(t *testing.T) *Schema {
	t.Helper()
	return NewSchema("job").
		MustField("timeout", NewField[int64](WithDefault(10))).
		MustField("retries", NewField[int64]())
}

// TestMergePrecedence tests field-by-field resolution across layers
func TestMergePrecedence(t *testing.T) {
	t.Run("LaterSourceWins", func(t *testing.T) {
		schema := mergeSchema(t)
		m, err := NewMultiSource(schema,
			NewDefaultSource(),
			NewDataSource("file", map[string]any{"timeout": 30}),
		)
		require.NoError(t, err)

		timeout, err := m.Get(ParsePath("timeout"))
		require.NoError(t, err)
		assert.Equal(t, int64(30), timeout)
	})

	t.Run("AbsentFallsThrough", func(t *testing.T) {
		schema := mergeSchema(t)
		m, err := NewMultiSource(schema,
			NewDefaultSource(),
			NewDataSource("file", map[string]any{"retries": 5}),
		)
		require.NoError(t, err)

		// The file layer has no timeout, so the default survives.
		timeout, _ := m.Get(ParsePath("timeout"))
		assert.Equal(t, int64(10), timeout)
		retries, _ := m.Get(ParsePath("retries"))
		assert.Equal(t, int64(5), retries)
	})

	t.Run("ZeroBeatsLowerLayers", func(t *testing.T) {
		schema := mergeSchema(t)
		m, err := NewMultiSource(schema,
			NewDefaultSource(),
			NewDataSource("file", map[string]any{"timeout": 0}),
		)
		require.NoError(t, err)

		// Zero is a real value, not absence; it must shadow the default.
		timeout, _ := m.Get(ParsePath("timeout"))
		assert.Equal(t, int64(0), timeout)
	})

	t.Run("NobodyProvidesStaysAbsent", func(t *testing.T) {
		schema := mergeSchema(t)
		m, err := NewMultiSource(schema, NewDefaultSource())
		require.NoError(t, err)

		retries, _ := m.Get(ParsePath("retries"))
		assert.True(t, IsMissing(retries))
	})

	t.Run("NestedSections", func(t *testing.T) {
		tls := NewSchema("tls").
			MustField("enabled", NewField[bool](WithDefault(false))).
			MustField("cert", NewField[string]())
		schema := NewSchema("server").
			MustField("host", NewField[string](WithDefault("localhost"))).
			MustSection("tls", tls)

		m, err := NewMultiSource(schema,
			NewDefaultSource(),
			NewDataSource("file", map[string]any{
				"tls": map[string]any{"enabled": true, "cert": "/etc/cert.pem"},
			}),
			NewDataSource("env", map[string]any{
				"tls": map[string]any{"cert": "/run/cert.pem"},
			}),
		)
		require.NoError(t, err)

		host, _ := m.Get(ParsePath("host"))
		assert.Equal(t, "localhost", host)
		enabled, _ := m.Get(ParsePath("tls.enabled"))
		assert.Equal(t, true, enabled)
		cert, _ := m.Get(ParsePath("tls.cert"))
		assert.Equal(t, "/run/cert.pem", cert)
	})

	t.Run("MergedViewIsFrozen", func(t *testing.T) {
		m, err := NewMultiSource(mergeSchema(t), NewDefaultSource())
		require.NoError(t, err)
		assert.True(t, m.Merged().Frozen())
		assert.ErrorIs(t, m.Set(ParsePath("timeout"), 1), ErrFrozen)
		assert.ErrorIs(t, m.Delete(ParsePath("timeout")), ErrFrozen)
	})
}

// TestMultiSourceConstruction tests engine setup failure modes
func TestMultiSourceConstruction(t *testing.T) {
	t.Run("DuplicateSourceName", func(t *testing.T) {
		schema := mergeSchema(t)
		_, err := NewMultiSource(schema,
			NewDataSource("file", nil),
			NewDataSource("file", nil),
		)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDuplicateSource)
	})

	t.Run("FailingLoadAborts", func(t *testing.T) {
		schema := mergeSchema(t)
		_, err := NewMultiSource(schema,
			NewDataSource("bad", map[string]any{"timeout": "garbage"}),
		)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConversion)
	})

	t.Run("SourceOrderIsReported", func(t *testing.T) {
		m, err := NewMultiSource(mergeSchema(t),
			NewDefaultSource(),
			NewDataSource("file", nil),
			NewCustomSource(nil),
		)
		require.NoError(t, err)
		assert.Equal(t, []string{"default", "file", "custom"}, m.Sources())
	})

	t.Run("SourceConfigLookup", func(t *testing.T) {
		m, err := NewMultiSource(mergeSchema(t), NewDefaultSource())
		require.NoError(t, err)

		cfg, err := m.SourceConfig("default")
		require.NoError(t, err)
		v, _ := cfg.Get(ParsePath("timeout"))
		assert.Equal(t, int64(10), v)

		_, err = m.SourceConfig("nope")
		assert.ErrorIs(t, err, ErrSourceNotFound)
	})
}

// TestMutableRouting tests writes through the writable layer
func TestMutableRouting(t *testing.T) {
	t.Run("SetRoutesToCustom", func(t *testing.T) {
		schema := mergeSchema(t)
		custom := NewCustomSource(nil)
		m, err := NewMutableMultiSource(schema,
			NewDefaultSource(),
			NewDataSource("file", map[string]any{"timeout": 30}),
			custom,
		)
		require.NoError(t, err)
		assert.False(t, m.Merged().Frozen())

		require.NoError(t, m.Set(ParsePath("timeout"), 99))

		// The merged view reflects the write immediately.
		v, _ := m.Get(ParsePath("timeout"))
		assert.Equal(t, int64(99), v)

		// The write landed in the custom layer, not the file layer.
		fileCfg, _ := m.SourceConfig("file")
		fv, _ := fileCfg.Get(ParsePath("timeout"))
		assert.Equal(t, int64(30), fv)
		customCfg, _ := m.SourceConfig("custom")
		cv, _ := customCfg.Get(ParsePath("timeout"))
		assert.Equal(t, int64(99), cv)
	})

	t.Run("DeleteUncoversLowerLayer", func(t *testing.T) {
		schema := mergeSchema(t)
		m, err := NewMutableMultiSource(schema,
			NewDefaultSource(),
			NewDataSource("file", map[string]any{"timeout": 30}),
			NewCustomSource(map[string]any{"timeout": 99}),
		)
		require.NoError(t, err)

		v, _ := m.Get(ParsePath("timeout"))
		assert.Equal(t, int64(99), v)

		require.NoError(t, m.Delete(ParsePath("timeout")))
		v, _ = m.Get(ParsePath("timeout"))
		assert.Equal(t, int64(30), v, "delete re-exposes the next layer down")
	})

	t.Run("NoWritableSource", func(t *testing.T) {
		m, err := NewMutableMultiSource(mergeSchema(t), NewDefaultSource())
		require.NoError(t, err)
		assert.ErrorIs(t, m.Set(ParsePath("timeout"), 1), ErrReadOnly)
		assert.ErrorIs(t, m.Delete(ParsePath("timeout")), ErrReadOnly)
	})
}

// TestIncrementalSources tests add/insert/remove with merged-state rebuilds
func TestIncrementalSources(t *testing.T) {
	t.Run("AddAndRemoveRoundTrip", func(t *testing.T) {
		schema := mergeSchema(t)
		m, err := NewMultiSource(schema,
			NewDefaultSource(),
			NewDataSource("file", map[string]any{"timeout": 30}),
		)
		require.NoError(t, err)

		before, _ := m.Get(ParsePath("timeout"))
		assert.Equal(t, int64(30), before)

		require.NoError(t, m.AddSource(NewDataSource("override", map[string]any{"timeout": 60})))
		v, _ := m.Get(ParsePath("timeout"))
		assert.Equal(t, int64(60), v)

		require.NoError(t, m.RemoveSource("override"))
		after, _ := m.Get(ParsePath("timeout"))
		assert.Equal(t, before, after, "remove restores the pre-add resolution")
		assert.Equal(t, []string{"default", "file"}, m.Sources())
	})

	t.Run("InsertBelowTop", func(t *testing.T) {
		schema := mergeSchema(t)
		m, err := NewMultiSource(schema,
			NewDefaultSource(),
			NewDataSource("top", map[string]any{"timeout": 60}),
		)
		require.NoError(t, err)

		require.NoError(t, m.InsertSource(NewDataSource("mid", map[string]any{
			"timeout": 45, "retries": 3,
		}), 1))

		assert.Equal(t, []string{"default", "mid", "top"}, m.Sources())
		timeout, _ := m.Get(ParsePath("timeout"))
		assert.Equal(t, int64(60), timeout, "top still wins where it provides")
		retries, _ := m.Get(ParsePath("retries"))
		assert.Equal(t, int64(3), retries)
	})

	t.Run("InsertRejectsDuplicateAndBadIndex", func(t *testing.T) {
		m, err := NewMultiSource(mergeSchema(t), NewDefaultSource())
		require.NoError(t, err)

		assert.ErrorIs(t, m.AddSource(NewDefaultSource()), ErrDuplicateSource)
		assert.Error(t, m.InsertSource(NewDataSource("x", nil), 5))
		assert.Error(t, m.InsertSource(NewDataSource("x", nil), -1))
	})

	t.Run("RemoveUnknown", func(t *testing.T) {
		m, err := NewMultiSource(mergeSchema(t), NewDefaultSource())
		require.NoError(t, err)
		assert.ErrorIs(t, m.RemoveSource("nope"), ErrSourceNotFound)
	})

	t.Run("RebuildPreservesFrozenFlag", func(t *testing.T) {
		mm, err := NewMutableMultiSource(mergeSchema(t), NewDefaultSource(), NewCustomSource(nil))
		require.NoError(t, err)
		require.NoError(t, mm.AddSource(NewDataSource("x", nil)))
		assert.False(t, mm.Merged().Frozen())

		fm, err := NewMultiSource(mergeSchema(t), NewDefaultSource())
		require.NoError(t, err)
		require.NoError(t, fm.AddSource(NewDataSource("x", nil)))
		assert.True(t, fm.Merged().Frozen())
	})
}

// TestOverrides tests the minimal-override diff
func TestOverrides(t *testing.T) {
	t.Run("OnlyEffectiveWritesRecorded", func(t *testing.T) {
		schema := mergeSchema(t)
		m, err := NewMutableMultiSource(schema,
			NewDefaultSource(),
			NewDataSource("file", map[string]any{"timeout": 30}),
			NewCustomSource(nil),
		)
		require.NoError(t, err)

		// One write that changes the outcome, one that matches the layer
		// below it.
		require.NoError(t, m.Set(ParsePath("retries"), 5))
		require.NoError(t, m.Set(ParsePath("timeout"), 30))

		diff, err := m.Overrides("custom")
		require.NoError(t, err)

		retries, _ := diff.Get(ParsePath("retries"))
		assert.Equal(t, int64(5), retries)
		timeout, _ := diff.Get(ParsePath("timeout"))
		assert.True(t, IsMissing(timeout), "a write shadowed by an equal lower value is not an override")
	})

	t.Run("RoundTrip", func(t *testing.T) {
		schema := mergeSchema(t)
		build := func(customData map[string]any) *MultiSourceConfig {
			m, err := NewMutableMultiSource(schema,
				NewDefaultSource(),
				NewDataSource("file", map[string]any{"timeout": 30}),
				NewCustomSource(customData),
			)
			require.NoError(t, err)
			return m
		}

		m := build(nil)
		require.NoError(t, m.Set(ParsePath("timeout"), 120))
		require.NoError(t, m.Set(ParsePath("retries"), 7))

		diff, err := m.Overrides("custom")
		require.NoError(t, err)

		// Re-seeding a fresh engine with exactly the diff reproduces the
		// merged state.
		rebuilt := build(diff.Map())
		assert.True(t, m.Merged().Equal(rebuilt.Merged()))
	})

	t.Run("UnknownLayer", func(t *testing.T) {
		m, err := NewMultiSource(mergeSchema(t), NewDefaultSource())
		require.NoError(t, err)
		_, err = m.Overrides("custom")
		assert.ErrorIs(t, err, ErrSourceNotFound)
	})
}

// TestRefreshField tests single-field re-fetch without a full reload
func TestRefreshField(t *testing.T) {
	t.Run("PicksUpExternalChange", func(t *testing.T) {
		schema := mergeSchema(t)
		backing := map[string]any{"timeout": 30}
		m, err := NewMultiSource(schema,
			NewDefaultSource(),
			NewDataSource("file", backing),
		)
		require.NoError(t, err)

		backing["timeout"] = 90
		v, _ := m.Get(ParsePath("timeout"))
		assert.Equal(t, int64(30), v, "cached until refreshed")

		require.NoError(t, m.RefreshField(ParsePath("timeout")))
		v, _ = m.Get(ParsePath("timeout"))
		assert.Equal(t, int64(90), v)
	})

	t.Run("RemovalUncoversLowerLayer", func(t *testing.T) {
		schema := mergeSchema(t)
		backing := map[string]any{"timeout": 30}
		m, err := NewMultiSource(schema,
			NewDefaultSource(),
			NewDataSource("file", backing),
		)
		require.NoError(t, err)

		delete(backing, "timeout")
		require.NoError(t, m.RefreshField(ParsePath("timeout")))
		v, _ := m.Get(ParsePath("timeout"))
		assert.Equal(t, int64(10), v, "default resurfaces after the file entry vanishes")
	})

	t.Run("RestrictedToNamedSources", func(t *testing.T) {
		schema := mergeSchema(t)
		low := map[string]any{"timeout": 20}
		high := map[string]any{"timeout": 30}
		m, err := NewMultiSource(schema,
			NewDefaultSource(),
			NewDataSource("low", low),
			NewDataSource("high", high),
		)
		require.NoError(t, err)

		low["timeout"] = 21
		high["timeout"] = 31
		require.NoError(t, m.RefreshField(ParsePath("timeout"), "low"))

		// Only the low layer re-fetched; the high layer still shadows with
		// its cached value.
		v, _ := m.Get(ParsePath("timeout"))
		assert.Equal(t, int64(30), v)

		lowCfg, _ := m.SourceConfig("low")
		lv, _ := lowCfg.Get(ParsePath("timeout"))
		assert.Equal(t, int64(21), lv)
	})

	t.Run("UnknownSourceName", func(t *testing.T) {
		m, err := NewMultiSource(mergeSchema(t), NewDefaultSource())
		require.NoError(t, err)
		err = m.RefreshField(ParsePath("timeout"), "nope")
		assert.ErrorIs(t, err, ErrSourceNotFound)
	})

	t.Run("UnknownField", func(t *testing.T) {
		m, err := NewMultiSource(mergeSchema(t), NewDefaultSource())
		require.NoError(t, err)
		err = m.RefreshField(ParsePath("nope"))
		assert.ErrorIs(t, err, ErrFieldNotFound)
	})
}

// TestReload tests whole-engine re-resolution
func TestReload(t *testing.T) {
	schema := mergeSchema(t)
	backing := map[string]any{"timeout": 30, "retries": 2}
	m, err := NewMultiSource(schema,
		NewDefaultSource(),
		NewDataSource("file", backing),
	)
	require.NoError(t, err)

	backing["timeout"] = 60
	delete(backing, "retries")

	require.NoError(t, m.Reload())
	timeout, _ := m.Get(ParsePath("timeout"))
	assert.Equal(t, int64(60), timeout)
	retries, _ := m.Get(ParsePath("retries"))
	assert.True(t, IsMissing(retries))
}

// TestMultiSourceValidate tests the validation fan-out
func TestMultiSourceValidate(t *testing.T) {
	schema := NewSchema("job").
		MustField("timeout", NewField[int64](WithDefault(10))).
		MustField("retries", NewField[int64]())

	m, err := NewMultiSource(schema, NewDefaultSource())
	require.NoError(t, err)

	assert.NoError(t, m.Validate(false))

	// retries has no default anywhere, so strict validation names it.
	err = m.Validate(true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retries")
	assert.Contains(t, err.Error(), "default")
}

// TestMergedFieldIdentity tests Field-ref reads against the merged view
func TestMergedFieldIdentity(t *testing.T) {
	schema := NewSchema("job")
	timeout := NewField[int64](WithDefault(10))
	schema.MustField("timeout", timeout)

	m, err := NewMultiSource(schema,
		NewDefaultSource(),
		NewDataSource("file", map[string]any{"timeout": 30}),
	)
	require.NoError(t, err)

	v, err := m.Get(timeout)
	require.NoError(t, err)
	assert.Equal(t, int64(30), v)
}

func TestMultiSourceString(t *testing.T) {
	m, err := NewMultiSource(mergeSchema(t), NewDefaultSource())
	require.NoError(t, err)
	s := m.String()
	assert.Contains(t, s, "default")
	assert.Contains(t, s, "timeout")
}
