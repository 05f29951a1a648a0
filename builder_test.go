package strata

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type builderDB struct {
	Host string `toml:"host"`
	Port int64  `toml:"port"`
}

type builderApp struct {
	Name    string        `toml:"name"`
	Timeout time.Duration `toml:"timeout"`
	DB      builderDB     `toml:"db"`
}

func builderDefaults() builderApp {
	return builderApp{
		Name:    "svc",
		Timeout: 30 * time.Second,
		DB:      builderDB{Host: "localhost", Port: 5432},
	}
}

// TestBuilderLayering tests the assembled precedence chain
func TestBuilderLayering(t *testing.T) {
	path := writeTempConfig(t, "config.toml", `
timeout = "45s"

[db]
host = "db.prod"
`)

	env := map[string]string{"MYAPP_DB_PORT": "6432"}

	m, err := NewBuilder().
		WithDefaults("app", builderDefaults()).
		WithFile(path, FileSourceName("file")).
		WithEnv(EnvAuto(), EnvPrefix("MYAPP_"), EnvLookup(func(k string) (string, bool) {
			v, ok := env[k]
			return v, ok
		})).
		WithCustom(map[string]any{"name": "overridden"}).
		Mutable().
		Build()
	require.NoError(t, err)

	assert.Equal(t, []string{"default", "file", "environment", "custom"}, m.Sources())

	name, _ := m.Get(ParsePath("name"))
	assert.Equal(t, "overridden", name)
	timeout, _ := m.Get(ParsePath("timeout"))
	assert.Equal(t, 45*time.Second, timeout)
	host, _ := m.Get(ParsePath("db.host"))
	assert.Equal(t, "db.prod", host)
	port, _ := m.Get(ParsePath("db.port"))
	assert.Equal(t, int64(6432), port)

	// Mutable engines route writes to the custom layer.
	require.NoError(t, m.Set(ParsePath("db.port"), 9999))
	port, _ = m.Get(ParsePath("db.port"))
	assert.Equal(t, int64(9999), port)
}

// TestBuilderMissingFile tests the not-fatal missing config file path
func TestBuilderMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.toml")

	m, err := NewBuilder().
		WithDefaults("app", builderDefaults()).
		WithFile(path).
		Build()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigNotFound)
	require.NotNil(t, m, "engine still builds from the remaining layers")

	host, _ := m.Get(ParsePath("db.host"))
	assert.Equal(t, "localhost", host)

	assert.NotPanics(t, func() {
		m = NewBuilder().
			WithDefaults("app", builderDefaults()).
			WithFile(path).
			MustBuild()
	})
	require.NotNil(t, m)
}

// TestBuilderMalformedFile tests that a broken file is fatal
func TestBuilderMalformedFile(t *testing.T) {
	path := writeTempConfig(t, "config.toml", "name = [broken\n")
	_, err := NewBuilder().
		WithDefaults("app", builderDefaults()).
		WithFile(path).
		Build()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConfigNotFound)
}

// TestBuilderFlags tests the CLI layer through the builder
func TestBuilderFlags(t *testing.T) {
	t.Run("RequiresSchemaFirst", func(t *testing.T) {
		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		_, err := NewBuilder().WithFlags(flags).Build()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "schema")
	})

	t.Run("ParsedFlagsWin", func(t *testing.T) {
		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		b := NewBuilder().WithDefaults("app", builderDefaults())

		// Flags register against the schema, then parse, then bind.
		schema := b.schema
		fs := NewFlagSource()
		fs.Register(flags, schema)
		require.NoError(t, flags.Parse([]string{"--db.host=cli.example"}))
		require.NoError(t, fs.Bind(flags))

		m, err := b.WithSource(fs).Build()
		require.NoError(t, err)

		host, _ := m.Get(ParsePath("db.host"))
		assert.Equal(t, "cli.example", host)
	})
}

// TestBuilderValidators tests post-build validation hooks
func TestBuilderValidators(t *testing.T) {
	t.Run("ValidatorFailureIsFatal", func(t *testing.T) {
		_, err := NewBuilder().
			WithDefaults("app", builderDefaults()).
			WithValidator(func(m *MultiSourceConfig) error {
				port, err := m.Get(ParsePath("db.port"))
				if err != nil {
					return err
				}
				if port.(int64) < 10000 {
					return fmt.Errorf("port %d too low", port)
				}
				return nil
			}).
			Build()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "validation failed")
	})

	t.Run("ValidatorsRunInOrder", func(t *testing.T) {
		var order []int
		_, err := NewBuilder().
			WithDefaults("app", builderDefaults()).
			WithValidator(func(m *MultiSourceConfig) error {
				order = append(order, 1)
				return nil
			}).
			WithValidator(func(m *MultiSourceConfig) error {
				order = append(order, 2)
				return errors.New("second fails")
			}).
			WithValidator(func(m *MultiSourceConfig) error {
				order = append(order, 3)
				return nil
			}).
			Build()
		require.Error(t, err)
		assert.Equal(t, []int{1, 2}, order)
	})
}

// TestBuilderScan tests decoding the merged result into a struct
func TestBuilderScan(t *testing.T) {
	path := writeTempConfig(t, "config.toml", `
timeout = "90s"

[db]
port = 7000
`)

	var out builderApp
	err := NewBuilder().
		WithDefaults("app", builderDefaults()).
		WithFile(path).
		BuildAndScan(&out)
	require.NoError(t, err)

	assert.Equal(t, "svc", out.Name)
	assert.Equal(t, 90*time.Second, out.Timeout)
	assert.Equal(t, "localhost", out.DB.Host)
	assert.Equal(t, int64(7000), out.DB.Port)
}

// TestBuilderNoSchema tests the empty builder failure mode
func TestBuilderNoSchema(t *testing.T) {
	_, err := NewBuilder().Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema")
}
