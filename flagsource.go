package strata

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// FlagSource binds command-line flags to schema fields: one flag per leaf
// path, the default taken from the field's static default, the usage line
// from its description. Bind harvests only the flags the user actually set,
// so unset flags stay absent instead of shadowing lower layers with
// defaults.
type FlagSource struct {
	name       string
	data       map[string]any
	registered map[string]string // flag name -> dotted path
}

// NewFlagSource creates a CLI layer named "cli".
func NewFlagSource() *FlagSource {
	return &FlagSource{
		name:       "cli",
		data:       make(map[string]any),
		registered: make(map[string]string),
	}
}

// Name returns the source name.
func (s *FlagSource) Name() string { return s.name }

// Register declares one flag per leaf field on the flag set, named by the
// field's dotted path.
func (s *FlagSource) Register(flags *pflag.FlagSet, schema *Schema) {
	for path, df := range DataFields(schema) {
		flagName := path.String()
		usage := df.desc
		if usage == "" {
			usage = fmt.Sprintf("Config: %s", flagName)
		}
		s.registered[flagName] = flagName

		def := df.def
		if !IsMissing(def) {
			if converted, err := df.Convert(def); err == nil {
				def = converted
			}
		}
		switch {
		case df.Type() == durationType:
			d, _ := def.(time.Duration)
			flags.Duration(flagName, d, usage)
			continue
		}

		switch df.Type().Kind() {
		case reflect.Bool:
			b, _ := def.(bool)
			flags.Bool(flagName, b, usage)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			var i int64
			if !IsMissing(def) {
				i = reflect.ValueOf(def).Int()
			}
			flags.Int64(flagName, i, usage)
		case reflect.Float32, reflect.Float64:
			var f float64
			if !IsMissing(def) {
				f = reflect.ValueOf(def).Float()
			}
			flags.Float64(flagName, f, usage)
		case reflect.String:
			str, _ := def.(string)
			flags.String(flagName, str, usage)
		default:
			var str string
			if !IsMissing(def) {
				str = fmt.Sprintf("%v", def)
			}
			flags.String(flagName, str, usage)
		}
	}
}

// Bind reads every registered flag the user changed into the source's
// internal map. Call it after the flag set has been parsed.
func (s *FlagSource) Bind(flags *pflag.FlagSet) error {
	flags.Visit(func(f *pflag.Flag) {
		if path, ok := s.registered[f.Name]; ok {
			s.data[path] = f.Value.String()
		}
	})
	return nil
}

// AttachTo registers the schema's flags on a cobra command and binds them
// right before the command runs.
func (s *FlagSource) AttachTo(cmd *cobra.Command, schema *Schema) {
	s.Register(cmd.Flags(), schema)
	prev := cmd.PreRunE
	cmd.PreRunE = func(c *cobra.Command, args []string) error {
		if prev != nil {
			if err := prev(c, args); err != nil {
				return err
			}
		}
		return s.Bind(c.Flags())
	}
}

// Load materializes an instance from the flags harvested by Bind. Values
// arrive as strings and go through field conversion.
func (s *FlagSource) Load(schema *Schema) (*Config, error) {
	c, err := schema.New(nil)
	if err != nil {
		return nil, err
	}
	err = Unfrozen(c, func(c *Config) error {
		for path, value := range s.data {
			if err := c.Set(ParsePath(path), value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Validate is a no-op: any subset of flags may legitimately be unset.
func (s *FlagSource) Validate(schema *Schema, strict bool) error {
	return nil
}

// Fetch re-reads a single harvested flag value.
func (s *FlagSource) Fetch(path FieldPath, _ Field) (any, bool, error) {
	v, ok := s.data[path.String()]
	if !ok {
		return Missing, false, nil
	}
	return v, true, nil
}
