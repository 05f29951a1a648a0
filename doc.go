// Package strata provides layered configuration resolution for Go
// applications: a typed schema describes the configuration surface, any
// number of sources (defaults, TOML/YAML/JSON files, environment
// variables, command-line flags, in-memory data) each produce a config
// instance against that schema, and a merge engine resolves them into a
// single read-optimized view with well-defined precedence.
//
// Features:
//   - Typed schema with nested sections, declared defaults, and
//     per-field type conversion
//   - Multiple sources with precedence: later sources override earlier
//     ones field by field
//   - Explicit distinction between "absent" (Missing) and zero values
//   - Frozen-by-default instances; a writable custom layer for runtime
//     overrides with diffing back to the minimal override set
//   - Incremental source add/remove and single-field refresh without a
//     full reload
//   - Struct registration with tag support and Scan back into structs
//   - Builder pattern and XDG-aware config file discovery
//
// Quick Start:
//
//	type Server struct {
//	    Host string `toml:"host"`
//	    Port int64  `toml:"port"`
//	}
//
//	schema, err := strata.SchemaFromStruct("app", struct {
//	    Server  Server        `toml:"server"`
//	    Timeout time.Duration `toml:"timeout"`
//	}{
//	    Server:  Server{Host: "localhost", Port: 8080},
//	    Timeout: 30 * time.Second,
//	})
//
//	cfg, err := strata.NewBuilder().
//	    WithSchema(schema).
//	    WithFile("config.toml").
//	    WithEnv(strata.EnvPrefix("MYAPP_"), strata.EnvAuto()).
//	    WithCustom(nil).
//	    Mutable().
//	    Build()
//
//	host, err := cfg.Get(strata.ParsePath("server.host"))
//
// Precedence (lowest to highest, in the order sources are added):
//  1. Default values (always present)
//  2. Configuration file (config.toml)
//  3. Environment variables (MYAPP_SERVER_PORT=9090)
//  4. Custom runtime overrides
//
// Concurrency:
// The package is single-threaded. Instances and merged views
// are plain data structures without internal locking; callers that share
// a configuration across goroutines must serialize access themselves.
package strata
