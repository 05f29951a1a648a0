package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"strata"
)

// AppConfig defines the configuration surface for the demo service.
type AppConfig struct {
	Name    string        `toml:"name"`
	Timeout time.Duration `toml:"timeout"`
	Server  struct {
		Host string `toml:"host"`
		Port int64  `toml:"port"`
	} `toml:"server"`
}

const configFilePath = "config.toml"

func main() {
	defer func() {
		os.Remove(configFilePath)
		os.Unsetenv("DEMO_SERVER_PORT")
	}()

	// A populated prototype doubles as the schema and the defaults layer.
	defaults := AppConfig{Name: "demo", Timeout: 30 * time.Second}
	defaults.Server.Host = "localhost"
	defaults.Server.Port = 8080

	if err := os.WriteFile(configFilePath, []byte("[server]\nhost = \"0.0.0.0\"\n"), 0644); err != nil {
		log.Fatalf("writing %s: %v", configFilePath, err)
	}
	os.Setenv("DEMO_SERVER_PORT", "9090")

	cfg, err := strata.NewBuilder().
		WithDefaults("app", defaults).
		WithFile(configFilePath, strata.FileSourceName("file")).
		WithEnv(strata.EnvAuto(), strata.EnvPrefix("DEMO_")).
		WithCustom(nil).
		Mutable().
		WithValidator(func(m *strata.MultiSourceConfig) error {
			port, err := m.Get(strata.ParsePath("server.port"))
			if err != nil {
				return err
			}
			if port.(int64) <= 0 {
				return fmt.Errorf("server.port must be positive, got %d", port)
			}
			return nil
		}).
		Build()
	if err != nil {
		log.Fatalf("building config: %v", err)
	}

	// Each value comes from the highest layer that provides it:
	// name from defaults, host from the file, port from the environment.
	for _, path := range []string{"name", "timeout", "server.host", "server.port"} {
		v, err := cfg.Get(strata.ParsePath(path))
		if err != nil {
			log.Fatalf("reading %s: %v", path, err)
		}
		fmt.Printf("%-12s = %v\n", path, v)
	}

	// Runtime override lands in the custom layer and wins immediately.
	if err := cfg.Set(strata.ParsePath("server.port"), 10443); err != nil {
		log.Fatalf("override: %v", err)
	}

	overrides, err := cfg.Overrides("custom")
	if err != nil {
		log.Fatalf("computing overrides: %v", err)
	}
	fmt.Printf("\noverrides    = %s\n", overrides)

	// Decode the merged view into the typed struct.
	var final AppConfig
	if err := cfg.Scan("", &final); err != nil {
		log.Fatalf("scanning: %v", err)
	}
	fmt.Printf("final struct = %+v\n\n", final)

	fmt.Println(strata.Tree(cfg.Merged(), true))
}
