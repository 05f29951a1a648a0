package strata

import (
	"os"
	"path/filepath"
	"strings"
)

// Discovery configures automatic config file location. The search order
// is: explicit CLI flag, environment variable, custom paths, current
// directory, XDG config directories.
type Discovery struct {
	// Base name of config file (without extension)
	Name string

	// Extensions to try (in order)
	Extensions []string

	// Custom search paths (in addition to defaults)
	Paths []string

	// Environment variable to check for explicit path
	EnvVar string

	// CLI flag to check (e.g., "--config" or "-c")
	CLIFlag string

	// Arguments to scan for CLIFlag; defaults to os.Args[1:]
	Args []string

	// Whether to search in XDG config directories
	UseXDG bool

	// Whether to search in current directory
	UseCurrentDir bool
}

// DefaultDiscovery returns sensible discovery settings for an application.
func DefaultDiscovery(appName string) Discovery {
	return Discovery{
		Name:          appName,
		Extensions:    []string{".toml", ".yaml", ".yml", ".json"},
		EnvVar:        strings.ToUpper(appName) + "_CONFIG",
		CLIFlag:       "--config",
		UseXDG:        true,
		UseCurrentDir: true,
	}
}

// Find locates a config file. It reports the first match in the search
// order and whether any was found. A missing file is not an error; the
// application can run with defaults and environment variables.
func (d Discovery) Find() (string, bool) {
	args := d.Args
	if args == nil {
		args = os.Args[1:]
	}

	// CLI args take priority
	if d.CLIFlag != "" {
		for i, arg := range args {
			if arg == d.CLIFlag && i+1 < len(args) {
				return args[i+1], true
			}
			if strings.HasPrefix(arg, d.CLIFlag+"=") {
				return strings.TrimPrefix(arg, d.CLIFlag+"="), true
			}
		}
	}

	// Environment variable
	if d.EnvVar != "" {
		if path := os.Getenv(d.EnvVar); path != "" {
			return path, true
		}
	}

	var searchPaths []string
	searchPaths = append(searchPaths, d.Paths...)

	if d.UseCurrentDir {
		if cwd, err := os.Getwd(); err == nil {
			searchPaths = append(searchPaths, cwd)
		}
	}

	if d.UseXDG {
		searchPaths = append(searchPaths, xdgConfigPaths(d.Name)...)
	}

	for _, dir := range searchPaths {
		for _, ext := range d.Extensions {
			path := filepath.Join(dir, d.Name+ext)
			if _, err := os.Stat(path); err == nil {
				return path, true
			}
		}
	}

	return "", false
}

// xdgConfigPaths returns XDG-compliant config search paths
func xdgConfigPaths(appName string) []string {
	var paths []string

	// XDG_CONFIG_HOME
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		paths = append(paths, filepath.Join(xdgHome, appName))
	} else if home := os.Getenv("HOME"); home != "" {
		paths = append(paths, filepath.Join(home, ".config", appName))
	}

	// XDG_CONFIG_DIRS
	if xdgDirs := os.Getenv("XDG_CONFIG_DIRS"); xdgDirs != "" {
		for _, dir := range filepath.SplitList(xdgDirs) {
			paths = append(paths, filepath.Join(dir, appName))
		}
	} else {
		paths = append(paths,
			filepath.Join("/etc/xdg", appName),
			filepath.Join("/etc", appName),
		)
	}

	return paths
}
