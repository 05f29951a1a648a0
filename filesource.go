package strata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// FileSource reads a configuration layer from a TOML, JSON, or YAML file.
// The format is detected from the extension, then from the content. The
// on-disk layout is this adapter's own concern; the engine only sees the
// instance it produces.
type FileSource struct {
	name   string
	path   string
	format string
}

// FileOption customizes a FileSource.
type FileOption func(*FileSource)

// FileFormat forces the format ("toml", "json", "yaml") instead of
// detecting it.
func FileFormat(format string) FileOption {
	return func(s *FileSource) { s.format = format }
}

// FileSourceName overrides the layer name, which defaults to the file's
// base name.
func FileSourceName(name string) FileOption {
	return func(s *FileSource) { s.name = name }
}

// NewFileSource creates a file layer backed by path.
func NewFileSource(path string, opts ...FileOption) *FileSource {
	s := &FileSource{
		name: filepath.Base(path),
		path: path,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the source name.
func (s *FileSource) Name() string { return s.name }

// Path returns the backing file path.
func (s *FileSource) Path() string { return s.path }

// Load parses the backing file and materializes an instance. A missing file
// fails wrapping ErrConfigNotFound; the engine treats that as a hard load
// failure rather than an empty layer.
func (s *FileSource) Load(schema *Schema) (*Config, error) {
	values, err := s.read()
	if err != nil {
		return nil, err
	}
	return schema.New(values)
}

// Validate checks that the backing file exists and parses. Without strict, a
// missing file passes: the layer may legitimately appear later.
func (s *FileSource) Validate(schema *Schema, strict bool) error {
	_, err := s.read()
	if errors.Is(err, ErrConfigNotFound) && !strict {
		return nil
	}
	return err
}

// Fetch re-reads a single field from the backing file.
func (s *FileSource) Fetch(path FieldPath, _ Field) (any, bool, error) {
	values, err := s.read()
	if err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			return Missing, false, nil
		}
		return nil, false, err
	}
	v := navigateToPath(values, path.String())
	if v == nil {
		return Missing, false, nil
	}
	return v, true, nil
}

func (s *FileSource) read() (map[string]any, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, s.path)
		}
		return nil, fmt.Errorf("failed to read config file '%s': %w", s.path, err)
	}

	format := s.format
	if format == "" || format == "auto" {
		format = detectFileFormat(s.path)
		if format == "" {
			format = detectFormatFromContent(data)
		}
	}

	values := make(map[string]any)
	switch format {
	case "toml":
		if err := toml.Unmarshal(data, &values); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config file '%s': %w", s.path, err)
		}
	case "json":
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.UseNumber() // Preserve number precision
		if err := decoder.Decode(&values); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config file '%s': %w", s.path, err)
		}
	case "yaml":
		if err := yaml.Unmarshal(data, &values); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config file '%s': %w", s.path, err)
		}
	default:
		return nil, fmt.Errorf("unable to determine config format for file '%s'", s.path)
	}
	return values, nil
}

// Save writes an instance's non-absent values back to the backing file
// atomically, in the source's format.
func (s *FileSource) Save(c *Config) error {
	values := c.Map()

	format := s.format
	if format == "" || format == "auto" {
		format = detectFileFormat(s.path)
		if format == "" {
			format = "toml"
		}
	}

	var data []byte
	switch format {
	case "toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(values); err != nil {
			return fmt.Errorf("failed to marshal config data to TOML: %w", err)
		}
		data = buf.Bytes()
	case "json":
		out, err := json.MarshalIndent(values, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config data to JSON: %w", err)
		}
		data = append(out, '\n')
	case "yaml":
		out, err := yaml.Marshal(values)
		if err != nil {
			return fmt.Errorf("failed to marshal config data to YAML: %w", err)
		}
		data = out
	default:
		return fmt.Errorf("unable to determine config format for file '%s'", s.path)
	}

	return atomicWriteFile(s.path, data)
}

// atomicWriteFile writes data through a temp file and a rename so a crash
// never leaves a half-written config behind.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory '%s': %w", dir, err)
	}

	tempFile, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	tempPath := tempFile.Name()
	defer os.Remove(tempPath) // Clean up on any error

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return fmt.Errorf("failed to sync temporary file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	if err := os.Chmod(tempPath, 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return nil
}

// detectFileFormat determines format from file extension.
func detectFileFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml", ".tml":
		return "toml"
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return ""
	}
}

// detectFormatFromContent attempts to detect format by parsing.
func detectFormatFromContent(data []byte) string {
	// Try JSON first (strict format)
	var jsonTest any
	if err := json.Unmarshal(data, &jsonTest); err == nil {
		return "json"
	}

	// Try TOML before YAML: YAML accepts nearly anything
	var tomlTest map[string]any
	if err := toml.Unmarshal(data, &tomlTest); err == nil {
		return "toml"
	}

	var yamlTest any
	if err := yaml.Unmarshal(data, &yamlTest); err == nil {
		return "yaml"
	}

	return ""
}
