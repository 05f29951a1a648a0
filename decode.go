package strata

import (
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Scan decodes the instance's values under basePath ("" for the whole tree)
// into target, which must be a non-nil pointer to a struct or map. Field
// mapping uses the "toml" tag, consistent with SchemaFromStruct.
func (c *Config) Scan(basePath string, target any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("scan target must be a non-nil pointer, got %T", target)
	}

	sectionData := navigateToPath(c.Map(), basePath)
	sectionMap, ok := sectionData.(map[string]any)
	if !ok {
		if sectionData == nil {
			sectionMap = make(map[string]any) // Empty section
		} else {
			return fmt.Errorf("path %q refers to non-map value (type %T)", basePath, sectionData)
		}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "toml",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("decoder creation failed: %w", err)
	}

	if err := decoder.Decode(sectionMap); err != nil {
		return fmt.Errorf("decode failed for path %q: %w", basePath, err)
	}
	return nil
}

// Scan decodes the merged view under basePath into target.
func (m *MultiSourceConfig) Scan(basePath string, target any) error {
	return m.merged.Scan(basePath, target)
}

// ScanSource decodes a single source's loaded layer under basePath into
// target, absent values omitted.
func (m *MultiSourceConfig) ScanSource(name, basePath string, target any) error {
	cfg, err := m.SourceConfig(name)
	if err != nil {
		return err
	}
	return cfg.Scan(basePath, target)
}
