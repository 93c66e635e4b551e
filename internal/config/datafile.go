package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"
)

// DecodeDataFile decodes a reference data file into v. Files ending in .yaml
// or .yml are parsed as YAML, everything else as JSON with comments.
func DecodeDataFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		return nil
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fmt.Errorf("parse %s: invalid JSONC: %w", path, err)
	}

	err = json.Unmarshal(standardized, v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}
