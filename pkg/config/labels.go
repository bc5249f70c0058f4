package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFieldLabels reads an entity → field → label overlay from a YAML file.
// Keys are case-sensitive, which is why the file is not routed through viper.
// An empty path yields no overlay.
func LoadFieldLabels(path string) (map[string]map[string]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read field labels %s: %w", path, err)
	}

	var labels map[string]map[string]string
	if err := yaml.Unmarshal(raw, &labels); err != nil {
		return nil, fmt.Errorf("parse field labels %s: %w", path, err)
	}

	for entity, fields := range labels {
		if strings.TrimSpace(entity) == "" {
			return nil, fmt.Errorf("parse field labels %s: empty entity name", path)
		}
		for field, label := range fields {
			if strings.TrimSpace(label) == "" {
				delete(fields, field)
			}
		}
	}

	return labels, nil
}
