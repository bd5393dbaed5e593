package metadata

import (
	"encoding/json"
	"fmt"
	"os"
)

// schemaFile is the on-disk registration format: one JSON document
// declaring entities and optional table configs.
type schemaFile struct {
	Entities []*Entity      `json:"entities"`
	Tables   []*TableConfig `json:"tables,omitempty"`
}

// LoadFile reads a schema document and loads it into the registry,
// replacing whatever was registered before.
func LoadFile(path string, reg *Registry) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read schema %s: %w", path, err)
	}
	var doc schemaFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse schema %s: %w", path, err)
	}
	for _, e := range doc.Entities {
		if e.Name == "" || e.Table == "" {
			return fmt.Errorf("schema %s: entity missing name or table", path)
		}
	}
	for _, cfg := range doc.Tables {
		if cfg.Entity == "" {
			return fmt.Errorf("schema %s: table config missing entity", path)
		}
	}
	reg.Load(doc.Entities, doc.Tables)
	return nil
}
