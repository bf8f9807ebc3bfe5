package capability

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type capabilityFile struct {
	Capabilities []Capability `yaml:"capabilities"`
}

// LoadFile reads a capability table from a YAML file. The file holds the
// same shape the registry serves, under a top-level `capabilities` key.
func LoadFile(path string) ([]Capability, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read capability file %s: %w", path, err)
	}
	var f capabilityFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse capability file %s: %w", path, err)
	}
	for i, c := range f.Capabilities {
		if c.ID == "" {
			return nil, fmt.Errorf("capability file %s: entry %d has no id", path, i)
		}
	}
	return f.Capabilities, nil
}
