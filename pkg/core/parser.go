package core

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

func LoadSuiteFromFile(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading suite file %q: %w", path, err)
	}

	var s Suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing suite YAML: %w", err)
	}

	if err := ValidateSuiteStructure(&s); err != nil {
		return nil, fmt.Errorf("invalid suite: %w", err)
	}

	return &s, nil
}
