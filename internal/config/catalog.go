package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AgentSpec describes one named agent in the YAML catalog: the model it
// runs, its prompt, and the tool identifiers it may call.
type AgentSpec struct {
	Name        string   `yaml:"name"`
	Model       string   `yaml:"model"`
	Prompt      string   `yaml:"prompt"`
	Tools       []string `yaml:"tools"`
	Temperature *float64 `yaml:"temperature,omitempty"`
}

// CheckpointerSpec describes one named checkpoint backend.
type CheckpointerSpec struct {
	Name string `yaml:"name"`
	// Type is currently always "sqlite".
	Type string `yaml:"type"`
	Path string `yaml:"path,omitempty"`
}

// Catalog holds the parsed agent and checkpointer catalogs.
type Catalog struct {
	Agents        []AgentSpec        `yaml:"agents"`
	Checkpointers []CheckpointerSpec `yaml:"checkpointers"`
}

// LoadCatalog parses a YAML catalog file. Missing files yield an empty
// catalog so a bare installation works with defaults.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return &Catalog{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Catalog{}, nil
		}
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	seen := make(map[string]bool, len(cat.Agents))
	for _, a := range cat.Agents {
		if a.Name == "" {
			return nil, fmt.Errorf("catalog %s: agent with empty name", path)
		}
		if seen[a.Name] {
			return nil, fmt.Errorf("catalog %s: duplicate agent %q", path, a.Name)
		}
		seen[a.Name] = true
	}
	return &cat, nil
}

// Agent looks up an agent spec by name.
func (c *Catalog) Agent(name string) (*AgentSpec, bool) {
	for i := range c.Agents {
		if c.Agents[i].Name == name {
			return &c.Agents[i], true
		}
	}
	return nil, false
}
