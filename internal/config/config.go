package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models reqline.yml.
type Config struct {
	Project struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
	} `yaml:"project"`
	Defaults struct {
		ActorSubtype string `yaml:"actor_subtype"`
		UseCaseKind  string `yaml:"use_case_kind"`
	} `yaml:"defaults"`
	Seed struct {
		Actors   []SeedActor   `yaml:"actors"`
		UseCases []SeedUseCase `yaml:"use_cases"`
	} `yaml:"seed"`
}

// SeedActor is an actor created on project init.
type SeedActor struct {
	Name    string `yaml:"name"`
	Subtype string `yaml:"subtype"`
}

// SeedUseCase is a use case created on project init.
type SeedUseCase struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
}

var validSubtypes = map[string]bool{
	"HUMAN": true, "SOFTWARE": true, "HARDWARE": true, "AI_AGENT": true, "EVENT": true,
}

var validKinds = map[string]bool{"PRIMARY": true, "SECONDARY": true}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with rl project init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Project.Name == "" {
		return fmt.Errorf("config.project.name is required")
	}
	if s := c.Defaults.ActorSubtype; s != "" && !validSubtypes[s] {
		return fmt.Errorf("config.defaults.actor_subtype %s is not a known subtype", s)
	}
	if k := c.Defaults.UseCaseKind; k != "" && !validKinds[k] {
		return fmt.Errorf("config.defaults.use_case_kind %s is not a known kind", k)
	}
	for _, a := range c.Seed.Actors {
		if a.Name == "" {
			return fmt.Errorf("config.seed.actors contains an actor without a name")
		}
		if a.Subtype != "" && !validSubtypes[a.Subtype] {
			return fmt.Errorf("seed actor %s has unknown subtype %s", a.Name, a.Subtype)
		}
	}
	for _, u := range c.Seed.UseCases {
		if u.Name == "" {
			return fmt.Errorf("config.seed.use_cases contains a use case without a name")
		}
		if u.Kind != "" && !validKinds[u.Kind] {
			return fmt.Errorf("seed use case %s has unknown kind %s", u.Name, u.Kind)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "reqline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(projectName string) string {
	return fmt.Sprintf(defaultTemplate, projectName)
}

// Default returns the default Config struct for a project.
func Default(projectName string) *Config {
	cfg, err := FromYAML([]byte(GenerateDefault(projectName)))
	if err != nil {
		cfg = &Config{}
		cfg.Project.Name = projectName
	}
	return cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `project:
  name: %s
  description: ""

defaults:
  actor_subtype: HUMAN
  use_case_kind: PRIMARY

seed:
  actors:
    - name: user
      subtype: HUMAN
    - name: system
      subtype: SOFTWARE
  use_cases:
    - name: main
      kind: PRIMARY
`
