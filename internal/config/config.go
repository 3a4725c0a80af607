package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Config models missionline.yml.
type Config struct {
	Server struct {
		Addr             string `yaml:"addr"`
		BasePath         string `yaml:"base_path"`
		AllowActorHeader bool   `yaml:"allow_actor_header"`
	} `yaml:"server"`
	Catalog struct {
		MissionTypes []MissionTypeSpec `yaml:"mission_types"`
	} `yaml:"catalog"`
}

// MissionTypeSpec seeds one mission type and its ordered task templates.
type MissionTypeSpec struct {
	Name              string         `yaml:"name"`
	EstimatedDuration int            `yaml:"estimated_duration"`
	Tasks             []TemplateSpec `yaml:"tasks"`
}

type TemplateSpec struct {
	Description       string `yaml:"description"`
	EstimatedDuration int    `yaml:"estimated_duration"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with ml init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	seen := map[string]bool{}
	for i, mt := range c.Catalog.MissionTypes {
		name := strings.TrimSpace(mt.Name)
		if name == "" {
			return fmt.Errorf("config.catalog.mission_types[%d].name is required", i)
		}
		if utf8.RuneCountInString(name) > 100 {
			return fmt.Errorf("mission type %s: name longer than 100 characters", name)
		}
		if seen[name] {
			return fmt.Errorf("mission type %s declared twice", name)
		}
		seen[name] = true
		if mt.EstimatedDuration < 1 || mt.EstimatedDuration > 1440 {
			return fmt.Errorf("mission type %s: estimated_duration must be between 1 and 1440", name)
		}
		for j, t := range mt.Tasks {
			if strings.TrimSpace(t.Description) == "" {
				return fmt.Errorf("mission type %s: tasks[%d].description is required", name, j)
			}
			if t.EstimatedDuration < 1 {
				return fmt.Errorf("mission type %s: tasks[%d].estimated_duration must be at least 1", name, j)
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "missionline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
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

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
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

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0

catalog:
  mission_types:
    - name: Maintenance visit
      estimated_duration: 120
      tasks:
        - description: Site safety check
          estimated_duration: 15
        - description: Inspect equipment
          estimated_duration: 60
        - description: Write visit report
          estimated_duration: 30
    - name: Installation
      estimated_duration: 480
      tasks:
        - description: Site survey
          estimated_duration: 45
        - description: Install hardware
          estimated_duration: 300
        - description: Commissioning
          estimated_duration: 90
        - description: Customer sign-off
          estimated_duration: 15
`
