package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models blueprint.yml.
type Config struct {
	Agent struct {
		Model       string  `yaml:"model"`
		MaxTokens   int64   `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
		BasePrompt  string  `yaml:"base_prompt"`
	} `yaml:"agent"`
	Context struct {
		Projects       int  `yaml:"projects"`
		IncludeHistory bool `yaml:"include_history"`
	} `yaml:"context"`
	Defaults struct {
		Stack string   `yaml:"stack"`
		Tags  []string `yaml:"tags"`
	} `yaml:"defaults"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Agent.Model == "" {
		return fmt.Errorf("config.agent.model is required")
	}
	if c.Agent.MaxTokens <= 0 {
		return fmt.Errorf("config.agent.max_tokens must be positive")
	}
	if c.Agent.Temperature < 0 || c.Agent.Temperature > 1 {
		return fmt.Errorf("config.agent.temperature must be in [0,1]")
	}
	if c.Context.Projects <= 0 {
		return fmt.Errorf("config.context.projects must be positive")
	}
	if c.Defaults.Stack == "" {
		return fmt.Errorf("config.defaults.stack is required")
	}
	if len(c.Defaults.Tags) == 0 {
		return fmt.Errorf("config.defaults.tags is required")
	}
	for _, tag := range c.Defaults.Tags {
		if tag == "" {
			return fmt.Errorf("config.defaults.tags contains empty tag")
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "blueprint.yml")
}

// Default returns the built-in defaults.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Fields left out of
// the file keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WriteDefault writes the default template to path.
func WriteDefault(path string) error {
	return os.WriteFile(path, []byte(defaultTemplate), 0o644)
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `agent:
  model: claude-sonnet-4-0
  max_tokens: 2048
  temperature: 0.7
  base_prompt: ""

context:
  projects: 3
  include_history: true

defaults:
  stack: "Next.js, TypeScript, Prisma e PostgreSQL"
  tags: [web, mvp]
`
