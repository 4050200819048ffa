package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Agent.Model != "claude-sonnet-4-0" {
		t.Fatalf("model = %q", cfg.Agent.Model)
	}
	if cfg.Agent.MaxTokens != 2048 {
		t.Fatalf("max tokens = %d", cfg.Agent.MaxTokens)
	}
	if cfg.Agent.Temperature != 0.7 {
		t.Fatalf("temperature = %v", cfg.Agent.Temperature)
	}
	if cfg.Context.Projects != 3 || !cfg.Context.IncludeHistory {
		t.Fatalf("context = %+v", cfg.Context)
	}
	if cfg.Defaults.Stack == "" || len(cfg.Defaults.Tags) != 2 {
		t.Fatalf("defaults = %+v", cfg.Defaults)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestFromYAMLOverlay(t *testing.T) {
	cfg, err := FromYAML([]byte("agent:\n  model: claude-opus-4-0\ncontext:\n  projects: 5\n"))
	if err != nil {
		t.Fatalf("FromYAML: %v", err)
	}
	if cfg.Agent.Model != "claude-opus-4-0" {
		t.Fatalf("model = %q", cfg.Agent.Model)
	}
	if cfg.Context.Projects != 5 {
		t.Fatalf("projects = %d", cfg.Context.Projects)
	}
	// Untouched sections keep their defaults.
	if cfg.Agent.MaxTokens != 2048 || cfg.Defaults.Stack == "" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestFromYAMLInvalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"bad temperature", "agent:\n  temperature: 1.5\n", "temperature"},
		{"empty model", "agent:\n  model: \"\"\n", "model"},
		{"zero projects", "context:\n  projects: 0\n", "projects"},
		{"empty tag", "defaults:\n  tags: [web, \"\"]\n", "empty tag"},
		{"not yaml", "agent: [", "invalid config yaml"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromYAML([]byte(tc.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v", err)
			}
		})
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.Model != Default().Agent.Model {
		t.Fatalf("model = %q", cfg.Agent.Model)
	}
}

func TestLoadReadsWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	content := "defaults:\n  stack: \"Go e SQLite\"\n"
	if err := os.WriteFile(Path(dir), []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Defaults.Stack != "Go e SQLite" {
		t.Fatalf("stack = %q", cfg.Defaults.Stack)
	}
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blueprint.yml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}
	cfg, err := FromFile(path)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if cfg.Agent.Model != Default().Agent.Model {
		t.Fatalf("model = %q", cfg.Agent.Model)
	}
}
