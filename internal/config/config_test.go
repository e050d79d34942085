package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
llm:
  provider: gemini
worker:
  command: python3
  args: ["ml/analyze.py"]
  timeout: 45s
synthesis:
  window: 72h
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	if cfg.LLM.Model != "gemini-2.5-flash" || cfg.LLM.APIKeyEnv != "GEMINI_API_KEY" {
		t.Errorf("gemini defaults not applied: %+v", cfg.LLM)
	}
	if cfg.Worker.Command != "python3" || len(cfg.Worker.Args) != 1 {
		t.Errorf("worker config: %+v", cfg.Worker)
	}
	if cfg.Worker.Timeout != 45*time.Second {
		t.Errorf("worker timeout = %v, want 45s", cfg.Worker.Timeout)
	}
	if cfg.Synthesis.Window != 72*time.Hour {
		t.Errorf("synthesis window = %v, want 72h", cfg.Synthesis.Window)
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
storage:
  database_path: "./data/db/somnia.db"
worker:
  command: "./bin/somnia-worker"
inbox:
  owner_id: "me"
  directories: ["./journal"]
`)
	dir := filepath.Dir(path)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "data", "db", "somnia.db"); cfg.Storage.DatabasePath != want {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, want)
	}
	if want := filepath.Join(dir, "bin", "somnia-worker"); cfg.Worker.Command != want {
		t.Errorf("worker command = %s, want %s", cfg.Worker.Command, want)
	}
	if len(cfg.Inbox.Directories) != 1 || cfg.Inbox.Directories[0] != filepath.Join(dir, "journal") {
		t.Errorf("inbox directories = %v", cfg.Inbox.Directories)
	}
}

func TestLoad_invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown provider", "llm:\n  provider: llama\n", "llm.provider"},
		{"negative timeout", "worker:\n  timeout: -1s\n", "worker.timeout"},
		{"inbox without owner", "inbox:\n  directories: [\"/tmp/j\"]\n", "inbox.owner_id"},
		{"default above max", "search:\n  default_limit: 50\n  max_limit: 20\n", "default_limit"},
		{"bad yaml", "server: [", "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" || cfg.Server.Port != 8080 {
		t.Errorf("default server: %+v", cfg.Server)
	}
	if cfg.LLM.Provider != ProviderOpenAI || cfg.LLM.APIKeyEnv != "OPENAI_API_KEY" {
		t.Errorf("default llm: %+v", cfg.LLM)
	}
	if cfg.Worker.Command != "somnia-worker" || cfg.Worker.Timeout != 0 {
		t.Errorf("default worker: %+v", cfg.Worker)
	}
	if cfg.Synthesis.Window != 7*24*time.Hour {
		t.Errorf("default window: %v", cfg.Synthesis.Window)
	}
	if cfg.Embedding.Dimensions != 384 {
		t.Errorf("default dimensions: %d", cfg.Embedding.Dimensions)
	}
	if len(cfg.Inbox.Extensions) != 4 || cfg.Inbox.Extensions[0] != ".txt" {
		t.Errorf("inbox extensions: got %v", cfg.Inbox.Extensions)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestInboxConfig_RecursiveOrDefault(t *testing.T) {
	f := false
	if !(&InboxConfig{}).RecursiveOrDefault() {
		t.Error("nil should default to true")
	}
	if (&InboxConfig{Recursive: &f}).RecursiveOrDefault() {
		t.Error("explicit false should be honored")
	}
}

func TestLLMConfig_ResolveAPIKey(t *testing.T) {
	t.Setenv("SOMNIA_TEST_KEY", "from-env")
	c := LLMConfig{APIKeyEnv: "SOMNIA_TEST_KEY"}
	if got := c.ResolveAPIKey(); got != "from-env" {
		t.Errorf("ResolveAPIKey() = %q", got)
	}
	c.APIKey = "inline"
	if got := c.ResolveAPIKey(); got != "inline" {
		t.Errorf("inline key should win, got %q", got)
	}
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg := &Config{Server: ServerConfig{Port: 9090}, Synthesis: SynthesisConfig{Window: 48 * time.Hour}}
	ApplyDefaults(cfg)
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 || loaded.Synthesis.Window != 48*time.Hour {
		t.Errorf("round trip: port %d window %v", loaded.Server.Port, loaded.Synthesis.Window)
	}
}
