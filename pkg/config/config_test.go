package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigOptionalEmptyPath(t *testing.T) {
	t.Setenv("COMFY_SERVER_ADDR", "127.0.0.1:9999")

	cfg, err := LoadConfigOptional("")
	if err != nil {
		t.Fatalf("LoadConfigOptional with empty path should not error: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected non-nil config")
	}
	if cfg.ServerAddr != "127.0.0.1:9999" {
		t.Errorf("Expected ServerAddr from env, got %q", cfg.ServerAddr)
	}
}

func TestLoadConfigOptionalFileNotExist(t *testing.T) {
	cfg, err := LoadConfigOptional(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfigOptional with missing file should not error: %v", err)
	}
	if cfg.ServerAddr != "127.0.0.1:8188" {
		t.Errorf("Expected default ServerAddr, got %q", cfg.ServerAddr)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("comfyDir: /opt/comfy\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.PythonPath != filepath.Join("/opt/comfy", "venv", "bin", "python") {
		t.Errorf("PythonPath not derived from comfyDir: %q", cfg.PythonPath)
	}
	if cfg.WorkflowPath != filepath.Join("/opt/comfy", "wallpaper_api.json") {
		t.Errorf("WorkflowPath not derived from comfyDir: %q", cfg.WorkflowPath)
	}
	if cfg.SeedNode != "3" || cfg.SeedInput != "seed" {
		t.Errorf("Unexpected seed path defaults: %q/%q", cfg.SeedNode, cfg.SeedInput)
	}
	if cfg.PromptNode != "6" || cfg.PromptInput != "text" {
		t.Errorf("Unexpected prompt path defaults: %q/%q", cfg.PromptNode, cfg.PromptInput)
	}
	if cfg.ReadyTimeoutSeconds != 60 {
		t.Errorf("Expected readyTimeoutSeconds=60, got %d", cfg.ReadyTimeoutSeconds)
	}
	if cfg.StopTimeoutSeconds != 10 {
		t.Errorf("Expected stopTimeoutSeconds=10, got %d", cfg.StopTimeoutSeconds)
	}
	if !cfg.EnrichEnabled {
		t.Error("Expected enrichment enabled by default")
	}
	if len(cfg.ArtistTags) == 0 || len(cfg.Characters) == 0 {
		t.Error("Expected built-in artist tags and characters")
	}
}

func TestLoadConfigFileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `serverAddr: "10.0.0.1:8188"
enrichEnabled: false
characters:
  - name: Test Subject
    hair: blue hair
    eyes: gray eyes
    age: adult
    build: tall
    vibe: calm
    footwear: boots
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ServerAddr != "10.0.0.1:8188" {
		t.Errorf("ServerAddr = %q", cfg.ServerAddr)
	}
	if cfg.EnrichEnabled {
		t.Error("Expected enrichEnabled=false to survive defaults")
	}
	if len(cfg.Characters) != 1 || cfg.Characters[0].Name != "Test Subject" {
		t.Errorf("Characters from file not preserved: %+v", cfg.Characters)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"empty server addr", func(c *Config) { c.ServerAddr = " " }, true},
		{"url server addr", func(c *Config) { c.ServerAddr = "http://127.0.0.1:8188" }, true},
		{"bad poll policy", func(c *Config) { c.ReadyPollPolicy = "random" }, true},
		{"no characters with enrichment", func(c *Config) { c.Characters = nil }, true},
		{"no characters without enrichment", func(c *Config) { c.Characters = nil; c.EnrichEnabled = false }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfigOptional("")
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(cfg)
			err = cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
		})
	}
}
