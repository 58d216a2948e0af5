package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestLoad_Defaults tests that an empty path yields the defaults
func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != DefaultPort {
		t.Errorf("expected port %s, got %s", DefaultPort, cfg.Server.Port)
	}
	if cfg.Models.Dir != DefaultModelsDir {
		t.Errorf("expected models dir %s, got %s", DefaultModelsDir, cfg.Models.Dir)
	}
	if cfg.Recorder.Backend != DefaultRecorderBackend {
		t.Errorf("expected recorder backend %s, got %s", DefaultRecorderBackend, cfg.Recorder.Backend)
	}
}

// TestLoad_FileAndEnv tests that environment variables win over the file
func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dmn.yaml")
	data := `
server:
  port: "9000"
  requestTimeout: 5s
models:
  dir: /srv/models
  watch: true
settings:
  logResult: true
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("MODELS_DIR", "/env/models")
	t.Setenv("DMN_EXECUTION_LOGGING", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != "9000" {
		t.Errorf("expected port 9000, got %s", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout != 5*time.Second {
		t.Errorf("expected 5s request timeout, got %v", cfg.Server.RequestTimeout)
	}
	if cfg.Models.Dir != "/env/models" {
		t.Errorf("expected env models dir, got %s", cfg.Models.Dir)
	}
	if !cfg.Models.Watch || !cfg.Settings.LogResult || !cfg.Settings.EnableExecutionLogging {
		t.Errorf("expected watch, logResult and execution logging enabled, got %+v %+v", cfg.Models, cfg.Settings)
	}
}

// TestLoad_DatabaseURL tests that DATABASE_URL selects the postgres recorder
func TestLoad_DatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/dmn?sslmode=disable")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Recorder.Backend != "postgres" {
		t.Errorf("expected postgres backend, got %s", cfg.Recorder.Backend)
	}
}

// TestValidate tests rejection of invalid settings
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"bad port", func(c *Config) { c.Server.Port = "http" }, true},
		{"unknown backend", func(c *Config) { c.Recorder.Backend = "mongo" }, true},
		{"postgres without url", func(c *Config) { c.Recorder.Backend = "postgres" }, true},
		{"bad schedule", func(c *Config) { c.Recorder.RetentionSchedule = "every day" }, true},
		{"negative retention", func(c *Config) { c.Recorder.RetentionDays = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			ApplyDefaults(&cfg)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
