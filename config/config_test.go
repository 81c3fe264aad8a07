package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "empty base url",
			mutate: func(cfg *Config) {
				cfg.BaseURL = ""
			},
			wantErr: "base URL",
		},
		{
			name: "invalid url format",
			mutate: func(cfg *Config) {
				cfg.BaseURL = "http://"
			},
			wantErr: "base URL",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "empty date field",
			mutate: func(cfg *Config) {
				cfg.FormDateField = ""
			},
			wantErr: "form date field",
		},
		{
			name: "missing action value",
			mutate: func(cfg *Config) {
				cfg.FormActionValue = ""
			},
			wantErr: "form action",
		},
		{
			name: "zero batch size",
			mutate: func(cfg *Config) {
				cfg.BatchSize = 0
			},
			wantErr: "batch size",
		},
		{
			name: "negative flush interval",
			mutate: func(cfg *Config) {
				cfg.FlushInterval = -time.Second
			},
			wantErr: "flush interval",
		},
		{
			name: "unknown output format",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "xml"
			},
			wantErr: "output format",
		},
		{
			name: "sqlite without database path",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "sqlite"
				cfg.DatabasePath = ""
			},
			wantErr: "database path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("EDC_BASE_URL", "http://okte.test/edc/")
	t.Setenv("EDC_TIMEOUT", "5s")
	t.Setenv("EDC_OUTPUT_FORMAT", "json")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseURL != "http://okte.test/edc/" {
		t.Fatalf("base url=%q", cfg.BaseURL)
	}
	if cfg.Timeout != 5*time.Second {
		t.Fatalf("timeout=%v, want 5s", cfg.Timeout)
	}
	if cfg.OutputFormat != "json" {
		t.Fatalf("format=%q, want json", cfg.OutputFormat)
	}
	if cfg.FormActionValue != "show" {
		t.Fatalf("action=%q, want default show", cfg.FormActionValue)
	}
}

func TestLoadDefaultsMatchDefaultConfig(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := DefaultConfig()
	if *cfg != *want {
		t.Fatalf("loaded defaults %+v differ from DefaultConfig %+v", cfg, want)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edc.yml")
	body := "base_url: http://okte.test/page/\nform_date_field: datum\nbatch_size: 10\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.FormDateField != "datum" || cfg.BatchSize != 10 {
		t.Fatalf("field=%q batch=%d", cfg.FormDateField, cfg.BatchSize)
	}
	if cfg.Timeout != 30*time.Second {
		t.Fatalf("timeout=%v, want default 30s", cfg.Timeout)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("EDC_WORKERS", "0")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "workers") {
		t.Fatalf("expected workers error, got %v", err)
	}
}
