package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/parquedb/parquedb/internal/config/dto"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader()
	if loader == nil {
		t.Fatal("expected non-nil loader")
	}
	if loader.v == nil {
		t.Fatal("expected non-nil viper instance")
	}
}

func TestLoader_LoadWithValidConfig(t *testing.T) {
	tempDir := os.TempDir()
	configFile := filepath.Join(tempDir, "test-config.yaml")
	defer os.Remove(configFile)

	configContent := `
application:
  name: test-app
  version: 1.0.0

branch:
  name: main
  max_buffered_events: 250

storage:
  backend: file
  file:
    base_path: /tmp/test
`

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to create test config file: %v", err)
	}

	loader := NewLoader()
	config, err := loader.Load(configFile)

	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if config == nil {
		t.Fatal("expected non-nil config")
	}

	if config.Application.Name != "test-app" {
		t.Errorf("Application.Name = %s, want test-app", config.Application.Name)
	}
	if config.Branch.Name != "main" {
		t.Errorf("Branch.Name = %s, want main", config.Branch.Name)
	}
	if config.Branch.MaxBufferedEvents != 250 {
		t.Errorf("Branch.MaxBufferedEvents = %d, want 250", config.Branch.MaxBufferedEvents)
	}
}

func TestLoader_LoadWithMissingFile(t *testing.T) {
	loader := NewLoader()

	// Loading with a non-existent file falls back to defaults + env vars,
	// which satisfy Validate, so this should succeed.
	config, err := loader.Load("/nonexistent/config.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v, want nil (defaults should validate)", err)
	}
	if config.Storage.Backend != "file" {
		t.Errorf("Storage.Backend = %s, want file", config.Storage.Backend)
	}
}

func TestLoader_Validate(t *testing.T) {
	validBase := func() *dto.ApplicationConfig {
		return &dto.ApplicationConfig{
			Application: dto.ApplicationInfo{Name: "app"},
			Branch:      dto.BranchConfig{Name: "events", MaxBufferedEvents: 100},
			Storage: dto.StorageConfig{
				Backend: "file",
				File:    dto.FileConfig{BasePath: "/tmp/test"},
			},
			Observability: dto.ObservabilityConfig{
				Metrics: dto.MetricsConfig{Port: 9090},
				Health:  dto.HealthConfig{Port: 8080, MaxUncompactedSegments: 50},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*dto.ApplicationConfig)
		wantErr bool
	}{
		{name: "valid file backend config", mutate: func(c *dto.ApplicationConfig) {}, wantErr: false},
		{name: "missing application name", mutate: func(c *dto.ApplicationConfig) { c.Application.Name = "" }, wantErr: true},
		{name: "missing branch name", mutate: func(c *dto.ApplicationConfig) { c.Branch.Name = "" }, wantErr: true},
		{name: "non-positive max buffered events", mutate: func(c *dto.ApplicationConfig) { c.Branch.MaxBufferedEvents = 0 }, wantErr: true},
		{
			name: "s3 backend missing bucket",
			mutate: func(c *dto.ApplicationConfig) {
				c.Storage = dto.StorageConfig{Backend: "s3", S3: dto.S3Config{Region: "us-east-1"}}
			},
			wantErr: true,
		},
		{
			name: "azure backend missing account name",
			mutate: func(c *dto.ApplicationConfig) {
				c.Storage = dto.StorageConfig{Backend: "azure", Azure: dto.AzureConfig{Container: "test-container"}}
			},
			wantErr: true,
		},
		{
			name:    "unsupported storage backend",
			mutate:  func(c *dto.ApplicationConfig) { c.Storage = dto.StorageConfig{Backend: "unsupported"} },
			wantErr: true,
		},
		{
			name:    "invalid metrics port",
			mutate:  func(c *dto.ApplicationConfig) { c.Observability.Metrics.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "negative max uncompacted segments",
			mutate:  func(c *dto.ApplicationConfig) { c.Observability.Health.MaxUncompactedSegments = -1 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBase()
			tt.mutate(cfg)
			loader := NewLoader()
			err := loader.Validate(cfg)

			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoader_setDefaults(t *testing.T) {
	loader := NewLoader()
	loader.setDefaults()

	if loader.v.GetString("application.name") != "parquedb" {
		t.Error("default application.name not set correctly")
	}
	if loader.v.GetString("storage.backend") != "file" {
		t.Error("default storage.backend not set correctly")
	}
	if loader.v.GetString("branch.name") != "events" {
		t.Error("default branch.name not set correctly")
	}
	if loader.v.GetInt("branch.max_buffered_events") <= 0 {
		t.Error("default branch.max_buffered_events not set correctly")
	}
}
