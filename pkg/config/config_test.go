package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_EnvOverridesYAML(t *testing.T) {
	// Create a temp directory with a config.yaml
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
port: "3443"
env: "test"
database:
  host: "db.example.com"
  port: 5432
  user: "testuser"
  database: "testdb"
sap_source:
  driver: "postgres"
  host: "sap.example.com"
  port: 5433
  database: "sap_sim"
  sample_row_limit: 20
  distinct_value_limit: 50
ai:
  provider: "openai"
  endpoint: "https://api.openai.com/v1"
  model: "gpt-4o"
pipeline:
  execution_row_limit: 500
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	// Change to temp directory so Load() finds config.yaml
	originalDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() {
		os.Chdir(originalDir)
	})

	// Clear env vars that might interfere with test
	os.Unsetenv("PGHOST")
	os.Unsetenv("BASE_URL")

	// Set env vars to override YAML values
	t.Setenv("PORT", "4443")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Verify env vars override YAML
	if cfg.Port != "4443" {
		t.Errorf("expected Port=4443 (from env), got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Errorf("expected Env=production (from env), got %s", cfg.Env)
	}

	// Verify version was set
	if cfg.Version != "test-version" {
		t.Errorf("expected Version=test-version, got %s", cfg.Version)
	}

	// Verify BaseURL was auto-derived from PORT
	if cfg.BaseURL != "http://localhost:4443" {
		t.Errorf("expected BaseURL=http://localhost:4443 (auto-derived from PORT), got %s", cfg.BaseURL)
	}

	// Verify YAML value used for database host (proves YAML was read)
	if cfg.Database.Host != "db.example.com" {
		t.Errorf("expected Database.Host=db.example.com (from yaml), got %s", cfg.Database.Host)
	}
	if cfg.SAPSource.Host != "sap.example.com" {
		t.Errorf("expected SAPSource.Host=sap.example.com (from yaml), got %s", cfg.SAPSource.Host)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	tmpDir := t.TempDir()

	originalDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() {
		os.Chdir(originalDir)
	})

	if _, err := Load("test-version"); err == nil {
		t.Error("expected error when config.yaml is missing")
	}
}

func TestDatabaseConnectionString(t *testing.T) {
	cfg := &DatabaseConfig{
		Host:     "db.internal",
		Port:     5432,
		User:     "saplens",
		Password: "secret",
		Database: "saplens_engine",
		SSLMode:  "require",
	}

	got := cfg.ConnectionString()
	want := "host=db.internal port=5432 user=saplens password=secret dbname=saplens_engine sslmode=require"
	if got != want {
		t.Errorf("ConnectionString() = %q, want %q", got, want)
	}
}

func TestSAPSourceConnectionString(t *testing.T) {
	tests := []struct {
		name string
		cfg  SAPSourceConfig
		want string
	}{
		{
			name: "postgres driver",
			cfg: SAPSourceConfig{
				Driver:   "postgres",
				Host:     "sap.internal",
				Port:     5433,
				User:     "sap_reader",
				Password: "pw",
				Database: "sap_sim",
				SSLMode:  "disable",
			},
			want: "host=sap.internal port=5433 user=sap_reader password=pw dbname=sap_sim sslmode=disable",
		},
		{
			name: "mssql driver",
			cfg: SAPSourceConfig{
				Driver:   "mssql",
				Host:     "sap.internal",
				Port:     1433,
				User:     "sap_reader",
				Password: "pw",
				Database: "sap_sim",
			},
			want: "sqlserver://sap_reader:pw@sap.internal:1433?database=sap_sim",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.ConnectionString(); got != tt.want {
				t.Errorf("ConnectionString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			SAPSource: SAPSourceConfig{
				Driver:             "postgres",
				SampleRowLimit:     20,
				DistinctValueLimit: 50,
			},
			AI: AIConfig{
				Provider: "openai",
				Endpoint: "https://api.openai.com/v1",
				Model:    "gpt-4o",
			},
			Pipeline: PipelineConfig{
				ExecutionRowLimit: 500,
			},
		}
	}

	if err := valid().validate(); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad sap driver", func(c *Config) { c.SAPSource.Driver = "oracle" }},
		{"bad ai provider", func(c *Config) { c.AI.Provider = "bard" }},
		{"missing endpoint", func(c *Config) { c.AI.Endpoint = "" }},
		{"missing model", func(c *Config) { c.AI.Model = "" }},
		{"zero sample limit", func(c *Config) { c.SAPSource.SampleRowLimit = 0 }},
		{"zero execution limit", func(c *Config) { c.Pipeline.ExecutionRowLimit = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}
