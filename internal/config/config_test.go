package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/org/applock/internal/biometric"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != Default().ListenAddr || cfg.Storage.Driver != DriverSQLite {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := writeFile(t, "applock.yaml", `
listen_addr: "127.0.0.1:9000"
log_level: debug
storage:
  driver: postgres
  postgres_url: postgres://file
stepup:
  max_retries: 5
prompts:
  unlock:
    message: "Unlock Storefront"
`)
	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("APPLOCK_DEV_MODE", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:9000" || cfg.LogLevel != "debug" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Storage.PostgresURL != "postgres://env" {
		t.Errorf("env should override file, got %q", cfg.Storage.PostgresURL)
	}
	if !cfg.DevMode || cfg.StepUp.MaxRetries != 5 {
		t.Errorf("unexpected config %+v", cfg)
	}
	opts := cfg.Prompts.Unlock.Apply(biometric.PromptOptions{Message: "x", CancelLabel: "Cancel"})
	if opts.Message != "Unlock Storefront" || opts.CancelLabel != "Cancel" {
		t.Errorf("unexpected prompt %+v", opts)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"memory", func(c *Config) { c.Storage.Driver = DriverMemory }, true},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "redis" }, false},
		{"postgres without url", func(c *Config) { c.Storage.Driver = DriverPostgres }, false},
		{"sqlite without path", func(c *Config) { c.Storage.SQLitePath = "" }, false},
		{"negative retries", func(c *Config) { c.StepUp.MaxRetries = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			if err := c.Validate(); (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestLoadMasterKeyCreatesFile(t *testing.T) {
	c := Default()
	c.Vault.MasterKeyFile = filepath.Join(t.TempDir(), "keys", "applock.key")

	first, err := c.LoadMasterKey()
	if err != nil {
		t.Fatalf("LoadMasterKey: %v", err)
	}
	second, err := c.LoadMasterKey()
	if err != nil {
		t.Fatalf("LoadMasterKey again: %v", err)
	}
	if string(first) != string(second) {
		t.Error("key file should be reused")
	}
	info, err := os.Stat(c.Vault.MasterKeyFile)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("key file mode %v", info.Mode().Perm())
	}
}

func TestLoadMasterKeyInline(t *testing.T) {
	c := Default()
	c.Vault.MasterKey = base64.StdEncoding.EncodeToString(make([]byte, 32))
	key, err := c.LoadMasterKey()
	if err != nil || len(key) != 32 {
		t.Fatalf("got %d bytes, %v", len(key), err)
	}

	c.Vault.MasterKey = base64.StdEncoding.EncodeToString([]byte("short"))
	if _, err := c.LoadMasterKey(); err == nil {
		t.Error("short key should be rejected")
	}
}

func TestSimulatorCapability(t *testing.T) {
	got := SimulatorConfig{HasHardware: true, Enrolled: true, Modalities: []string{"Face", "iris", "retina"}}.Capability()
	if !got.HasHardware || !got.IsEnrolled || len(got.ModalityCodes) != 2 {
		t.Fatalf("unexpected capability %+v", got)
	}
	if got.ModalityCodes[0] != biometric.CodeFace || got.ModalityCodes[1] != biometric.CodeIris {
		t.Errorf("unexpected codes %v", got.ModalityCodes)
	}
}
