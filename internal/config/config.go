// Package config loads the daemon configuration: a yaml file, then
// environment overrides.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/org/applock/internal/biometric"
	"github.com/org/applock/internal/crypto"
	"github.com/org/applock/internal/stepup"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	ListenAddr string          `yaml:"listen_addr"`
	LogLevel   string          `yaml:"log_level"`
	DevMode    bool            `yaml:"dev_mode"`
	Storage    StorageConfig   `yaml:"storage"`
	Vault      VaultConfig     `yaml:"vault"`
	StepUp     StepUpConfig    `yaml:"stepup"`
	Simulator  SimulatorConfig `yaml:"simulator"`
	Prompts    PromptsConfig   `yaml:"prompts"`
}

type StorageConfig struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresURL string `yaml:"postgres_url"`
	// Namespace separates simulated devices sharing one Postgres database.
	Namespace string `yaml:"namespace"`
}

type VaultConfig struct {
	MasterKey     string `yaml:"master_key"`
	MasterKeyFile string `yaml:"master_key_file"`
}

type StepUpConfig struct {
	MaxRetries int `yaml:"max_retries"`
}

// SimulatorConfig is the initial capability of the simulated sensor.
type SimulatorConfig struct {
	HasHardware bool     `yaml:"has_hardware" json:"has_hardware"`
	Enrolled    bool     `yaml:"enrolled" json:"enrolled"`
	Modalities  []string `yaml:"modalities" json:"modalities"`
}

// PromptConfig overrides the copy of one native prompt. Empty fields keep
// the built-in text.
type PromptConfig struct {
	Message             string `yaml:"message"`
	CancelLabel         string `yaml:"cancel_label"`
	AllowDeviceFallback bool   `yaml:"allow_device_fallback"`
}

type PromptsConfig struct {
	Unlock         PromptConfig `yaml:"unlock"`
	Login          PromptConfig `yaml:"login"`
	AppLock        PromptConfig `yaml:"app_lock"`
	BiometricLogin PromptConfig `yaml:"biometric_login"`
	TransferStepUp PromptConfig `yaml:"transfer_step_up"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr: "127.0.0.1:8420",
		LogLevel:   "info",
		Storage: StorageConfig{
			Driver:     DriverSQLite,
			SQLitePath: "applock.db",
			Namespace:  "default",
		},
		Vault:  VaultConfig{MasterKeyFile: "applock.key"},
		StepUp: StepUpConfig{MaxRetries: stepup.DefaultMaxRetries},
		Simulator: SimulatorConfig{
			HasHardware: true,
			Enrolled:    true,
			Modalities:  []string{"fingerprint", "face"},
		},
	}
}

// Path returns the config file location: APPLOCK_CONFIG or applock.yaml.
func Path() string {
	if v := os.Getenv("APPLOCK_CONFIG"); v != "" {
		return v
	}
	return "applock.yaml"
}

// Load reads path over the defaults and applies env overrides. A missing
// file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		log.Warn().Str("file", path).Msg("config file not found, using defaults")
	default:
		return cfg, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	if v := os.Getenv("APPLOCK_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("APPLOCK_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("APPLOCK_DEV_MODE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.DevMode = b
		}
	}
	if v := os.Getenv("APPLOCK_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("APPLOCK_SQLITE_PATH"); v != "" {
		c.Storage.SQLitePath = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Storage.PostgresURL = v
	}
	if v := os.Getenv("APPLOCK_MASTER_KEY"); v != "" {
		c.Vault.MasterKey = v
	}
}

// Validate checks the storage settings and retry budget.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("storage.sqlite_path must be set for the sqlite driver")
		}
	case DriverPostgres:
		if c.Storage.PostgresURL == "" {
			return errors.New("storage.postgres_url must be configured (or DATABASE_URL env var)")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.StepUp.MaxRetries < 0 {
		return errors.New("stepup.max_retries must not be negative")
	}
	return nil
}

// LoadMasterKey returns the vault master key. An inline key wins over the
// key file. A missing key file is created with a fresh key, except for the
// memory driver, which always gets an ephemeral key.
func (c Config) LoadMasterKey() ([]byte, error) {
	if c.Vault.MasterKey != "" {
		return decodeKey(c.Vault.MasterKey)
	}
	if c.Storage.Driver == DriverMemory || c.Vault.MasterKeyFile == "" {
		return crypto.GenerateMasterKey()
	}

	data, err := os.ReadFile(c.Vault.MasterKeyFile)
	if err == nil {
		return decodeKey(strings.TrimSpace(string(data)))
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading master key file: %w", err)
	}

	key, err := crypto.GenerateMasterKey()
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(c.Vault.MasterKeyFile); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating master key dir: %w", err)
		}
	}
	if err := os.WriteFile(c.Vault.MasterKeyFile, []byte(base64.StdEncoding.EncodeToString(key)+"\n"), 0600); err != nil {
		return nil, fmt.Errorf("writing master key file: %w", err)
	}
	log.Info().Str("file", c.Vault.MasterKeyFile).Msg("generated new vault master key")
	return key, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding master key: %w", err)
	}
	if len(key) != crypto.KeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", crypto.KeySize, len(key))
	}
	return key, nil
}

// Capability converts the simulator settings to a platform report.
func (s SimulatorConfig) Capability() biometric.PlatformCapability {
	c := biometric.PlatformCapability{HasHardware: s.HasHardware, IsEnrolled: s.Enrolled}
	for _, m := range s.Modalities {
		switch strings.ToLower(m) {
		case "fingerprint":
			c.ModalityCodes = append(c.ModalityCodes, biometric.CodeFingerprint)
		case "face":
			c.ModalityCodes = append(c.ModalityCodes, biometric.CodeFace)
		case "iris":
			c.ModalityCodes = append(c.ModalityCodes, biometric.CodeIris)
		}
	}
	return c
}

// Apply overlays p on base.
func (p PromptConfig) Apply(base biometric.PromptOptions) biometric.PromptOptions {
	if p.Message != "" {
		base.Message = p.Message
	}
	if p.CancelLabel != "" {
		base.CancelLabel = p.CancelLabel
	}
	if p.AllowDeviceFallback {
		base.AllowDeviceFallback = true
	}
	return base
}
