package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Strob0t/AgentHub/internal/domain/account"
)

// EnvBaseDir overrides the base directory when set.
const EnvBaseDir = "AGENTCTL_DIR"

// BaseDir resolves the daemon's state directory:
// $AGENTCTL_DIR, falling back to $HOME/.agentctl.
func BaseDir() (string, error) {
	if dir := os.Getenv(EnvBaseDir); dir != "" {
		return dir, nil
	}
	home := os.Getenv("HOME")
	if home == "" {
		return "", errors.New("neither AGENTCTL_DIR nor HOME is set")
	}
	return filepath.Join(home, ".agentctl"), nil
}

// DefaultPath returns the config file path under the base dir.
func DefaultPath() (string, error) {
	dir, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from the default path. A missing file yields the
// built-in defaults rather than an error.
func Load() (*Config, string, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, "", err
	}
	cfg, err := LoadFrom(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// LoadFrom reads the config from path, tolerantly merging the stored
// JSON over the defaults: missing sub-objects are filled in, unknown
// keys are preserved.
func LoadFrom(path string) (*Config, error) {
	cfg := NewDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	fillDefaults(cfg)

	for i := range cfg.Accounts {
		if err := cfg.Accounts[i].Validate(); err != nil {
			return nil, fmt.Errorf("config account %d: %w", i, err)
		}
	}
	return cfg, nil
}

// fillDefaults restores required sub-objects a stored file may omit.
func fillDefaults(cfg *Config) {
	def := NewDefaults()
	if cfg.Accounts == nil {
		cfg.Accounts = []account.Account{}
	}
	if cfg.Defaults.QuotaPolicy == "" {
		cfg.Defaults.QuotaPolicy = def.Defaults.QuotaPolicy
	}
	if cfg.Defaults.MaxDelegationDepth == 0 {
		cfg.Defaults.MaxDelegationDepth = def.Defaults.MaxDelegationDepth
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Service == "" {
		cfg.Logging.Service = def.Logging.Service
	}
}

// Save writes the config atomically: temp file in the same directory,
// fsync, rename.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// Migrate backs up the file to <path>.backup.<version> and rewrites it
// with schemaVersion set to CurrentVersion. A file already at the
// current version is left untouched.
func Migrate(path string) error {
	cfg, err := LoadFrom(path)
	if err != nil {
		return err
	}
	if cfg.SchemaVersion == CurrentVersion {
		return nil
	}

	if data, err := os.ReadFile(path); err == nil {
		backup := fmt.Sprintf("%s.backup.%d", path, cfg.SchemaVersion)
		if err := os.WriteFile(backup, data, 0o644); err != nil {
			return fmt.Errorf("write config backup: %w", err)
		}
	}

	cfg.SchemaVersion = CurrentVersion
	return Save(cfg, path)
}
