package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/elcuervo/otq"
)

type Config struct {
	DefaultProfile string             `toml:"default_profile"`
	Profiles       map[string]Profile `toml:"profiles"`
	Engine         EngineConfig       `toml:"engine"`
	Theme          string             `toml:"theme"`
}

type Profile struct {
	Vault string `toml:"vault"`
	Query string `toml:"query"`
}

// EngineConfig declares the working vocabulary of the query engine:
// statuses, priorities and user fields, plus tuning knobs.
type EngineConfig struct {
	Statuses         []StatusConfig   `toml:"statuses"`
	Priorities       []PriorityConfig `toml:"priorities"`
	Fields           []FieldConfig    `toml:"fields"`
	CompletedOverdue bool             `toml:"completed_overdue"`
	BatchSize        int              `toml:"batch_size"`
}

type StatusConfig struct {
	Key   string `toml:"key"`
	Label string `toml:"label"`
	Done  bool   `toml:"done"`
}

type PriorityConfig struct {
	Key    string `toml:"key"`
	Weight int    `toml:"weight"`
}

type FieldConfig struct {
	ID   string `toml:"id"`
	Name string `toml:"name"`
	Kind string `toml:"kind"`
}

// EngineOptions translates the config into engine options; empty sections
// keep engine defaults.
func (c EngineConfig) EngineOptions() otq.Options {
	opts := otq.Options{
		CompletedOverdue: c.CompletedOverdue,
		BatchSize:        c.BatchSize,
	}
	for _, s := range c.Statuses {
		opts.Statuses = append(opts.Statuses, otq.StatusDef{Key: s.Key, Label: s.Label, Done: s.Done})
	}
	for _, p := range c.Priorities {
		opts.Priorities = append(opts.Priorities, otq.PriorityDef{Key: p.Key, Weight: p.Weight})
	}
	for _, f := range c.Fields {
		opts.Fields = append(opts.Fields, otq.FieldDef{ID: f.ID, Name: f.Name, Kind: otq.FieldKind(f.Kind)})
	}
	return opts
}

type ProfileError struct {
	Profile string
	Field   string
	Err     error
}

func (e *ProfileError) Error() string {
	if e.Profile == "" {
		return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
	}
	if e.Field == "" {
		return fmt.Sprintf("profile %q: %v", e.Profile, e.Err)
	}
	return fmt.Sprintf("profile %q: %s: %v", e.Profile, e.Field, e.Err)
}

func (e *ProfileError) Unwrap() error { return e.Err }

var (
	ErrEmptyPath    = errors.New("path is empty")
	ErrPathNotExist = errors.New("path does not exist")
	ErrNotDirectory = errors.New("path is not a directory")
)

func selectProfile(profileFlag string, cfg Config) (string, *Profile, error) {
	if profileFlag != "" {
		p, ok := cfg.Profiles[profileFlag]
		if !ok {
			return "", nil, &ProfileError{Profile: profileFlag, Err: errors.New("profile not found")}
		}
		return profileFlag, &p, nil
	}

	if cfg.DefaultProfile != "" {
		p, ok := cfg.Profiles[cfg.DefaultProfile]
		if !ok {
			return "", nil, &ProfileError{Field: "default_profile", Err: fmt.Errorf("profile %q not found", cfg.DefaultProfile)}
		}
		return cfg.DefaultProfile, &p, nil
	}

	return "", nil, nil
}

func validateVault(name, vaultPath string) error {
	if strings.TrimSpace(vaultPath) == "" {
		return &ProfileError{Profile: name, Field: "vault", Err: ErrEmptyPath}
	}
	info, err := os.Stat(vaultPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &ProfileError{Profile: name, Field: "vault", Err: fmt.Errorf("%w: %s", ErrPathNotExist, vaultPath)}
		}
		return &ProfileError{Profile: name, Field: "vault", Err: err}
	}
	if !info.IsDir() {
		return &ProfileError{Profile: name, Field: "vault", Err: fmt.Errorf("%w: %s", ErrNotDirectory, vaultPath)}
	}
	return nil
}

func configPath() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "otq", "config.toml"), nil
}

func loadConfig() (Config, string, error) {
	path, err := configPath()
	if err != nil {
		return Config{}, "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, path, nil
		}
		return Config{}, path, err
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return Config{}, path, err
	}
	return cfg, path, nil
}

func expandPath(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return value, nil
	}

	expanded := os.ExpandEnv(value)
	if !strings.HasPrefix(expanded, "~") {
		return expanded, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if expanded == "~" {
		return homeDir, nil
	}
	if strings.HasPrefix(expanded, "~/") || strings.HasPrefix(expanded, "~\\") {
		return filepath.Join(homeDir, expanded[2:]), nil
	}
	return expanded, nil
}

func resolveVaultPath(value string) (string, error) {
	expanded, err := expandPath(value)
	if err != nil {
		return "", err
	}
	if expanded == "" || filepath.IsAbs(expanded) {
		return expanded, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, expanded), nil
}
