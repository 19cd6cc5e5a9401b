package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/etnz/debinspect/apt"
	"go.yaml.in/yaml/v3"
)

// Config is a business object holding the application's configuration.
type Config struct {
	// Lenient skips the required header check when inspecting packages.
	Lenient bool
	// Keyring is the path of an armored OpenPGP keyring used to verify
	// signed source descriptions.
	Keyring string
	// Verbosity is the default log level, overridden by -v.
	Verbosity int
	// ArchiveInfo is the metadata written to the Release file by scan.
	ArchiveInfo apt.ArchiveInfo
}

// defaultConfigPath is the configuration read when --config is not set.
func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "debinspect", "config.yaml")
}

// loadConfig reads the configuration at path. When path is empty the default
// location is used, and a missing default file yields an empty Config.
func loadConfig(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
		if path == "" {
			return &Config{}, nil
		}
	}
	cfg, err := decodeConfig(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return cfg, nil
}

func decodeConfig(path string) (*Config, error) {
	// Internal DTOs for YAML deserialization
	type yamlArchiveInfo struct {
		Origin        string `yaml:"origin"`
		Label         string `yaml:"label"`
		Suite         string `yaml:"suite"`
		Codename      string `yaml:"codename"`
		Architectures string `yaml:"architectures"`
		Components    string `yaml:"components"`
		Description   string `yaml:"description"`
	}
	type yamlConfig struct {
		Lenient     bool            `yaml:"lenient"`
		Keyring     string          `yaml:"keyring"`
		Verbosity   int             `yaml:"verbosity"`
		ArchiveInfo yamlArchiveInfo `yaml:"archive_info"`
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var dto yamlConfig
	if err := yaml.Unmarshal(data, &dto); err != nil {
		return nil, err
	}

	// Map DTO to business object
	cfg := &Config{
		Lenient:   dto.Lenient,
		Keyring:   dto.Keyring,
		Verbosity: dto.Verbosity,
		ArchiveInfo: apt.ArchiveInfo{
			Origin:        dto.ArchiveInfo.Origin,
			Label:         dto.ArchiveInfo.Label,
			Suite:         dto.ArchiveInfo.Suite,
			Codename:      dto.ArchiveInfo.Codename,
			Architectures: dto.ArchiveInfo.Architectures,
			Components:    dto.ArchiveInfo.Components,
			Description:   dto.ArchiveInfo.Description,
		},
	}
	// A relative keyring is resolved against the configuration file.
	if cfg.Keyring != "" && !filepath.IsAbs(cfg.Keyring) {
		cfg.Keyring = filepath.Join(filepath.Dir(path), cfg.Keyring)
	}
	return cfg, nil
}

type configKey struct{}

func withConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// configFrom returns the configuration stored by the root command, or an
// empty one.
func configFrom(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey{}).(*Config); ok {
		return cfg
	}
	return &Config{}
}
