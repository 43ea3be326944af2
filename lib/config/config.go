// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the casvault CLI.
//
// Configuration is loaded from a single file specified by:
//   - CASVAULT_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
// Nothing in lib/backend or lib/frontend reads this package — backend
// and wrapper construction takes its parameters directly, per the
// "no global state" design note; only the CLI entry point loads a
// Config and uses it to build a Backend stack.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BackendKind selects which base Backend the CLI builds.
type BackendKind string

const (
	MemoryBackend BackendKind = "memory"
	FilesBackend  BackendKind = "files"
	BucketBackend BackendKind = "bucket"
)

// Config is the root configuration for the casvault CLI.
type Config struct {
	// Backend selects the base storage backend.
	Backend BackendKind `yaml:"backend"`

	Files       FilesConfig       `yaml:"files"`
	Bucket      BucketConfig      `yaml:"bucket"`
	Compression CompressionConfig `yaml:"compression"`
	Secret      SecretConfig      `yaml:"secret"`
	Asymmetric  AsymmetricConfig  `yaml:"asymmetric"`
}

// FilesConfig configures the Files backend.
type FilesConfig struct {
	// Root is the directory objects are stored under.
	Root string `yaml:"root"`

	// LockDir is the directory advisory lock files are created in.
	// Defaults to os.TempDir() if empty.
	LockDir string `yaml:"lock_dir"`
}

// BucketConfig configures the Bucket (S3-compatible) backend.
type BucketConfig struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`

	// AccessKeyID and SecretAccessKey are optional: leave both empty
	// to use the AWS SDK's default credential chain (environment,
	// shared config, instance role).
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// CompressionConfig configures the optional Compression wrapper.
type CompressionConfig struct {
	Enabled bool   `yaml:"enabled"`
	Codec   string `yaml:"codec"` // "deflate", "gzip", "brotli", "zstd"
}

// SecretConfig configures the optional password-based Secret wrapper.
// PasswordFile, when set, takes precedence over Password: it names a
// file (or "-" for stdin) holding the password, read into guarded
// memory rather than sitting in the config file or process arguments
// in plain text.
type SecretConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Password     string `yaml:"password"`
	PasswordFile string `yaml:"password_file"`
	Salt         string `yaml:"salt"`
}

// AsymmetricConfig configures the optional RSA-based Asymmetric wrapper.
type AsymmetricConfig struct {
	Enabled        bool   `yaml:"enabled"`
	PublicKeyPath  string `yaml:"public_key_path"`
	PrivateKeyPath string `yaml:"private_key_path"`
}

// Default returns a Config with sensible zero-values. It exists so
// every field has a defined value before the config file is applied,
// not as a fallback — the config file is still required by Load.
func Default() *Config {
	return &Config{
		Backend: MemoryBackend,
		Files: FilesConfig{
			LockDir: os.TempDir(),
		},
		Bucket: BucketConfig{
			UsePathStyle: false,
		},
		Compression: CompressionConfig{
			Codec: "zstd",
		},
	}
}

// Load loads configuration from the CASVAULT_CONFIG environment
// variable. There are no fallbacks: if it is not set, this fails.
func Load() (*Config, error) {
	path := os.Getenv("CASVAULT_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("config: CASVAULT_CONFIG environment variable not set; " +
			"set it to the path of your casvault.yaml config file, or use --config")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	switch c.Backend {
	case MemoryBackend:
	case FilesBackend:
		if c.Files.Root == "" {
			return fmt.Errorf("config: files.root is required when backend is %q", FilesBackend)
		}
	case BucketBackend:
		if c.Bucket.Bucket == "" {
			return fmt.Errorf("config: bucket.bucket is required when backend is %q", BucketBackend)
		}
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}

	if c.Compression.Enabled {
		switch c.Compression.Codec {
		case "deflate", "gzip", "brotli", "zstd":
		default:
			return fmt.Errorf("config: unknown compression codec %q", c.Compression.Codec)
		}
	}

	if c.Secret.Enabled && c.Secret.Password == "" && c.Secret.PasswordFile == "" {
		return fmt.Errorf("config: secret.password or secret.password_file is required when secret.enabled is true")
	}

	if c.Asymmetric.Enabled && c.Asymmetric.PublicKeyPath == "" && c.Asymmetric.PrivateKeyPath == "" {
		return fmt.Errorf("config: asymmetric requires at least one of public_key_path or private_key_path")
	}

	return nil
}
