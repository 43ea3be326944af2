// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "casvault.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}
	return path
}

func TestLoadFileMemoryBackend(t *testing.T) {
	path := writeConfig(t, "backend: memory\n")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Backend != MemoryBackend {
		t.Errorf("Backend = %q, want %q", cfg.Backend, MemoryBackend)
	}
}

func TestLoadFileFilesBackendRequiresRoot(t *testing.T) {
	path := writeConfig(t, "backend: files\n")

	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile with files backend and no root succeeded, want error")
	}
}

func TestLoadFileFilesBackendWithRoot(t *testing.T) {
	path := writeConfig(t, "backend: files\nfiles:\n  root: /var/lib/casvault\n")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Files.Root != "/var/lib/casvault" {
		t.Errorf("Files.Root = %q, want %q", cfg.Files.Root, "/var/lib/casvault")
	}
}

func TestLoadFileBucketBackendRequiresBucketName(t *testing.T) {
	path := writeConfig(t, "backend: bucket\n")

	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile with bucket backend and no bucket name succeeded, want error")
	}
}

func TestLoadFileUnknownBackendRejected(t *testing.T) {
	path := writeConfig(t, "backend: quantum\n")

	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile with unknown backend succeeded, want error")
	}
}

func TestLoadFileSecretRequiresPassword(t *testing.T) {
	path := writeConfig(t, "backend: memory\nsecret:\n  enabled: true\n")

	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile with secret.enabled and no password succeeded, want error")
	}
}

func TestLoadFileUnknownCompressionCodecRejected(t *testing.T) {
	path := writeConfig(t, "backend: memory\ncompression:\n  enabled: true\n  codec: lzma\n")

	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile with unknown compression codec succeeded, want error")
	}
}

func TestLoadRequiresEnvironmentVariable(t *testing.T) {
	t.Setenv("CASVAULT_CONFIG", "")
	if _, err := Load(); err == nil {
		t.Error("Load with no CASVAULT_CONFIG succeeded, want error")
	}
}

func TestLoadUsesEnvironmentVariable(t *testing.T) {
	path := writeConfig(t, "backend: memory\n")
	t.Setenv("CASVAULT_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend != MemoryBackend {
		t.Errorf("Backend = %q, want %q", cfg.Backend, MemoryBackend)
	}
}
