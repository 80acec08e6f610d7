// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	cfg.Listen.DataFile = "/tmp/portd-test/portd.db"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() failed validation: %v", err)
	}
}

func TestLoadFileAppliesOverridesAndExpansion(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "portd.yaml")
	contents := `
environment: production
listen:
  address: "127.0.0.1:1234"
  data_file: "${HOME}/portd.db"
reaper:
  interval: "1m"
production:
  rate_limit:
    requests_per_minute: 30
`
	if err := os.WriteFile(configPath, []byte(contents), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Listen.Address != "127.0.0.1:1234" {
		t.Errorf("Listen.Address = %q", cfg.Listen.Address)
	}
	if cfg.RateLimit.RequestsPerMinute != 30 {
		t.Errorf("RateLimit.RequestsPerMinute = %d, want 30 (production override)", cfg.RateLimit.RequestsPerMinute)
	}
	home := os.Getenv("HOME")
	if home != "" && cfg.Listen.DataFile != home+"/portd.db" {
		t.Errorf("Listen.DataFile = %q, want expansion of ${HOME}", cfg.Listen.DataFile)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadRequiresEnvVar(t *testing.T) {
	t.Setenv("PORTD_CONFIG", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error when PORTD_CONFIG is unset")
	}
}
