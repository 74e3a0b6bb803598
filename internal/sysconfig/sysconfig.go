// Copyright © 2026 The cm5674emu Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.

// Package sysconfig owns the project directory the CLI works against:
// discovering/creating it, persisting a small YAML config across runs,
// and validating/splitting a firmware file into flash's main/shadow
// images, per §6 External Interfaces: open or create a backing directory,
// validate a candidate firmware file's size before trusting it, and
// persist enough state that a second run against the same directory picks
// up where the first left off.
package sysconfig

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProjectName names the default config directory, "~/.<ProjectName>/".
const ProjectName = "cm5674emu"

const (
	mainSize   = 0x00400000
	shadowSize = 0x00004000
	// combinedSize is the "main + both shadows" firmware file size, per
	// §6 "Firmware file formats."
	combinedSize = mainSize + 2*shadowSize
)

// Config is the persisted, per-project-directory state, round-tripped as
// YAML (config.yaml), per §6 "persist its pointer in config."
type Config struct {
	FirmwarePath string `yaml:"firmware_path,omitempty"`
}

// Manager owns one project directory: its config file and the firmware
// and backup paths derived from it.
type Manager struct {
	Dir string
	cfg Config
}

// DefaultDir returns "~/.<ProjectName>/", the fallback when --config-dir
// is not given.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("sysconfig: resolve home directory: %w", err)
	}
	return filepath.Join(home, "."+ProjectName), nil
}

// Open selects or creates dir as the project directory and loads its
// config.yaml if one exists, per §6 "--config-dir <path> select/create
// project directory."
func Open(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sysconfig: create project dir %s: %w", dir, err)
	}
	m := &Manager{Dir: dir}

	raw, err := os.ReadFile(m.configPath())
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &m.cfg); err != nil {
			return nil, fmt.Errorf("sysconfig: parse %s: %w", m.configPath(), err)
		}
	case os.IsNotExist(err):
		// First run against this directory: nothing to load yet.
	default:
		return nil, fmt.Errorf("sysconfig: read %s: %w", m.configPath(), err)
	}
	return m, nil
}

func (m *Manager) configPath() string { return filepath.Join(m.Dir, "config.yaml") }

// save writes the current config back to config.yaml.
func (m *Manager) save() error {
	out, err := yaml.Marshal(&m.cfg)
	if err != nil {
		return fmt.Errorf("sysconfig: encode config: %w", err)
	}
	if err := os.WriteFile(m.configPath(), out, 0o644); err != nil {
		return fmt.Errorf("sysconfig: write %s: %w", m.configPath(), err)
	}
	return nil
}

// FirmwarePath returns the currently configured firmware file, or "" if
// none has been set via InitFlash.
func (m *Manager) FirmwarePath() string { return m.cfg.FirmwarePath }

// InitFlash copies src into the project directory as the firmware image
// and persists its path in config, per §6 "--init-flash <file>."
func (m *Manager) InitFlash(src string) error {
	dst := filepath.Join(m.Dir, "firmware.bin")
	if err := copyFile(src, dst); err != nil {
		return fmt.Errorf("sysconfig: init-flash %s: %w", src, err)
	}
	m.cfg.FirmwarePath = dst
	return m.save()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

// Firmware is a validated, split firmware image per §6 "Firmware file
// formats."
type Firmware struct {
	Main    []byte
	ShadowB []byte // nil when the file is main-only
	ShadowA []byte // nil when the file is main-only
}

// LoadFirmware reads and validates path against the two accepted sizes
// (main-only 0x400000, or main+both-shadows 0x408000). A file of any
// other size is rejected with a diagnostic error rather than silently
// truncated or padded; callers should fall back to flash.New's erased
// defaults on error.
func LoadFirmware(path string) (*Firmware, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sysconfig: read firmware %s: %w", path, err)
	}
	switch len(data) {
	case mainSize:
		return &Firmware{Main: data}, nil
	case combinedSize:
		return &Firmware{
			Main:    data[0:mainSize],
			ShadowB: data[mainSize : mainSize+shadowSize],
			ShadowA: data[mainSize+shadowSize : combinedSize],
		}, nil
	default:
		return nil, fmt.Errorf("sysconfig: firmware %s is %d bytes, want %d (main only) or %d (main+shadows)",
			path, len(data), mainSize, combinedSize)
	}
}

// BackupPrefix returns the path flash.Controller.LoadComplete should be
// given as its backupPath argument: LoadComplete appends the ".<md5-hex>"
// suffix itself from the controller's own post-load hash, per §6 "Backup
// file format": "<config-dir>/backup.flash.<md5-hex>". Callers must not
// append a hash before passing this to LoadComplete.
func (m *Manager) BackupPrefix() string {
	return filepath.Join(m.Dir, "backup.flash")
}

// ResetBackup deletes any backup file under the project directory, per
// §6 "--reset-backup delete any backup file under the project dir on
// startup."
func (m *Manager) ResetBackup() error {
	matches, err := filepath.Glob(filepath.Join(m.Dir, "backup.flash.*"))
	if err != nil {
		return fmt.Errorf("sysconfig: glob backups in %s: %w", m.Dir, err)
	}
	for _, p := range matches {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("sysconfig: remove backup %s: %w", p, err)
		}
	}
	return nil
}
