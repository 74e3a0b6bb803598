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

// Backup-file persistence for the flash controller, per §4.E "Backup
// persistence." Grounded on flash.py's FLASH.get_hash/load_complete/save:
// an MD5 digest of (main ∥ shadowB ∥ shadowA) names the backup file so a
// different firmware image never silently reuses another image's backup.
// The advisory-lock/flush discipline opens the backup file once and calls
// f.Sync() after every commit, using golang.org/x/sys/unix for an flock so
// a long-running emulator process never silently races another process
// sharing the same backup file.
package flash

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

type flashDevice int

const (
	flashMain flashDevice = iota
	flashShadowA
	flashShadowB
)

// backupFile is the open handle for one emulator run's flash backup,
// created by LoadComplete.
type backupFile struct {
	f    *os.File
	path string
}

// Hash computes MD5(main ∥ shadowB ∥ shadowA), the key used to name the
// backup file. Shadow B is hashed before shadow A, matching the on-disk
// layout flash.py uses and §4.E's "MD5(main ∥ shadowB ∥ shadowA)".
func (c *Controller) Hash() [16]byte {
	h := md5.New()
	h.Write(c.data)
	h.Write(c.B.shadow)
	h.Write(c.A.shadow)
	var out [16]byte
	copy(out[:], h.Sum(nil))
	return out
}

// LoadComplete finishes flash initialization: if backupPath is non-empty,
// it opens (or creates) "<backupPath>.<hex-digest>" and restores main,
// shadow B, then shadow A from it when the file already holds a
// full-sized image; otherwise it seeds the backup file from the
// currently-loaded contents. Passing an empty backupPath runs the
// controller without persistence (e.g. under --no-backup).
func (c *Controller) LoadComplete(backupPath string) error {
	if backupPath == "" {
		return nil
	}
	name := fmt.Sprintf("%s.%s", backupPath, hex.EncodeToString(c.Hash()[:]))

	restored := false
	if f, err := os.OpenFile(name, os.O_RDWR, 0o644); err == nil {
		if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
			f.Close()
			return fmt.Errorf("flash: lock backup %s: %w", name, err)
		}
		main := make([]byte, mainSize)
		shadowB := make([]byte, shadowSize)
		shadowA := make([]byte, shadowSize)
		n1, _ := f.ReadAt(main, 0)
		n2, _ := f.ReadAt(shadowB, mainSize)
		n3, _ := f.ReadAt(shadowA, mainSize+shadowSize)
		if n1 == mainSize && n2 == shadowSize && n3 == shadowSize {
			c.data = main
			c.B.shadow = shadowB
			c.A.shadow = shadowA
			c.A.mainData = c.data
			c.B.mainData = c.data
			restored = true
			c.log.Field("flash").Infof("restored from backup %s", name)
		}
		c.backup = &backupFile{f: f, path: name}
	} else {
		f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			return fmt.Errorf("flash: create backup %s: %w", name, err)
		}
		if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
			f.Close()
			return fmt.Errorf("flash: lock backup %s: %w", name, err)
		}
		c.backup = &backupFile{f: f, path: name}
	}

	if !restored {
		c.saveMain(0, mainSize)
		c.saveShadow(true, 0, shadowSize)
		c.saveShadow(false, 0, shadowSize)
	}
	return nil
}

// save commits a byte range of device to the backup file in place and
// flushes it, per §4.E "the file is never truncated during the run."
func (b *backupFile) save(c *Controller, device flashDevice, start, size uint32) {
	if b == nil || b.f == nil {
		return
	}
	var fileOffset int64
	var data []byte
	switch device {
	case flashMain:
		fileOffset = int64(start)
		data = c.data
	case flashShadowB:
		fileOffset = int64(mainSize) + int64(start)
		data = c.B.shadow
	case flashShadowA:
		fileOffset = int64(mainSize) + int64(shadowSize) + int64(start)
		data = c.A.shadow
	}
	if _, err := b.f.WriteAt(data[start:start+size], fileOffset); err != nil {
		c.log.Field("flash").Errorf("backup write to %s failed: %v", b.path, err)
		return
	}
	if err := b.f.Sync(); err != nil {
		c.log.Field("flash").Errorf("backup sync of %s failed: %v", b.path, err)
	}
}

// Close releases the backup file's lock and handle; the emulator calls
// this on shutdown.
func (c *Controller) Close() error {
	if c.backup == nil || c.backup.f == nil {
		return nil
	}
	unix.Flock(int(c.backup.f.Fd()), unix.LOCK_UN)
	return c.backup.f.Close()
}

// LoadMain replaces the main flash image, e.g. from a firmware file loaded
// by the CLI. Call before LoadComplete.
func (c *Controller) LoadMain(data []byte) {
	buf := make([]byte, mainSize)
	copy(buf, data)
	c.data = buf
	c.A.mainData = c.data
	c.B.mainData = c.data
}

// LoadShadow replaces one array's shadow-flash contents, e.g. from the
// trailing bytes of a combined firmware+shadow image (§3 Supplemented
// Features, flash.py's getFlashOffsets).
func (c *Controller) LoadShadow(isB bool, data []byte) {
	buf := make([]byte, shadowSize)
	copy(buf, data)
	if isB {
		c.B.shadow = buf
	} else {
		c.A.shadow = buf
	}
}
