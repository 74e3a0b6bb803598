package sysconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenCreatesProjectDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "proj")
	m, err := Open(dir)
	require.NoError(t, err)
	require.Equal(t, "", m.FirmwarePath())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestInitFlashCopiesAndPersistsPath(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(t.TempDir(), "fw.bin")
	require.NoError(t, os.WriteFile(src, make([]byte, mainSize), 0o644))

	m, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, m.InitFlash(src))

	want := filepath.Join(dir, "firmware.bin")
	require.Equal(t, want, m.FirmwarePath())

	got, err := os.ReadFile(want)
	require.NoError(t, err)
	require.Len(t, got, mainSize)
}

// TestConfigPersistsAcrossReopen mirrors §6 "persist its pointer in
// config": a second Open against the same directory picks up the
// firmware path written by a prior InitFlash.
func TestConfigPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(t.TempDir(), "fw.bin")
	require.NoError(t, os.WriteFile(src, make([]byte, mainSize), 0o644))

	m1, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, m1.InitFlash(src))

	m2, err := Open(dir)
	require.NoError(t, err)
	require.Equal(t, m1.FirmwarePath(), m2.FirmwarePath())
}

func TestLoadFirmwareAcceptsMainOnlySize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fw.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, mainSize), 0o644))

	fw, err := LoadFirmware(path)
	require.NoError(t, err)
	require.Len(t, fw.Main, mainSize)
	require.Nil(t, fw.ShadowB)
	require.Nil(t, fw.ShadowA)
}

func TestLoadFirmwareAcceptsCombinedSizeAndSplitsIt(t *testing.T) {
	data := make([]byte, combinedSize)
	for i := 0; i < shadowSize; i++ {
		data[mainSize+i] = 0xB0           // shadow B region
		data[mainSize+shadowSize+i] = 0xA0 // shadow A region
	}
	path := filepath.Join(t.TempDir(), "fw.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	fw, err := LoadFirmware(path)
	require.NoError(t, err)
	require.Len(t, fw.Main, mainSize)
	require.Len(t, fw.ShadowB, shadowSize)
	require.Len(t, fw.ShadowA, shadowSize)
	require.Equal(t, byte(0xB0), fw.ShadowB[0])
	require.Equal(t, byte(0xA0), fw.ShadowA[0])
}

// TestLoadFirmwareRejectsWrongSize mirrors §6: a file of any other size is
// rejected with a diagnostic error rather than truncated or padded.
func TestLoadFirmwareRejectsWrongSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fw.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, 123), 0o644))

	_, err := LoadFirmware(path)
	require.Error(t, err)
}

// TestBackupPrefixIsUnhashed mirrors §6's backup filename format: the
// prefix returned here carries no hash suffix of its own, since
// flash.Controller.LoadComplete appends the authoritative one (computed
// from its own post-load state) on top of it.
func TestBackupPrefixIsUnhashed(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	require.NoError(t, err)

	want := filepath.Join(dir, "backup.flash")
	require.Equal(t, want, m.BackupPrefix())
}

// TestResetBackupRemovesMatchingFiles mirrors §6 "--reset-backup delete
// any backup file under the project dir on startup."
func TestResetBackupRemovesMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	require.NoError(t, err)

	b1 := filepath.Join(dir, "backup.flash.aaaa")
	b2 := filepath.Join(dir, "backup.flash.bbbb")
	other := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(b1, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(b2, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))

	require.NoError(t, m.ResetBackup())

	_, err = os.Stat(b1)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(b2)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(other)
	require.NoError(t, err, "non-backup files must survive ResetBackup")
}

func TestResetBackupOnEmptyDirIsNoop(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, m.ResetBackup())
}

func TestDefaultDirUnderHome(t *testing.T) {
	dir, err := DefaultDir()
	require.NoError(t, err)
	require.Contains(t, dir, ProjectName)
}
