package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSource(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prog.asm")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func TestRunAssemblesBinary(t *testing.T) {
	src := writeSource(t, `
      .ORG $8000
START: LDA #$42
       BRA START
`)
	out := filepath.Join(t.TempDir(), "prog.bin")

	code := run([]string{"--cpu", "65c02", "--profile-dir", "../../profiles", "-o", out, src})
	assert.Equal(t, exitOK, code)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xA9, 0x42, 0x80, 0xFC}, data)
}

func TestRunDefaultOutputName(t *testing.T) {
	src := writeSource(t, "  NOP\n")
	code := run([]string{"--cpu", "65c02", "--profile-dir", "../../profiles", src})
	assert.Equal(t, exitOK, code)

	bin := src[:len(src)-len(".asm")] + ".bin"
	_, err := os.Stat(bin)
	assert.NoError(t, err)
}

func TestRunErrorsYieldExitOne(t *testing.T) {
	src := writeSource(t, "  LDA #MISSING\n")
	code := run([]string{"--cpu", "65c02", "--profile-dir", "../../profiles", src})
	assert.Equal(t, exitError, code)
}

func TestRunNoOutputFileOnError(t *testing.T) {
	src := writeSource(t, "  LDA #MISSING\n")
	out := filepath.Join(t.TempDir(), "prog.bin")
	run([]string{"--cpu", "65c02", "--profile-dir", "../../profiles", "-o", out, src})

	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}

func TestRunMissingProfileIsUsage(t *testing.T) {
	src := writeSource(t, "  NOP\n")
	code := run([]string{"--cpu", "z9000", "--profile-dir", "../../profiles", src})
	assert.Equal(t, exitUsage, code)
}

func TestRunRequiresCPU(t *testing.T) {
	src := writeSource(t, "  NOP\n")
	assert.Equal(t, exitUsage, run([]string{src}))
}

func TestRunRequiresSource(t *testing.T) {
	assert.Equal(t, exitUsage, run([]string{"--cpu", "65c02"}))
}

func TestRunStartAddress(t *testing.T) {
	src := writeSource(t, "LOOP: BRA LOOP\n")
	out := filepath.Join(t.TempDir(), "prog.bin")

	code := run([]string{"--cpu", "65c02", "--profile-dir", "../../profiles",
		"--start-address", "$0200", "-o", out, src})
	assert.Equal(t, exitOK, code)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x80, 0xFE}, data)
}

func TestRunWritesListing(t *testing.T) {
	src := writeSource(t, "  .ORG $8000\n  LDA #$42\n")
	dir := t.TempDir()
	out := filepath.Join(dir, "prog.bin")
	lst := filepath.Join(dir, "prog.lst")

	code := run([]string{"--cpu", "65c02", "--profile-dir", "../../profiles",
		"-o", out, "--listing", lst, src})
	assert.Equal(t, exitOK, code)

	data, err := os.ReadFile(lst)
	require.NoError(t, err)
	assert.Contains(t, string(data), "A9 42")
}
