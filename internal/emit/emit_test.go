package emit_test

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomad-traveller/multi-cpu-assembler/internal/emit"
	"github.com/nomad-traveller/multi-cpu-assembler/internal/source"
)

func TestImageConcatenatesInOrder(t *testing.T) {
	prog := &source.Program{
		Origin: 0x8000,
		Instructions: []*source.Instruction{
			{Line: 1, Address: 0x8000, Size: 2, Code: []byte{0xA9, 0x42}, Kind: source.KindInstruction},
			{Line: 2, Address: 0x8002, Size: 1, Code: []byte{0xEA}, Kind: source.KindInstruction},
		},
	}
	em := &emit.Emitter{FillByte: 0xFF}
	assert.Equal(t, []byte{0xA9, 0x42, 0xEA}, em.Image(prog))
}

func TestImagePadsGapsWithFillByte(t *testing.T) {
	prog := &source.Program{
		Origin: 0x00,
		Instructions: []*source.Instruction{
			{Line: 1, Address: 0x00, Size: 1, Code: []byte{0x11}, Kind: source.KindInstruction},
			{Line: 2, Address: 0x04, Size: 1, Code: []byte{0x22}, Kind: source.KindInstruction},
		},
	}
	em := &emit.Emitter{FillByte: 0xEA}
	assert.Equal(t, []byte{0x11, 0xEA, 0xEA, 0xEA, 0x22}, em.Image(prog))
}

func TestFailedInstructionPadsItsSlot(t *testing.T) {
	prog := &source.Program{
		Origin: 0x00,
		Instructions: []*source.Instruction{
			{Line: 1, Address: 0x00, Size: 2, Failed: true, Kind: source.KindInstruction},
			{Line: 2, Address: 0x02, Size: 1, Code: []byte{0x60}, Kind: source.KindInstruction},
		},
	}
	em := &emit.Emitter{FillByte: 0xEA}
	assert.Equal(t, []byte{0xEA, 0xEA, 0x60}, em.Image(prog))
}

func TestZeroSizeLinesAreSkipped(t *testing.T) {
	prog := &source.Program{
		Origin: 0x10,
		Instructions: []*source.Instruction{
			{Line: 1, Kind: source.KindEmpty},
			{Line: 2, Address: 0x10, Size: 0, Kind: source.KindDirective, Name: "EQU"},
			{Line: 3, Address: 0x10, Size: 1, Code: []byte{0x42}, Kind: source.KindDirective, Name: ".BYTE"},
		},
	}
	em := &emit.Emitter{FillByte: 0x00}
	assert.Equal(t, []byte{0x42}, em.Image(prog))
}

func TestWriteBinary(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/out.bin"

	prog := &source.Program{
		Origin: 0,
		Instructions: []*source.Instruction{
			{Line: 1, Address: 0, Size: 2, Code: []byte{0xCD, 0xAB}, Kind: source.KindDirective, Name: ".WORD"},
		},
	}
	em := &emit.Emitter{FillByte: 0xEA}
	require.NoError(t, em.WriteBinary(path, prog))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xCD, 0xAB}, data)
}

func TestListing(t *testing.T) {
	prog := &source.Program{
		Origin: 0x8000,
		Instructions: []*source.Instruction{
			{Line: 1, Kind: source.KindEmpty, Raw: "; boot vector"},
			{Line: 2, Address: 0x8000, Size: 2, Code: []byte{0xA9, 0x42}, Kind: source.KindInstruction, Raw: "START: LDA #$42"},
			{Line: 3, Address: 0x8002, Size: 2, Failed: true, Kind: source.KindInstruction, Raw: "       BEQ FAR"},
		},
	}
	em := &emit.Emitter{FillByte: 0xEA}

	var buf bytes.Buffer
	require.NoError(t, em.WriteListing(&buf, prog))
	out := buf.String()

	assert.Contains(t, out, "; boot vector")
	assert.Contains(t, out, "8000  A9 42")
	assert.Contains(t, out, "START: LDA #$42")
	// Failed lines still appear, with ---- in the bytes column.
	assert.Contains(t, out, "8002  ----")
}
