// Package emit turns an assembled Program into a flat binary image and an
// optional human-readable listing.
package emit

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nomad-traveller/multi-cpu-assembler/internal/source"
)

// Emitter writes the absolute-binary image for a Program. Gaps between
// non-contiguous address ranges are padded with the profile's fill byte,
// and failed instructions still pad their reserved size so later addresses
// hold.
type Emitter struct {
	FillByte byte
}

// Image builds the byte image starting at prog.Origin.
func (e *Emitter) Image(prog *source.Program) []byte {
	var out []byte
	cursor := prog.Origin
	for _, ins := range prog.Instructions {
		if ins.Size == 0 {
			continue
		}
		for cursor < ins.Address {
			out = append(out, e.FillByte)
			cursor++
		}
		if ins.Address < cursor {
			// Overlapping range (origin moved backwards); already warned
			// during assembly. Skip rather than corrupt earlier output.
			continue
		}
		if len(ins.Code) > 0 {
			out = append(out, ins.Code...)
		} else {
			for i := 0; i < ins.Size; i++ {
				out = append(out, e.FillByte)
			}
		}
		cursor += ins.Size
	}
	return out
}

// WriteBinary writes the image to path.
func (e *Emitter) WriteBinary(path string, prog *source.Program) error {
	if err := os.WriteFile(path, e.Image(prog), 0o644); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}

// WriteListing prints an `address  bytes  source-line` listing. Every line
// appears, even failed ones, which show ---- in the bytes column.
func (e *Emitter) WriteListing(w io.Writer, prog *source.Program) error {
	for _, ins := range prog.Instructions {
		var err error
		switch {
		case ins.Kind == source.KindEmpty:
			_, err = fmt.Fprintf(w, "%22s%s\n", "", ins.Raw)
		case ins.Failed:
			_, err = fmt.Fprintf(w, "%04X  %-14s  %s\n", ins.Address, "----", ins.Raw)
		case len(ins.Code) > 0:
			_, err = fmt.Fprintf(w, "%04X  %-14s  %s\n", ins.Address, hexBytes(ins.Code), ins.Raw)
		default:
			_, err = fmt.Fprintf(w, "%04X  %-14s  %s\n", ins.Address, "", ins.Raw)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func hexBytes(code []byte) string {
	var b strings.Builder
	for i, c := range code {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", c)
	}
	return b.String()
}
