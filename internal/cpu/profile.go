// Package cpu loads and models the declarative CPU profile that makes the
// assembler retargetable: opcode tables, addressing-mode patterns,
// directives, and validation rules all come from an external YAML document
// rather than per-CPU Go code.
package cpu

import (
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"
)

// Endianness of multi-byte operand encoding.
type Endianness int

const (
	Little Endianness = iota
	Big
)

func (e Endianness) String() string {
	if e == Big {
		return "big"
	}
	return "little"
}

// Info is the cpu_info section of a profile.
type Info struct {
	Name         string
	DataWidth    int // bits
	AddressWidth int // bits
	Endianness   Endianness
	FillByte     byte
	ImpliedMode  string // mode name used when an instruction has no operand
	BranchMode   string // mode forced onto branch mnemonics after recognition, if set
}

// Pattern is one entry of the ordered addressing_mode_patterns list. The
// first pattern whose regex matches the operand text decides the mode.
type Pattern struct {
	Regex   string
	Mode    string
	Capture int // 1-based capture group holding the expression text; 0 = none
	Flags   []string

	re *regexp2.Regexp
}

// Opcode describes one (mnemonic, mode) encoding. Bytes may be multi-byte
// for prefixed instruction sets. Meta carries opaque profile metadata such
// as cycle counts; the encoder never reads it.
type Opcode struct {
	Bytes       []byte
	OperandSize int // 0, 1 or 2
	Flags       string
	Meta        map[string]any
}

// DirectiveKind selects the assembler behavior of a directive name.
type DirectiveKind int

const (
	DirOrg DirectiveKind = iota
	DirEqu
	DirData
	DirEnd
)

func (k DirectiveKind) String() string {
	switch k {
	case DirOrg:
		return "org"
	case DirEqu:
		return "equ"
	case DirData:
		return "data"
	default:
		return "end"
	}
}

// Directive is one entry of the directives section.
type Directive struct {
	Kind     DirectiveKind
	UnitSize int // bytes per value, for DirData
}

// Profile is the validated in-memory CPU profile. Immutable after Load.
type Profile struct {
	Info       Info
	Modes      map[string]int // mode name -> tag
	Patterns   []Pattern
	Opcodes    map[string]map[string]Opcode // mnemonic -> mode name -> descriptor
	Branches   map[string]bool
	Directives map[string]Directive
	Rules      []Rule

	// ModeFallbacks maps a recognized mode to the mode tried instead when a
	// mnemonic has no encoding for the first (e.g. EXTENDED falling back to
	// DIRECT on CPUs where most instructions only take the short form).
	ModeFallbacks map[string]string
}

// LookupOpcode finds the descriptor for a (mnemonic, mode) pair. Mnemonics
// are stored uppercase.
func (p *Profile) LookupOpcode(mnemonic, mode string) (Opcode, bool) {
	modes, ok := p.Opcodes[mnemonic]
	if !ok {
		return Opcode{}, false
	}
	op, ok := modes[mode]
	return op, ok
}

// HasMnemonic reports whether the opcode table knows the mnemonic at all.
func (p *Profile) HasMnemonic(mnemonic string) bool {
	_, ok := p.Opcodes[mnemonic]
	return ok
}

// IsBranch reports whether mnemonic takes a signed PC-relative displacement.
func (p *Profile) IsBranch(mnemonic string) bool {
	return p.Branches[mnemonic]
}

// DirectiveFor resolves a directive name (already uppercased).
func (p *Profile) DirectiveFor(name string) (Directive, bool) {
	d, ok := p.Directives[name]
	return d, ok
}

// Recognize matches operand text against the profile's ordered pattern list
// and returns the mode name plus the expression text to parse. Empty operand
// text is the implied mode with no expression. An operand that matches no
// pattern is reported as an error.
func (p *Profile) Recognize(operand string) (mode, exprText string, err error) {
	operand = strings.TrimSpace(operand)
	if operand == "" {
		return p.Info.ImpliedMode, "", nil
	}
	for i := range p.Patterns {
		pat := &p.Patterns[i]
		m, merr := pat.re.FindStringMatch(operand)
		if merr != nil || m == nil {
			continue
		}
		if pat.Capture > 0 {
			g := m.GroupByNumber(pat.Capture)
			if g == nil {
				return "", "", fmt.Errorf("pattern for mode %s matched but capture group %d is empty", pat.Mode, pat.Capture)
			}
			return pat.Mode, strings.TrimSpace(g.String()), nil
		}
		return pat.Mode, stripMarkers(operand), nil
	}
	return "", "", fmt.Errorf("unrecognized addressing mode for operand %q", operand)
}

// stripMarkers removes the syntactic decoration from an operand so the
// remainder can be parsed as an expression: a leading '#', one level of
// surrounding parentheses, and trailing ,X / ,Y index suffixes.
func stripMarkers(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "#") {
		s = strings.TrimSpace(s[1:])
	}
	s = trimIndexSuffix(s)
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return trimIndexSuffix(s)
}

func trimIndexSuffix(s string) string {
	u := strings.ToUpper(s)
	if strings.HasSuffix(u, ",X") || strings.HasSuffix(u, ",Y") {
		return strings.TrimSpace(s[:len(s)-2])
	}
	return s
}
