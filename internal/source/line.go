// Package source parses raw assembly text into per-line Instruction records
// and defines the Program produced by the assembler.
package source

import (
	"regexp"
	"strings"

	"github.com/nomad-traveller/multi-cpu-assembler/internal/diag"
	"github.com/nomad-traveller/multi-cpu-assembler/internal/expr"
)

// Kind classifies a parsed line. The line parser distinguishes Empty from
// the rest; Pass 1 settles Instruction vs Directive from the CPU profile's
// directive table.
type Kind int

const (
	KindEmpty Kind = iota
	KindInstruction
	KindDirective
)

// Instruction is one logical source line, progressively filled in: the line
// parser populates the lexical fields, Pass 1 adds mode/address/size, and
// Pass 2 adds the machine-code bytes.
type Instruction struct {
	Line        int    // 1-based source line number
	Raw         string // original line text, for listings
	Label       string
	Kind        Kind
	Name        string // uppercased mnemonic or directive name
	OperandText string

	Expr     *expr.Node   // single-operand instructions and EQU
	ExprList []*expr.Node // data directives

	Mode    string // resolved addressing mode name, after Pass 1
	Address int    // after Pass 1
	Size    int    // after Pass 1; never changes in Pass 2
	Code    []byte // after Pass 2; empty when Failed
	Failed  bool
}

// Program is the assembler's output: instructions in source order plus the
// origin the byte image starts at.
type Program struct {
	Instructions []*Instruction
	Origin       int
}

var labelPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParseLine splits one source line into (label, name, operand text). It
// never fails: malformed labels produce a warning and are recorded anyway,
// and a labelless EQU is reported here before Pass 1 ever runs.
func ParseLine(sink *diag.Sink, num int, text string) *Instruction {
	ins := &Instruction{Line: num, Raw: text}

	body := strings.TrimSpace(stripComment(text))
	if body == "" {
		return ins
	}
	ins.Kind = KindInstruction

	// Optional label: a leading token terminated by ':' with no whitespace
	// between the name and the colon.
	if colon := strings.IndexByte(body, ':'); colon >= 0 {
		head := body[:colon]
		if !strings.ContainsAny(head, " \t") {
			ins.Label = head
			if !labelPattern.MatchString(head) {
				sink.Warning(num, "malformed label %q", head)
			}
			body = strings.TrimSpace(body[colon+1:])
		}
	}
	if body == "" {
		// Label-only line.
		return ins
	}

	name := body
	rest := ""
	if sp := strings.IndexAny(body, " \t"); sp >= 0 {
		name = body[:sp]
		rest = strings.TrimSpace(body[sp+1:])
	}

	// `NAME EQU expr` binds the leading token as the label even without a
	// colon. A bare `EQU expr` with no label anywhere is an error.
	if word, tail := firstWord(rest); strings.EqualFold(word, "EQU") && ins.Label == "" {
		ins.Label = name
		if !labelPattern.MatchString(name) {
			sink.Warning(num, "malformed label %q", name)
		}
		name = word
		rest = tail
	}
	if strings.EqualFold(name, "EQU") && ins.Label == "" {
		sink.Error(num, "EQU directive requires a label")
	}

	ins.Name = strings.ToUpper(name)
	ins.OperandText = rest
	return ins
}

// ParseAll parses every line of src, keeping one Instruction per line so
// that line numbers stay 1-based and contiguous.
func ParseAll(sink *diag.Sink, src string) []*Instruction {
	lines := strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n")
	// A trailing newline yields one empty phantom line; drop it.
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	out := make([]*Instruction, 0, len(lines))
	for i, line := range lines {
		out = append(out, ParseLine(sink, i+1, line))
	}
	return out
}

// stripComment removes a ';' comment, ignoring semicolons inside character
// literals so `.BYTE ';'` survives. A backslash inside a literal escapes
// the next character, so `'\''` does not end the literal early.
func stripComment(text string) string {
	inChar := false
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\\':
			if inChar {
				i++
			}
		case '\'':
			inChar = !inChar
		case ';':
			if !inChar {
				return text[:i]
			}
		}
	}
	return text
}

func firstWord(s string) (word, rest string) {
	s = strings.TrimSpace(s)
	if sp := strings.IndexAny(s, " \t"); sp >= 0 {
		return s[:sp], strings.TrimSpace(s[sp+1:])
	}
	return s, ""
}
