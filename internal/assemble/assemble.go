// Package assemble implements the two-pass assembly engine: Pass 1 sizes
// every instruction, assigns addresses and populates the symbol table;
// Pass 2 evaluates operands, runs the profile's validation rules and
// encodes machine bytes.
package assemble

import (
	"errors"

	"github.com/nomad-traveller/multi-cpu-assembler/internal/cpu"
	"github.com/nomad-traveller/multi-cpu-assembler/internal/diag"
	"github.com/nomad-traveller/multi-cpu-assembler/internal/expr"
	"github.com/nomad-traveller/multi-cpu-assembler/internal/source"
	"github.com/nomad-traveller/multi-cpu-assembler/internal/symtab"
)

// Option configures an Assembler.
type Option func(*Assembler)

// WithStartAddress overrides the initial origin (the --start-address flag).
func WithStartAddress(addr int) Option {
	return func(a *Assembler) {
		a.start = addr
		a.hasStart = true
	}
}

// Assembler drives one assemble() run. The profile is read-only; the symbol
// table and diagnostics sink live for the duration of the run.
type Assembler struct {
	prof *cpu.Profile
	sink *diag.Sink
	syms *symtab.Table

	start    int
	hasStart bool
}

func New(prof *cpu.Profile, sink *diag.Sink, opts ...Option) *Assembler {
	a := &Assembler{prof: prof, sink: sink, syms: symtab.New()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Symbols exposes the symbol table as Pass 1 left it.
func (a *Assembler) Symbols() *symtab.Table { return a.syms }

// Assemble runs both passes over src. Per-line errors never abort the run;
// they accumulate in the sink so one run surfaces as many as possible. The
// caller decides overall failure from sink.HadErrors().
func (a *Assembler) Assemble(src string) *source.Program {
	lines := source.ParseAll(a.sink, src)
	prog := a.pass1(lines)
	a.pass2(prog)
	return prog
}

// pass1 walks the parsed lines in source order, sizing each one and
// recording label and equate definitions. Operand expressions are parsed
// here but not evaluated (except for ORG and EQU, which must resolve
// immediately).
func (a *Assembler) pass1(lines []*source.Instruction) *source.Program {
	prog := &source.Program{}
	addr := 0
	if a.hasStart {
		addr = a.start
	}

	for i, ins := range lines {
		prog.Instructions = append(prog.Instructions, ins)
		if ins.Kind == source.KindEmpty {
			continue
		}

		dir, isDir := a.prof.DirectiveFor(ins.Name)

		// EQU gets its binding from the directive itself, not from the
		// label-definition path.
		if ins.Label != "" && !(isDir && dir.Kind == cpu.DirEqu) {
			if err := a.syms.Define(ins.Label, int64(addr), symtab.KindLabel, ins.Line); err != nil {
				a.sink.Error(ins.Line, "%v", err)
			}
		}
		if ins.Name == "" {
			// Label-only line.
			ins.Address = addr
			continue
		}

		if isDir {
			ins.Kind = source.KindDirective
			if dir.Kind == cpu.DirEnd {
				ins.Address = addr
				if skipped := len(lines) - i - 1; skipped > 0 {
					a.sink.InfoAt(ins.Line, "%s reached, %d line(s) ignored", ins.Name, skipped)
				}
				break
			}
			addr = a.sizeDirective(ins, dir, addr)
			continue
		}

		addr = a.sizeInstruction(ins, addr)
	}

	prog.Origin = a.origin(prog)
	return prog
}

func (a *Assembler) sizeDirective(ins *source.Instruction, dir cpu.Directive, addr int) int {
	switch dir.Kind {
	case cpu.DirOrg:
		node, err := expr.Parse(ins.OperandText)
		if err != nil {
			a.sink.Error(ins.Line, "bad %s expression: %v", ins.Name, err)
			ins.Failed = true
			ins.Address = addr
			return addr
		}
		// ORG must resolve in Pass 1; forward references are not allowed.
		v, err := expr.Eval(node, a.syms)
		if err != nil {
			a.sink.Error(ins.Line, "%s operand must resolve in the first pass: %v", ins.Name, err)
			ins.Failed = true
			ins.Address = addr
			return addr
		}
		if int(v) < addr && addr > 0 {
			a.sink.Warning(ins.Line, "%s moves the origin backwards from $%04X to $%04X", ins.Name, addr, v)
		}
		ins.Address = int(v)
		return int(v)

	case cpu.DirEqu:
		ins.Address = addr
		if ins.Label == "" {
			// Already reported by the line parser.
			ins.Failed = true
			return addr
		}
		node, err := expr.Parse(ins.OperandText)
		if err != nil {
			a.sink.Error(ins.Line, "bad EQU expression: %v", err)
			ins.Failed = true
			return addr
		}
		v, err := expr.Eval(node, a.syms)
		if err != nil {
			a.sink.Error(ins.Line, "EQU operand must resolve in the first pass: %v", err)
			ins.Failed = true
			return addr
		}
		ins.Expr = node
		if err := a.syms.Define(ins.Label, v, symtab.KindEquate, ins.Line); err != nil {
			a.sink.Error(ins.Line, "%v", err)
		}
		return addr

	case cpu.DirData:
		ins.Address = addr
		nodes, err := expr.ParseList(ins.OperandText)
		if err != nil {
			a.sink.Error(ins.Line, "bad %s operand: %v", ins.Name, err)
			var lexErr *expr.LexicalError
			if !errors.As(err, &lexErr) {
				ins.Failed = true
				return addr
			}
			// Malformed literals became zero placeholders; the list still
			// has its final length, so sizing proceeds.
		}
		ins.ExprList = nodes
		ins.Size = dir.UnitSize * len(nodes)
		return addr + ins.Size
	}
	ins.Address = addr
	return addr
}

func (a *Assembler) sizeInstruction(ins *source.Instruction, addr int) int {
	ins.Address = addr
	if !a.prof.HasMnemonic(ins.Name) {
		a.sink.Error(ins.Line, "unrecognized mnemonic %s", ins.Name)
		ins.Failed = true
		return addr
	}

	mode, exprText, err := a.prof.Recognize(ins.OperandText)
	if err != nil {
		a.sink.Error(ins.Line, "%s: %v", ins.Name, err)
		ins.Failed = true
		return addr
	}
	// Branch operands look like plain addresses to the pattern list, so the
	// profile's branch mode overrides whatever was recognized.
	if a.prof.IsBranch(ins.Name) && a.prof.Info.BranchMode != "" && exprText != "" {
		mode = a.prof.Info.BranchMode
	}
	op, ok := a.prof.LookupOpcode(ins.Name, mode)
	if !ok {
		if fb, has := a.prof.ModeFallbacks[mode]; has {
			if fbOp, fbOK := a.prof.LookupOpcode(ins.Name, fb); fbOK {
				mode, op, ok = fb, fbOp, true
			}
		}
	}
	if !ok {
		a.sink.Error(ins.Line, "%s does not support addressing mode %s", ins.Name, mode)
		ins.Failed = true
		return addr
	}
	ins.Mode = mode
	ins.Size = len(op.Bytes) + op.OperandSize

	// Modes that encode no operand bytes (accumulator, implied) carry no
	// expression even when the matched pattern leaves residual text.
	if exprText != "" && op.OperandSize > 0 {
		node, err := expr.Parse(exprText)
		if err != nil {
			a.sink.Error(ins.Line, "bad operand for %s: %v", ins.Name, err)
			var lexErr *expr.LexicalError
			if errors.As(err, &lexErr) {
				// Malformed literal: the zero placeholder keeps the line
				// encodable.
				ins.Expr = node
			} else {
				// The size is already known, so the slot stays reserved and
				// later addresses are unaffected.
				ins.Failed = true
			}
		} else {
			ins.Expr = node
		}
	}
	return addr + ins.Size
}

// origin picks the image base: an explicit start address wins, otherwise
// the address of the first line that occupies space.
func (a *Assembler) origin(prog *source.Program) int {
	if a.hasStart {
		return a.start
	}
	for _, ins := range prog.Instructions {
		if ins.Size > 0 {
			return ins.Address
		}
	}
	return 0
}

// pass2 evaluates operands against the now-complete symbol table, applies
// the profile's validation rules, and encodes machine bytes. Instructions
// that fail keep their reserved size but produce no bytes.
func (a *Assembler) pass2(prog *source.Program) {
	for _, ins := range prog.Instructions {
		switch ins.Kind {
		case source.KindDirective:
			a.encodeData(ins)
		case source.KindInstruction:
			if ins.Name != "" {
				a.encodeInstruction(ins)
			}
		}
	}
}

func (a *Assembler) encodeData(ins *source.Instruction) {
	if ins.Failed || ins.ExprList == nil {
		return
	}
	dir, _ := a.prof.DirectiveFor(ins.Name)
	limit := int64(1) << (8 * dir.UnitSize)

	code := make([]byte, 0, ins.Size)
	for _, node := range ins.ExprList {
		v, err := expr.Eval(node, a.syms)
		if err != nil {
			a.sink.Error(ins.Line, "%v", err)
			ins.Failed = true
			return
		}
		if v < 0 || v >= limit {
			a.sink.Error(ins.Line, "value %d does not fit in %d byte(s)", v, dir.UnitSize)
			ins.Failed = true
			return
		}
		code = appendOperand(code, v, dir.UnitSize, a.prof.Info.Endianness)
	}
	ins.Code = code
}

func (a *Assembler) encodeInstruction(ins *source.Instruction) {
	if ins.Failed {
		return
	}
	op, ok := a.prof.LookupOpcode(ins.Name, ins.Mode)
	if !ok {
		return
	}

	var value int64
	hasValue := false
	if ins.Expr != nil {
		v, err := expr.Eval(ins.Expr, a.syms)
		if err != nil {
			a.sink.Error(ins.Line, "%v", err)
			ins.Failed = true
			return
		}
		value = v
		hasValue = true
	}

	if op.OperandSize > 0 && !hasValue {
		a.sink.Error(ins.Line, "%s requires an operand but none was provided", ins.Name)
		ins.Failed = true
		return
	}

	isBranch := a.prof.IsBranch(ins.Name) && op.OperandSize == 1
	if isBranch && hasValue {
		// Displacement is relative to the address of the next instruction.
		disp := value - int64(ins.Address+ins.Size)
		if disp < -128 || disp > 127 {
			a.sink.Error(ins.Line, "branch out of range")
			ins.Failed = true
			return
		}
		value = disp & 0xFF
	} else if hasValue && op.OperandSize > 0 {
		limit := int64(1) << (8 * op.OperandSize)
		if value < 0 || value >= limit {
			a.sink.Error(ins.Line, "operand out of range")
			ins.Failed = true
			return
		}
	}

	if !a.runRules(ins, value, hasValue) {
		return
	}

	code := make([]byte, 0, ins.Size)
	code = append(code, op.Bytes...)
	if op.OperandSize > 0 {
		if isBranch {
			// Displacement bytes are single-byte signed regardless of the
			// profile's endianness.
			code = append(code, byte(value))
		} else {
			code = appendOperand(code, value, op.OperandSize, a.prof.Info.Endianness)
		}
	}
	ins.Code = code
}

// runRules applies every validation rule to the instruction, in declared
// order. It returns false when an error-level rule fired.
func (a *Assembler) runRules(ins *source.Instruction, value int64, hasValue bool) bool {
	ok := true
	for i := range a.prof.Rules {
		finding, fired := a.prof.Rules[i].Check(ins.Name, ins.Mode, value, hasValue, ins.OperandText)
		if !fired {
			continue
		}
		if finding.Warning {
			a.sink.Warning(ins.Line, "%s", finding.Message)
		} else {
			a.sink.Error(ins.Line, "%s", finding.Message)
			ins.Failed = true
			ok = false
		}
	}
	return ok
}

func appendOperand(code []byte, v int64, size int, endian cpu.Endianness) []byte {
	switch size {
	case 1:
		return append(code, byte(v))
	case 2:
		if endian == cpu.Big {
			return append(code, byte(v>>8), byte(v))
		}
		return append(code, byte(v), byte(v>>8))
	}
	return code
}
