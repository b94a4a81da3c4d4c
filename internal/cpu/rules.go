package cpu

import (
	"fmt"
	"strconv"
	"strings"
)

// RuleType selects the behavior of a validation rule.
type RuleType int

const (
	RuleErrorIfModeIs RuleType = iota
	RuleErrorIfModeIsNot
	RuleWarningIfModeIs
	RuleWarningIfModeIsNot
	RuleErrorIfOperandOutOfRange
	RuleWarningIfOperandOutOfRange
	RuleErrorIfRegisterUsed
	RuleWarningIfRegisterUsed
)

var ruleTypeNames = map[string]RuleType{
	"error_if_mode_is":                RuleErrorIfModeIs,
	"error_if_mode_is_not":            RuleErrorIfModeIsNot,
	"warning_if_mode_is":              RuleWarningIfModeIs,
	"warning_if_mode_is_not":          RuleWarningIfModeIsNot,
	"error_if_operand_out_of_range":   RuleErrorIfOperandOutOfRange,
	"warning_if_operand_out_of_range": RuleWarningIfOperandOutOfRange,
	"error_if_register_used":          RuleErrorIfRegisterUsed,
	"warning_if_register_used":        RuleWarningIfRegisterUsed,
}

// IsWarning reports whether findings from this rule type are warnings
// rather than errors.
func (t RuleType) IsWarning() bool {
	switch t {
	case RuleWarningIfModeIs, RuleWarningIfModeIsNot,
		RuleWarningIfOperandOutOfRange, RuleWarningIfRegisterUsed:
		return true
	}
	return false
}

// Rule is one validation rule, already normalized from either the generic
// or the legacy profile shape.
type Rule struct {
	Type       RuleType
	Mnemonics  []string // uppercase; empty = all mnemonics (range rules only)
	Modes      []string
	Registers  []string
	Min, Max   int64
	Exceptions []string // mnemonics exempt from a range rule
	Message    string
}

// Finding is one diagnostic produced by a rule.
type Finding struct {
	Warning bool
	Message string
}

// Check evaluates the rule against one instruction. hasValue is false for
// instructions whose operand carries no single numeric value (implied mode,
// data directives); range rules skip those.
func (r *Rule) Check(mnemonic, mode string, value int64, hasValue bool, rawOperand string) (Finding, bool) {
	fire := false
	switch r.Type {
	case RuleErrorIfModeIs, RuleWarningIfModeIs:
		fire = contains(r.Mnemonics, mnemonic) && contains(r.Modes, mode)

	case RuleErrorIfModeIsNot, RuleWarningIfModeIsNot:
		fire = contains(r.Mnemonics, mnemonic) && !contains(r.Modes, mode)

	case RuleErrorIfOperandOutOfRange, RuleWarningIfOperandOutOfRange:
		if !hasValue || contains(r.Exceptions, mnemonic) {
			break
		}
		if len(r.Mnemonics) > 0 && !contains(r.Mnemonics, mnemonic) {
			break
		}
		fire = value < r.Min || value > r.Max

	case RuleErrorIfRegisterUsed, RuleWarningIfRegisterUsed:
		if !contains(r.Mnemonics, mnemonic) {
			break
		}
		upper := strings.ToUpper(rawOperand)
		for _, reg := range r.Registers {
			if containsRegister(upper, strings.ToUpper(reg)) {
				fire = true
				break
			}
		}
	}

	if !fire {
		return Finding{}, false
	}
	return Finding{
		Warning: r.Type.IsWarning(),
		Message: r.expand(mnemonic, mode, value),
	}, true
}

// expand fills the {mnemonic}, {mode} and {value} template slots.
func (r *Rule) expand(mnemonic, mode string, value int64) string {
	return strings.NewReplacer(
		"{mnemonic}", mnemonic,
		"{mode}", mode,
		"{value}", strconv.FormatInt(value, 10),
	).Replace(r.Message)
}

func contains(set []string, s string) bool {
	for _, e := range set {
		if e == s {
			return true
		}
	}
	return false
}

// containsRegister looks for reg in operand as a standalone token, so a
// rule on register "X" does not fire for the symbol "XPOS".
func containsRegister(operand, reg string) bool {
	for i := 0; i+len(reg) <= len(operand); i++ {
		if operand[i:i+len(reg)] != reg {
			continue
		}
		before := byte(0)
		if i > 0 {
			before = operand[i-1]
		}
		after := byte(0)
		if i+len(reg) < len(operand) {
			after = operand[i+len(reg)]
		}
		if !isWordByte(before) && !isWordByte(after) {
			return true
		}
	}
	return false
}

func isWordByte(ch byte) bool {
	return ch >= 'A' && ch <= 'Z' || ch >= 'a' && ch <= 'z' || ch >= '0' && ch <= '9' || ch == '_'
}

// normalizeLegacyRule rewrites one entry of the legacy rule shape (a
// mapping from a comma-separated mnemonic set to allowed or disallowed mode
// lists) into the generic Rule form.
func normalizeLegacyRule(mnemonics string, body map[string]any) ([]Rule, error) {
	names := splitMnemonics(mnemonics)
	if len(names) == 0 {
		return nil, fmt.Errorf("legacy rule has no mnemonics")
	}
	var out []Rule
	message, _ := body["message"].(string)

	if raw, ok := body["allowed_modes"]; ok {
		modes, err := stringList(raw)
		if err != nil {
			return nil, fmt.Errorf("legacy rule %s: allowed_modes: %w", mnemonics, err)
		}
		msg := message
		if msg == "" {
			msg = "addressing mode {mode} is not valid for {mnemonic}"
		}
		out = append(out, Rule{Type: RuleErrorIfModeIsNot, Mnemonics: names, Modes: modes, Message: msg})
	}
	if raw, ok := body["disallowed_modes"]; ok {
		modes, err := stringList(raw)
		if err != nil {
			return nil, fmt.Errorf("legacy rule %s: disallowed_modes: %w", mnemonics, err)
		}
		msg := message
		if msg == "" {
			msg = "addressing mode {mode} is not valid for {mnemonic}"
		}
		out = append(out, Rule{Type: RuleErrorIfModeIs, Mnemonics: names, Modes: modes, Message: msg})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("legacy rule %s has neither allowed_modes nor disallowed_modes", mnemonics)
	}
	return out, nil
}

func splitMnemonics(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, strings.ToUpper(part))
		}
	}
	return out
}

func stringList(raw any) ([]string, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list, got %T", raw)
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %T", it)
		}
		out = append(out, s)
	}
	return out, nil
}
