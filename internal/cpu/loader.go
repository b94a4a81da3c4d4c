package cpu

import (
	"fmt"
	"os"
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// The loader parses a YAML profile document in two steps: yaml.v3 produces a
// loosely-typed map, mapstructure decodes that into the raw structs below,
// and Parse then validates and compiles the result into a Profile. Schema
// failures here are fatal before any assembly begins.

type rawProfile struct {
	CPUInfo         rawInfo                         `mapstructure:"cpu_info"`
	AddressingModes map[string]int                  `mapstructure:"addressing_modes"`
	Patterns        []rawPattern                    `mapstructure:"addressing_mode_patterns"`
	Opcodes         map[string]map[string]rawOpcode `mapstructure:"opcodes"`
	Branches        []string                        `mapstructure:"branch_mnemonics"`
	Directives      map[string]rawDirective         `mapstructure:"directives"`
	ValidationRules []map[string]any                `mapstructure:"validation_rules"`
	ModeFallbacks   map[string]string               `mapstructure:"mode_fallbacks"`
}

type rawInfo struct {
	Name         string `mapstructure:"name"`
	DataWidth    int    `mapstructure:"data_width"`
	AddressWidth int    `mapstructure:"address_width"`
	Endianness   string `mapstructure:"endianness"`
	FillByte     int    `mapstructure:"fill_byte"`
	ImpliedMode  string `mapstructure:"implied_mode"`
	BranchMode   string `mapstructure:"branch_mode"`
}

type rawPattern struct {
	Regex   string   `mapstructure:"regex"`
	Mode    string   `mapstructure:"mode"`
	Capture int      `mapstructure:"capture"`
	Flags   []string `mapstructure:"flags"`
}

type rawOpcode struct {
	Bytes       []int          `mapstructure:"bytes"`
	OperandSize int            `mapstructure:"operand_size"`
	Flags       string         `mapstructure:"flags"`
	Meta        map[string]any `mapstructure:",remain"`
}

type rawDirective struct {
	Kind     string `mapstructure:"kind"`
	UnitSize int    `mapstructure:"unit_size"`
}

// Load reads and validates a profile document from disk.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading CPU profile: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("CPU profile %s: %w", path, err)
	}
	return p, nil
}

// Parse validates a profile document and compiles it into a Profile.
func Parse(data []byte) (*Profile, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	var raw rawProfile
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &raw,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(doc); err != nil {
		return nil, fmt.Errorf("decoding profile schema: %w", err)
	}

	p := &Profile{
		Modes:      raw.AddressingModes,
		Opcodes:    make(map[string]map[string]Opcode, len(raw.Opcodes)),
		Branches:   make(map[string]bool, len(raw.Branches)),
		Directives: make(map[string]Directive, len(raw.Directives)),
	}

	if err := p.loadInfo(raw.CPUInfo); err != nil {
		return nil, err
	}
	if len(p.Modes) == 0 {
		return nil, fmt.Errorf("profile declares no addressing_modes")
	}
	if err := p.loadPatterns(raw.Patterns); err != nil {
		return nil, err
	}
	if err := p.loadOpcodes(raw.Opcodes); err != nil {
		return nil, err
	}
	if err := p.loadBranches(raw.Branches); err != nil {
		return nil, err
	}
	if err := p.loadDirectives(raw.Directives); err != nil {
		return nil, err
	}
	if err := p.loadRules(raw.ValidationRules); err != nil {
		return nil, err
	}
	if err := p.loadFallbacks(raw.ModeFallbacks); err != nil {
		return nil, err
	}
	if p.Info.BranchMode != "" {
		if _, ok := p.Modes[p.Info.BranchMode]; !ok {
			return nil, fmt.Errorf("cpu_info.branch_mode %q is not a declared addressing mode", p.Info.BranchMode)
		}
	}
	return p, nil
}

func (p *Profile) loadFallbacks(raw map[string]string) error {
	if len(raw) == 0 {
		return nil
	}
	p.ModeFallbacks = make(map[string]string, len(raw))
	for from, to := range raw {
		if _, ok := p.Modes[from]; !ok {
			return fmt.Errorf("mode_fallbacks references undeclared mode %q", from)
		}
		if _, ok := p.Modes[to]; !ok {
			return fmt.Errorf("mode_fallbacks references undeclared mode %q", to)
		}
		p.ModeFallbacks[from] = to
	}
	return nil
}

func (p *Profile) loadInfo(raw rawInfo) error {
	if raw.Name == "" {
		return fmt.Errorf("cpu_info.name is required")
	}
	var endian Endianness
	switch strings.ToLower(raw.Endianness) {
	case "little":
		endian = Little
	case "big":
		endian = Big
	default:
		return fmt.Errorf("cpu_info.endianness must be \"little\" or \"big\", got %q", raw.Endianness)
	}
	if raw.FillByte < 0 || raw.FillByte > 0xFF {
		return fmt.Errorf("cpu_info.fill_byte %d does not fit in a byte", raw.FillByte)
	}
	p.Info = Info{
		Name:         raw.Name,
		DataWidth:    raw.DataWidth,
		AddressWidth: raw.AddressWidth,
		Endianness:   endian,
		FillByte:     byte(raw.FillByte),
		ImpliedMode:  raw.ImpliedMode,
		BranchMode:   raw.BranchMode,
	}
	return nil
}

// resolveImpliedMode settles the distinguished no-operand mode: an explicit
// cpu_info.implied_mode wins, otherwise a mode named IMPLIED or INHERENT.
func (p *Profile) resolveImpliedMode() error {
	if p.Info.ImpliedMode != "" {
		if _, ok := p.Modes[p.Info.ImpliedMode]; !ok {
			return fmt.Errorf("cpu_info.implied_mode %q is not a declared addressing mode", p.Info.ImpliedMode)
		}
		return nil
	}
	for _, name := range []string{"IMPLIED", "INHERENT"} {
		if _, ok := p.Modes[name]; ok {
			p.Info.ImpliedMode = name
			return nil
		}
	}
	return fmt.Errorf("profile declares no IMPLIED or INHERENT addressing mode and no cpu_info.implied_mode")
}

var regexFlagNames = map[string]regexp2.RegexOptions{
	"ignorecase":              regexp2.IgnoreCase,
	"multiline":               regexp2.Multiline,
	"singleline":              regexp2.Singleline,
	"explicitcapture":         regexp2.ExplicitCapture,
	"ignorepatternwhitespace": regexp2.IgnorePatternWhitespace,
	"righttoleft":             regexp2.RightToLeft,
}

func (p *Profile) loadPatterns(raws []rawPattern) error {
	if err := p.resolveImpliedMode(); err != nil {
		return err
	}
	p.Patterns = make([]Pattern, 0, len(raws))
	for i, raw := range raws {
		if _, ok := p.Modes[raw.Mode]; !ok {
			return fmt.Errorf("addressing_mode_patterns[%d] references undeclared mode %q", i, raw.Mode)
		}
		opts := regexp2.None
		for _, f := range raw.Flags {
			opt, ok := regexFlagNames[strings.ToLower(f)]
			if !ok {
				return fmt.Errorf("addressing_mode_patterns[%d] has unknown flag %q", i, f)
			}
			opts |= opt
		}
		re, err := regexp2.Compile(raw.Regex, opts)
		if err != nil {
			return fmt.Errorf("addressing_mode_patterns[%d] (%s): %w", i, raw.Mode, err)
		}
		if raw.Capture < 0 {
			return fmt.Errorf("addressing_mode_patterns[%d] has negative capture group", i)
		}
		p.Patterns = append(p.Patterns, Pattern{
			Regex:   raw.Regex,
			Mode:    raw.Mode,
			Capture: raw.Capture,
			Flags:   raw.Flags,
			re:      re,
		})
	}
	return nil
}

func (p *Profile) loadOpcodes(raws map[string]map[string]rawOpcode) error {
	for mnemonic, modes := range raws {
		upper := strings.ToUpper(mnemonic)
		entry := make(map[string]Opcode, len(modes))
		for mode, raw := range modes {
			if _, ok := p.Modes[mode]; !ok {
				return fmt.Errorf("opcode %s references undeclared addressing mode %q", upper, mode)
			}
			if len(raw.Bytes) == 0 {
				return fmt.Errorf("opcode %s/%s has no opcode bytes", upper, mode)
			}
			bytes := make([]byte, len(raw.Bytes))
			for i, b := range raw.Bytes {
				if b < 0 || b > 0xFF {
					return fmt.Errorf("opcode %s/%s byte %d does not fit in a byte", upper, mode, b)
				}
				bytes[i] = byte(b)
			}
			if raw.OperandSize < 0 || raw.OperandSize > 2 {
				return fmt.Errorf("opcode %s/%s operand_size must be 0, 1 or 2", upper, mode)
			}
			entry[mode] = Opcode{
				Bytes:       bytes,
				OperandSize: raw.OperandSize,
				Flags:       raw.Flags,
				Meta:        raw.Meta,
			}
		}
		p.Opcodes[upper] = entry
	}
	return nil
}

func (p *Profile) loadBranches(names []string) error {
	for _, name := range names {
		upper := strings.ToUpper(name)
		modes, ok := p.Opcodes[upper]
		if !ok {
			return fmt.Errorf("branch mnemonic %s is not in the opcode table", upper)
		}
		hasByteOperand := false
		for _, op := range modes {
			if op.OperandSize == 1 {
				hasByteOperand = true
				break
			}
		}
		if !hasByteOperand {
			return fmt.Errorf("branch mnemonic %s has no addressing mode with a 1-byte operand", upper)
		}
		p.Branches[upper] = true
	}
	return nil
}

var directiveKindNames = map[string]DirectiveKind{
	"org":  DirOrg,
	"equ":  DirEqu,
	"data": DirData,
	"end":  DirEnd,
}

func (p *Profile) loadDirectives(raws map[string]rawDirective) error {
	for name, raw := range raws {
		kind, ok := directiveKindNames[strings.ToLower(raw.Kind)]
		if !ok {
			return fmt.Errorf("directive %s has unknown kind %q", name, raw.Kind)
		}
		d := Directive{Kind: kind, UnitSize: raw.UnitSize}
		if kind == DirData {
			if d.UnitSize != 1 && d.UnitSize != 2 {
				return fmt.Errorf("data directive %s needs unit_size 1 or 2", name)
			}
		}
		p.Directives[strings.ToUpper(name)] = d
	}
	return nil
}

// loadRules accepts both the generic rule records and the legacy shape (a
// mapping from comma-separated mnemonic sets to allowed/disallowed mode
// lists), normalizing everything to []Rule at load time.
func (p *Profile) loadRules(raws []map[string]any) error {
	for i, raw := range raws {
		if typeName, ok := raw["type"].(string); ok {
			rule, err := p.decodeGenericRule(typeName, raw)
			if err != nil {
				return fmt.Errorf("validation_rules[%d]: %w", i, err)
			}
			p.Rules = append(p.Rules, rule)
			continue
		}
		// Legacy shape: every key is a mnemonic set.
		for mnemonics, body := range raw {
			bodyMap, ok := body.(map[string]any)
			if !ok {
				return fmt.Errorf("validation_rules[%d]: legacy rule %q must map to allowed/disallowed modes", i, mnemonics)
			}
			rules, err := normalizeLegacyRule(mnemonics, bodyMap)
			if err != nil {
				return fmt.Errorf("validation_rules[%d]: %w", i, err)
			}
			p.Rules = append(p.Rules, rules...)
		}
	}
	return p.checkRuleModes()
}

func (p *Profile) decodeGenericRule(typeName string, raw map[string]any) (Rule, error) {
	ruleType, ok := ruleTypeNames[strings.ToLower(typeName)]
	if !ok {
		return Rule{}, fmt.Errorf("unknown rule type %q", typeName)
	}
	var decoded struct {
		Mnemonics  []string `mapstructure:"mnemonics"`
		Modes      []string `mapstructure:"modes"`
		Registers  []string `mapstructure:"registers"`
		Min        int64    `mapstructure:"min"`
		Max        int64    `mapstructure:"max"`
		Exceptions []string `mapstructure:"exceptions"`
		Message    string   `mapstructure:"message"`
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &decoded,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Rule{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return Rule{}, fmt.Errorf("rule %s: %w", typeName, err)
	}
	if decoded.Message == "" {
		return Rule{}, fmt.Errorf("rule %s has no message", typeName)
	}
	return Rule{
		Type:       ruleType,
		Mnemonics:  upperAll(decoded.Mnemonics),
		Modes:      decoded.Modes,
		Registers:  decoded.Registers,
		Min:        decoded.Min,
		Max:        decoded.Max,
		Exceptions: upperAll(decoded.Exceptions),
		Message:    decoded.Message,
	}, nil
}

func (p *Profile) checkRuleModes() error {
	for i, r := range p.Rules {
		for _, mode := range r.Modes {
			if _, ok := p.Modes[mode]; !ok {
				return fmt.Errorf("validation rule %d references undeclared mode %q", i, mode)
			}
		}
	}
	return nil
}

func upperAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToUpper(s)
	}
	return out
}
