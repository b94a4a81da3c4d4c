package expr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomad-traveller/multi-cpu-assembler/internal/expr"
)

func evalString(t *testing.T, src string, syms expr.MapResolver) int64 {
	t.Helper()
	n, err := expr.Parse(src)
	require.NoError(t, err, "parsing %q", src)
	v, err := expr.Eval(n, syms)
	require.NoError(t, err, "evaluating %q", src)
	return v
}

func TestNumberLiterals(t *testing.T) {
	cases := map[string]int64{
		"42":     42,
		"$FF":    255,
		"0xff":   255,
		"0X2A":   42,
		"%1010":  10,
		"0b1010": 10,
		"@17":    15,
		"'A'":    65,
		"' '":    32,
		"'\\n'":  10,
	}
	for src, want := range cases {
		assert.Equal(t, want, evalString(t, src, nil), "literal %q", src)
	}
}

func TestPrecedenceMirrorsC(t *testing.T) {
	cases := map[string]int64{
		"2+3*4":      14,
		"(2+3)*4":    20,
		"1|2^3&2":    1,  // & then ^ then |
		"1<<4+1":     32, // shift binds looser than +
		"16>>2*2":    1,
		"10-4-3":     3, // left associative
		"100/7":      14,
		"-100/7":     -14, // truncation toward zero
		"10%3":       1,
		"-10%3":      -1, // sign of the dividend
		"~0&$FF":     255,
		"!0":         1,
		"!5":         0,
		"-2+5":       3,
		"+7":         7,
		"<$1234":     0x34,
		">$1234":     0x12,
		"2*(3+4)":    14,
		"$10|%0001":  17,
		"'0'+5":      53,
		"~~9":        9,
		"-(-9)":      9,
		"6&3|8":      10,
		"1<<8|1<<0":  257,
		"$FFFF>>8":   0xFF,
		"3*'\\t'":    27,
		"@10+@7":     15,
		"0x10<<4>>4": 16,
	}
	for src, want := range cases {
		assert.Equal(t, want, evalString(t, src, nil), "expression %q", src)
	}
}

func TestModuloVsBinaryLiteral(t *testing.T) {
	// An infix % follows a value; anywhere else it marks a binary literal,
	// even when the next digit is 0 or 1.
	syms := expr.MapResolver{"X": 25}
	cases := map[string]int64{
		"X%10":      5,
		"X%100":     25,
		"X%16":      9,
		"X%1":       0,
		"7%2":       1,
		"250%100":   50,
		"(4)%10":    4,
		"%10":       2,  // leading % is a literal
		"%101+%1":   6,  // after +, % is a literal again
		"X % 10":    5,
		"X%%10":     1,  // modulo by the binary literal %10
		"$FF%@10":   7,  // hex modulo octal
		"(X+5)%10":  0,
	}
	for src, want := range cases {
		assert.Equal(t, want, evalString(t, src, syms), "expression %q", src)
	}
}

func TestEscapedQuoteCharLiteral(t *testing.T) {
	assert.Equal(t, int64('\''), evalString(t, "'\\''", nil))
	assert.Equal(t, int64('\\'), evalString(t, "'\\\\'", nil))
}

func TestHighByteOfSum(t *testing.T) {
	// Unary > binds tighter than binary +, so this is (>$1234)+1.
	assert.Equal(t, int64(0x13), evalString(t, ">$1234 + 1", nil))
}

func TestSymbols(t *testing.T) {
	syms := expr.MapResolver{"START": 0x8000, "offset": 4}
	assert.Equal(t, int64(0x8004), evalString(t, "START+offset", syms))
	assert.Equal(t, int64(0), evalString(t, "START-START", syms))
	assert.Equal(t, int64(0x80), evalString(t, ">START", syms))
}

func TestSymbolsAreCaseSensitive(t *testing.T) {
	n, err := expr.Parse("start")
	require.NoError(t, err)
	_, err = expr.Eval(n, expr.MapResolver{"START": 1})
	require.Error(t, err)
	assert.EqualError(t, err, "undefined symbol start")
}

func TestUndefinedSymbol(t *testing.T) {
	n, err := expr.Parse("MISSING+1")
	require.NoError(t, err)
	_, err = expr.Eval(n, expr.MapResolver{})
	assert.EqualError(t, err, "undefined symbol MISSING")
}

func TestDivisionByZero(t *testing.T) {
	for _, src := range []string{"1/0", "1%0"} {
		n, err := expr.Parse(src)
		require.NoError(t, err)
		_, err = expr.Eval(n, nil)
		assert.EqualError(t, err, "division by zero", "expression %q", src)
	}
}

func TestParseErrors(t *testing.T) {
	bad := []string{
		"",
		"1+",
		"(1+2",
		"1 2",
		"$",
		"%",
		"'ab'",
		"'",
		"1+*2",
		")",
	}
	for _, src := range bad {
		_, err := expr.Parse(src)
		assert.Error(t, err, "expression %q should not parse", src)
	}
}

func TestParseList(t *testing.T) {
	nodes, err := expr.ParseList("$10, SIZE+1, 'A'")
	require.NoError(t, err)
	require.Len(t, nodes, 3)

	v, err := expr.Eval(nodes[1], expr.MapResolver{"SIZE": 0x10})
	require.NoError(t, err)
	assert.Equal(t, int64(0x11), v)
}

func TestParseListTrailingComma(t *testing.T) {
	_, err := expr.ParseList("1, 2,")
	assert.Error(t, err)
}

func TestParseConsumesAllInput(t *testing.T) {
	_, err := expr.Parse("1+2 garbage")
	assert.Error(t, err)
}

func TestMalformedLiteralBecomesZeroPlaceholder(t *testing.T) {
	n, err := expr.Parse("0x+5")
	require.Error(t, err)

	var lexErr *expr.LexicalError
	require.ErrorAs(t, err, &lexErr)
	require.NotNil(t, n, "lexical errors still yield a usable tree")

	v, err := expr.Eval(n, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)
}
