package placement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evalStr(t *testing.T, src string, vars map[string]any) any {
	t.Helper()
	e, err := Parse(src)
	require.NoError(t, err)
	v, err := e.eval(vars)
	require.NoError(t, err)
	return v
}

func TestParseArithmeticPrecedence(t *testing.T) {
	v := evalStr(t, "1 + 2 * 3", nil)
	assert.Equal(t, float64(7), v)
}

func TestParseParenOverridesPrecedence(t *testing.T) {
	v := evalStr(t, "(1 + 2) * 3", nil)
	assert.Equal(t, float64(9), v)
}

func TestParseComparisonAndBoolean(t *testing.T) {
	v := evalStr(t, "1 < 2 && 2 < 3", nil)
	assert.Equal(t, true, v)
}

func TestParseOrShortCircuitsWithoutEvaluatingRight(t *testing.T) {
	vars := map[string]any{"tags": map[string]any{"zone": "us-east"}}
	v := evalStr(t, `tags.zone == "us-east" || tags.missing == "x"`, vars)
	assert.Equal(t, true, v)
}

func TestParseMemberAccess(t *testing.T) {
	vars := map[string]any{"tags": map[string]any{"zone": "us-east"}}
	v := evalStr(t, `tags.zone == "us-east"`, vars)
	assert.Equal(t, true, v)
}

func TestParseUnknownIdentResolvesNil(t *testing.T) {
	v := evalStr(t, "missing", map[string]any{})
	assert.Nil(t, v)
}

func TestParseNot(t *testing.T) {
	v := evalStr(t, "!(1 == 2)", nil)
	assert.Equal(t, true, v)
}

func TestParseUnaryMinus(t *testing.T) {
	v := evalStr(t, "-5 + 3", nil)
	assert.Equal(t, float64(-2), v)
}

func TestParseDivisionByZeroErrors(t *testing.T) {
	e, err := Parse("1 / 0")
	require.NoError(t, err)
	_, err = e.eval(nil)
	assert.Error(t, err)
}

func TestParseTrailingInputIsError(t *testing.T) {
	_, err := Parse("1 + 2 3")
	assert.Error(t, err)
}

func TestParseStringLiteral(t *testing.T) {
	v := evalStr(t, `"hello"`, nil)
	assert.Equal(t, "hello", v)
}
