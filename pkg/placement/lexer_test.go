package placement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenKinds(t *testing.T, input string) []tokenKind {
	t.Helper()
	lx := newLexer(input)
	var kinds []tokenKind
	for {
		tok, err := lx.next()
		require.NoError(t, err)
		kinds = append(kinds, tok.kind)
		if tok.kind == tokEOF {
			break
		}
	}
	return kinds
}

func TestLexerTwoCharOperators(t *testing.T) {
	kinds := tokenKinds(t, "&& || == != <= >=")
	assert.Equal(t, []tokenKind{tokAnd, tokOr, tokEq, tokNeq, tokLe, tokGe, tokEOF}, kinds)
}

func TestLexerSingleCharOperators(t *testing.T) {
	kinds := tokenKinds(t, "! < > + - * / . ( )")
	assert.Equal(t, []tokenKind{tokNot, tokLt, tokGt, tokPlus, tokMinus, tokStar, tokSlash, tokDot, tokLParen, tokRParen, tokEOF}, kinds)
}

func TestLexerKeywordsCaseInsensitive(t *testing.T) {
	kinds := tokenKinds(t, "AND or Not")
	assert.Equal(t, []tokenKind{tokAnd, tokOr, tokNot, tokEOF}, kinds)
}

func TestLexerUnterminatedStringErrors(t *testing.T) {
	lx := newLexer(`"unterminated`)
	_, err := lx.next()
	assert.Error(t, err)
}

func TestLexerUnexpectedCharacterErrors(t *testing.T) {
	lx := newLexer("@")
	_, err := lx.next()
	assert.Error(t, err)
}

func TestLexerIdentWithUnderscoreAndDigits(t *testing.T) {
	lx := newLexer("tags_1")
	tok, err := lx.next()
	require.NoError(t, err)
	assert.Equal(t, tokIdent, tok.kind)
	assert.Equal(t, "tags_1", tok.text)
}
