package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizePreservesYear(t *testing.T) {
	tokens := Tokenize("Приказ от 2023 года номер 15")
	assert.Contains(t, tokens, "2023")
}

func TestTokenizeReplacesISODate(t *testing.T) {
	tokens := Tokenize("документ от 2023-05-17 подписан")
	assert.Contains(t, tokens, TokenDate)
}

func TestTokenizeReplacesDottedDate(t *testing.T) {
	tokens := Tokenize("документ от 17.05.2023 подписан")
	assert.Contains(t, tokens, TokenDate)
}

func TestTokenizeReplacesNumbers(t *testing.T) {
	tokens := Tokenize("сумма составляет 4500 рублей")
	assert.Contains(t, tokens, TokenNumber)
	assert.NotContains(t, tokens, "4500")
}

func TestTokenizeDropsShortTokens(t *testing.T) {
	tokens := Tokenize("я и ты там")
	for _, tok := range tokens {
		require.GreaterOrEqual(t, len([]rune(tok)), 2)
	}
}

func TestTokenizeDropsStopWords(t *testing.T) {
	tokens := Tokenize("копирайтер и его обязанности")
	assert.NotContains(t, tokens, "и")
	assert.NotContains(t, tokens, "его")
}

func TestTokenizeHyphenatedSplitsParts(t *testing.T) {
	tokens := Tokenize("научно-технический прогресс")
	joined := false
	for _, tok := range tokens {
		if tok == "научно-технический" {
			joined = true
		}
	}
	assert.True(t, joined, "expected the joined hyphenated token to survive alongside its parts")
	assert.Contains(t, tokens, Lemmatize("технический"))
}

// Idempotence over the subset of tokens the tokenizer preserves verbatim
// (§8 "Tokenizer idempotence"): DATE, NUMBER and 4-digit years survive a
// second pass through Tokenize unchanged when re-joined as text.
func TestTokenizeIdempotentOnPreservedTokens(t *testing.T) {
	preserved := []string{TokenDate, TokenNumber, "2023", "1999"}
	for _, tok := range preserved {
		again := Tokenize(tok)
		require.Len(t, again, 1)
		assert.Equal(t, tok, again[0])
	}
}

func TestLemmatizeNonCyrillicPassthrough(t *testing.T) {
	assert.Equal(t, "kubernetes", Lemmatize("kubernetes"))
}

func TestLemmatizeStripsCommonAdjectiveEnding(t *testing.T) {
	stem := Lemmatize("технического")
	assert.NotEqual(t, "технического", stem)
}
