// Package lexer implements the morphological tokenizer shared by BM25
// document indexing and query tokenization (component C5). Both paths MUST
// run through Tokenize so that the lexical index and the queries scored
// against it speak the same normalized vocabulary.
package lexer

import (
	"regexp"
	"strconv"
	"strings"
)

// Preserved sentinel tokens. The pipeline swaps literal dates and numbers
// for these before lemmatization so that downstream lexical scoring treats
// every date/number uniformly instead of fragmenting the vocabulary.
const (
	TokenDate   = "DATE"
	TokenNumber = "NUMBER"
)

var (
	isoDateRegex   = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	dottedDateRegex = regexp.MustCompile(`\b\d{2}\.\d{2}\.\d{4}\b`)
	// decimalRegex matches runs of digits (optionally with a decimal
	// separator) that are not a bare 4-digit year in [1900,2099].
	decimalRegex = regexp.MustCompile(`\b\d+([.,]\d+)?\b`)
	yearRegex    = regexp.MustCompile(`^(19|20)\d{2}$`)
	splitRegex   = regexp.MustCompile(`[^\p{L}\p{N}_-]+`)
)

// RussianStopWords is the fixed stop-word set dropped after lemmatization,
// per §4.5 step 8.
var RussianStopWords = map[string]struct{}{
	"и": {}, "в": {}, "во": {}, "не": {}, "что": {}, "он": {}, "на": {},
	"я": {}, "с": {}, "со": {}, "как": {}, "а": {}, "то": {}, "все": {},
	"она": {}, "так": {}, "его": {}, "но": {}, "да": {}, "ты": {}, "к": {},
	"у": {}, "же": {}, "вы": {}, "за": {}, "бы": {}, "по": {}, "только": {},
	"ее": {}, "мне": {}, "было": {}, "вот": {}, "от": {}, "меня": {}, "еще": {},
	"нет": {}, "о": {}, "из": {}, "ему": {}, "теперь": {}, "когда": {},
	"даже": {}, "ну": {}, "вдруг": {}, "ли": {}, "если": {}, "уже": {},
	"или": {}, "ни": {}, "быть": {}, "был": {}, "него": {}, "до": {},
	"вас": {}, "нибудь": {}, "опять": {}, "уж": {}, "вам": {}, "сказал": {},
	"ведь": {}, "там": {}, "потом": {}, "себя": {}, "ничего": {}, "ей": {},
	"может": {}, "они": {}, "тут": {}, "где": {}, "есть": {}, "надо": {},
	"ней": {}, "для": {}, "мы": {}, "тебя": {}, "их": {}, "чем": {}, "была": {},
	"сам": {}, "чтобы": {}, "без": {}, "будто": {}, "чего": {}, "раз": {},
	"тоже": {}, "себе": {}, "под": {}, "будет": {}, "ж": {}, "тогда": {},
	"кто": {}, "этот": {}, "того": {}, "потому": {}, "этого": {}, "какой": {},
	"совсем": {}, "ним": {}, "здесь": {}, "этом": {}, "один": {}, "почти": {},
	"мой": {}, "тем": {}, "чтобы": {}, "нее": {}, "при": {}, "был": {},
	"который": {}, "том": {}, "через": {}, "эти": {}, "нас": {}, "про": {},
	"всего": {}, "них": {}, "какая": {}, "много": {}, "разве": {}, "три": {},
	"эту": {}, "моя": {}, "впрочем": {}, "хорошо": {}, "свою": {}, "этой": {},
	"перед": {}, "иногда": {}, "лучше": {}, "чуть": {}, "том": {}, "нельзя": {},
	"такой": {}, "им": {}, "более": {}, "всегда": {}, "конечно": {}, "всю": {},
	"между": {},
}

// hyphenLemmaMinLen is the minimum part length eligible for the
// split-then-lemmatize treatment applied to hyphenated tokens (§4.5 step 6).
const hyphenLemmaMinLen = 2

// Tokenize runs the full morphological pipeline described in §4.5 over text
// and returns the ordered, normalized token list.
func Tokenize(text string) []string {
	lowered := strings.ToLower(text)
	lowered = isoDateRegex.ReplaceAllString(lowered, " "+TokenDate+" ")
	lowered = dottedDateRegex.ReplaceAllString(lowered, " "+TokenDate+" ")
	lowered = replaceNumbers(lowered)

	rawTokens := splitRegex.Split(lowered, -1)

	out := make([]string, 0, len(rawTokens))
	for _, tok := range rawTokens {
		tok = strings.Trim(tok, "-")
		if tok == "" {
			continue
		}
		if len([]rune(tok)) < 2 {
			continue
		}
		out = append(out, expandHyphenated(tok)...)
	}

	result := make([]string, 0, len(out))
	for _, tok := range out {
		lemma := normalizeToken(tok)
		if lemma == "" {
			continue
		}
		if _, stop := RussianStopWords[lemma]; stop {
			continue
		}
		result = append(result, lemma)
	}
	return result
}

// replaceNumbers swaps decimal numbers for NUMBER, preserving bare 4-digit
// years in [1900, 2099] verbatim (§4.5 step 3).
func replaceNumbers(text string) string {
	return decimalRegex.ReplaceAllStringFunc(text, func(m string) string {
		if yearRegex.MatchString(m) {
			return m
		}
		return TokenNumber
	})
}

// expandHyphenated applies step 6: hyphenated tokens longer than 3 chars
// are also split on the hyphen, each part lemmatized independently (in
// addition to keeping the joined token for indexing continuity).
func expandHyphenated(tok string) []string {
	if !strings.Contains(tok, "-") {
		return []string{tok}
	}
	if len([]rune(tok)) <= 3 {
		return []string{tok}
	}
	parts := strings.Split(tok, "-")
	out := make([]string, 0, len(parts)+1)
	out = append(out, tok)
	for _, p := range parts {
		if len([]rune(p)) >= hyphenLemmaMinLen {
			out = append(out, p)
		}
	}
	return out
}

// normalizeToken lemmatizes a single surviving token, preserving the
// sentinel tokens (matched case-insensitively, since Tokenize lowercases
// its input), joined hyphenated tokens and bare years verbatim, and dropping
// tokens that are purely digits and weren't preserved by the
// number-replacement step.
func normalizeToken(tok string) string {
	if strings.EqualFold(tok, TokenDate) {
		return TokenDate
	}
	if strings.EqualFold(tok, TokenNumber) {
		return TokenNumber
	}
	if strings.Contains(tok, "-") {
		return tok
	}
	if yearRegex.MatchString(tok) {
		return tok
	}
	if isAllDigits(tok) {
		return ""
	}
	return Lemmatize(tok)
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.Atoi(s)
	return err == nil
}
