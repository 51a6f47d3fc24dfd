// Package synonyms implements the query synonym expander (component C6).
// The dictionary is loaded once at startup from a JSON file, shaped after
// original_source/worker/services/query_expansion_service.py's
// synonyms_ru.json convention rather than the teacher's static Go map
// (search/synonyms.go's CodeSynonyms), and the Expand/ExpandSmart pipeline
// keeps the teacher's Expand-then-dedupe shape from search/expander.go.
package synonyms

import (
	"encoding/json"
	"os"
	"regexp"
	"strings"
)

// DefaultMaxSynonymsPerTerm is used by Expand when the caller doesn't
// request an adaptive count.
const DefaultMaxSynonymsPerTerm = 2

// technicalVocabulary is the probe set ExpandSmart checks a query against
// to decide whether to widen the per-term synonym budget to 3, mirroring
// query_expansion_service.py's expand_query_smart tech-term probe list.
var technicalVocabulary = []string{
	"api", "база данных", "программирование", "разработка", "сервер",
}

var wordRegex = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// Expander holds a term→[]synonym dictionary loaded once and answers query
// expansions against it. It is safe for concurrent use: the dictionary is
// read-only after Load.
type Expander struct {
	dict map[string][]string
}

// New builds an Expander from an in-memory dictionary, useful for tests and
// for callers that assemble the table programmatically.
func New(dict map[string][]string) *Expander {
	return &Expander{dict: dict}
}

// Load reads a JSON file shaped {"term": ["synonym", ...], ...} and returns
// an Expander backed by it. A missing or malformed file degrades to an
// empty dictionary (mirrors the original service's try/except-and-warn
// behavior) rather than failing startup.
func Load(path string) (*Expander, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Expander{dict: map[string][]string{}}, nil
		}
		return nil, err
	}
	var dict map[string][]string
	if err := json.Unmarshal(data, &dict); err != nil {
		return &Expander{dict: map[string][]string{}}, nil
	}
	return &Expander{dict: dict}, nil
}

// extractTerms produces the candidate terms a query might have synonyms
// for: every word of length >= 2, plus every bigram and trigram of
// consecutive words (§4.6 step 1).
func extractTerms(query string) []string {
	words := wordRegex.FindAllString(strings.ToLower(query), -1)
	terms := make([]string, 0, len(words)*2)
	terms = append(terms, words...)
	for i := 0; i < len(words)-1; i++ {
		terms = append(terms, words[i]+" "+words[i+1])
		if i < len(words)-2 {
			terms = append(terms, words[i]+" "+words[i+1]+" "+words[i+2])
		}
	}
	return terms
}

// Expand composes original_query + " " + join(selected synonyms), taking
// up to maxPerTerm synonyms for every dictionary-matched candidate term
// (§4.6 steps 2-3).
func (e *Expander) Expand(query string, maxPerTerm int) string {
	if maxPerTerm <= 0 {
		maxPerTerm = DefaultMaxSynonymsPerTerm
	}
	terms := extractTerms(query)
	seen := make(map[string]struct{})
	var selected []string
	for _, term := range terms {
		syns, ok := e.dict[term]
		if !ok {
			continue
		}
		n := maxPerTerm
		if n > len(syns) {
			n = len(syns)
		}
		for _, syn := range syns[:n] {
			if _, dup := seen[syn]; dup {
				continue
			}
			seen[syn] = struct{}{}
			selected = append(selected, syn)
		}
	}
	if len(selected) == 0 {
		return query
	}
	return query + " " + strings.Join(selected, " ")
}

// ExpandSmart picks the per-term synonym budget adaptively: 3 when the
// query matches the technical vocabulary probe set, 2 otherwise, then
// delegates to Expand (§4.6 "smart" variant).
func (e *Expander) ExpandSmart(query string) string {
	return e.Expand(query, e.smartMaxSynonyms(query))
}

func (e *Expander) smartMaxSynonyms(query string) int {
	lower := strings.ToLower(query)
	for _, probe := range technicalVocabulary {
		if strings.Contains(lower, probe) {
			return 3
		}
	}
	return DefaultMaxSynonymsPerTerm
}

// SynonymsFor returns the raw dictionary entry for a term, lowercased,
// or nil if absent.
func (e *Expander) SynonymsFor(term string) []string {
	return e.dict[strings.ToLower(term)]
}
