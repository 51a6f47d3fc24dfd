// Package analyzer implements the Document Analyzer (component C8): document
// type classification, metadata extraction and structural section splitting
// for the legal/corporate Russian-language documents this system ingests.
// It is grounded on the teacher's small-function-per-concern regex style
// (internal/store/tokenizer.go) and directly ports the classification and
// structure rules from the original document_analyzer.py.
package analyzer

import (
	"regexp"
	"strings"

	"github.com/cortexkb/retrieval-engine/internal/model"
	"github.com/rs/zerolog"
)

// Metadata is the set of fields the analyzer can recover from a document's
// text. Absent fields are left as the empty string.
type Metadata struct {
	Type         model.DocumentType
	Title        string
	Number       string
	Date         string
	Organization string
	INN          string
	OGRN         string
	KPP          string
	Signatory    string
	Address      string
}

// documentTypePatterns lists, per document type, the regexes whose presence
// in the text (in priority order: order, instruction, contract) classifies
// the document. The first type with a match wins; no match falls back to
// general.
var documentTypePatterns = []struct {
	docType model.DocumentType
	regexes []*regexp.Regexp
}{
	{
		docType: model.DocTypeOrder,
		regexes: []*regexp.Regexp{
			regexp.MustCompile(`ПРИКАЗ`),
			regexp.MustCompile(`П\s*Р\s*И\s*К\s*А\s*З`),
			regexp.MustCompile(`№\s*\d+[-\w]*\s*от`),
			regexp.MustCompile(`ПРИКАЗЫВАЮ`),
		},
	},
	{
		docType: model.DocTypeInstruction,
		regexes: []*regexp.Regexp{
			regexp.MustCompile(`ИНСТРУКЦИЯ`),
			regexp.MustCompile(`ДОЛЖНОСТНАЯ\s+ИНСТРУКЦИЯ`),
			regexp.MustCompile(`РЕГЛАМЕНТ`),
		},
	},
	{
		docType: model.DocTypeContract,
		regexes: []*regexp.Regexp{
			regexp.MustCompile(`ДОГОВОР`),
			regexp.MustCompile(`СОГЛАШЕНИЕ`),
			regexp.MustCompile(`КОНТРАКТ`),
		},
	},
}

var metadataPatterns = struct {
	orderNumber  *regexp.Regexp
	date         *regexp.Regexp
	organization *regexp.Regexp
	inn          *regexp.Regexp
	ogrn         *regexp.Regexp
	kpp          *regexp.Regexp
	signatory    *regexp.Regexp
	address      *regexp.Regexp
}{
	orderNumber:  regexp.MustCompile(`№\s*(\d+[-\w\p{L}/]*)`),
	date:         regexp.MustCompile(`\b(\d{1,2}[./]\d{1,2}[./]\d{2,4})\b`),
	organization: regexp.MustCompile(`(?:ООО|АО|ЗАО|ПАО|ИП)\s+[«"][^»"]+[»"]`),
	inn:          regexp.MustCompile(`ИНН[\s:]*(\d{10,12})`),
	ogrn:         regexp.MustCompile(`ОГРН[\s:]*(\d{13,15})`),
	kpp:          regexp.MustCompile(`КПП[\s:]*(\d{9})`),
	signatory:    regexp.MustCompile(`(?:Директор|Генеральный директор)[\s:]*([А-ЯЁ][а-яё]+(?:\s+[А-ЯЁ]\.\s*[А-ЯЁ]\.)?)`),
	address:      regexp.MustCompile(`(?:г\.|город)\s*[А-ЯЁ][а-яё]+(?:,\s*[^\n,]+){0,3}`),
}

var structurePatterns = struct {
	numberedItem *regexp.Regexp
	letteredItem *regexp.Regexp
	header       *regexp.Regexp
	subheader    *regexp.Regexp
	tableStart   *regexp.Regexp
}{
	numberedItem: regexp.MustCompile(`^(\d+(?:\.\d+)*)\.\s+(.+)$`),
	letteredItem: regexp.MustCompile(`^([а-я])\)\s+(.+)$`),
	header:       regexp.MustCompile(`^(ПРИКАЗЫВАЮ:?|О\s+[а-яё]+.*|УТВЕРЖДАЮ|СОГЛАСОВАНО)`),
	subheader:    regexp.MustCompile(`^[А-ЯЁ][А-ЯЁ\s]{3,}$`),
	tableStart:   regexp.MustCompile(`^\[Заголовки таблицы`),
}

// abbreviations are checked around a candidate sentence boundary to avoid
// treating an abbreviation's period as end-of-sentence.
var abbreviations = []string{"т.д", "т.п", "и.о", "г.", "см.", "стр.", "п.", "пп."}

// Analyzer classifies documents and splits them into sections.
type Analyzer struct {
	log zerolog.Logger
}

// New constructs an Analyzer.
func New(log zerolog.Logger) *Analyzer {
	return &Analyzer{log: log.With().Str("component", "analyzer").Logger()}
}

// Analyze classifies the document, extracts its metadata and splits its text
// into ordered sections (§4.8).
func (a *Analyzer) Analyze(text string) (Metadata, []model.Section) {
	docType := a.detectDocumentType(text)
	meta := a.extractMetadata(text, docType)
	sections := a.analyzeStructure(text, docType)
	a.log.Debug().Str("document_type", string(docType)).Int("sections", len(sections)).Msg("analyzed document")
	return meta, sections
}

// detectDocumentType classifies the document by checking each type's
// trigger patterns in priority order (order, instruction, contract),
// falling back to general.
func (a *Analyzer) detectDocumentType(text string) model.DocumentType {
	for _, entry := range documentTypePatterns {
		for _, re := range entry.regexes {
			if re.MatchString(text) {
				return entry.docType
			}
		}
	}
	return model.DocTypeGeneral
}

// extractMetadata pulls the fixed metadata fields out of text via regex,
// plus a title taken by extractTitle from the first non-empty line.
func (a *Analyzer) extractMetadata(text string, docType model.DocumentType) Metadata {
	meta := Metadata{Type: docType}

	if m := metadataPatterns.orderNumber.FindStringSubmatch(text); m != nil {
		meta.Number = m[1]
	}
	if m := metadataPatterns.date.FindStringSubmatch(text); m != nil {
		meta.Date = m[1]
	}
	if m := metadataPatterns.organization.FindString(text); m != "" {
		meta.Organization = m
	}
	if m := metadataPatterns.inn.FindStringSubmatch(text); m != nil {
		meta.INN = m[1]
	}
	if m := metadataPatterns.ogrn.FindStringSubmatch(text); m != nil {
		meta.OGRN = m[1]
	}
	if m := metadataPatterns.kpp.FindStringSubmatch(text); m != nil {
		meta.KPP = m[1]
	}
	if m := metadataPatterns.signatory.FindStringSubmatch(text); m != nil {
		meta.Signatory = strings.TrimSpace(m[1])
	}
	if m := metadataPatterns.address.FindString(text); m != "" {
		meta.Address = m
	}
	meta.Title = extractTitle(text, docType)
	return meta
}

// extractTitle takes the first non-empty line as the document title, unless
// it's a bare order-marker line, in which case the next non-empty line is
// preferred.
func extractTitle(text string, docType model.DocumentType) string {
	lines := strings.Split(text, "\n")
	var candidate string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if candidate == "" {
			candidate = line
			if docType == model.DocTypeOrder && isBareOrderMarker(line) {
				candidate = ""
				continue
			}
			break
		}
	}
	if len(candidate) > 200 {
		candidate = candidate[:200]
	}
	return candidate
}

func isBareOrderMarker(line string) bool {
	upper := strings.ToUpper(strings.TrimSpace(line))
	return upper == "ПРИКАЗ" || structurePatterns.header.MatchString(upper)
}

// lineClassification is the result of classifying a single line of text
// against the structural patterns.
type lineClassification struct {
	isHeader         bool
	title            string
	level            int
	sectionType      model.SectionType
	metadata         map[string]string
	includeInContent bool
}

// analyzeStructure walks text line by line, opening a new section whenever a
// line classifies as a header-like boundary, and closing the running section
// when the next boundary (or end of text) is reached. Mirrors
// DocumentStructureAnalyzer._analyze_structure.
func (a *Analyzer) analyzeStructure(text string, docType model.DocumentType) []model.Section {
	lines := strings.Split(text, "\n")
	var sections []model.Section
	var current *model.Section
	var content []string

	lineOffset := func(i int) int {
		pos := 0
		for _, l := range lines[:i] {
			pos += len(l) + 1
		}
		return pos
	}

	flush := func(endPos int) {
		if current != nil && len(content) > 0 {
			current.Content = strings.TrimSpace(strings.Join(content, "\n"))
			current.EndPos = endPos
			sections = append(sections, *current)
		}
	}

	for i, rawLine := range lines {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			if len(content) > 0 {
				content = append(content, "")
			}
			continue
		}

		info := classifyLine(line, docType)
		if info.isHeader {
			flush(lineOffset(i))
			start := lineOffset(i)
			current = &model.Section{
				Title:    info.title,
				Level:    info.level,
				Type:     info.sectionType,
				StartPos: start,
				EndPos:   start + len(rawLine),
				Metadata: info.metadata,
			}
			if info.includeInContent {
				content = []string{line}
			} else {
				content = nil
			}
		} else {
			content = append(content, line)
		}
	}
	flush(len(text))

	if len(sections) == 0 {
		sections = append(sections, model.Section{
			Title:    "Документ",
			Content:  strings.TrimSpace(text),
			Level:    1,
			Type:     model.SectionParagraph,
			StartPos: 0,
			EndPos:   len(text),
			Metadata: map[string]string{},
		})
	}
	return sections
}

// classifyLine decides whether a single trimmed line opens a new section,
// and if so, what kind.
func classifyLine(line string, docType model.DocumentType) lineClassification {
	result := lineClassification{title: line, level: 1, sectionType: model.SectionParagraph, metadata: map[string]string{}, includeInContent: true}

	if m := structurePatterns.numberedItem.FindStringSubmatch(line); m != nil {
		number, title := m[1], m[2]
		return lineClassification{
			isHeader:         true,
			title:            "Пункт " + number,
			level:            len(strings.Split(number, ".")),
			sectionType:      model.SectionNumberedItem,
			metadata:         map[string]string{"number": number, "item_title": strings.TrimSpace(title)},
			includeInContent: true,
		}
	}
	if m := structurePatterns.letteredItem.FindStringSubmatch(line); m != nil {
		letter, title := m[1], m[2]
		return lineClassification{
			isHeader:         true,
			title:            "Подпункт " + letter + ")",
			level:            3,
			sectionType:      model.SectionLetteredItem,
			metadata:         map[string]string{"letter": letter, "item_title": strings.TrimSpace(title)},
			includeInContent: true,
		}
	}
	if docType == model.DocTypeOrder {
		upper := strings.ToUpper(line)
		switch {
		case strings.Contains(upper, "ПРИКАЗЫВАЮ"):
			return lineClassification{isHeader: true, title: "Распорядительная часть", level: 1, sectionType: model.SectionOrderDirective, metadata: map[string]string{}, includeInContent: true}
		case strings.HasPrefix(line, "Директор") || strings.HasPrefix(line, "Генеральный директор"):
			return lineClassification{isHeader: true, title: "Подписи", level: 1, sectionType: model.SectionSignatures, metadata: map[string]string{}, includeInContent: true}
		}
	}
	if structurePatterns.header.MatchString(line) {
		return lineClassification{isHeader: true, title: line, level: 1, sectionType: model.SectionHeader, metadata: map[string]string{}, includeInContent: true}
	}
	if structurePatterns.subheader.MatchString(line) && len(line) < 100 {
		return lineClassification{isHeader: true, title: line, level: 2, sectionType: model.SectionHeader, metadata: map[string]string{}, includeInContent: true}
	}
	if structurePatterns.tableStart.MatchString(line) {
		title := "Таблица"
		if idx := strings.Index(line, ":"); idx >= 0 {
			title = strings.TrimSpace(strings.ReplaceAll(line[:idx], "[Заголовки таблицы", ""))
			if title == "" {
				title = "Таблица"
			}
		}
		return lineClassification{
			isHeader:         true,
			title:            title,
			level:            1,
			sectionType:      model.SectionTable,
			metadata:         map[string]string{"is_table_start": "true"},
			includeInContent: true,
		}
	}

	return result
}

// OptimalChunkSize returns the adaptive chunk-size budget for a section,
// per §4.10's per-section-type table.
func OptimalChunkSize(s model.Section) int {
	const base = 1000
	switch s.Type {
	case model.SectionHeader:
		return minInt(500, len(s.Content)+100)
	case model.SectionNumberedItem:
		n := len(s.Content)
		switch {
		case n < 300:
			return n + 50
		case n < 800:
			return 600
		default:
			return base
		}
	case model.SectionSignatures:
		return minInt(300, len(s.Content)+50)
	case model.SectionTable:
		return minInt(1500, len(s.Content)+200)
	default:
		return base
	}
}

// ShouldKeepTogether decides whether a section must be emitted whole rather
// than split, per §4.10.
func ShouldKeepTogether(s model.Section) bool {
	if len(s.Content) < 200 {
		return true
	}
	switch s.Type {
	case model.SectionHeader, model.SectionSignatures, model.SectionLetteredItem:
		return true
	case model.SectionTable:
		return false
	case model.SectionNumberedItem:
		return len(s.Content) < 500
	}
	return false
}

// IsAbbreviation reports whether the period at position pos in text is part
// of a known abbreviation rather than a sentence boundary.
func IsAbbreviation(text string, pos int) bool {
	if pos < 2 {
		return false
	}
	start := maxInt(0, pos-5)
	end := minInt(len(text), pos+3)
	context := strings.ToLower(text[start:end])
	for _, abbr := range abbreviations {
		if strings.Contains(context, abbr) {
			return true
		}
	}
	return false
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
