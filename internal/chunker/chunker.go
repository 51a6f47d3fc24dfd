// Package chunker implements the Semantic Chunker (component C10): it turns
// a document's analyzed sections (component C8) into retrieval-sized
// chunks, splitting oversized sections on semantic boundaries instead of
// fixed character offsets, delegating tables to the Table Processor
// (component C9), and assembling the full per-chunk metadata record §6
// requires. Ported from chunking_service.py's SemanticChunkingService.
package chunker

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cortexkb/retrieval-engine/internal/analyzer"
	"github.com/cortexkb/retrieval-engine/internal/model"
	"github.com/cortexkb/retrieval-engine/internal/tableproc"
	"github.com/rs/zerolog"
)

const (
	// Size is the default target chunk size in characters (§4.10).
	Size = 1000
	// Overlap is the character overlap retained between consecutive parts
	// of a split section.
	Overlap = 100
	// MinSize is the smallest chunk emitted when splitting a section; a
	// trailing fragment shorter than this is merged rather than emitted
	// alone.
	MinSize = 200

	boundarySearchNumbered = 150
	boundarySearchSentence = 100
)

var numberedLineRegex = regexp.MustCompile(`^\d+\.`)

// Chunker splits analyzed document text into retrieval chunks.
type Chunker struct {
	tableProc *tableproc.Processor
	log       zerolog.Logger
}

// New constructs a Chunker. tableProc handles any tables found within a
// section's span.
func New(tableProc *tableproc.Processor, log zerolog.Logger) *Chunker {
	return &Chunker{tableProc: tableProc, log: log.With().Str("component", "chunker").Logger()}
}

// Input bundles everything Chunk needs about one document.
type Input struct {
	DocID       string
	AccessLevel int
	Sections    []model.Section
	DocMeta     analyzer.Metadata
	Tables      []model.Table
}

// Chunk splits in.Sections into chunks, delegating any section containing a
// table to the Table Processor, and assembles full chunk metadata (§4.10,
// §6).
func (c *Chunker) Chunk(in Input) []model.Chunk {
	var chunks []model.Chunk
	tablesBySection := c.assignTablesToSections(in.Sections, in.Tables)

	for _, section := range in.Sections {
		if tables := tablesBySection[section.StartPos]; len(tables) > 0 {
			chunks = append(chunks, c.processSectionWithTables(section, tables, in)...)
			continue
		}
		chunks = append(chunks, c.processSection(section, in)...)
	}

	if len(chunks) == 0 {
		chunks = c.basicChunks(sectionsText(in.Sections), in)
	}

	now := time.Now()
	for i := range chunks {
		chunks[i].ChunkIndex = i
		chunks[i].CreatedAt = now
		if chunks[i].Metadata == nil {
			chunks[i].Metadata = model.Metadata{}
		}
		chunks[i].Metadata["total_chunks"] = model.MetaInt(len(chunks))
		chunks[i].Metadata["document_type"] = model.MetaString(string(in.DocMeta.Type))
		chunks[i].Metadata["document_title"] = model.MetaString(in.DocMeta.Title)
		chunks[i].Metadata["document_number"] = model.MetaString(in.DocMeta.Number)
		chunks[i].Metadata["document_date"] = model.MetaString(in.DocMeta.Date)
		chunks[i].Metadata["document_organization"] = model.MetaString(in.DocMeta.Organization)
		chunks[i].Metadata["legal_inn"] = model.MetaString(in.DocMeta.INN)
		chunks[i].Metadata["legal_ogrn"] = model.MetaString(in.DocMeta.OGRN)
		chunks[i].Metadata["legal_kpp"] = model.MetaString(in.DocMeta.KPP)
		chunks[i].Metadata["legal_address"] = model.MetaString(in.DocMeta.Address)
	}
	return chunks
}

// assignTablesToSections buckets tables whose Position falls within a
// section's [StartPos, EndPos) span, keyed by the section's StartPos.
func (c *Chunker) assignTablesToSections(sections []model.Section, tables []model.Table) map[int][]model.Table {
	out := make(map[int][]model.Table)
	for _, t := range tables {
		for _, s := range sections {
			if t.Position >= s.StartPos && t.Position < s.EndPos {
				out[s.StartPos] = append(out[s.StartPos], t)
				break
			}
		}
	}
	return out
}

// processSection emits either one whole-section chunk (should-keep-together
// sections, or those that fit within their optimal size) or a sequence of
// overlapping parts split on semantic boundaries.
func (c *Chunker) processSection(section model.Section, in Input) []model.Chunk {
	if analyzer.ShouldKeepTogether(section) {
		return []model.Chunk{c.wholeSectionChunk(section, in)}
	}
	size := analyzer.OptimalChunkSize(section)
	if len(section.Content) <= size {
		return []model.Chunk{c.wholeSectionChunk(section, in)}
	}
	return c.splitSection(section, size, in)
}

func (c *Chunker) wholeSectionChunk(section model.Section, in Input) model.Chunk {
	meta := sectionMetadata(section, "complete_section", true, nil)
	return model.Chunk{
		DocumentID:  in.DocID,
		Content:     section.Content,
		AccessLevel: in.AccessLevel,
		CharStart:   section.StartPos,
		CharEnd:     section.EndPos,
		Metadata:    meta,
	}
}

// splitSection breaks an oversized section into overlapping parts, each
// prefixed with the section title (continuation-marked after the first),
// searching for a semantic boundary near the target size instead of
// cutting mid-sentence or mid-item.
func (c *Chunker) splitSection(section model.Section, size int, in Input) []model.Chunk {
	text := section.Content
	var chunks []model.Chunk

	pos := 0
	part := 1
	for pos < len(text) {
		end := minInt(pos+size, len(text))
		if end < len(text) {
			end = findSemanticBoundary(text, end, section.Type)
		}

		chunkText := strings.TrimSpace(text[pos:end])
		if chunkText != "" && len(chunkText) >= MinSize {
			var prefix string
			if part == 1 {
				prefix = "[" + section.Title + "]\n"
			} else {
				prefix = "[" + section.Title + " (продолжение)]\n"
			}
			meta := sectionMetadata(section, "section_part", false, map[string]string{"part_number": strconv.Itoa(part)})
			chunks = append(chunks, model.Chunk{
				DocumentID:  in.DocID,
				Content:     prefix + chunkText,
				AccessLevel: in.AccessLevel,
				CharStart:   section.StartPos + pos,
				CharEnd:     section.StartPos + end,
				Metadata:    meta,
			})
			part++
		} else if chunkText != "" && end >= len(text) && len(chunks) > 0 {
			last := &chunks[len(chunks)-1]
			lastPos := last.CharStart - section.StartPos
			prefix := "[" + section.Title + "]\n"
			if part > 2 {
				prefix = "[" + section.Title + " (продолжение)]\n"
			}
			last.Content = prefix + strings.TrimSpace(text[lastPos:end])
			last.CharEnd = section.StartPos + end
		}

		if end >= len(text) {
			break
		}
		next := end - Overlap
		if next <= pos {
			next = pos + 1
		}
		pos = next
	}

	for i := range chunks {
		chunks[i].Metadata["total_parts"] = model.MetaInt(len(chunks))
	}
	if len(chunks) == 0 {
		return []model.Chunk{c.wholeSectionChunk(section, in)}
	}
	return chunks
}

// findSemanticBoundary looks backward from position for a natural cut
// point: for numbered items, the end of a preceding item; otherwise a
// sentence or paragraph boundary.
func findSemanticBoundary(text string, position int, sectionType model.SectionType) int {
	if sectionType == model.SectionNumberedItem {
		searchStart := maxInt(0, position-boundarySearchNumbered)
		for i := position; i > searchStart; i-- {
			if i > 0 && i+1 <= len(text) && text[i-1:i+1] == ".\n" {
				next := i + 1
				for next < len(text) && isSpaceByte(text[next]) {
					next++
				}
				if next < len(text) {
					end := minInt(next+10, len(text))
					if numberedLineRegex.MatchString(text[next:end]) {
						return i + 1
					}
				}
			}
		}
	}
	return findSentenceBoundary(text, position)
}

// findSentenceBoundary searches backward for sentence/paragraph punctuation,
// rejecting abbreviation periods, falling back to the nearest word boundary.
func findSentenceBoundary(text string, position int) int {
	searchStart := maxInt(0, position-boundarySearchSentence)
	for i := position; i > searchStart; i-- {
		if i >= len(text) {
			continue
		}
		ch := text[i]
		switch {
		case ch == '.' || ch == '!' || ch == '?':
			if i+1 < len(text) && isSpaceByte(text[i+1]) && !analyzer.IsAbbreviation(text, i) {
				return i + 1
			}
		case ch == '\n':
			if i+1 < len(text) && (isUpperByte(text[i+1]) || isDigitByte(text[i+1])) {
				return i + 1
			}
		}
	}
	for i := position; i > searchStart; i-- {
		if i < len(text) && isSpaceByte(text[i]) {
			return i
		}
	}
	return position
}

// basicChunks is the fixed-size fallback used when section analysis
// produced nothing usable.
func (c *Chunker) basicChunks(text string, in Input) []model.Chunk {
	if len(text) <= Size {
		return []model.Chunk{{
			DocumentID:  in.DocID,
			Content:     text,
			AccessLevel: in.AccessLevel,
			CharEnd:     len(text),
			Metadata:    model.Metadata{"chunk_type": model.MetaString("basic"), "is_complete_section": model.MetaBool(false)},
		}}
	}
	var chunks []model.Chunk
	pos := 0
	for pos < len(text) {
		end := minInt(pos+Size, len(text))
		if end < len(text) {
			end = findSentenceBoundary(text, end)
		}
		chunkText := strings.TrimSpace(text[pos:end])
		if len(chunkText) >= MinSize || len(chunks) == 0 {
			chunks = append(chunks, model.Chunk{
				DocumentID:  in.DocID,
				Content:     chunkText,
				AccessLevel: in.AccessLevel,
				CharStart:   pos,
				CharEnd:     end,
				Metadata:    model.Metadata{"chunk_type": model.MetaString("basic"), "is_complete_section": model.MetaBool(false)},
			})
		}
		if end >= len(text) {
			break
		}
		next := end - Overlap
		if next <= pos {
			next = pos + 1
		}
		pos = next
	}
	return chunks
}

// processSectionWithTables splits a section's content around the tables it
// contains: plain-text chunks before/after, and per-row table chunks in
// between via the Table Processor.
func (c *Chunker) processSectionWithTables(section model.Section, tables []model.Table, in Input) []model.Chunk {
	var chunks []model.Chunk
	pos := 0
	for _, table := range tables {
		relPos := table.Position - section.StartPos
		if relPos < 0 || relPos > len(section.Content) {
			continue
		}
		if relPos > pos {
			before := strings.TrimSpace(section.Content[pos:relPos])
			if len(before) >= MinSize {
				meta := sectionMetadata(section, "text_before_table", false, nil)
				chunks = append(chunks, model.Chunk{
					DocumentID:  in.DocID,
					Content:     before,
					AccessLevel: in.AccessLevel,
					CharStart:   section.StartPos + pos,
					CharEnd:     section.StartPos + relPos,
					Metadata:    meta,
				})
			}
		}

		enriched := c.tableProc.WithContext(table, section.Content)
		chunks = append(chunks, c.tableProc.Chunks(enriched, in.DocID, in.AccessLevel)...)

		pos = relPos + len(table.TextRepresentation)
	}
	if pos < len(section.Content) {
		after := strings.TrimSpace(section.Content[pos:])
		if len(after) >= MinSize {
			meta := sectionMetadata(section, "text_after_table", false, nil)
			chunks = append(chunks, model.Chunk{
				DocumentID:  in.DocID,
				Content:     after,
				AccessLevel: in.AccessLevel,
				CharStart:   section.StartPos + pos,
				CharEnd:     section.EndPos,
				Metadata:    meta,
			})
		}
	}
	return chunks
}

func sectionMetadata(section model.Section, chunkType string, complete bool, extra map[string]string) model.Metadata {
	m := model.Metadata{
		"section_title":       model.MetaString(section.Title),
		"section_type":        model.MetaString(string(section.Type)),
		"section_level":       model.MetaInt(section.Level),
		"chunk_type":          model.MetaString(chunkType),
		"is_complete_section": model.MetaBool(complete),
	}
	for k, v := range section.Metadata {
		m[k] = model.MetaString(v)
	}
	for k, v := range extra {
		m[k] = model.MetaString(v)
	}
	return m
}

func sectionsText(sections []model.Section) string {
	var parts []string
	for _, s := range sections {
		parts = append(parts, s.Content)
	}
	return strings.Join(parts, "\n")
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

func isSpaceByte(b byte) bool { return b == ' ' || b == '\t' || b == '\n' || b == '\r' }
func isUpperByte(b byte) bool { return b >= 'A' && b <= 'Z' }
func isDigitByte(b byte) bool { return b >= '0' && b <= '9' }
