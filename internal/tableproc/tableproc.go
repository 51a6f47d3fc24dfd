// Package tableproc implements the Table Processor (component C9): it turns
// one parsed model.Table plus its surrounding document text into per-row
// chunks, each carrying the full table context so a single row is
// independently retrievable. Ported from the row-based chunking approach in
// the original table_processor.py (_create_row_based_chunks), which
// replaced an earlier whole-table/paginated-table strategy the original
// kept only as a fallback.
package tableproc

import (
	"fmt"
	"strings"

	"github.com/cortexkb/retrieval-engine/internal/model"
	"github.com/rs/zerolog"
)

const (
	contextBeforeChars = 200
	contextAfterChars  = 100
	// SearchWeight is the fixed relevance boost applied to table-row chunks
	// during hybrid scoring (§4.9): tables rank above ordinary prose.
	SearchWeight = 2.0
)

// Processor extracts context around a table and emits one chunk per row.
type Processor struct {
	log zerolog.Logger
}

// New constructs a Processor.
func New(log zerolog.Logger) *Processor {
	return &Processor{log: log.With().Str("component", "tableproc").Logger()}
}

// WithContext locates table within fullText (by its TextRepresentation, or
// by its first line if an exact match isn't found) and fills in its
// ContextBefore/ContextAfter and Position fields.
func (p *Processor) WithContext(table model.Table, fullText string) model.Table {
	start := strings.Index(fullText, table.TextRepresentation)
	if start == -1 && table.TextRepresentation != "" {
		firstLine := strings.SplitN(table.TextRepresentation, "\n", 2)[0]
		start = strings.Index(fullText, firstLine)
	}
	if start == -1 {
		return table
	}
	end := start + len(table.TextRepresentation)

	beforeStart := maxInt(0, start-contextBeforeChars)
	table.ContextBefore = strings.TrimSpace(fullText[beforeStart:start])

	afterEnd := minInt(len(fullText), end+contextAfterChars)
	table.ContextAfter = strings.TrimSpace(fullText[end:afterEnd])

	table.Position = start
	return table
}

// Title resolves a table's display title from the last non-trivial line of
// its preceding context, falling back to "Таблица".
func Title(contextBefore string) string {
	if contextBefore == "" {
		return "Таблица"
	}
	lines := strings.Split(contextBefore, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if len(line) > 3 && len(line) < 150 {
			return strings.TrimSpace(strings.TrimSuffix(line, ":"))
		}
	}
	return "Таблица"
}

// Chunks emits one chunk per non-empty data row of table, each carrying the
// full table context (document context, table title, column headers) plus
// the row's own data, per §4.9's row-based strategy. Rows are 1-indexed in
// the rendered text and in table_row_index metadata, but 0-indexed in
// ChunkIndex for consistency with the rest of the pipeline.
func (p *Processor) Chunks(table model.Table, docID string, accessLevel int) []model.Chunk {
	title := Title(table.ContextBefore)

	var baseParts []string
	if table.ContextBefore != "" {
		baseParts = append(baseParts, "Контекст документа: "+table.ContextBefore)
	}
	baseParts = append(baseParts, "Таблица: "+title)
	if len(table.Headers) > 0 {
		baseParts = append(baseParts, "Столбцы таблицы: "+strings.Join(table.Headers, " | "))
	}
	baseContext := strings.Join(baseParts, "\n")

	chunks := make([]model.Chunk, 0, len(table.Rows))
	rowIdx := 0
	for _, row := range table.Rows {
		if !hasNonEmptyCell(row) {
			continue
		}

		rowLine, ok := renderRow(table.Headers, row, rowIdx)
		if !ok {
			continue
		}

		parts := []string{baseContext, rowLine}
		if table.ContextAfter != "" {
			parts = append(parts, "Далее в документе: "+table.ContextAfter)
		}
		text := strings.Join(parts, "\n")

		meta := model.Metadata{
			"section_title":      model.MetaString(title),
			"section_type":       model.MetaString(string(model.SectionTableRow)),
			"section_level":      model.MetaInt(1),
			"chunk_type":         model.MetaString("table_row"),
			"is_complete_section": model.MetaBool(false),
			"table_title":        model.MetaString(title),
			"table_headers":      model.MetaList(table.Headers),
			"table_total_rows":   model.MetaInt(table.RowCount),
			"table_total_cols":   model.MetaInt(table.ColCount),
			"table_row_index":    model.MetaInt(rowIdx + 1),
			"table_row_data":     model.MetaList(row),
			"has_table_context":  model.MetaBool(true),
			"context_before":     model.MetaString(table.ContextBefore),
			"context_after":      model.MetaString(table.ContextAfter),
			"content_type":       model.MetaString("structured_data"),
			"search_weight":      model.MetaFloat(SearchWeight),
		}

		chunks = append(chunks, model.Chunk{
			DocumentID:  docID,
			ChunkIndex:  rowIdx,
			Content:     text,
			AccessLevel: accessLevel,
			CharStart:   table.Position,
			CharEnd:     table.Position + len(table.TextRepresentation),
			Metadata:    meta,
		})
		rowIdx++
	}

	for i := range chunks {
		chunks[i].Metadata["total_chunks"] = model.MetaInt(len(chunks))
	}

	if len(chunks) == 0 {
		return p.fallbackChunk(table, title, docID, accessLevel)
	}
	return chunks
}

// renderRow aligns row against headers when their lengths match, rendering
// "header: value" pairs; otherwise it falls back to an index-based listing
// of the row's non-empty cells. Returns ok=false when nothing survives.
func renderRow(headers, row []string, rowIdx int) (string, bool) {
	var details []string
	if len(headers) > 0 && len(row) == len(headers) {
		for i, header := range headers {
			value := strings.TrimSpace(row[i])
			if value != "" {
				details = append(details, fmt.Sprintf("%s: %s", header, value))
			}
		}
	} else {
		for _, cell := range row {
			value := strings.TrimSpace(cell)
			if value != "" {
				details = append(details, value)
			}
		}
	}
	if len(details) == 0 {
		return "", false
	}
	return fmt.Sprintf("Строка %d: %s", rowIdx+1, strings.Join(details, " | ")), true
}

// fallbackChunk emits the whole table as a single chunk when no row
// survived row-based emission (e.g. every row was empty).
func (p *Processor) fallbackChunk(table model.Table, title, docID string, accessLevel int) []model.Chunk {
	p.log.Warn().Str("doc_id", docID).Msg("table produced no row chunks, falling back to whole-table chunk")
	text := title + "\n" + table.TextRepresentation
	return []model.Chunk{{
		DocumentID:  docID,
		ChunkIndex:  0,
		Content:     text,
		AccessLevel: accessLevel,
		CharStart:   table.Position,
		CharEnd:     table.Position + len(table.TextRepresentation),
		Metadata: model.Metadata{
			"section_title":       model.MetaString(title),
			"section_type":        model.MetaString(string(model.SectionFallbackTable)),
			"chunk_type":          model.MetaString("fallback_table"),
			"is_complete_section": model.MetaBool(true),
			"total_chunks":        model.MetaInt(1),
		},
	}}
}

func hasNonEmptyCell(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
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
