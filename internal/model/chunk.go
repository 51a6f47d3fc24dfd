// Package model holds the data types shared across ingestion and retrieval:
// chunks, documents, sections, tables and the transient records produced by
// a search.
package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SectionType enumerates the structural role a chunk or section plays within
// its source document.
type SectionType string

const (
	SectionHeader          SectionType = "header"
	SectionParagraph       SectionType = "paragraph"
	SectionNumberedItem    SectionType = "numbered_item"
	SectionLetteredItem    SectionType = "lettered_item"
	SectionSignatures      SectionType = "signatures"
	SectionTable           SectionType = "table"
	SectionTableRow        SectionType = "table_row"
	SectionTextBeforeTable SectionType = "text_before_table"
	SectionTextAfterTable  SectionType = "text_after_table"
	SectionPart            SectionType = "section_part"
	SectionComplete         SectionType = "complete_section"
	SectionOrderDirective  SectionType = "order_directive"
	SectionFallbackTable   SectionType = "fallback_table"
)

// DocumentType classifies a document for specialized extraction.
type DocumentType string

const (
	DocTypeOrder       DocumentType = "order"
	DocTypeInstruction DocumentType = "instruction"
	DocTypeContract    DocumentType = "contract"
	DocTypeReport      DocumentType = "report"
	DocTypeGeneral     DocumentType = "general"
)

// MetaValue is a sum type over the scalar kinds a chunk's metadata map may
// hold, plus a list-of-strings arm. It keeps the metadata map honest (no
// inheritance hierarchy of metadata "kinds") while still serializing cleanly
// to stores that only understand flat string maps.
type MetaValue struct {
	str    string
	isList bool
	list   []string
	set    bool
}

// MetaString wraps a scalar string (numbers/bools are also carried as their
// string form — the metadata map is deliberately weakly typed per the data
// model).
func MetaString(v string) MetaValue { return MetaValue{str: v, set: true} }

// MetaInt wraps an integer scalar.
func MetaInt(v int) MetaValue { return MetaValue{str: strconv.Itoa(v), set: true} }

// MetaFloat wraps a float scalar.
func MetaFloat(v float64) MetaValue { return MetaValue{str: strconv.FormatFloat(v, 'f', -1, 64), set: true} }

// MetaBool wraps a boolean scalar.
func MetaBool(v bool) MetaValue { return MetaValue{str: strconv.FormatBool(v), set: true} }

// MetaList wraps an ordered list of strings, serialized comma-joined for
// stores that disallow arrays.
func MetaList(vs []string) MetaValue { return MetaValue{list: vs, isList: true, set: true} }

// IsZero reports whether the value was never set.
func (m MetaValue) IsZero() bool { return !m.set }

// String renders the value the way it is persisted: scalars as-is, lists
// comma-joined.
func (m MetaValue) String() string {
	if m.isList {
		return strings.Join(m.list, ",")
	}
	return m.str
}

// List returns the list form, splitting a comma-joined scalar if necessary.
func (m MetaValue) List() []string {
	if m.isList {
		return m.list
	}
	if m.str == "" {
		return nil
	}
	return strings.Split(m.str, ",")
}

// Int parses the scalar as an integer.
func (m MetaValue) Int() (int, error) { return strconv.Atoi(m.str) }

// Metadata is the flat key→scalar map described in the data model. List
// fields are serialized as comma-joined strings when persisted.
type Metadata map[string]MetaValue

// Get returns the stored value for key, or the zero MetaValue if absent.
func (m Metadata) Get(key string) MetaValue { return m[key] }

// GetString is a convenience accessor returning the empty string for an
// absent key.
func (m Metadata) GetString(key string) string { return m[key].String() }

// Chunk is the atomic retrieval unit.
type Chunk struct {
	DocumentID  string
	ChunkIndex  int
	Content     string
	AccessLevel int
	CharStart   int
	CharEnd     int
	Metadata    Metadata
	CreatedAt   time.Time
}

// ID formats the chunk's composite identifier as required by §3 and §6:
// "{document_id}_{chunk_index}".
func (c *Chunk) ID() string {
	return fmt.Sprintf("%s_%d", c.DocumentID, c.ChunkIndex)
}

// CharCount returns the chunk's content length in the same units char_start
// and char_end are expressed in.
func (c *Chunk) CharCount() int {
	return c.CharEnd - c.CharStart
}

// DocumentStatus tracks a document's processing lifecycle.
type DocumentStatus string

const (
	DocumentPending    DocumentStatus = "PENDING"
	DocumentProcessing DocumentStatus = "PROCESSING"
	DocumentCompleted  DocumentStatus = "COMPLETED"
	DocumentError      DocumentStatus = "ERROR"
)

// Document is the durable record a document's ingest produces and owns.
type Document struct {
	ID          string
	Title       string
	AccessLevel int
	Status      DocumentStatus
	ChunkCount  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Section is a contiguous, semantically meaningful span of raw document
// text. Transient: it lives only for the duration of one ingest.
type Section struct {
	Title    string
	Content  string
	Level    int
	Type     SectionType
	StartPos int
	EndPos   int
	Metadata map[string]string
}

// Table is the structured view of a parsed table, aligned rows against
// ordered headers, plus the surrounding text needed to give a row-level
// chunk context.
type Table struct {
	Headers         []string
	Rows            [][]string
	RowCount        int
	ColCount        int
	HasMergedCells  bool
	TextRepresentation string
	ContextBefore   string
	ContextAfter    string
	// Position is the table's byte offset in the document that produced it.
	Position int
}

// SearchResult is the transient record threaded through one query's vector
// leg, lexical leg, fusion and rerank stages. Only RerankScore is used for
// filtering; everything else is observational, kept for the sources the
// caller sees and for property tests.
type SearchResult struct {
	ID             string
	Content        string
	Metadata       Metadata
	VectorSimilarity float64
	BM25Score      float64
	RRFScore       float64
	RerankScore    float64
	RawLogit       float64
	FinalRank      int
	InBothLists    bool
}
