// Package docparse selects a file-format parser by extension and extracts
// plain text plus any structured tables a document carries (§4.11 step 1-2:
// "Select a parser by file extension; fail fast on unsupported extension").
//
// The spec treats format-specific parsing as an external collaborator
// satisfied through an abstract contract (§1 "Out of scope... file parsers
// for specific formats (DOCX/CSV/JSON) beyond the contract they must
// satisfy"); this package defines that contract (Parser) and ships small,
// genuinely functional implementations for the formats named in the
// external-interfaces table, built entirely on the standard library.
package docparse

import (
	"archive/zip"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cortexkb/retrieval-engine/internal/model"
)

// Result is one parsed document: its plain text (what the Analyzer and
// Chunker operate on) plus any structured tables extracted alongside it.
type Result struct {
	Text   string
	Tables []model.Table
}

// Parser extracts a Result from a file's raw bytes.
type Parser interface {
	Parse(data []byte) (Result, error)
}

// Registry maps a lowercased file extension (including the leading dot) to
// the Parser that handles it.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry builds a Registry pre-populated with the txt/md, csv, json
// and docx parsers named in the spec's external-interfaces table.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	r.Register(".txt", TextParser{})
	r.Register(".md", TextParser{})
	r.Register(".csv", CSVParser{})
	r.Register(".json", JSONParser{})
	r.Register(".docx", DOCXParser{})
	return r
}

// Register adds or replaces the parser for ext.
func (r *Registry) Register(ext string, p Parser) {
	r.parsers[strings.ToLower(ext)] = p
}

// ParseFile selects a parser by filePath's extension and parses its
// contents, failing fast if the extension is unregistered (§4.11 step 1)
// or the file is empty (§7 "Fatal... zero bytes from parser").
func (r *Registry) ParseFile(filePath string) (Result, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	p, ok := r.parsers[ext]
	if !ok {
		return Result{}, fmt.Errorf("docparse: unsupported file extension %q", ext)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return Result{}, fmt.Errorf("docparse: read %s: %w", filePath, err)
	}
	if len(data) == 0 {
		return Result{}, fmt.Errorf("docparse: %s is empty", filePath)
	}
	return p.Parse(data)
}

// TextParser handles plain text and Markdown: the file's content is the
// document text verbatim.
type TextParser struct{}

// Parse implements Parser.
func (TextParser) Parse(data []byte) (Result, error) {
	return Result{Text: string(data)}, nil
}

// CSVParser treats the whole file as a single table: the first row is
// headers, the rest are data rows, consistent with the Table Processor's
// expectations (§4.9).
type CSVParser struct{}

// Parse implements Parser.
func (CSVParser) Parse(data []byte) (Result, error) {
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return Result{}, fmt.Errorf("docparse: csv: %w", err)
	}
	if len(records) == 0 {
		return Result{}, fmt.Errorf("docparse: csv: no rows")
	}
	headers := records[0]
	rows := records[1:]
	table := model.Table{
		Headers:  headers,
		Rows:     rows,
		RowCount: len(rows),
		ColCount: len(headers),
	}
	var sb strings.Builder
	for _, row := range records {
		sb.WriteString(strings.Join(row, " | "))
		sb.WriteString("\n")
	}
	table.TextRepresentation = sb.String()
	return Result{Text: sb.String(), Tables: []model.Table{table}}, nil
}

// JSONParser flattens a JSON document's scalar properties into
// "key: value" lines, the nearest analogue to the original system's
// property extraction for structured formats.
type JSONParser struct{}

// Parse implements Parser.
func (JSONParser) Parse(data []byte) (Result, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return Result{}, fmt.Errorf("docparse: json: %w", err)
	}
	var sb strings.Builder
	flattenJSON("", doc, &sb)
	return Result{Text: sb.String()}, nil
}

func flattenJSON(prefix string, v any, sb *strings.Builder) {
	switch val := v.(type) {
	case map[string]any:
		for k, vv := range val {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flattenJSON(key, vv, sb)
		}
	case []any:
		for i, vv := range val {
			flattenJSON(fmt.Sprintf("%s[%d]", prefix, i), vv, sb)
		}
	default:
		fmt.Fprintf(sb, "%s: %v\n", prefix, val)
	}
}

// DOCXParser extracts the paragraph text from an Office Open XML document
// by unzipping it and walking word/document.xml's <w:t> text runs —
// DOCX's on-disk format is a zip of XML parts, so the standard library's
// archive/zip and encoding/xml are sufficient without a third-party DOCX
// library.
type DOCXParser struct{}

type docxBody struct {
	XMLName xml.Name   `xml:"document"`
	Paras   []docxPara `xml:"body>p"`
}

type docxPara struct {
	Runs []docxRun `xml:"r"`
}

type docxRun struct {
	Text []string `xml:"t"`
}

// Parse implements Parser.
func (DOCXParser) Parse(data []byte) (Result, error) {
	zr, err := zip.NewReader(strings.NewReader(string(data)), int64(len(data)))
	if err != nil {
		return Result{}, fmt.Errorf("docparse: docx: not a zip archive: %w", err)
	}
	var docXML []byte
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return Result{}, fmt.Errorf("docparse: docx: open document.xml: %w", err)
		}
		docXML, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return Result{}, fmt.Errorf("docparse: docx: read document.xml: %w", err)
		}
		break
	}
	if docXML == nil {
		return Result{}, fmt.Errorf("docparse: docx: word/document.xml not found")
	}

	var body docxBody
	if err := xml.Unmarshal(docXML, &body); err != nil {
		return Result{}, fmt.Errorf("docparse: docx: parse document.xml: %w", err)
	}

	var sb strings.Builder
	for _, p := range body.Paras {
		var para strings.Builder
		for _, r := range p.Runs {
			for _, t := range r.Text {
				para.WriteString(t)
			}
		}
		sb.WriteString(para.String())
		sb.WriteString("\n")
	}
	return Result{Text: sb.String()}, nil
}
