package docparse

import (
	"archive/zip"
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestTextParserReturnsContentVerbatim(t *testing.T) {
	res, err := TextParser{}.Parse([]byte("Копирайтер отвечает за тексты.\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "Копирайтер отвечает за тексты.\n" {
		t.Fatalf("text mismatch: %q", res.Text)
	}
}

func TestCSVParserBuildsSingleTable(t *testing.T) {
	csvData := "name,role\nAnton,Copywriter\nMaria,Editor\n"
	res, err := CSVParser{}.Parse([]byte(csvData))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(res.Tables))
	}
	table := res.Tables[0]
	if len(table.Headers) != 2 || table.Headers[0] != "name" {
		t.Fatalf("unexpected headers: %v", table.Headers)
	}
	if table.RowCount != 2 {
		t.Fatalf("row count = %d, want 2", table.RowCount)
	}
}

func TestJSONParserFlattensScalars(t *testing.T) {
	res, err := JSONParser{}.Parse([]byte(`{"title": "Order 1", "level": 50}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.Text, "title: Order 1") {
		t.Fatalf("missing flattened title: %q", res.Text)
	}
	if !strings.Contains(res.Text, "level: 50") {
		t.Fatalf("missing flattened level: %q", res.Text)
	}
}

func TestRegistrySelectsByExtension(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.parsers[".txt"]; !ok {
		t.Fatal("expected .txt registered")
	}
	if _, ok := r.parsers[".docx"]; !ok {
		t.Fatal("expected .docx registered")
	}
}

func buildMinimalDOCX(t *testing.T, paragraphText string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create zip entry: %v", err)
	}
	xmlBody := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<document xmlns="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <body>
    <p><r><t>` + paragraphText + `</t></r></p>
  </body>
</document>`
	if _, err := w.Write([]byte(xmlBody)); err != nil {
		t.Fatalf("write zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestDOCXParserExtractsParagraphText(t *testing.T) {
	data := buildMinimalDOCX(t, "Копирайтер отвечает за тексты.")
	res, err := DOCXParser{}.Parse(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.Text, "Копирайтер отвечает за тексты.") {
		t.Fatalf("missing paragraph text: %q", res.Text)
	}
}

func TestParseFileFailsFastOnUnsupportedExtension(t *testing.T) {
	r := NewRegistry()
	dir := t.TempDir()
	path := dir + "/unknown.xyz"
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}
	if _, err := r.ParseFile(path); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}
