package sink

import (
	"testing"

	"github.com/cortexkb/retrieval-engine/internal/model"
)

func TestFlattenMetadataScalarsAndLists(t *testing.T) {
	meta := model.Metadata{
		"section_type":      model.MetaString("table_row"),
		"chunk_index":        model.MetaInt(3),
		"search_weight":      model.MetaFloat(2.0),
		"is_complete_section": model.MetaBool(false),
		"table_headers":      model.MetaList([]string{"h1", "h2", "h3"}),
	}

	out := flattenMetadata(meta)

	if out["section_type"] != "table_row" {
		t.Fatalf("section_type = %q, want table_row", out["section_type"])
	}
	if out["chunk_index"] != "3" {
		t.Fatalf("chunk_index = %q, want 3", out["chunk_index"])
	}
	if out["table_headers"] != "h1,h2,h3" {
		t.Fatalf("table_headers = %q, want comma-joined", out["table_headers"])
	}
	if out["is_complete_section"] != "false" {
		t.Fatalf("is_complete_section = %q, want false", out["is_complete_section"])
	}
}
