package tableproc

import (
	"testing"

	"github.com/cortexkb/retrieval-engine/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestWithContextExtractsBeforeAndAfter(t *testing.T) {
	p := New(zerolog.Nop())
	full := "Штатное расписание отдела:\n" + "Таблица\nФИО | Должность\nИванов | Менеджер" + "\nДалее следует текст приказа."
	table := model.Table{
		TextRepresentation: "Таблица\nФИО | Должность\nИванов | Менеджер",
		Headers:            []string{"ФИО", "Должность"},
		Rows:                [][]string{{"Иванов", "Менеджер"}},
		RowCount:            1,
		ColCount:            2,
	}
	out := p.WithContext(table, full)
	require.Contains(t, out.ContextBefore, "Штатное расписание отдела")
	require.Contains(t, out.ContextAfter, "Далее следует текст приказа")
}

func TestTitleFallsBackWhenNoContext(t *testing.T) {
	require.Equal(t, "Таблица", Title(""))
}

func TestTitlePicksLastNonTrivialLine(t *testing.T) {
	require.Equal(t, "Штатное расписание", Title("преамбула\nШтатное расписание:"))
}

func TestChunksOneChunkPerRow(t *testing.T) {
	p := New(zerolog.Nop())
	table := model.Table{
		Headers: []string{"ФИО", "Должность"},
		Rows: [][]string{
			{"Иванов И.И.", "Менеджер"},
			{"Петров П.П.", "Директор"},
		},
		RowCount: 2,
		ColCount: 2,
	}
	chunks := p.Chunks(table, "doc1", 10)
	require.Len(t, chunks, 2)
	require.Contains(t, chunks[0].Content, "Столбцы таблицы: ФИО | Должность")
	require.Contains(t, chunks[0].Content, "Строка 1: ФИО: Иванов И.И. | Должность: Менеджер")
	require.Equal(t, 10, chunks[0].AccessLevel)
	require.Equal(t, "table_row", chunks[0].Metadata.GetString("chunk_type"))
	require.Equal(t, "2", chunks[0].Metadata.GetString("total_chunks"))
}

func TestChunksSkipsEmptyRows(t *testing.T) {
	p := New(zerolog.Nop())
	table := model.Table{
		Headers: []string{"A", "B"},
		Rows:    [][]string{{"", ""}, {"x", "y"}},
	}
	chunks := p.Chunks(table, "doc1", 10)
	require.Len(t, chunks, 1)
}

func TestChunksFallsBackOnHeaderMismatch(t *testing.T) {
	p := New(zerolog.Nop())
	table := model.Table{
		Headers: []string{"A", "B", "C"},
		Rows:    [][]string{{"x", "y"}},
	}
	chunks := p.Chunks(table, "doc1", 10)
	require.Len(t, chunks, 1)
	require.Contains(t, chunks[0].Content, "Строка 1: x | y")
}

func TestChunksFallbackWhenNoRowsSurvive(t *testing.T) {
	p := New(zerolog.Nop())
	table := model.Table{
		TextRepresentation: "empty table text",
		Rows:               [][]string{{"", ""}},
	}
	chunks := p.Chunks(table, "doc1", 10)
	require.Len(t, chunks, 1)
	require.Equal(t, "fallback_table", chunks[0].Metadata.GetString("chunk_type"))
}
