package analyzer

import (
	"testing"

	"github.com/cortexkb/retrieval-engine/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestDetectDocumentTypeOrder(t *testing.T) {
	a := New(zerolog.Nop())
	meta, _ := a.Analyze("ПРИКАЗ №15-к от 01.02.2024\n\nПРИКАЗЫВАЮ:\n1. Утвердить регламент.")
	require.Equal(t, model.DocTypeOrder, meta.Type)
	require.Equal(t, "15-к", meta.Number)
	require.Equal(t, "01.02.2024", meta.Date)
}

func TestDetectDocumentTypeInstruction(t *testing.T) {
	a := New(zerolog.Nop())
	meta, _ := a.Analyze("ДОЛЖНОСТНАЯ ИНСТРУКЦИЯ копирайтера\n\n1. Общие положения")
	require.Equal(t, model.DocTypeInstruction, meta.Type)
}

func TestDetectDocumentTypeContract(t *testing.T) {
	a := New(zerolog.Nop())
	meta, _ := a.Analyze("ДОГОВОР поставки №7\n\n1. Предмет договора")
	require.Equal(t, model.DocTypeContract, meta.Type)
}

func TestDetectDocumentTypeGeneralFallback(t *testing.T) {
	a := New(zerolog.Nop())
	meta, _ := a.Analyze("Обычный текст без маркеров структуры документа.")
	require.Equal(t, model.DocTypeGeneral, meta.Type)
}

func TestExtractMetadataOrganizationAndRequisites(t *testing.T) {
	a := New(zerolog.Nop())
	text := `ДОГОВОР №12
ООО "Ромашка"
ИНН: 7701234567
ОГРН: 1027700132195
КПП: 770101001`
	meta, _ := a.Analyze(text)
	require.Equal(t, `ООО "Ромашка"`, meta.Organization)
	require.Equal(t, "7701234567", meta.INN)
	require.Equal(t, "1027700132195", meta.OGRN)
	require.Equal(t, "770101001", meta.KPP)
}

func TestAnalyzeStructureNumberedItems(t *testing.T) {
	a := New(zerolog.Nop())
	text := "ПРИКАЗ\n\n1. Первый пункт приказа.\n2. Второй пункт приказа.\n2.1. Подпункт второго пункта."
	_, sections := a.Analyze(text)
	require.GreaterOrEqual(t, len(sections), 3)
	var numbered int
	for _, s := range sections {
		if s.Type == model.SectionNumberedItem {
			numbered++
		}
	}
	require.Equal(t, 3, numbered)
}

func TestAnalyzeStructureOrderDirectiveAndSignatures(t *testing.T) {
	a := New(zerolog.Nop())
	text := "ПРИКАЗ\n\nПРИКАЗЫВАЮ:\n1. Сделать.\n\nГенеральный директор Иванов И.И."
	_, sections := a.Analyze(text)
	var hasDirective, hasSignatures bool
	for _, s := range sections {
		if s.Type == model.SectionOrderDirective {
			hasDirective = true
		}
		if s.Type == model.SectionSignatures {
			hasSignatures = true
		}
	}
	require.True(t, hasDirective)
	require.True(t, hasSignatures)
}

func TestAnalyzeStructureFallsBackToSingleSection(t *testing.T) {
	a := New(zerolog.Nop())
	_, sections := a.Analyze("просто текст без маркеров совсем\nвторая строка тоже простая")
	require.Len(t, sections, 1)
	require.Equal(t, "Документ", sections[0].Title)
}

func TestOptimalChunkSizeByType(t *testing.T) {
	require.Equal(t, 500, OptimalChunkSize(model.Section{Type: model.SectionHeader, Content: string(make([]byte, 1000))}))
	require.Equal(t, 600, OptimalChunkSize(model.Section{Type: model.SectionNumberedItem, Content: string(make([]byte, 500))}))
	require.Equal(t, 1000, OptimalChunkSize(model.Section{Type: model.SectionParagraph, Content: string(make([]byte, 2000))}))
}

func TestShouldKeepTogether(t *testing.T) {
	require.True(t, ShouldKeepTogether(model.Section{Type: model.SectionHeader, Content: string(make([]byte, 1000))}))
	require.False(t, ShouldKeepTogether(model.Section{Type: model.SectionTable, Content: string(make([]byte, 1000))}))
	require.True(t, ShouldKeepTogether(model.Section{Type: model.SectionParagraph, Content: "short"}))
}

func TestIsAbbreviation(t *testing.T) {
	text := "см. приложение 1"
	require.True(t, IsAbbreviation(text, 2))
}
