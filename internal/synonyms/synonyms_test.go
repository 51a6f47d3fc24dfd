package synonyms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDict() map[string][]string {
	return map[string][]string{
		"копирайтер":  {"автор текстов", "контент-менеджер", "писатель"},
		"база данных": {"бд", "хранилище данных"},
		"клиент":      {"заказчик", "покупатель"},
	}
}

func TestExpandAppendsSynonyms(t *testing.T) {
	e := New(testDict())
	out := e.Expand("кто такой копирайтер", 2)
	assert.Contains(t, out, "копирайтер")
	assert.Contains(t, out, "автор текстов")
	assert.Contains(t, out, "контент-менеджер")
	assert.NotContains(t, out, "писатель")
}

func TestExpandNoMatchReturnsOriginal(t *testing.T) {
	e := New(testDict())
	out := e.Expand("совершенно другой запрос без совпадений", 2)
	assert.Equal(t, "совершенно другой запрос без совпадений", out)
}

func TestExpandSmartWidensForTechnicalQuery(t *testing.T) {
	e := New(testDict())
	require.Equal(t, 3, e.smartMaxSynonyms("работа с базой данных и api"))
	require.Equal(t, DefaultMaxSynonymsPerTerm, e.smartMaxSynonyms("обязанности клиента"))
}

func TestExpandBigramMatch(t *testing.T) {
	e := New(testDict())
	out := e.Expand("где хранится база данных компании", 2)
	assert.Contains(t, out, "бд")
}

func TestLoadMissingFileDegradesToEmpty(t *testing.T) {
	e, err := Load("/nonexistent/path/synonyms.json")
	require.NoError(t, err)
	assert.Equal(t, "query", e.Expand("query", 2))
}
