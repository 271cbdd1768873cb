package assistant

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestSnippetLookup(t *testing.T) {
	d := NewDispatcher()

	code, ok := d.Snippet(CSS, "grid")
	assert.True(t, ok)
	assert.Equal(t, cssGridSnippet, code)

	code, ok = d.Snippet(CSS, "table")
	assert.False(t, ok)
	assert.Equal(t, SnippetNotFound, code)

	code, ok = d.Snippet(ParseLanguage("cobol"), "grid")
	assert.False(t, ok)
	assert.Equal(t, "Snippet not found", code)
}

func TestSnippetNamesAreOrdered(t *testing.T) {
	d := NewDispatcher()
	want := map[Language][]string{
		JavaScript: {"react component", "async function", "express route"},
		Python:     {"function", "class", "flask route"},
		HTML:       {"basic structure", "form"},
		CSS:        {"flexbox", "grid"},
	}
	for lang, names := range want {
		if diff := cmp.Diff(names, d.SnippetNames(lang)); diff != "" {
			t.Errorf("%s names mismatch (-want +got):\n%s", lang, diff)
		}
	}

	unknown := d.SnippetNames(ParseLanguage("go"))
	assert.NotNil(t, unknown)
	assert.Empty(t, unknown)
}

func TestEveryListedSnippetResolves(t *testing.T) {
	d := NewDispatcher()
	for _, lang := range Languages {
		for _, name := range d.SnippetNames(lang) {
			code, ok := d.Snippet(lang, name)
			assert.True(t, ok, "%s/%s", lang, name)
			assert.NotEmpty(t, code)
		}
	}
}

func TestParseLanguage(t *testing.T) {
	assert.Equal(t, JavaScript, ParseLanguage(""))
	assert.Equal(t, Python, ParseLanguage(" Python "))
	assert.True(t, ParseLanguage("HTML").Registered())

	other := ParseLanguage("Kotlin")
	assert.Equal(t, Language("kotlin"), other)
	assert.False(t, other.Registered())
}
