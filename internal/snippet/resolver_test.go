package snippet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferLanguage(t *testing.T) {
	tests := []struct {
		id   string
		want Language
	}{
		{"demo-editor", LanguageMarkup},
		{"css-selectors-editor", LanguageStyle},
		{"flexbox-CSS-editor", LanguageStyle},
		{"javascript-events-editor", LanguageScript},
		{"js-editor", LanguageScript},
		{"json-editor", LanguageMarkup},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, InferLanguage(tt.id))
		})
	}
}

func TestParseLanguage(t *testing.T) {
	for in, want := range map[string]Language{
		"html":       LanguageMarkup,
		"CSS":        LanguageStyle,
		"javascript": LanguageScript,
		"script":     LanguageScript,
	} {
		got, err := ParseLanguage(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLanguage("python")
	assert.Error(t, err)
}

func TestConfigFor(t *testing.T) {
	inferred := ConfigFor("css-grid-editor", "", "")
	assert.Equal(t, Config{ID: "css-grid-editor", Language: LanguageStyle, Section: "css-grid"}, inferred)

	explicit := ConfigFor("demo-editor", "js", "events")
	assert.Equal(t, Config{ID: "demo-editor", Language: LanguageScript, Section: "events"}, explicit)

	invalid := ConfigFor("demo-editor", "cobol", "")
	assert.Equal(t, LanguageMarkup, invalid.Language)
}

func TestResolver_Resolve(t *testing.T) {
	r := NewResolver(Table{
		"demo":   {Source: "<button>Click</button>", Language: LanguageMarkup},
		"colors": {Source: "p { color: red; }"},
	})

	t.Run("table entry", func(t *testing.T) {
		got := r.Resolve(ConfigFor("demo-editor", "", ""))
		assert.Equal(t, Snippet{Source: "<button>Click</button>", Language: LanguageMarkup}, got)
	})

	t.Run("entry without language takes the editor's", func(t *testing.T) {
		got := r.Resolve(Config{ID: "colors-editor", Language: LanguageStyle})
		assert.Equal(t, LanguageStyle, got.Language)
	})

	t.Run("missing section degrades to placeholder", func(t *testing.T) {
		assert.Equal(t,
			Snippet{Source: "/* css-flex example */", Language: LanguageStyle},
			r.Resolve(ConfigFor("css-flex-editor", "", "")))
		assert.Equal(t,
			Snippet{Source: "<!-- forms example -->", Language: LanguageMarkup},
			r.Resolve(ConfigFor("forms-editor", "", "")))
	})

	t.Run("placeholder is deterministic", func(t *testing.T) {
		cfg := ConfigFor("javascript-loops-editor", "", "")
		assert.Equal(t, r.Resolve(cfg), r.Resolve(cfg))
	})
}

func TestResolver_CopiesTable(t *testing.T) {
	table := Table{"demo": {Source: "a", Language: LanguageMarkup}}
	r := NewResolver(table)
	table["demo"] = Snippet{Source: "b", Language: LanguageMarkup}

	assert.Equal(t, "a", r.Resolve(ConfigFor("demo-editor", "", "")).Source)
	assert.Equal(t, []string{"demo"}, r.Sections())
	assert.True(t, r.Has("demo"))
}
