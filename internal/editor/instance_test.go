package editor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/conneroisu/livecode/internal/snippet"
)

func TestInstance_Counts(t *testing.T) {
	tests := []struct {
		text  string
		lines int
		chars int
	}{
		{"", 1, 0},
		{"a", 1, 1},
		{"a\nb", 2, 3},
		{"a\n", 2, 2},
		{"héllo\n世界", 2, 8},
		// Code points, not UTF-16 units: the emoji is one, not two.
		{"ok 👍", 1, 4},
	}

	for _, tt := range tests {
		inst := newInstance(snippet.ConfigFor("x-editor", "", ""), snippet.Snippet{Source: tt.text}, nil)
		assert.Equal(t, tt.lines, inst.LineCount(), "%q", tt.text)
		assert.Equal(t, tt.chars, inst.CharCount(), "%q", tt.text)
	}
}

func TestInstance_MutationsNotifyOnce(t *testing.T) {
	widget := &recordingWidget{}
	inst := newInstance(snippet.ConfigFor("demo-editor", "", ""), snippet.Snippet{Source: "<p>a</p>", Language: snippet.LanguageMarkup}, widget)

	calls := 0
	inst.OnChange(func(*Instance) { calls++ })

	inst.ApplyEdit("<p>b</p>")
	assert.Equal(t, 1, calls)
	assert.Empty(t, widget.values, "edits from the widget are not echoed")
	assert.True(t, inst.Dirty())

	inst.SetText(inst.Original())
	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{"<p>a</p>"}, widget.values)
	assert.False(t, inst.Dirty())
	assert.Equal(t, StatusReady, inst.Status(), "SetText does not execute")
}
