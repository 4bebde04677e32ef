//go:build property
// +build property

package dispatch

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestEditorProperties checks the reset round trip and the stats laws.
func TestEditorProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	// Property: reset always restores the resolved snippet
	properties.Property("reset round trip", prop.ForAll(
		func(edits []string) bool {
			f := newFixture(t)
			ctx := context.Background()
			inst, _ := f.registry.Get("demo-editor")
			resolved := inst.Text()

			for _, e := range edits {
				inst.ApplyEdit(e)
			}
			f.d.Reset(ctx, "demo-editor")

			return inst.Text() == resolved && !inst.Dirty()
		},
		gen.SliceOf(gen.AnyString()),
	))

	// Property: stats are newlines + 1 and rune count, stable across calls
	properties.Property("stats reflect text", prop.ForAll(
		func(text string) bool {
			f := newFixture(t)
			inst, _ := f.registry.Get("demo-editor")
			inst.ApplyEdit(text)

			lines := f.doc.Find("#demo-editor-lines")[0]
			chars := f.doc.Find("#demo-editor-chars")[0]
			wantLines := strconv.Itoa(strings.Count(text, "\n") + 1)
			wantChars := strconv.Itoa(utf8.RuneCountInString(text))
			first := lines.Text() == wantLines && chars.Text() == wantChars

			f.reporter.UpdateStats("demo-editor")
			f.reporter.UpdateStats("demo-editor")
			return first && lines.Text() == wantLines && chars.Text() == wantChars
		},
		gen.AnyString(),
	))

	// Property: repeated runs never leave more than one preview child
	properties.Property("runs replace the preview", prop.ForAll(
		func(runs int) bool {
			f := newFixture(t)
			ctx := context.Background()
			for i := 0; i < runs; i++ {
				f.d.Run(ctx, "demo-editor")
			}
			return f.previewChildren(t) == 1
		},
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t)
}
