package sandbox

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/conneroisu/livecode/internal/dom"
	"github.com/conneroisu/livecode/internal/editor"
	"github.com/conneroisu/livecode/internal/logging"
	"github.com/conneroisu/livecode/internal/snippet"
)

const page = `<html><body>
<div id="demo-editor" class="code-editor"></div>
<div id="demo-editor-preview-content"></div>
<div id="error-display-demo-editor"><span class="error-message">old</span></div>
<div id="css-basics-editor" class="code-editor"></div>
<div id="css-basics-editor-preview-content"></div>
<div id="js-events-editor" class="code-editor"></div>
<div id="js-events-editor-preview-content"></div>
<div id="notes-editor" class="code-editor"></div>
</body></html>`

type surface struct{ hidden []string }

func (s *surface) HideError(id string) { s.hidden = append(s.hidden, id) }

type observer struct{ outcomes []string }

func (o *observer) ObserveRun(lang, outcome string, _ time.Duration) {
	o.outcomes = append(o.outcomes, lang+":"+outcome)
}

type fixture struct {
	doc      *dom.Document
	registry *editor.Registry
	surface  *surface
	observer *observer
	sandbox  *Sandbox
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	doc, err := dom.ParseString(page)
	require.NoError(t, err)

	resolver := snippet.NewResolver(snippet.Table{
		"demo":       {Source: "<button>Click</button>", Language: snippet.LanguageMarkup},
		"css-basics": {Source: "button { color: red; }", Language: snippet.LanguageStyle},
		"js-events":  {Source: "document.getElementById('output').textContent = 'hi';", Language: snippet.LanguageScript},
	})
	reg := editor.NewRegistry(doc, resolver, logging.Nop())
	reg.InitializeAll(context.Background())

	f := &fixture{doc: doc, registry: reg, surface: &surface{}, observer: &observer{}}
	opts = append([]Option{WithObserver(f.observer)}, opts...)
	f.sandbox = New(doc, reg, f.surface, logging.Nop(), opts...)
	return f
}

func (f *fixture) preview(t *testing.T, id string) *dom.Element {
	t.Helper()
	el, ok := f.doc.ByID(dom.PreviewID(id))
	require.True(t, ok)
	return el
}

func (f *fixture) frame(t *testing.T, id string) *dom.Element {
	t.Helper()
	el, ok := f.preview(t, id).Find("iframe")
	require.True(t, ok, "preview of %s has no frame", id)
	return el
}

func TestExecute_RendersFrame(t *testing.T) {
	f := newFixture(t)
	var patches []dom.Patch
	f.doc.Subscribe(func(p dom.Patch) { patches = append(patches, p) })

	res := f.sandbox.Execute(context.Background(), "demo-editor")
	require.True(t, res.OK(), res.Message)
	assert.Equal(t, 1, f.sandbox.Generation("demo-editor"))
	assert.Equal(t, []string{"demo-editor"}, f.surface.hidden)

	frame := f.frame(t, "demo-editor")
	assert.True(t, frame.HasClass(dom.PreviewFrameClass))
	run, _ := frame.Attr("data-run")
	assert.Equal(t, "1", run)
	sb, ok := frame.Attr("sandbox")
	require.True(t, ok)
	assert.Equal(t, "allow-scripts allow-modals", sb)
	style, _ := frame.Attr("style")
	assert.Equal(t, "visibility:hidden", style)

	srcdoc, _ := frame.Attr("srcdoc")
	assert.True(t, strings.HasSuffix(srcdoc, "<button>Click</button>"))
	assert.Contains(t, srcdoc, `var ed="demo-editor",run=1;`)

	require.Len(t, patches, 2)
	assert.Equal(t, dom.Patch{Op: dom.PatchHTML, Target: "#demo-editor-preview-content", Content: ""}, patches[0])
	assert.Contains(t, patches[1].Content, "<iframe")

	assert.Equal(t, []string{"markup:success"}, f.observer.outcomes)
}

func TestExecute_ReplacesPreviousFrame(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.True(t, f.sandbox.Execute(ctx, "demo-editor").OK())
	require.True(t, f.sandbox.Execute(ctx, "demo-editor").OK())

	preview := f.preview(t, "demo-editor")
	assert.Equal(t, 1, preview.ChildCount())
	run, _ := f.frame(t, "demo-editor").Attr("data-run")
	assert.Equal(t, "2", run)
}

func TestExecute_ComposesByLanguage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.True(t, f.sandbox.Execute(ctx, "css-basics-editor").OK())
	srcdoc, _ := f.frame(t, "css-basics-editor").Attr("srcdoc")
	assert.Contains(t, srcdoc, "<style>\nbutton { color: red; }\n</style>")
	assert.Contains(t, srcdoc, `<main class="sample">`)

	require.True(t, f.sandbox.Execute(ctx, "js-events-editor").OK())
	srcdoc, _ = f.frame(t, "js-events-editor").Attr("srcdoc")
	assert.Contains(t, srcdoc, `<div id="output"></div><script>`)
	assert.Contains(t, srcdoc, "textContent = 'hi';")
}

func TestExecute_OpenIsolation(t *testing.T) {
	f := newFixture(t, WithIsolation(IsolationOpen))
	assert.Equal(t, IsolationOpen, f.sandbox.Isolation())

	require.True(t, f.sandbox.Execute(context.Background(), "demo-editor").OK())
	_, ok := f.frame(t, "demo-editor").Attr("sandbox")
	assert.False(t, ok)
}

func TestExecute_UnknownIsolationKeepsStrict(t *testing.T) {
	f := newFixture(t, WithIsolation("porous"))
	assert.Equal(t, IsolationStrict, f.sandbox.Isolation())
}

func TestExecute_Aborted(t *testing.T) {
	f := newFixture(t)

	res := f.sandbox.Execute(context.Background(), "ghost-editor")
	assert.Equal(t, KindAborted, res.Kind)
	assert.Empty(t, f.surface.hidden)
	assert.Empty(t, f.observer.outcomes)
}

func TestExecute_SkippedWithoutPreview(t *testing.T) {
	f := newFixture(t)

	res := f.sandbox.Execute(context.Background(), "notes-editor")
	assert.Equal(t, KindSkipped, res.Kind)
	assert.Equal(t, 0, f.sandbox.Generation("notes-editor"))
}

func TestExecute_MalformedMarkup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.True(t, f.sandbox.Execute(ctx, "demo-editor").OK())

	inst, _ := f.registry.Get("demo-editor")
	inst.ApplyEdit("<butt")

	res := f.sandbox.Execute(ctx, "demo-editor")
	require.True(t, res.Failed())
	assert.Contains(t, res.Message, "unexpected end of input inside tag")
	assert.Equal(t, 0, f.preview(t, "demo-editor").ChildCount())

	inst.SetText("<button>Click</button>")
	require.True(t, f.sandbox.Execute(ctx, "demo-editor").OK())
	assert.Equal(t, 1, f.preview(t, "demo-editor").ChildCount())
	assert.Equal(t, []string{"markup:success", "markup:failure", "markup:success"}, f.observer.outcomes)
}

func TestExecute_ScriptWarningStillBuildsFrame(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inst, _ := f.registry.Get("js-events-editor")

	inst.SetText("const r = /a/v;\nconsole.log(r.test('a'));")
	res := f.sandbox.Execute(ctx, "js-events-editor")
	require.True(t, res.OK())
	srcdoc, _ := f.frame(t, "js-events-editor").Attr("srcdoc")
	assert.Contains(t, srcdoc, "/a/v")

	inst.SetText("let = ;")
	res = f.sandbox.Execute(ctx, "js-events-editor")
	require.True(t, res.OK())
	assert.Contains(t, res.Warning, "script syntax error")
	srcdoc, _ = f.frame(t, "js-events-editor").Attr("srcdoc")
	assert.Contains(t, srcdoc, "let = ;")
	assert.Equal(t, 1, f.preview(t, "js-events-editor").ChildCount())
	assert.Equal(t, 2, f.sandbox.Generation("js-events-editor"))
}

func TestExecute_RecoversPanic(t *testing.T) {
	f := newFixture(t)
	f.sandbox.build = func(string, int, snippet.Language, string, Isolation) *html.Node {
		panic("frame builder exploded")
	}

	var res Result
	require.NotPanics(t, func() {
		res = f.sandbox.Execute(context.Background(), "demo-editor")
	})
	assert.True(t, res.Failed())
	assert.Contains(t, res.Message, "frame builder exploded")
}

func TestHandleFrameEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, ok := f.sandbox.HandleFrameEvent(ctx, FrameEvent{Editor: "demo-editor", Run: 1, Event: EventLoaded})
	assert.False(t, ok, "no run yet")

	f.sandbox.Execute(ctx, "demo-editor")
	f.sandbox.Execute(ctx, "demo-editor")

	_, ok = f.sandbox.HandleFrameEvent(ctx, FrameEvent{Editor: "demo-editor", Run: 1, Event: EventError, Message: "stale"})
	assert.False(t, ok, "stale run must be dropped")

	res, ok := f.sandbox.HandleFrameEvent(ctx, FrameEvent{Editor: "demo-editor", Run: 2, Event: EventError, Message: "ReferenceError: x is not defined"})
	require.True(t, ok)
	assert.True(t, res.Failed())
	assert.Equal(t, "ReferenceError: x is not defined", res.Message)

	_, ok = f.sandbox.HandleFrameEvent(ctx, FrameEvent{Editor: "demo-editor", Run: 2, Event: EventLoaded})
	assert.False(t, ok, "load after an error keeps the failure")

	f.sandbox.Execute(ctx, "demo-editor")
	res, ok = f.sandbox.HandleFrameEvent(ctx, FrameEvent{Editor: "demo-editor", Run: 3, Event: EventLoaded})
	require.True(t, ok)
	assert.True(t, res.OK())

	_, ok = f.sandbox.HandleFrameEvent(ctx, FrameEvent{Editor: "demo-editor", Run: 3, Event: "resize"})
	assert.False(t, ok)
}

func TestCompose_MarkupWithHead(t *testing.T) {
	out := Compose("a-editor", 4, snippet.LanguageMarkup, "<html><head><title>x</title></head><body></body></html>")
	assert.True(t, strings.HasPrefix(out, "<html><head><script>(function(){var ed=\"a-editor\",run=4;"))
	assert.Contains(t, out, "</script><title>x</title>")
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "success", KindSuccess.String())
	assert.Equal(t, "failure", KindFailure.String())
	assert.Equal(t, "skipped", KindSkipped.String())
	assert.Equal(t, "aborted", KindAborted.String())
	assert.Equal(t, "kind(9)", Kind(9).String())
}
