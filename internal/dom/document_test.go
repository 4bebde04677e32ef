package dom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const page = `<!DOCTYPE html>
<html><head><title>t</title></head><body>
<div class="editor-container">
  <div id="demo-editor" class="code-editor"></div>
  <div class="control-panel">
    <span class="status-indicator status-info"></span><span class="status-text">Ready</span>
    <button data-action="run" data-editor="demo-editor">Run</button>
  </div>
  <span id="demo-editor-lines">0</span>
  <div id="demo-editor-preview-content"><p>old</p><p>older</p></div>
  <div id="error-display-demo-editor" class="hidden"><span class="error-message"></span></div>
</div>
</body></html>`

func parse(t *testing.T) (*Document, *[]Patch) {
	t.Helper()
	doc, err := ParseString(page)
	require.NoError(t, err)
	var patches []Patch
	doc.Subscribe(func(p Patch) { patches = append(patches, p) })
	return doc, &patches
}

func TestNaming(t *testing.T) {
	assert.Equal(t, "demo-editor-lines", LinesID("demo-editor"))
	assert.Equal(t, "demo-editor-chars", CharsID("demo-editor"))
	assert.Equal(t, "demo-editor-preview-content", PreviewID("demo-editor"))
	assert.Equal(t, "error-display-demo-editor", ErrorDisplayID("demo-editor"))
	assert.Equal(t, `[data-action="copy"][data-editor="demo-editor"]`, ActionSelector("copy", "demo-editor"))
}

func TestDocument_ByID(t *testing.T) {
	doc, _ := parse(t)

	el, ok := doc.ByID("demo-editor")
	require.True(t, ok)
	assert.True(t, el.HasClass(EditorClass))
	assert.Equal(t, "#demo-editor", el.Selector())

	_, ok = doc.ByID("missing-editor")
	assert.False(t, ok)
	_, ok = doc.ByID("")
	assert.False(t, ok)
}

func TestElement_SetTextEmitsPatch(t *testing.T) {
	doc, patches := parse(t)

	el, ok := doc.ByID("demo-editor-lines")
	require.True(t, ok)
	el.SetText("12")

	assert.Equal(t, "12", el.Text())
	require.Len(t, *patches, 1)
	assert.Equal(t, Patch{Op: PatchText, Target: "#demo-editor-lines", Content: "12"}, (*patches)[0])
}

func TestElement_ReplaceChildren(t *testing.T) {
	doc, patches := parse(t)

	preview, ok := doc.ByID("demo-editor-preview-content")
	require.True(t, ok)
	require.Equal(t, 2, preview.ChildCount())

	frame := &html.Node{Type: html.ElementNode, Data: "iframe", DataAtom: atom.Iframe,
		Attr: []html.Attribute{{Key: "srcdoc", Val: `<p class="x">"hi"</p>`}}}
	preview.ReplaceChildren(frame)

	assert.Equal(t, 1, preview.ChildCount())
	require.Len(t, *patches, 1)
	assert.Equal(t, PatchHTML, (*patches)[0].Op)
	assert.Contains(t, (*patches)[0].Content, "<iframe srcdoc=")
	assert.Contains(t, (*patches)[0].Content, "&#34;hi&#34;")

	preview.ReplaceChildren()
	assert.Equal(t, 0, preview.ChildCount())
	assert.Equal(t, "", (*patches)[1].Content)
}

func TestElement_ClassPatchesAreIdempotent(t *testing.T) {
	doc, patches := parse(t)

	surface, ok := doc.ByID(ErrorDisplayID("demo-editor"))
	require.True(t, ok)

	surface.AddClass(HiddenClass)
	assert.Empty(t, *patches)

	surface.RemoveClass(HiddenClass)
	surface.RemoveClass(HiddenClass)
	require.Len(t, *patches, 1)
	assert.Equal(t, PatchRemoveClass, (*patches)[0].Op)
	assert.False(t, surface.HasClass(HiddenClass))
}

func TestElement_ClosestAndFind(t *testing.T) {
	doc, _ := parse(t)

	mount, _ := doc.ByID("demo-editor")
	container, ok := mount.Closest("." + ContainerClass)
	require.True(t, ok)

	indicator, ok := container.Find("." + StatusIndicatorClass)
	require.True(t, ok)
	assert.Equal(t, []string{"status-indicator", "status-info"}, indicator.Classes())

	_, ok = mount.Closest(".nope")
	assert.False(t, ok)
}

func TestElement_PathSelectorWithoutID(t *testing.T) {
	doc, _ := parse(t)

	mount, _ := doc.ByID("demo-editor")
	container, _ := mount.Closest("." + ContainerClass)
	text, ok := container.Find("." + StatusTextClass)
	require.True(t, ok)

	sel := text.Selector()
	assert.Contains(t, sel, "span:nth-child(2)")

	found := doc.Find(sel)
	require.Len(t, found, 1)
	assert.Equal(t, "Ready", found[0].Text())
}

func TestDocument_AssignIDs(t *testing.T) {
	doc, patches := parse(t)

	doc.AssignIDs("."+StatusTextClass, "lc")
	doc.AssignIDs("."+StatusTextClass, "lc")

	els := doc.Find("." + StatusTextClass)
	require.Len(t, els, 1)
	assert.Equal(t, "lc-1", els[0].ID())
	assert.Empty(t, *patches)
}

func TestDocument_HTMLRoundTrip(t *testing.T) {
	doc, _ := parse(t)
	doc.InjectHead(`<script src="/static/livecode.js"></script>`)

	out, err := doc.HTML()
	require.NoError(t, err)
	assert.Contains(t, out, "<!DOCTYPE html>")
	assert.Contains(t, out, `<script src="/static/livecode.js"></script></head>`)
}

func TestIDSelectorEscaping(t *testing.T) {
	assert.Equal(t, "#a-b_c", idSelector("a-b_c"))
	assert.Equal(t, `[id="1\"x"]`, idSelector(`1"x`))
}
