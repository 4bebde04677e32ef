package sandbox

import (
	"fmt"
	"regexp"
	"strconv"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/conneroisu/livecode/internal/dom"
	"github.com/conneroisu/livecode/internal/snippet"
)

// Isolation controls what a preview frame may reach.
type Isolation string

const (
	// IsolationStrict gives the frame an opaque origin.
	IsolationStrict Isolation = "strict"
	// IsolationOpen lets the frame share the page origin.
	IsolationOpen Isolation = "open"
)

// Valid reports whether i is a known isolation mode.
func (i Isolation) Valid() bool {
	return i == IsolationStrict || i == IsolationOpen
}

// SandboxAttr returns the iframe sandbox attribute value. ok is false when
// the attribute must be omitted.
func (i Isolation) SandboxAttr() (value string, ok bool) {
	if i == IsolationOpen {
		return "", false
	}
	return "allow-scripts allow-modals", true
}

// MessageSource tags every frame report posted to the parent page.
const MessageSource = "livecode-frame"

// sampleBody is rendered under style snippets so rules have something to match.
const sampleBody = `<main class="sample">
<h1>Heading</h1>
<p>A paragraph with <a href="#">a link</a> and <strong>bold text</strong>.</p>
<ul><li>First item</li><li>Second item</li></ul>
<button type="button">Button</button>
<div class="box">Box</div>
</main>`

var headOpen = regexp.MustCompile(`(?i)<head(\s[^>]*)?>`)

// bridge returns the script that reports errors and load completion for
// run of editor id back to the page.
func bridge(id string, run int) string {
	return fmt.Sprintf(`<script>(function(){var ed=%s,run=%d;`+
		`function send(t,m){try{parent.postMessage({source:%q,editor:ed,run:run,event:t,message:m},"*")}catch(e){}}`+
		`window.addEventListener("error",function(e){send("error",e.message||String(e.error))});`+
		`window.addEventListener("unhandledrejection",function(e){var r=e.reason;send("error","Uncaught (in promise) "+(r&&r.message?r.message:String(r)))});`+
		`window.addEventListener("load",function(){send("loaded","")});})();</script>`,
		strconv.Quote(id), run, MessageSource)
}

// Compose builds the full document a frame renders for text in lang. The
// bridge script always runs before any snippet code.
func Compose(id string, run int, lang snippet.Language, text string) string {
	b := bridge(id, run)
	switch lang {
	case snippet.LanguageStyle:
		return "<!DOCTYPE html><html><head><meta charset=\"utf-8\">" + b +
			"<style>\n" + text + "\n</style></head><body>" + sampleBody + "</body></html>"
	case snippet.LanguageScript:
		return "<!DOCTYPE html><html><head><meta charset=\"utf-8\">" + b +
			"</head><body><div id=\"output\"></div><script>\n" + text + "\n</script></body></html>"
	default:
		if loc := headOpen.FindStringIndex(text); loc != nil {
			return text[:loc[1]] + b + text[loc[1]:]
		}
		return b + text
	}
}

// frameNode builds the iframe element for one run.
func frameNode(id string, run int, lang snippet.Language, text string, iso Isolation) *html.Node {
	n := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Iframe,
		Data:     "iframe",
		Attr: []html.Attribute{
			{Key: "class", Val: dom.PreviewFrameClass},
			{Key: "title", Val: "Preview of " + id},
			{Key: dom.ActionEditorAttr, Val: id},
			{Key: "data-run", Val: strconv.Itoa(run)},
			{Key: "style", Val: "visibility:hidden"},
		},
	}
	if v, ok := iso.SandboxAttr(); ok {
		n.Attr = append(n.Attr, html.Attribute{Key: "sandbox", Val: v})
	}
	n.Attr = append(n.Attr, html.Attribute{Key: "srcdoc", Val: Compose(id, run, lang, text)})
	return n
}
