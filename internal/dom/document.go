// Package dom holds the server-side copy of a lesson page.
//
// The editor engine reads and mutates the page through Document. Every
// mutation is reported to subscribers as a Patch addressed by a CSS
// selector, which the browser applies to its own copy of the page.
// A Document is not safe for concurrent use; a page session serializes
// access to it.
package dom

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// PatchOp names a DOM mutation.
type PatchOp string

const (
	PatchText        PatchOp = "text"
	PatchHTML        PatchOp = "html"
	PatchAddClass    PatchOp = "add-class"
	PatchRemoveClass PatchOp = "remove-class"
	PatchAttr        PatchOp = "attr"
)

// Patch describes one mutation of the page.
type Patch struct {
	Op      PatchOp `json:"op"`
	Target  string  `json:"target"`
	Name    string  `json:"name,omitempty"`
	Content string  `json:"content"`
}

// Document is a parsed lesson page.
type Document struct {
	doc       *goquery.Document
	observers []func(Patch)
	seq       int
}

// Parse reads an HTML page.
func Parse(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing page: %w", err)
	}
	return &Document{doc: doc}, nil
}

// ParseString parses an HTML page held in memory.
func ParseString(page string) (*Document, error) {
	return Parse(strings.NewReader(page))
}

// Subscribe registers fn to receive every subsequent patch.
func (d *Document) Subscribe(fn func(Patch)) {
	d.observers = append(d.observers, fn)
}

func (d *Document) emit(p Patch) {
	for _, fn := range d.observers {
		fn(p)
	}
}

// ByID returns the element with the given id.
func (d *Document) ByID(id string) (*Element, bool) {
	if id == "" {
		return nil, false
	}
	sel := d.doc.Find(idSelector(id)).First()
	if sel.Length() == 0 {
		return nil, false
	}
	return &Element{d: d, sel: sel}, true
}

// Find returns every element matching selector, in document order.
func (d *Document) Find(selector string) []*Element {
	var out []*Element
	d.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, &Element{d: d, sel: s})
	})
	return out
}

// AssignIDs gives every element matching selector an id if it lacks one, so
// that patches can address it. It emits no patches and must run before the
// page is sent to a browser.
func (d *Document) AssignIDs(selector, prefix string) {
	d.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if id, ok := s.Attr("id"); ok && id != "" {
			return
		}
		d.seq++
		s.SetAttr("id", fmt.Sprintf("%s-%d", prefix, d.seq))
	})
}

// InjectHead appends raw markup at the end of <head>. Like AssignIDs it is
// a page-preparation step and emits no patches.
func (d *Document) InjectHead(markup string) {
	head := d.doc.Find("head").First()
	if head.Length() == 0 {
		head = d.doc.Find("body").First()
	}
	head.AppendHtml(markup)
}

// HTML renders the full page.
func (d *Document) HTML() (string, error) {
	return goquery.OuterHtml(d.doc.Selection)
}

// Element is one node of a Document.
type Element struct {
	d   *Document
	sel *goquery.Selection
}

// ID returns the element's id attribute.
func (e *Element) ID() string {
	id, _ := e.sel.Attr("id")
	return id
}

// Attr returns an attribute value.
func (e *Element) Attr(name string) (string, bool) {
	return e.sel.Attr(name)
}

// Text returns the element's text content.
func (e *Element) Text() string {
	return e.sel.Text()
}

// InnerHTML renders the element's children.
func (e *Element) InnerHTML() string {
	h, err := e.sel.Html()
	if err != nil {
		return ""
	}
	return h
}

// HasClass reports whether the element carries class.
func (e *Element) HasClass(class string) bool {
	return e.sel.HasClass(class)
}

// ChildCount is the number of element children.
func (e *Element) ChildCount() int {
	return e.sel.Children().Length()
}

// Closest returns the nearest ancestor-or-self matching selector.
func (e *Element) Closest(selector string) (*Element, bool) {
	sel := e.sel.Closest(selector)
	if sel.Length() == 0 {
		return nil, false
	}
	return &Element{d: e.d, sel: sel.First()}, true
}

// Find returns the first descendant matching selector.
func (e *Element) Find(selector string) (*Element, bool) {
	sel := e.sel.Find(selector).First()
	if sel.Length() == 0 {
		return nil, false
	}
	return &Element{d: e.d, sel: sel}, true
}

// Selector addresses the element for the browser.
func (e *Element) Selector() string {
	if id := e.ID(); id != "" {
		return idSelector(id)
	}
	return pathSelector(e.sel.Get(0))
}

// SetText replaces the element's children with a text node.
func (e *Element) SetText(text string) {
	e.sel.SetText(text)
	e.d.emit(Patch{Op: PatchText, Target: e.Selector(), Content: text})
}

// ReplaceChildren removes every child and appends nodes in their place.
// The browser receives the new inner HTML as a single patch.
func (e *Element) ReplaceChildren(nodes ...*html.Node) {
	e.sel.Empty()
	if len(nodes) > 0 {
		e.sel.AppendNodes(nodes...)
	}
	e.d.emit(Patch{Op: PatchHTML, Target: e.Selector(), Content: e.InnerHTML()})
}

// AddClass adds class if missing.
func (e *Element) AddClass(class string) {
	if e.sel.HasClass(class) {
		return
	}
	e.sel.AddClass(class)
	e.d.emit(Patch{Op: PatchAddClass, Target: e.Selector(), Content: class})
}

// RemoveClass removes class if present.
func (e *Element) RemoveClass(class string) {
	if !e.sel.HasClass(class) {
		return
	}
	e.sel.RemoveClass(class)
	e.d.emit(Patch{Op: PatchRemoveClass, Target: e.Selector(), Content: class})
}

// Classes lists the element's classes.
func (e *Element) Classes() []string {
	class, _ := e.sel.Attr("class")
	return strings.Fields(class)
}

// SetAttr sets an attribute.
func (e *Element) SetAttr(name, value string) {
	e.sel.SetAttr(name, value)
	e.d.emit(Patch{Op: PatchAttr, Target: e.Selector(), Name: name, Content: value})
}

var simpleID = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

func idSelector(id string) string {
	if simpleID.MatchString(id) {
		return "#" + id
	}
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(id)
	return `[id="` + escaped + `"]`
}

// pathSelector builds a child-index path from the nearest ancestor with an
// id, or from the root.
func pathSelector(n *html.Node) string {
	var parts []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		if id := attr(cur, "id"); id != "" && cur != n {
			parts = append(parts, idSelector(id))
			break
		}
		parts = append(parts, fmt.Sprintf("%s:nth-child(%d)", cur.Data, elementIndex(cur)))
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " > ")
}

func elementIndex(n *html.Node) int {
	idx := 1
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode {
			idx++
		}
	}
	return idx
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
