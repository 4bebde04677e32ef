// Package editor tracks the live editor instances of one page session.
package editor

import (
	"strings"
	"unicode/utf8"

	"github.com/conneroisu/livecode/internal/snippet"
)

// Status is the last known execution state of an instance.
type Status string

const (
	StatusReady   Status = "ready"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Widget is the code-editing component bound to a mount. The page session
// implements it by messaging the browser.
type Widget interface {
	Mount(id string, text string, lang snippet.Language)
	SetValue(id string, text string)
}

// Instance wraps one editing widget bound to one mount.
type Instance struct {
	config    snippet.Config
	text      string
	original  string
	status    Status
	widget    Widget
	listeners []func(*Instance)
}

func newInstance(cfg snippet.Config, initial snippet.Snippet, widget Widget) *Instance {
	if initial.Language.Valid() {
		cfg.Language = initial.Language
	}
	return &Instance{
		config:   cfg,
		text:     initial.Source,
		original: initial.Source,
		status:   StatusReady,
		widget:   widget,
	}
}

// ID returns the editor identifier.
func (i *Instance) ID() string { return i.config.ID }

// Config returns the registration record.
func (i *Instance) Config() snippet.Config { return i.config }

// Language returns the source language.
func (i *Instance) Language() snippet.Language { return i.config.Language }

// Text returns the current text.
func (i *Instance) Text() string { return i.text }

// Original returns the text the instance was created with.
func (i *Instance) Original() string { return i.original }

// Dirty reports whether the text differs from the original.
func (i *Instance) Dirty() bool { return i.text != i.original }

// Status returns the last execution state.
func (i *Instance) Status() Status { return i.status }

// SetStatus records the latest execution state.
func (i *Instance) SetStatus(s Status) { i.status = s }

// LineCount is the number of line breaks plus one.
func (i *Instance) LineCount() int { return strings.Count(i.text, "\n") + 1 }

// CharCount is the number of Unicode code points in the text. The browser's
// String.length counts UTF-16 code units instead, so text outside the Basic
// Multilingual Plane (most emoji) counts once here and twice there.
func (i *Instance) CharCount() int { return utf8.RuneCountInString(i.text) }

// OnChange registers fn to run after every text mutation.
func (i *Instance) OnChange(fn func(*Instance)) {
	i.listeners = append(i.listeners, fn)
}

// SetText replaces the content programmatically, pushes it into the widget
// and notifies listeners once. It never executes the code.
func (i *Instance) SetText(text string) {
	i.text = text
	if i.widget != nil {
		i.widget.SetValue(i.config.ID, text)
	}
	i.notify()
}

// ApplyEdit records an edit made inside the widget and notifies listeners
// once. The widget already shows the text, so nothing is echoed back.
func (i *Instance) ApplyEdit(text string) {
	i.text = text
	i.notify()
}

func (i *Instance) notify() {
	for _, fn := range i.listeners {
		fn(i)
	}
}
