// Package status writes editor statistics, execution status and error
// text into the page.
package status

import (
	"context"
	"strconv"
	"strings"

	"github.com/conneroisu/livecode/internal/dom"
	"github.com/conneroisu/livecode/internal/editor"
	"github.com/conneroisu/livecode/internal/logging"
)

// Kind is the class of a status broadcast.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindWarning Kind = "warning"
	KindInfo    Kind = "info"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindSuccess, KindError, KindWarning, KindInfo:
		return true
	}
	return false
}

// Class is the indicator class for k.
func (k Kind) Class() string { return "status-" + string(k) }

// Status is the latest broadcast for an editor.
type Status struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Editors looks up registered editors.
type Editors interface {
	Get(id string) (*editor.Instance, bool)
}

// Reporter reflects editor state into the document. Every DOM node it
// touches is optional.
type Reporter struct {
	doc     *dom.Document
	editors Editors
	logger  logging.Logger
	latest  map[string]Status
}

// NewReporter creates a reporter over doc.
func NewReporter(doc *dom.Document, editors Editors, logger logging.Logger) *Reporter {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Reporter{
		doc:     doc,
		editors: editors,
		logger:  logger.WithComponent("status"),
		latest:  make(map[string]Status),
	}
}

// Attach refreshes the stats of inst now and after every text mutation.
func (r *Reporter) Attach(inst *editor.Instance) {
	inst.OnChange(func(i *editor.Instance) {
		r.UpdateStats(i.ID())
	})
	r.UpdateStats(inst.ID())
}

// UpdateStats writes the line and character counts of id.
func (r *Reporter) UpdateStats(id string) {
	inst, ok := r.editors.Get(id)
	if !ok {
		return
	}
	if el, ok := r.doc.ByID(dom.LinesID(id)); ok {
		el.SetText(strconv.Itoa(inst.LineCount()))
	}
	if el, ok := r.doc.ByID(dom.CharsID(id)); ok {
		el.SetText(strconv.Itoa(inst.CharCount()))
	}
}

// UpdateStatus sets the indicator class and status text of id's control
// panel. Unknown kinds are shown as info.
func (r *Reporter) UpdateStatus(id string, kind Kind, message string) {
	if !kind.Valid() {
		kind = KindInfo
	}
	r.latest[id] = Status{Kind: kind, Message: message}

	mount, ok := r.doc.ByID(id)
	if !ok {
		return
	}
	panel, ok := mount.Closest("." + dom.ContainerClass)
	if !ok {
		r.logger.Debug(context.Background(), "editor has no container, status not shown", "editor", id)
		return
	}

	if indicator, ok := panel.Find("." + dom.StatusIndicatorClass); ok {
		for _, class := range indicator.Classes() {
			if strings.HasPrefix(class, "status-") && class != dom.StatusIndicatorClass && class != kind.Class() {
				indicator.RemoveClass(class)
			}
		}
		indicator.AddClass(kind.Class())
	}
	if text, ok := panel.Find("." + dom.StatusTextClass); ok {
		text.SetText(message)
	}
}

// Latest returns the last status broadcast for id.
func (r *Reporter) Latest(id string) (Status, bool) {
	s, ok := r.latest[id]
	return s, ok
}

// ShowError reveals the error surface of id with message.
func (r *Reporter) ShowError(id, message string) {
	display, ok := r.doc.ByID(dom.ErrorDisplayID(id))
	if !ok {
		return
	}
	if msg, ok := display.Find("." + dom.ErrorMessageClass); ok {
		msg.SetText(message)
	} else {
		display.SetText(message)
	}
	display.RemoveClass(dom.HiddenClass)
}

// HideError hides the error surface of id.
func (r *Reporter) HideError(id string) {
	if display, ok := r.doc.ByID(dom.ErrorDisplayID(id)); ok {
		display.AddClass(dom.HiddenClass)
	}
}

// ErrorVisible reports whether the error surface of id is showing.
func (r *Reporter) ErrorVisible(id string) bool {
	display, ok := r.doc.ByID(dom.ErrorDisplayID(id))
	return ok && !display.HasClass(dom.HiddenClass)
}

// ErrorText returns the message shown on the error surface of id.
func (r *Reporter) ErrorText(id string) string {
	display, ok := r.doc.ByID(dom.ErrorDisplayID(id))
	if !ok {
		return ""
	}
	if msg, ok := display.Find("." + dom.ErrorMessageClass); ok {
		return msg.Text()
	}
	return display.Text()
}
