// Package dispatch maps the run, reset and copy controls of an editor onto
// the sandbox and the status reporter.
package dispatch

import (
	"context"
	"time"

	"github.com/conneroisu/livecode/internal/dom"
	"github.com/conneroisu/livecode/internal/editor"
	"github.com/conneroisu/livecode/internal/errors"
	"github.com/conneroisu/livecode/internal/logging"
	"github.com/conneroisu/livecode/internal/sandbox"
	"github.com/conneroisu/livecode/internal/status"
)

// Action names as they appear in data-action attributes.
const (
	ActionRun   = "run"
	ActionReset = "reset"
	ActionCopy  = "copy"
)

// FeedbackClass marks a button during its feedback pulse.
const FeedbackClass = "feedback-success"

// DefaultFeedback is how long a feedback pulse lasts.
const DefaultFeedback = 2 * time.Second

// Editors looks up registered editors and their original text.
type Editors interface {
	Get(id string) (*editor.Instance, bool)
	Original(id string) (string, bool)
}

// Executor runs editors and interprets frame reports.
type Executor interface {
	Execute(ctx context.Context, id string) sandbox.Result
	HandleFrameEvent(ctx context.Context, ev sandbox.FrameEvent) (sandbox.Result, bool)
}

// Reporter shows status and errors.
type Reporter interface {
	UpdateStatus(id string, kind status.Kind, message string)
	ShowError(id, message string)
	HideError(id string)
}

// Clipboard starts an asynchronous clipboard write. The outcome is
// delivered later through Dispatcher.ClipboardDone.
type Clipboard interface {
	Write(id, text string)
}

// Scheduler runs fn after d on the caller's event loop.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) (cancel func())
}

// Observer receives one call per dispatched action.
type Observer interface {
	ObserveAction(action, outcome string)
}

type pulse struct {
	labels []string
	cancel func()
}

// Dispatcher handles the controls of one page session.
type Dispatcher struct {
	doc       *dom.Document
	editors   Editors
	exec      Executor
	reporter  Reporter
	clipboard Clipboard
	scheduler Scheduler
	observer  Observer
	logger    logging.Logger
	feedback  time.Duration
	pulses    map[string]*pulse
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClipboard enables Copy.
func WithClipboard(c Clipboard) Option {
	return func(d *Dispatcher) { d.clipboard = c }
}

// WithScheduler enables feedback pulses.
func WithScheduler(s Scheduler) Option {
	return func(d *Dispatcher) { d.scheduler = s }
}

// WithFeedback sets the pulse duration.
func WithFeedback(dur time.Duration) Option {
	return func(d *Dispatcher) {
		if dur > 0 {
			d.feedback = dur
		}
	}
}

// WithObserver reports action outcomes to o.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// New creates a dispatcher.
func New(doc *dom.Document, editors Editors, exec Executor, reporter Reporter, logger logging.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = logging.Nop()
	}
	d := &Dispatcher{
		doc:      doc,
		editors:  editors,
		exec:     exec,
		reporter: reporter,
		logger:   logger.WithComponent("dispatch"),
		feedback: DefaultFeedback,
		pulses:   make(map[string]*pulse),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes id and reflects the outcome.
func (d *Dispatcher) Run(ctx context.Context, id string) sandbox.Result {
	inst, ok := d.editors.Get(id)
	var prev editor.Status
	if ok {
		prev = inst.Status()
		inst.SetStatus(editor.StatusRunning)
	}

	res := d.exec.Execute(ctx, id)
	switch res.Kind {
	case sandbox.KindSuccess:
		inst.SetStatus(editor.StatusSuccess)
		if res.Warning != "" {
			d.reporter.UpdateStatus(id, status.KindWarning, "Executed with warnings: "+res.Warning)
		} else {
			d.reporter.UpdateStatus(id, status.KindSuccess, "Executed successfully")
		}
	case sandbox.KindFailure:
		d.fail(id, inst, res.Message)
	case sandbox.KindSkipped:
		inst.SetStatus(prev)
	}
	d.observe(ActionRun, res.Kind.String())
	return res
}

// Reset restores the original text of id and runs it.
func (d *Dispatcher) Reset(ctx context.Context, id string) sandbox.Result {
	inst, ok := d.editors.Get(id)
	original, hasOriginal := d.editors.Original(id)
	if !ok || !hasOriginal {
		d.logger.Error(ctx, errors.ErrEditorNotFound(id), "reset requested for unregistered editor", "editor", id)
		d.observe(ActionReset, sandbox.KindAborted.String())
		return sandbox.Result{Kind: sandbox.KindAborted, Message: "editor is not registered"}
	}

	inst.SetText(original)
	res := d.Run(ctx, id)
	d.pulse(ctx, ActionReset, id, "Reset!")
	d.observe(ActionReset, res.Kind.String())
	return res
}

// Copy starts writing the text of id to the clipboard. The feedback comes
// with ClipboardDone.
func (d *Dispatcher) Copy(ctx context.Context, id string) error {
	inst, ok := d.editors.Get(id)
	if !ok {
		err := errors.ErrEditorNotFound(id)
		d.logger.Error(ctx, err, "copy requested for unregistered editor", "editor", id)
		d.observe(ActionCopy, sandbox.KindAborted.String())
		return err
	}
	if d.clipboard == nil {
		err := errors.NewExecutionError(errors.ErrCodeClipboard, "clipboard unavailable", nil).WithEditor(id)
		d.reporter.UpdateStatus(id, status.KindError, "Clipboard unavailable")
		d.observe(ActionCopy, "failure")
		return err
	}

	d.clipboard.Write(id, inst.Text())
	return nil
}

// ClipboardDone completes a Copy. A nil err pulses the copy button and
// reports success.
func (d *Dispatcher) ClipboardDone(ctx context.Context, id string, err error) {
	if _, ok := d.editors.Get(id); !ok {
		return
	}
	if err != nil {
		d.logger.Warn(ctx, err, "clipboard write failed", "editor", id)
		d.reporter.UpdateStatus(id, status.KindError, "Copy failed: "+errors.UserMessage(err))
		d.observe(ActionCopy, "failure")
		return
	}

	d.pulse(ctx, ActionCopy, id, "Copied!")
	d.reporter.UpdateStatus(id, status.KindSuccess, "Code copied to clipboard")
	d.observe(ActionCopy, "success")
}

// FrameEvent applies a report from a preview frame.
func (d *Dispatcher) FrameEvent(ctx context.Context, ev sandbox.FrameEvent) {
	res, ok := d.exec.HandleFrameEvent(ctx, ev)
	if !ok || !res.Failed() {
		return
	}
	inst, _ := d.editors.Get(ev.Editor)
	d.fail(ev.Editor, inst, res.Message)
	d.observe("frame", res.Kind.String())
}

// Dispatch routes a named action.
func (d *Dispatcher) Dispatch(ctx context.Context, action, id string) error {
	switch action {
	case ActionRun:
		d.Run(ctx, id)
	case ActionReset:
		d.Reset(ctx, id)
	case ActionCopy:
		return d.Copy(ctx, id)
	default:
		return errors.NewValidationError(errors.ErrCodeUnsupportedAction, "unsupported action: "+action)
	}
	return nil
}

func (d *Dispatcher) fail(id string, inst *editor.Instance, message string) {
	if inst != nil {
		inst.SetStatus(editor.StatusError)
	}
	d.reporter.ShowError(id, message)
	d.reporter.UpdateStatus(id, status.KindError, "Execution failed")
}

// pulse swaps the label of the action's buttons and marks them until the
// feedback duration has passed. A second pulse restarts the timer.
func (d *Dispatcher) pulse(ctx context.Context, action, id, label string) {
	if d.scheduler == nil {
		return
	}
	buttons := d.doc.Find(dom.ActionSelector(action, id))
	if len(buttons) == 0 {
		d.logger.Debug(ctx, "no button for feedback", "action", action, "editor", id)
		return
	}

	key := action + "\x00" + id
	p, running := d.pulses[key]
	if running {
		p.cancel()
	} else {
		p = &pulse{}
		for _, b := range buttons {
			p.labels = append(p.labels, b.Text())
		}
		d.pulses[key] = p
	}

	for _, b := range buttons {
		b.SetText(label)
		b.AddClass(FeedbackClass)
	}

	p.cancel = d.scheduler.AfterFunc(d.feedback, func() {
		for i, b := range buttons {
			if i < len(p.labels) {
				b.SetText(p.labels[i])
			}
			b.RemoveClass(FeedbackClass)
		}
		delete(d.pulses, key)
	})
}

func (d *Dispatcher) observe(action, outcome string) {
	if d.observer != nil {
		d.observer.ObserveAction(action, outcome)
	}
}
