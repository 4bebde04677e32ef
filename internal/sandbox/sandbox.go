// Package sandbox renders editor text inside isolated preview frames.
//
// Every run replaces the preview's children with a brand new iframe whose
// srcdoc holds the composed document. Frames report runtime errors and load
// completion back through the page; reports tagged with an old run number
// are dropped.
package sandbox

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/net/html"

	"github.com/conneroisu/livecode/internal/dom"
	"github.com/conneroisu/livecode/internal/editor"
	"github.com/conneroisu/livecode/internal/errors"
	"github.com/conneroisu/livecode/internal/logging"
	"github.com/conneroisu/livecode/internal/snippet"
)

// Kind classifies a Result.
type Kind int

const (
	KindSuccess Kind = iota
	KindFailure
	// KindSkipped means the editor has no preview mount.
	KindSkipped
	// KindAborted means the editor is not registered.
	KindAborted
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindFailure:
		return "failure"
	case KindSkipped:
		return "skipped"
	case KindAborted:
		return "aborted"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is the outcome of one run or one frame report. Warning is set on
// a successful run whose text the preflight could not parse.
type Result struct {
	Kind    Kind
	Message string
	Err     error
	Warning string
}

// Success returns a successful result.
func Success() Result { return Result{Kind: KindSuccess} }

// Failure wraps err into a failed result.
func Failure(err error) Result {
	return Result{Kind: KindFailure, Message: errors.UserMessage(err), Err: err}
}

// OK reports whether the run succeeded.
func (r Result) OK() bool { return r.Kind == KindSuccess }

// Failed reports whether the run failed.
func (r Result) Failed() bool { return r.Kind == KindFailure }

// Frame report events.
const (
	EventError  = "error"
	EventLoaded = "loaded"
)

// FrameEvent is a report posted by a preview frame's bridge script.
type FrameEvent struct {
	Editor  string `json:"editor"`
	Run     int    `json:"run"`
	Event   string `json:"event"`
	Message string `json:"message"`
}

// Editors looks up registered editors.
type Editors interface {
	Get(id string) (*editor.Instance, bool)
}

// ErrorSurface hides the error display of an editor before each run.
type ErrorSurface interface {
	HideError(id string)
}

// Observer receives the outcome of every run.
type Observer interface {
	ObserveRun(language string, outcome string, elapsed time.Duration)
}

type frameBuilder func(id string, run int, lang snippet.Language, text string, iso Isolation) *html.Node

// Sandbox executes editors of one page session.
type Sandbox struct {
	doc       *dom.Document
	editors   Editors
	surface   ErrorSurface
	logger    logging.Logger
	isolation Isolation
	preflight Preflight
	observer  Observer
	build     frameBuilder

	runs   map[string]int
	failed map[string]bool
}

// Option configures a Sandbox.
type Option func(*Sandbox)

// WithIsolation sets the frame isolation mode. Unknown modes are ignored.
func WithIsolation(iso Isolation) Option {
	return func(s *Sandbox) {
		if iso.Valid() {
			s.isolation = iso
		}
	}
}

// WithPreflight selects the syntax checks run before each frame is built.
func WithPreflight(p Preflight) Option {
	return func(s *Sandbox) {
		s.preflight = p
	}
}

// WithObserver reports run outcomes to o.
func WithObserver(o Observer) Option {
	return func(s *Sandbox) {
		s.observer = o
	}
}

// New creates a sandbox over doc.
func New(doc *dom.Document, editors Editors, surface ErrorSurface, logger logging.Logger, opts ...Option) *Sandbox {
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Sandbox{
		doc:       doc,
		editors:   editors,
		surface:   surface,
		logger:    logger.WithComponent("sandbox"),
		isolation: IsolationStrict,
		preflight: DefaultPreflight(),
		build:     frameNode,
		runs:      make(map[string]int),
		failed:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Isolation returns the active isolation mode.
func (s *Sandbox) Isolation() Isolation { return s.isolation }

// Generation returns the number of the latest run of id, zero if it never ran.
func (s *Sandbox) Generation(id string) int { return s.runs[id] }

// Execute renders the current text of id in a fresh frame. It never
// returns an error: problems come back as a failed, skipped or aborted
// Result.
func (s *Sandbox) Execute(ctx context.Context, id string) (res Result) {
	inst, ok := s.editors.Get(id)
	if !ok {
		s.logger.Error(ctx, errors.ErrEditorNotFound(id), "run requested for unregistered editor", "editor", id)
		return Result{Kind: KindAborted, Message: "editor is not registered"}
	}

	preview, ok := s.doc.ByID(dom.PreviewID(id))
	if !ok {
		s.logger.Debug(ctx, "no preview mount, nothing to run", "editor", id)
		return Result{Kind: KindSkipped}
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err := errors.NewExecutionError(errors.ErrCodeFrameBuild, fmt.Sprintf("%v", r), nil).WithEditor(id)
			s.logger.Error(ctx, err, "recovered panic while building preview", "editor", id)
			res = Failure(err)
		}
		if res.Failed() {
			s.failed[id] = true
		}
		if s.observer != nil {
			s.observer.ObserveRun(string(inst.Language()), res.Kind.String(), time.Since(start))
		}
	}()

	preview.ReplaceChildren()
	if s.surface != nil {
		s.surface.HideError(id)
	}
	s.runs[id]++
	run := s.runs[id]
	delete(s.failed, id)

	warning, err := s.preflight.Check(inst.Language(), inst.Text())
	if err != nil {
		if le, ok := errors.AsLivecode(err); ok {
			le.WithEditor(id)
		}
		s.logger.Debug(ctx, "preflight rejected snippet", "editor", id, "run", run, "error", err.Error())
		return Failure(err)
	}

	preview.ReplaceChildren(s.build(id, run, inst.Language(), inst.Text(), s.isolation))
	s.logger.Debug(ctx, "preview frame built", "editor", id, "run", run, "isolation", s.isolation)
	res = Success()
	if warning != nil {
		s.logger.Debug(ctx, "preflight warning", "editor", id, "run", run, "warning", warning.Error())
		res.Warning = errors.UserMessage(warning)
	}
	return res
}

// HandleFrameEvent consumes a frame report. ok is false when the report is
// stale, unknown, or arrives after the run already failed.
func (s *Sandbox) HandleFrameEvent(ctx context.Context, ev FrameEvent) (res Result, ok bool) {
	current, known := s.runs[ev.Editor]
	if !known || ev.Run != current {
		s.logger.Debug(ctx, "dropping stale frame report",
			"editor", ev.Editor, "run", ev.Run, "current", current, "event", ev.Event)
		return Result{}, false
	}

	switch ev.Event {
	case EventError:
		msg := ev.Message
		if msg == "" {
			msg = "script error"
		}
		s.failed[ev.Editor] = true
		err := errors.NewExecutionError(errors.ErrCodeRuntime, logging.SanitizeForLog(msg), nil).WithEditor(ev.Editor)
		return Failure(err), true
	case EventLoaded:
		if s.failed[ev.Editor] {
			return Result{}, false
		}
		return Success(), true
	default:
		s.logger.Warn(ctx, nil, "unknown frame event", "editor", ev.Editor, "event", ev.Event)
		return Result{}, false
	}
}
