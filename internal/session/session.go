// Package session runs the editor engine for one open lesson page.
//
// A Session owns a private copy of the page and every engine component
// bound to it. All work on that state goes through a single goroutine, so
// the engine itself needs no locking; callers hand work over with Do.
package session

import (
	"context"
	"fmt"
	"html"
	"sync"
	"time"

	"github.com/conneroisu/livecode/internal/dispatch"
	"github.com/conneroisu/livecode/internal/dom"
	"github.com/conneroisu/livecode/internal/editor"
	"github.com/conneroisu/livecode/internal/errors"
	"github.com/conneroisu/livecode/internal/lesson"
	"github.com/conneroisu/livecode/internal/logging"
	"github.com/conneroisu/livecode/internal/sandbox"
	"github.com/conneroisu/livecode/internal/snippet"
	"github.com/conneroisu/livecode/internal/status"
)

// addressable lists the nodes that receive generated ids so patches can
// target them by id.
const addressable = ".status-indicator, .status-text, .error-message, [data-action][data-editor]"

const maxBacklog = 1000

// Metrics receives engine and session counters.
type Metrics interface {
	sandbox.Observer
	dispatch.Observer
	SetActiveSessions(n int)
}

// Options configures the engine of every session.
type Options struct {
	Isolation   sandbox.Isolation
	Preflight   sandbox.Preflight
	Feedback    time.Duration
	ScriptPath  string
	StylePath   string
	IdleTimeout time.Duration
	Metrics     Metrics
	Logger      logging.Logger
}

// DefaultOptions returns strict isolation, every preflight check and a two
// second feedback pulse.
func DefaultOptions() Options {
	return Options{
		Isolation:   sandbox.IsolationStrict,
		Preflight:   sandbox.DefaultPreflight(),
		Feedback:    dispatch.DefaultFeedback,
		ScriptPath:  "/static/livecode.js",
		StylePath:   "/static/livecode.css",
		IdleTimeout: 30 * time.Minute,
	}
}

// EditorInfo describes one editor for the JSON API.
type EditorInfo struct {
	ID            string `json:"id"`
	Language      string `json:"language"`
	Section       string `json:"section"`
	Lines         int    `json:"lines"`
	Chars         int    `json:"chars"`
	Dirty         bool   `json:"dirty"`
	Status        string `json:"status"`
	StatusMessage string `json:"status_message,omitempty"`
	Error         string `json:"error,omitempty"`
	Runs          int    `json:"runs"`
}

// Session is one open lesson page.
type Session struct {
	id      string
	lesson  string
	created time.Time
	page    string
	logger  logging.Logger

	doc        *dom.Document
	registry   *editor.Registry
	reporter   *status.Reporter
	sandbox    *sandbox.Sandbox
	dispatcher *dispatch.Dispatcher

	tasks     chan func()
	done      chan struct{}
	closeOnce sync.Once

	// deliver is held while messages reach sinks so that a backlog replay
	// finishes before any later message is delivered.
	deliver sync.Mutex

	mu       sync.Mutex
	sinks    map[int]func(Message)
	nextSink int
	backlog  []Message
	lastSeen time.Time
}

// New prepares mod's page for a browser and starts the session loop.
func New(id string, mod *lesson.Module, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.WithComponent("session").With("session", id, "lesson", mod.Name)

	doc, err := dom.ParseString(mod.Page)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, errors.ErrCodeValidationFailed, "parsing lesson page").
			WithLocation(mod.Dir, 0, 0)
	}
	doc.AssignIDs(addressable, "lc")
	doc.InjectHead(headMarkup(id, opts))

	page, err := doc.HTML()
	if err != nil {
		return nil, errors.WrapInternal(err, errors.ErrCodeInternalError, "rendering lesson page")
	}

	now := time.Now()
	s := &Session{
		id:       id,
		lesson:   mod.Name,
		created:  now,
		page:     page,
		logger:   logger,
		doc:      doc,
		tasks:    make(chan func(), 64),
		done:     make(chan struct{}),
		sinks:    make(map[int]func(Message)),
		lastSeen: now,
	}

	var runObserver sandbox.Observer
	var actionObserver dispatch.Observer
	if opts.Metrics != nil {
		runObserver = opts.Metrics
		actionObserver = opts.Metrics
	}

	s.registry = editor.NewRegistry(doc, mod.Resolver(), logger,
		editor.WithDeclared(mod.Manifest.DeclaredEditors()...),
		editor.WithWidget(browserWidget{s}))
	s.reporter = status.NewReporter(doc, s.registry, logger)
	s.sandbox = sandbox.New(doc, s.registry, s.reporter, logger,
		sandbox.WithIsolation(opts.Isolation),
		sandbox.WithPreflight(opts.Preflight),
		sandbox.WithObserver(runObserver))
	s.dispatcher = dispatch.New(doc, s.registry, s.sandbox, s.reporter, logger,
		dispatch.WithClipboard(browserClipboard{s}),
		dispatch.WithScheduler(s),
		dispatch.WithFeedback(opts.Feedback),
		dispatch.WithObserver(actionObserver))

	doc.Subscribe(func(p dom.Patch) {
		s.emit(Message{Type: TypePatch, Patch: &p})
	})

	go s.loop()
	return s, nil
}

func headMarkup(id string, opts Options) string {
	script, style := opts.ScriptPath, opts.StylePath
	if script == "" {
		script = "/static/livecode.js"
	}
	out := fmt.Sprintf(`<meta name="livecode-session" content="%s">`, html.EscapeString(id))
	if style != "" {
		out += fmt.Sprintf(`<link rel="stylesheet" href="%s">`, html.EscapeString(style))
	}
	out += fmt.Sprintf(`<script src="%s" defer></script>`, html.EscapeString(script))
	return out
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Lesson returns the name of the lesson the session was created from.
func (s *Session) Lesson() string { return s.lesson }

// Created returns the creation time.
func (s *Session) Created() time.Time { return s.created }

// Page returns the prepared page as first sent to the browser.
func (s *Session) Page() string { return s.page }

func (s *Session) loop() {
	for {
		select {
		case fn := <-s.tasks:
			_ = s.safely(func() error { fn(); return nil })
		case <-s.done:
			return
		}
	}
}

func (s *Session) safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewInternalError(errors.ErrCodeInternalError, fmt.Sprintf("panic in session task: %v", r), nil)
			s.logger.Error(context.Background(), err, "session task panicked")
		}
	}()
	return fn()
}

// Do runs fn on the session goroutine and waits for it.
func (s *Session) Do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	task := func() { errc <- s.safely(fn) }

	select {
	case s.tasks <- task:
	case <-s.done:
		return errors.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-errc:
		return err
	case <-s.done:
		return errors.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn without waiting. It must not be called from the session
// goroutine.
func (s *Session) post(fn func()) {
	select {
	case s.tasks <- fn:
	case <-s.done:
	}
}

// AfterFunc runs fn on the session goroutine after d. The returned cancel
// must be called from the session goroutine.
func (s *Session) AfterFunc(d time.Duration, fn func()) func() {
	cancelled := false
	t := time.AfterFunc(d, func() {
		s.post(func() {
			if !cancelled {
				fn()
			}
		})
	})
	return func() {
		cancelled = true
		t.Stop()
	}
}

// Close stops the session loop. Pending and later Do calls fail with
// ErrSessionClosed.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.logger.Debug(context.Background(), "session closed")
	})
}

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} { return s.done }

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Attach registers sink for outbound messages and replays anything emitted
// while no sink was attached. Messages emitted during the replay reach sink
// after it. The returned func detaches it.
func (s *Session) Attach(sink func(Message)) (detach func()) {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	id := s.nextSink
	s.nextSink++
	s.sinks[id] = sink
	backlog := s.backlog
	s.backlog = nil
	s.lastSeen = time.Now()
	s.mu.Unlock()

	for _, m := range backlog {
		sink(m)
	}

	return func() {
		s.mu.Lock()
		delete(s.sinks, id)
		s.lastSeen = time.Now()
		s.mu.Unlock()
	}
}

// Clients returns the number of attached sinks.
func (s *Session) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sinks)
}

// Touch records activity.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// IdleSince returns how long the session has been without activity.
func (s *Session) IdleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

func (s *Session) emit(m Message) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}

	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	if len(s.sinks) == 0 {
		if len(s.backlog) >= maxBacklog {
			s.backlog = s.backlog[1:]
		}
		s.backlog = append(s.backlog, m)
		s.mu.Unlock()
		return
	}
	sinks := make([]func(Message), 0, len(s.sinks))
	for _, sink := range s.sinks {
		sinks = append(sinks, sink)
	}
	s.mu.Unlock()

	for _, sink := range sinks {
		sink(m)
	}
}

// NotifyReload tells the browser that the lesson changed on disk.
func (s *Session) NotifyReload() {
	s.post(func() {
		s.emit(Message{Type: TypeReload})
	})
}

// Handle applies one browser message. It must run on the session goroutine;
// Submit is the safe entry point.
func (s *Session) Handle(ctx context.Context, in Inbound) error {
	s.Touch()

	switch in.Type {
	case TypeReady:
		s.ready(ctx)
		return nil
	case TypeEdit:
		inst, ok := s.registry.Get(in.Editor)
		if !ok {
			err := errors.ErrEditorNotFound(in.Editor)
			s.logger.Error(ctx, err, "edit for unregistered editor", "editor", in.Editor)
			return err
		}
		inst.ApplyEdit(in.Text)
		return nil
	case TypeRun, TypeReset, TypeCopy:
		return s.dispatcher.Dispatch(ctx, in.Type, in.Editor)
	case TypeClipboard:
		var err error
		if !in.OK {
			msg := in.Error
			if msg == "" {
				msg = "clipboard write rejected"
			}
			err = errors.NewExecutionError(errors.ErrCodeClipboard, msg, nil).WithEditor(in.Editor)
		}
		s.dispatcher.ClipboardDone(ctx, in.Editor, err)
		return nil
	case TypeFrame:
		s.dispatcher.FrameEvent(ctx, sandbox.FrameEvent{
			Editor:  in.Editor,
			Run:     in.Run,
			Event:   in.Event,
			Message: in.Message,
		})
		return nil
	default:
		return errors.NewValidationError(errors.ErrCodeUnsupportedAction, "unsupported message type: "+in.Type)
	}
}

// Submit hands a browser message to the session goroutine.
func (s *Session) Submit(ctx context.Context, in Inbound) error {
	return s.Do(ctx, func() error { return s.Handle(ctx, in) })
}

// ready initializes editors. Editors registered by an earlier ready are
// mounted again so a reconnecting page gets its widgets back.
func (s *Session) ready(ctx context.Context) {
	known := make(map[string]bool)
	for _, id := range s.registry.IDs() {
		known[id] = true
	}

	created := s.registry.InitializeAll(ctx)
	for _, inst := range created {
		s.reporter.Attach(inst)
	}

	for _, id := range s.registry.IDs() {
		if !known[id] {
			continue
		}
		inst, _ := s.registry.Get(id)
		browserWidget{s}.Mount(id, inst.Text(), inst.Language())
		s.reporter.UpdateStats(id)
	}

	s.logger.Info(ctx, "page ready", "editors", s.registry.Len(), "new", len(created))
}

// Editors describes every registered editor.
func (s *Session) Editors(ctx context.Context) ([]EditorInfo, error) {
	var out []EditorInfo
	err := s.Do(ctx, func() error {
		for _, id := range s.registry.IDs() {
			inst, _ := s.registry.Get(id)
			info := EditorInfo{
				ID:       id,
				Language: string(inst.Language()),
				Section:  inst.Config().Section,
				Lines:    inst.LineCount(),
				Chars:    inst.CharCount(),
				Dirty:    inst.Dirty(),
				Status:   string(inst.Status()),
				Runs:     s.sandbox.Generation(id),
			}
			if st, ok := s.reporter.Latest(id); ok {
				info.StatusMessage = st.Message
			}
			if s.reporter.ErrorVisible(id) {
				info.Error = s.reporter.ErrorText(id)
			}
			out = append(out, info)
		}
		return nil
	})
	return out, err
}

type browserWidget struct{ s *Session }

func (w browserWidget) Mount(id, text string, lang snippet.Language) {
	w.s.emit(Message{Type: TypeMount, Editor: id, Text: text, Language: string(lang), Mode: lang.Mode()})
}

func (w browserWidget) SetValue(id, text string) {
	w.s.emit(Message{Type: TypeSetValue, Editor: id, Text: text})
}

type browserClipboard struct{ s *Session }

func (c browserClipboard) Write(id, text string) {
	c.s.emit(Message{Type: TypeClipboardWrite, Editor: id, Text: text})
}
