package editor

import (
	"context"

	"github.com/conneroisu/livecode/internal/dom"
	"github.com/conneroisu/livecode/internal/logging"
	"github.com/conneroisu/livecode/internal/snippet"
)

// Registry is the table of live editors of one page session. Entries are
// added by InitializeAll and never removed.
type Registry struct {
	doc       *dom.Document
	resolver  *snippet.Resolver
	widget    Widget
	declared  []snippet.Config
	logger    logging.Logger
	instances map[string]*Instance
	originals map[string]string
	order     []string
}

// Option configures a Registry.
type Option func(*Registry)

// WithDeclared adds editor records that must be registered even if their
// mounts carry no editor class. Their mounts must still exist.
func WithDeclared(configs ...snippet.Config) Option {
	return func(r *Registry) {
		r.declared = append(r.declared, configs...)
	}
}

// WithWidget binds created instances to a widget.
func WithWidget(w Widget) Option {
	return func(r *Registry) {
		r.widget = w
	}
}

// NewRegistry creates an empty registry over doc.
func NewRegistry(doc *dom.Document, resolver *snippet.Resolver, logger logging.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = logging.Nop()
	}
	r := &Registry{
		doc:       doc,
		resolver:  resolver,
		logger:    logger.WithComponent("registry"),
		instances: make(map[string]*Instance),
		originals: make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// InitializeAll discovers editor mounts and registers an instance for each
// identifier not registered yet. Calling it again is a no-op for known
// identifiers. It returns the instances created by this call.
func (r *Registry) InitializeAll(ctx context.Context) []*Instance {
	var created []*Instance

	for _, cfg := range r.candidates(ctx) {
		if _, exists := r.instances[cfg.ID]; exists {
			continue
		}
		if _, ok := r.doc.ByID(cfg.ID); !ok {
			r.logger.Warn(ctx, nil, "editor mount not found, skipping", "editor", cfg.ID)
			continue
		}

		initial := r.resolver.Resolve(cfg)
		inst := newInstance(cfg, initial, r.widget)
		r.instances[cfg.ID] = inst
		r.originals[cfg.ID] = initial.Source
		r.order = append(r.order, cfg.ID)

		if r.widget != nil {
			r.widget.Mount(cfg.ID, initial.Source, inst.Language())
		}

		r.logger.Debug(ctx, "editor registered",
			"editor", cfg.ID,
			"language", inst.Language(),
			"section", cfg.Section,
			"placeholder", !r.resolver.Has(cfg.Section))
		created = append(created, inst)
	}

	return created
}

// candidates lists declared records first, then mounts found in the page.
func (r *Registry) candidates(ctx context.Context) []snippet.Config {
	seen := make(map[string]bool)
	var out []snippet.Config

	for _, cfg := range r.declared {
		if cfg.ID == "" || seen[cfg.ID] {
			continue
		}
		seen[cfg.ID] = true
		out = append(out, cfg.Normalize())
	}

	for _, mount := range r.doc.Find("." + dom.EditorClass) {
		id := mount.ID()
		if id == "" {
			r.logger.Warn(ctx, nil, "editor mount without id, skipping")
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		lang, _ := mount.Attr(dom.LanguageAttr)
		section, _ := mount.Attr(dom.SectionAttr)
		out = append(out, snippet.ConfigFor(id, lang, section))
	}

	return out
}

// Get returns the instance registered under id.
func (r *Registry) Get(id string) (*Instance, bool) {
	inst, ok := r.instances[id]
	return inst, ok
}

// Original returns the text id was initialized with.
func (r *Registry) Original(id string) (string, bool) {
	text, ok := r.originals[id]
	return text, ok
}

// Len is the number of registered editors.
func (r *Registry) Len() int { return len(r.instances) }

// IDs lists registered identifiers in registration order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

