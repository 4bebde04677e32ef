package snippet

import (
	"fmt"
	"sort"
)

// Table maps section names to snippets for one lesson module.
type Table map[string]Snippet

// Resolver maps an editor's Config onto its initial Snippet.
type Resolver struct {
	table Table
}

// NewResolver creates a resolver over a copy of table.
func NewResolver(table Table) *Resolver {
	copied := make(Table, len(table))
	for k, v := range table {
		copied[k] = v
	}
	return &Resolver{table: copied}
}

// Resolve never fails: a section missing from the table yields a labeled
// placeholder in the editor's language.
func (r *Resolver) Resolve(cfg Config) Snippet {
	cfg = cfg.Normalize()
	if s, ok := r.table[cfg.Section]; ok {
		if !s.Language.Valid() {
			s.Language = cfg.Language
		}
		return s
	}
	return Placeholder(cfg.Section, cfg.Language)
}

// Has reports whether section has a table entry.
func (r *Resolver) Has(section string) bool {
	_, ok := r.table[section]
	return ok
}

// Sections lists the table's section names in sorted order.
func (r *Resolver) Sections() []string {
	names := make([]string, 0, len(r.table))
	for name := range r.table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Placeholder returns the deterministic stub for an unpopulated section.
func Placeholder(section string, lang Language) Snippet {
	var text string
	switch lang {
	case LanguageStyle, LanguageScript:
		text = fmt.Sprintf("/* %s example */", section)
	default:
		lang = LanguageMarkup
		text = fmt.Sprintf("<!-- %s example -->", section)
	}
	return Snippet{Source: text, Language: lang}
}
