// Package lesson loads lesson modules: a directory with a page and a
// snippet manifest.
package lesson

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/livecode/internal/errors"
	"github.com/conneroisu/livecode/internal/snippet"
)

// File names inside a lesson directory.
const (
	PageFile     = "index.html"
	ManifestFile = "lesson.yml"
)

var validName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ValidName reports whether name can be used as a lesson name in URLs.
func ValidName(name string) bool { return validName.MatchString(name) }

// SnippetEntry is one section of a manifest.
type SnippetEntry struct {
	Language string `yaml:"language" json:"language"`
	Source   string `yaml:"source" json:"source"`
}

// Manifest is the content of lesson.yml.
type Manifest struct {
	Title       string                  `yaml:"title" json:"title"`
	Description string                  `yaml:"description,omitempty" json:"description,omitempty"`
	Snippets    map[string]SnippetEntry `yaml:"snippets" json:"snippets"`
	Editors     []snippet.Config        `yaml:"editors,omitempty" json:"editors,omitempty"`
}

// ParseManifest decodes and validates a manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, errors.ErrCodeManifestInvalid, "invalid lesson manifest")
	}
	if _, err := m.Table(); err != nil {
		return nil, err
	}
	for i, cfg := range m.Editors {
		if cfg.ID == "" {
			return nil, errors.NewValidationError(errors.ErrCodeManifestInvalid,
				fmt.Sprintf("editors[%d]: id is required", i))
		}
		if cfg.Language == "" {
			continue
		}
		if _, err := snippet.ParseLanguage(string(cfg.Language)); err != nil {
			return nil, errors.NewValidationError(errors.ErrCodeManifestInvalid,
				fmt.Sprintf("editors[%d]: %v", i, err))
		}
	}
	return &m, nil
}

// Table converts the manifest snippets into a resolver table.
func (m *Manifest) Table() (snippet.Table, error) {
	table := make(snippet.Table, len(m.Snippets))
	for section, entry := range m.Snippets {
		lang, err := snippet.ParseLanguage(entry.Language)
		if err != nil {
			return nil, errors.NewValidationError(errors.ErrCodeManifestInvalid,
				fmt.Sprintf("snippet %q: %v", section, err))
		}
		table[section] = snippet.Snippet{Source: entry.Source, Language: lang}
	}
	return table, nil
}

// DeclaredEditors returns the manifest editor records with languages
// resolved.
func (m *Manifest) DeclaredEditors() []snippet.Config {
	out := make([]snippet.Config, 0, len(m.Editors))
	for _, cfg := range m.Editors {
		out = append(out, snippet.ConfigFor(cfg.ID, string(cfg.Language), cfg.Section))
	}
	return out
}

// Module is a loaded lesson.
type Module struct {
	Name     string
	Title    string
	Dir      string
	Page     string
	Manifest Manifest
	Table    snippet.Table
	Loaded   time.Time
}

// Load reads the lesson in dir. The page is required; the manifest is
// optional and an absent one yields an empty snippet table.
func Load(dir string) (*Module, error) {
	name := filepath.Base(filepath.Clean(dir))
	if !ValidName(name) {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidPath, "invalid lesson name: "+name).
			WithLocation(dir, 0, 0)
	}

	page, err := os.ReadFile(filepath.Join(dir, PageFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError(errors.ErrCodeFileNotFound, "lesson has no "+PageFile).
				WithLocation(filepath.Join(dir, PageFile), 0, 0)
		}
		return nil, errors.WrapIO(err, errors.ErrCodeFileNotFound, "reading lesson page")
	}

	manifest := &Manifest{}
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	switch {
	case err == nil:
		manifest, err = ParseManifest(data)
		if err != nil {
			if le, ok := errors.AsLivecode(err); ok {
				le.WithLocation(filepath.Join(dir, ManifestFile), 0, 0)
			}
			return nil, err
		}
	case !os.IsNotExist(err):
		return nil, errors.WrapIO(err, errors.ErrCodeFileNotFound, "reading lesson manifest")
	}

	table, err := manifest.Table()
	if err != nil {
		return nil, err
	}

	title := manifest.Title
	if title == "" {
		title = TitleFromName(name)
	}

	return &Module{
		Name:     name,
		Title:    title,
		Dir:      dir,
		Page:     string(page),
		Manifest: *manifest,
		Table:    table,
		Loaded:   time.Now(),
	}, nil
}

// TitleFromName turns "css-box-model" into "Css Box Model".
func TitleFromName(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool { return r == '-' || r == '_' })
	return cases.Title(language.English).String(strings.Join(words, " "))
}

// Resolver returns a snippet resolver over the module's table.
func (m *Module) Resolver() *snippet.Resolver {
	return snippet.NewResolver(m.Table)
}
