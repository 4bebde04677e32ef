// Package snippet resolves the initial source text of an editor.
//
// Every editor on a lesson page is described by a Config record. The record
// is normally explicit (mount attributes or the lesson manifest); for markup
// that predates explicit records it is inferred from the identifier.
package snippet

import (
	"fmt"
	"strings"
)

// Language is the source language of a snippet.
type Language string

const (
	LanguageMarkup Language = "markup"
	LanguageStyle  Language = "style"
	LanguageScript Language = "script"
)

// ParseLanguage accepts the canonical names and the common aliases used in
// lesson markup (html, css, js, javascript).
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "markup", "html", "htm":
		return LanguageMarkup, nil
	case "style", "css":
		return LanguageStyle, nil
	case "script", "js", "javascript":
		return LanguageScript, nil
	default:
		return "", fmt.Errorf("unknown language %q", s)
	}
}

// Valid reports whether l is one of the known languages.
func (l Language) Valid() bool {
	switch l {
	case LanguageMarkup, LanguageStyle, LanguageScript:
		return true
	}
	return false
}

// Mode is the editing-widget mode name for the language.
func (l Language) Mode() string {
	switch l {
	case LanguageStyle:
		return "css"
	case LanguageScript:
		return "javascript"
	default:
		return "htmlmixed"
	}
}

// Snippet is the immutable initial content of an editor.
type Snippet struct {
	Source   string
	Language Language
}

// Config is the per-editor registration record.
type Config struct {
	ID       string   `yaml:"id" json:"id"`
	Language Language `yaml:"language" json:"language"`
	Section  string   `yaml:"section" json:"section"`
}

// EditorSuffix is the fixed suffix of every editor mount identifier.
const EditorSuffix = "-editor"

// SectionName strips the mount suffix from an identifier.
func SectionName(id string) string {
	return strings.TrimSuffix(id, EditorSuffix)
}

// InferLanguage applies the identifier naming convention: identifiers
// mentioning css are style editors, identifiers mentioning javascript or a
// js token are script editors, everything else is markup.
func InferLanguage(id string) Language {
	lower := strings.ToLower(id)
	if strings.Contains(lower, "css") {
		return LanguageStyle
	}
	if strings.Contains(lower, "javascript") {
		return LanguageScript
	}
	for _, token := range strings.Split(lower, "-") {
		if token == "js" {
			return LanguageScript
		}
	}
	return LanguageMarkup
}

// ConfigFor builds the registration record for id. Explicit language and
// section values win; empty or invalid ones fall back to inference.
func ConfigFor(id, language, section string) Config {
	cfg := Config{ID: id, Section: section}
	if lang, err := ParseLanguage(language); err == nil {
		cfg.Language = lang
	} else {
		cfg.Language = InferLanguage(id)
	}
	if cfg.Section == "" {
		cfg.Section = SectionName(id)
	}
	return cfg
}

// Normalize fills missing fields of an explicit record.
func (c Config) Normalize() Config {
	return ConfigFor(c.ID, string(c.Language), c.Section)
}
