package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/livecode/internal/dom"
	"github.com/conneroisu/livecode/internal/editor"
	"github.com/conneroisu/livecode/internal/errors"
	"github.com/conneroisu/livecode/internal/lesson"
)

var listCmd = &cobra.Command{
	Use:     "list [pattern...]",
	Aliases: []string{"l"},
	Short:   "List lessons and their editors",
	Long: `List every lesson under the lessons directory with the editors its page
declares and the snippet sections its manifest provides.

Examples:
  livecode list                   # Table output
  livecode list --format yaml     # YAML output
  livecode list -f json           # JSON output
  livecode list 'css-*'           # Lessons matching a pattern`,
	RunE: runList,
}

var listFormat = newEnum("table", "table", "yaml", "json")

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().VarP(listFormat, "format", "f", "Output format (table, yaml, json)")
}

type listEditor struct {
	ID       string `json:"id" yaml:"id"`
	Language string `json:"language" yaml:"language"`
	Section  string `json:"section" yaml:"section"`
	Snippet  bool   `json:"snippet" yaml:"snippet"`
}

type listEntry struct {
	Name     string       `json:"name" yaml:"name"`
	Title    string       `json:"title,omitempty" yaml:"title,omitempty"`
	Dir      string       `json:"dir" yaml:"dir"`
	Editors  []listEditor `json:"editors,omitempty" yaml:"editors,omitempty"`
	Sections []string     `json:"sections,omitempty" yaml:"sections,omitempty"`
	Error    string       `json:"error,omitempty" yaml:"error,omitempty"`
}

func runList(cmd *cobra.Command, args []string) error {
	if err := validatePatterns(args); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store := lesson.NewStore(cfg.Lessons.Dir, cfg.Logger())
	if err := store.Load(context.Background()); err != nil {
		return err
	}

	entries, err := listEntries(store, args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch listFormat.String() {
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	default:
		return writeListTable(out, entries)
	}
}

func listEntries(store *lesson.Store, patterns []string) ([]listEntry, error) {
	var entries []listEntry
	mods, _ := selectLessons(store, patterns)
	for _, mod := range mods {
		editors, err := pageEditors(mod)
		if err != nil {
			return nil, err
		}
		entries = append(entries, listEntry{
			Name:     mod.Name,
			Title:    mod.Title,
			Dir:      mod.Dir,
			Editors:  editors,
			Sections: mod.Resolver().Sections(),
		})
	}
	for name, err := range store.Failures() {
		if matchesAny(patterns, name) {
			entries = append(entries, listEntry{Name: name, Error: errors.UserMessage(err)})
		}
	}
	return entries, nil
}

// pageEditors registers the editors of a lesson page without a browser.
func pageEditors(mod *lesson.Module) ([]listEditor, error) {
	doc, err := dom.ParseString(mod.Page)
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeFileNotFound, "parsing lesson page").
			WithLocation(mod.Dir, 0, 0)
	}

	resolver := mod.Resolver()
	registry := editor.NewRegistry(doc, resolver, nil,
		editor.WithDeclared(mod.Manifest.DeclaredEditors()...))
	registry.InitializeAll(context.Background())

	var out []listEditor
	for _, id := range registry.IDs() {
		inst, _ := registry.Get(id)
		cfg := inst.Config()
		out = append(out, listEditor{
			ID:       id,
			Language: string(inst.Language()),
			Section:  cfg.Section,
			Snippet:  resolver.Has(cfg.Section),
		})
	}
	return out, nil
}

func writeListTable(out io.Writer, entries []listEntry) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LESSON\tEDITOR\tLANGUAGE\tSECTION\tSNIPPET")
	for _, e := range entries {
		if e.Error != "" {
			fmt.Fprintf(w, "%s\t-\t-\t-\terror: %s\n", e.Name, e.Error)
			continue
		}
		if len(e.Editors) == 0 {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\n", e.Name)
			continue
		}
		for _, ed := range e.Editors {
			snip := "placeholder"
			if ed.Snippet {
				snip = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Name, ed.ID, ed.Language, ed.Section, snip)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if len(entries) == 0 {
		_, err := fmt.Fprintln(out, "No lessons found.")
		return err
	}
	return nil
}
