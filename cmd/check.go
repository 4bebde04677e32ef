package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/livecode/internal/errors"
	"github.com/conneroisu/livecode/internal/lesson"
	"github.com/conneroisu/livecode/internal/sandbox"
	"github.com/conneroisu/livecode/internal/session"
)

var checkCmd = &cobra.Command{
	Use:   "check [pattern...]",
	Short: "Run every snippet once and report failures",
	Long: `Load each lesson, initialize its editors and run every editor once with
its initial snippet, the way a reader pressing Run would. Syntax errors and
pages without editors are reported; the command fails if any run fails.

Examples:
  livecode check                  # Check every lesson
  livecode check intro css-boxes  # Check selected lessons
  livecode check 'css-*'          # Check lessons matching a pattern`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	if err := validatePatterns(args); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store := lesson.NewStore(cfg.Lessons.Dir, nil)
	if err := store.Load(ctx); err != nil {
		return err
	}

	opts := session.DefaultOptions()
	opts.Isolation = cfg.Isolation()
	opts.Preflight = cfg.Preflight()

	out := cmd.OutOrStdout()
	problems := 0

	for name, loadErr := range store.Failures() {
		if !matchesAny(args, name) {
			continue
		}
		fmt.Fprintf(out, "FAIL %s: %s\n", name, errors.UserMessage(loadErr))
		problems++
	}

	mods, unmatched := selectLessons(store, args)
	for _, pattern := range unmatched {
		fmt.Fprintf(out, "FAIL %s: %s\n", pattern, errors.UserMessage(errors.ErrLessonNotFound(pattern)))
		problems++
	}

	for _, mod := range mods {
		reports, err := session.Check(ctx, mod, opts)
		if err != nil {
			return err
		}
		if len(reports) == 0 {
			fmt.Fprintf(out, "WARN %s: no editors found\n", mod.Name)
			continue
		}
		for _, r := range reports {
			switch {
			case r.Failed():
				fmt.Fprintf(out, "FAIL %s/%s: %s\n", mod.Name, r.Editor, r.Message)
				problems++
			case r.Outcome == sandbox.KindSkipped.String():
				fmt.Fprintf(out, "SKIP %s/%s: no preview\n", mod.Name, r.Editor)
			case r.Warning != "":
				fmt.Fprintf(out, "WARN %s/%s: %s\n", mod.Name, r.Editor, r.Warning)
			default:
				fmt.Fprintf(out, "ok   %s/%s\n", mod.Name, r.Editor)
			}
		}
	}

	if problems > 0 {
		return fmt.Errorf("%d problem(s) found", problems)
	}
	return nil
}
