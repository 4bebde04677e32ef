package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/livecode/internal/lesson"
	"github.com/conneroisu/livecode/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Serve lessons with live editors",
	Long: `Start the lesson server. Every page load opens a session that runs the
editor engine for that page; lesson files are reloaded when they change.

Examples:
  livecode serve                          # Serve ./lessons on localhost:8080
  livecode serve -p 3000 --host 0.0.0.0   # Listen on all interfaces
  livecode serve --lessons ./course       # Serve another lessons directory
  livecode serve --isolation open         # Let previews reach the page origin`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	flags := serveCmd.Flags()
	flags.IntP("port", "p", 8080, "Port to serve on")
	flags.String("host", "localhost", "Host to bind to")
	flags.Var(newEnum("strict", "strict", "open"), "isolation", "Preview frame isolation (strict, open)")
	flags.Bool("watch", true, "Reload lessons when their files change")

	mustBind(flags, map[string]string{
		"server.port":       "port",
		"server.host":       "host",
		"sandbox.isolation": "isolation",
		"lessons.watch":     "watch",
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := cfg.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := lesson.NewStore(cfg.Lessons.Dir, logger)
	if err := store.Load(ctx); err != nil {
		return err
	}
	for name, loadErr := range store.Failures() {
		logger.Warn(ctx, loadErr, "lesson skipped", "lesson", name)
	}

	srv := server.New(cfg, store, logger)
	fmt.Fprintf(cmd.OutOrStdout(), "Serving %d lessons from %s at http://%s\n",
		len(store.List()), store.Root(), cfg.Address())

	return srv.Start(ctx)
}
