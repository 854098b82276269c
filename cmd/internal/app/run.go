package app

import (
	"context"
	"os/signal"
	"syscall"
)

// Run is the CLI entrypoint used by cmd/invtrack.
// It returns an error instead of calling os.Exit to keep defers effective and lint clean.
func Run(args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	root := NewRootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
