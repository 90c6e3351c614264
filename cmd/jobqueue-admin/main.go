// Command jobqueue-admin inspects and operates a jobqueue store.
package main

import (
	"context"
	"os"

	"github.com/target/mmk-jobqueue/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()

	root := newRootCommand(newApp(logger, os.Stdout))
	if err := root.ExecuteContext(ctx); err != nil {
		logger.ErrorContext(ctx, "command failed", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}
