// Command termgraph loads concept definitions into a versioned terminology
// store and queries its taxonomy.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/termgraph/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
