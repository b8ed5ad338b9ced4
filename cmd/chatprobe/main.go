// Command chatprobe opens the chat page in headless Chrome, triggers one
// message exchange and reports what it observed.
// Usage: go run ./cmd/chatprobe [--url URL] [--db runs.db]
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/raysh454/chatprobe/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli.Execute(ctx, cli.NewProbeCmd())
}
