// Command chatdemo serves a local chat page with a streaming chatbot API.
// Usage: go run ./cmd/chatdemo [--port 5173] [--no-suggestions]
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

	cli.Execute(ctx, cli.NewDemoCmd())
}
