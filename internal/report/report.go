// Package report prints a probe run for a human to read.
package report

import (
	"fmt"
	"io"

	"github.com/raysh454/chatprobe/internal/driver"
	"github.com/raysh454/chatprobe/internal/model"
	"github.com/raysh454/chatprobe/internal/snapshot"
)

// Options bound how much of the run is printed.
type Options struct {
	InitialPreview int
	FinalPreview   int
	ConsoleLimit   int
	Marker         string
}

type Reporter struct {
	w    io.Writer
	opts Options
}

func New(w io.Writer, opts Options) *Reporter {
	return &Reporter{w: w, opts: opts}
}

func (r *Reporter) printf(format string, args ...any) {
	fmt.Fprintf(r.w, format, args...)
}

// Initial prints the state of the freshly loaded page.
func (r *Reporter) Initial(in model.Initial) {
	r.printf("=== Initial page loaded ===\n")
	msgs := messages(in.Snapshot)
	r.printf("Messages visible: %d\n", len(msgs))
	for _, m := range msgs {
		r.printf("  Message: %s\n", snapshot.Truncate(m, r.opts.InitialPreview))
	}
	r.printf("Input visible: %t\n", in.InputVisible)
	r.printf("Input placeholder: %s\n", in.InputPlaceholder)
	r.printf("Suggestion buttons found: %d\n", in.Suggestions)
}

// Action prints which way the exchange was triggered.
func (r *Reporter) Action(res *model.Result) {
	if res.Action == nil {
		return
	}
	if res.Action.Kind == driver.KindSuggestion {
		r.printf("Clicking suggestion: %s\n", res.Action.Text)
	} else {
		r.printf("Typing message manually\n")
	}
}

// Final prints checkpoints, the last message list, the cursor count, the
// marked network events and the head of the console log.
func (r *Reporter) Final(res *model.Result) {
	r.printf("\n=== Waiting for response ===\n")
	for _, f := range res.Frames {
		r.printf("  [%s] %s: +%d/-%d chars\n", f.Name, f.Path, f.Progress.Inserted, f.Progress.Deleted)
	}

	msgs := messages(res.Final)
	r.printf("\nFinal messages visible: %d\n", len(msgs))
	for _, m := range msgs {
		r.printf("  Message: %s\n", snapshot.Truncate(m, r.opts.FinalPreview))
	}

	cursors := 0
	if res.Final != nil {
		cursors = res.Final.CursorCount
	}
	r.printf("\nAnimated pulse elements: %d\n", cursors)

	r.printf("\n=== Network events (%s) ===\n", r.opts.Marker)
	for _, ev := range res.Network {
		r.printf("  %s -> %d\n", ev.URL, ev.Status)
	}

	r.printf("\n=== Console logs (%d entries) ===\n", len(res.Console))
	limit := len(res.Console)
	if r.opts.ConsoleLimit >= 0 && limit > r.opts.ConsoleLimit {
		limit = r.opts.ConsoleLimit
	}
	for _, e := range res.Console[:limit] {
		r.printf("  %s\n", e)
	}
}

// Print writes the whole report.
func (r *Reporter) Print(res *model.Result) {
	r.Initial(res.Initial)
	r.Action(res)
	r.Final(res)
}

func messages(s *snapshot.Snapshot) []string {
	if s == nil {
		return nil
	}
	return s.Messages
}
