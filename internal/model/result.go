// Package model holds the outcome of a probe run.
package model

import (
	"time"

	"github.com/raysh454/chatprobe/internal/capture"
	"github.com/raysh454/chatprobe/internal/collector"
	"github.com/raysh454/chatprobe/internal/driver"
	"github.com/raysh454/chatprobe/internal/snapshot"
)

// Initial is what the page looked like right after loading.
type Initial struct {
	Screenshot       string             `json:"screenshot"`
	Snapshot         *snapshot.Snapshot `json:"snapshot"`
	InputVisible     bool               `json:"input_visible"`
	InputPlaceholder string             `json:"input_placeholder"`
	Suggestions      int                `json:"suggestions"`
}

// Result is everything a run observed. It is printed by the reporter and
// optionally kept by the run store.
type Result struct {
	RunID      string                   `json:"run_id"`
	Target     string                   `json:"target"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at"`
	Initial    Initial                  `json:"initial"`
	Action     *driver.Action           `json:"action"`
	Frames     []capture.Frame          `json:"frames"`
	Final      *snapshot.Snapshot       `json:"final"`
	Network    []collector.NetworkEvent `json:"network"`
	Console    []collector.ConsoleEntry `json:"console"`
}

// Screenshots lists every screenshot file of the run in the order taken.
func (r *Result) Screenshots() []string {
	out := make([]string, 0, len(r.Frames)+1)
	if r.Initial.Screenshot != "" {
		out = append(out, r.Initial.Screenshot)
	}
	for _, f := range r.Frames {
		out = append(out, f.Path)
	}
	return out
}
