// Package capture samples the page on a fixed schedule while a reply streams
// in. There is no completion signal; the schedule is the approximation.
package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/raysh454/chatprobe/internal/app"
	"github.com/raysh454/chatprobe/internal/logging"
	"github.com/raysh454/chatprobe/internal/snapshot"
)

// Page is what the loop needs from the browser.
type Page interface {
	Screenshot(ctx context.Context, path string) error
	HTML(ctx context.Context) (string, error)
}

// Schedule is an ordered list of checkpoints with relative delays.
type Schedule []app.Checkpoint

// Offset returns the cumulative delay up to and including checkpoint i.
func (s Schedule) Offset(i int) time.Duration {
	var total time.Duration
	for j := 0; j <= i && j < len(s); j++ {
		total += s[j].Delay
	}
	return total
}

// Paths lists the screenshot files in schedule order.
func (s Schedule) Paths() []string {
	out := make([]string, len(s))
	for i, cp := range s {
		out[i] = cp.Path
	}
	return out
}

// Frame is one sampled checkpoint.
type Frame struct {
	Name     string             `json:"name"`
	Offset   time.Duration      `json:"offset"`
	Path     string             `json:"path"`
	TakenAt  time.Time          `json:"taken_at"`
	Snapshot *snapshot.Snapshot `json:"snapshot,omitempty"`
	Progress snapshot.Progress  `json:"progress"`
}

// SleepFunc waits d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Loop walks a Schedule.
type Loop struct {
	Schedule  Schedule
	Selectors snapshot.Selectors
	Sleep     SleepFunc
	Now       func() time.Time
	Logger    logging.Logger
}

// Run waits out each checkpoint's delay and then takes a full-page
// screenshot and an HTML snapshot. prev is the snapshot the first
// checkpoint's progress is measured against and may be nil.
func (l *Loop) Run(ctx context.Context, page Page, prev *snapshot.Snapshot) ([]Frame, error) {
	sleep := l.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	now := l.Now
	if now == nil {
		now = time.Now
	}
	logger := l.Logger
	if logger == nil {
		logger = logging.Nop{}
	}

	frames := make([]Frame, 0, len(l.Schedule))
	for i, cp := range l.Schedule {
		if err := sleep(ctx, cp.Delay); err != nil {
			return frames, fmt.Errorf("waiting for checkpoint %s: %w", cp.Name, err)
		}
		if err := page.Screenshot(ctx, cp.Path); err != nil {
			return frames, fmt.Errorf("screenshot at checkpoint %s: %w", cp.Name, err)
		}
		frame := Frame{Name: cp.Name, Offset: l.Schedule.Offset(i), Path: cp.Path, TakenAt: now()}

		html, err := page.HTML(ctx)
		if err != nil {
			return frames, fmt.Errorf("reading page at checkpoint %s: %w", cp.Name, err)
		}
		snap, err := snapshot.Parse(html, l.Selectors)
		if err != nil {
			return frames, err
		}
		frame.Snapshot = snap
		frame.Progress = snapshot.Diff(prev, snap)
		prev = snap

		logger.Debug("checkpoint captured",
			logging.Field{Key: "checkpoint", Value: cp.Name},
			logging.Field{Key: "path", Value: cp.Path},
			logging.Field{Key: "inserted", Value: frame.Progress.Inserted})
		frames = append(frames, frame)
	}
	return frames, nil
}
