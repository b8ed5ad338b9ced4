package capture_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/chatprobe/internal/app"
	"github.com/raysh454/chatprobe/internal/capture"
	"github.com/raysh454/chatprobe/internal/snapshot"
	"github.com/raysh454/chatprobe/internal/testutil"
)

func page(msgs ...string) string {
	out := "<html><body>"
	for _, m := range msgs {
		out += `<span class="whitespace-pre-wrap">` + m + `</span>`
	}
	return out + "</body></html>"
}

func TestSchedule_CumulativeOffsets(t *testing.T) {
	s := capture.Schedule(app.DefaultConfig().Schedule)
	assert.Equal(t, 1*time.Second, s.Offset(0))
	assert.Equal(t, 3*time.Second, s.Offset(1))
	assert.Equal(t, 6*time.Second, s.Offset(2))
	assert.Equal(t, 10*time.Second, s.Offset(3))
}

func TestLoop_ShootsEveryCheckpointInOrder(t *testing.T) {
	cfg := app.DefaultConfig()
	fake := &testutil.FakePage{Pages: []string{
		page("hi", "Re"),
		page("hi", "React + Ty"),
		page("hi", "React + TypeScript"),
		page("hi", "React + TypeScript"),
	}}

	var slept []time.Duration
	clock := testutil.NewClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	loop := &capture.Loop{
		Schedule:  cfg.Schedule,
		Selectors: snapshot.Selectors{Message: cfg.Selectors.Message},
		Sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			clock.Advance(d)
			return nil
		},
		Now: clock.Now,
	}

	frames, err := loop.Run(context.Background(), fake, &snapshot.Snapshot{Messages: []string{"hi"}})
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 4 * time.Second}, slept)
	assert.Equal(t, capture.Schedule(cfg.Schedule).Paths(), fake.Screenshots)
	require.Len(t, frames, 4)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, f := range frames {
		assert.Equal(t, start.Add(f.Offset), f.TakenAt, f.Name)
	}
	assert.True(t, frames[0].Progress.Streaming())
	assert.True(t, frames[2].Progress.Streaming())
	assert.False(t, frames[3].Progress.Streaming())
	assert.Equal(t, []string{"hi", "React + TypeScript"}, frames[3].Snapshot.Messages)
}

func TestLoop_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fake := &testutil.FakePage{}
	loop := &capture.Loop{Schedule: app.DefaultConfig().Schedule}

	frames, err := loop.Run(ctx, fake, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, frames)
	assert.Empty(t, fake.Screenshots)
}

func TestLoop_ScreenshotErrorIsFatal(t *testing.T) {
	boom := errors.New("disk full")
	fake := &testutil.FakePage{ScreenshotErr: boom}
	loop := &capture.Loop{
		Schedule: app.DefaultConfig().Schedule,
		Sleep:    func(context.Context, time.Duration) error { return nil },
	}

	_, err := loop.Run(context.Background(), fake, nil)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "checkpoint 1s")
}

func TestSleep_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := capture.Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
