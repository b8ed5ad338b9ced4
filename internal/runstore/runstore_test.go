package runstore_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/chatprobe/internal/capture"
	"github.com/raysh454/chatprobe/internal/collector"
	"github.com/raysh454/chatprobe/internal/driver"
	"github.com/raysh454/chatprobe/internal/model"
	"github.com/raysh454/chatprobe/internal/runstore"
	"github.com/raysh454/chatprobe/internal/snapshot"
	"github.com/raysh454/chatprobe/internal/testutil"
)

func openStore(t *testing.T) *runstore.Store {
	t.Helper()
	s, err := runstore.Open(filepath.Join(t.TempDir(), "runs", "chatprobe.db"), &testutil.DummyLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleResult(started time.Time) *model.Result {
	return &model.Result{
		Target:     "http://localhost:5173/chat",
		StartedAt:  started,
		FinishedAt: started.Add(12 * time.Second),
		Initial: model.Initial{
			Screenshot:       "/tmp/chat_initial.png",
			Snapshot:         &snapshot.Snapshot{Messages: []string{"Hey!"}, HasInput: true},
			InputVisible:     true,
			InputPlaceholder: "Ask me anything...",
			Suggestions:      1,
		},
		Action: &driver.Action{Kind: driver.KindSuggestion, Text: "tech stack", Suggestions: 1},
		Frames: []capture.Frame{
			{Name: "1s", Offset: time.Second, Path: "/tmp/chat_1s.png", TakenAt: started.Add(2 * time.Second),
				Snapshot: &snapshot.Snapshot{Messages: []string{"Hey!", "React"}, CursorCount: 1},
				Progress: snapshot.Progress{Inserted: 6}},
			{Name: "3s", Offset: 3 * time.Second, Path: "/tmp/chat_3s.png", TakenAt: started.Add(4 * time.Second)},
		},
		Final: &snapshot.Snapshot{Messages: []string{"Hey!", "React + TypeScript"}},
		Network: []collector.NetworkEvent{
			{URL: "http://x/chatbot-api/api/chat", Status: 200, Headers: map[string]string{"content-type": "text/event-stream"}},
		},
		Console: []collector.ConsoleEntry{{Level: "log", Text: "a"}, {Level: "error", Text: "b"}},
	}
}

func TestSaveRun_AssignsIDAndRoundTrips(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	started := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	res := sampleResult(started)

	require.NoError(t, s.SaveRun(ctx, res))
	_, err := uuid.Parse(res.RunID)
	require.NoError(t, err)

	got, err := s.GetRun(ctx, res.RunID)
	require.NoError(t, err)

	assert.Equal(t, res.Target, got.Target)
	assert.True(t, started.Equal(got.StartedAt))
	assert.Equal(t, res.Action, got.Action)
	assert.Equal(t, res.Initial, got.Initial)
	assert.Equal(t, res.Final, got.Final)
	assert.Equal(t, res.Network, got.Network)
	assert.Equal(t, res.Console, got.Console)
	require.Len(t, got.Frames, 2)
	assert.Equal(t, 6, got.Frames[0].Progress.Inserted)
	assert.Equal(t, []string{"Hey!", "React"}, got.Frames[0].Snapshot.Messages)
	assert.Nil(t, got.Frames[1].Snapshot)
	assert.Equal(t, 3*time.Second, got.Frames[1].Offset)
}

func TestGetRun_NotFound(t *testing.T) {
	s := openStore(t)
	_, err := s.GetRun(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, runstore.ErrRunNotFound)
}

func TestSaveRun_RejectsBadID(t *testing.T) {
	s := openStore(t)
	res := sampleResult(time.Now())
	res.RunID = "not-a-uuid"
	assert.Error(t, s.SaveRun(context.Background(), res))
}

func TestListRuns_NewestFirstWithCounts(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	older := sampleResult(base)
	newer := sampleResult(base.Add(time.Hour))
	newer.Action = nil
	newer.Console = nil
	require.NoError(t, s.SaveRun(ctx, older))
	require.NoError(t, s.SaveRun(ctx, newer))

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.RunID, runs[0].ID)
	assert.Equal(t, "", runs[0].ActionKind)
	assert.Equal(t, 0, runs[0].Console)
	assert.Equal(t, older.RunID, runs[1].ID)
	assert.Equal(t, "suggestion", runs[1].ActionKind)
	assert.Equal(t, 2, runs[1].Frames)
	assert.Equal(t, 1, runs[1].Network)
	assert.Equal(t, 2, runs[1].Console)

	limited, err := s.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
