package probe_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/chatprobe/internal/app"
	"github.com/raysh454/chatprobe/internal/driver"
	"github.com/raysh454/chatprobe/internal/probe"
	"github.com/raysh454/chatprobe/internal/runstore"
	"github.com/raysh454/chatprobe/internal/testutil"
)

func chatHTML(suggestion bool, msgs ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div id="messages">`)
	for _, m := range msgs {
		fmt.Fprintf(&b, `<span class="whitespace-pre-wrap break-words">%s</span>`, m)
	}
	b.WriteString(`</div>`)
	if suggestion {
		b.WriteString(`<button>What's your tech stack?</button>`)
	}
	b.WriteString(`<input type="text" placeholder="Ask me anything..."><button aria-label="Send">go</button></body></html>`)
	return b.String()
}

func consoleLog(text string) *runtime.EventConsoleAPICalled {
	return &runtime.EventConsoleAPICalled{
		Type: runtime.APITypeLog,
		Args: []*runtime.RemoteObject{{Type: runtime.TypeString, Value: []byte(`"` + text + `"`)}},
	}
}

func response(url string, status int64) *network.EventResponseReceived {
	return &network.EventResponseReceived{Response: &network.Response{URL: url, Status: status}}
}

func newFakePage(suggestions int) *testutil.FakePage {
	has := suggestions > 0
	return &testutil.FakePage{
		Suggestions:      suggestions,
		InputVisible:     true,
		InputPlaceholder: "Ask me anything...",
		Pages: []string{
			chatHTML(has, "Hey!"),
			chatHTML(false, "Hey!", "Hi", "I'm a"),
			chatHTML(false, "Hey!", "Hi", "I'm a software"),
			chatHTML(false, "Hey!", "Hi", "I'm a software engineer."),
			chatHTML(false, "Hey!", "Hi", "I'm a software engineer."),
			chatHTML(false, "Hey!", "Hi", "I'm a software engineer."),
		},
		NavigateEvents: []any{
			consoleLog("[chat] page ready"),
			response("http://localhost:5173/chat", 200),
			response("http://localhost:5173/assets/index.js", 200),
		},
		ClickEvents: []any{
			consoleLog("[chat] sending message"),
			response("http://localhost:5173/chatbot-api/api/chat", 200),
			response("http://localhost:5173/favicon.ico", 404),
		},
	}
}

func newRunner(t *testing.T, page *testutil.FakePage, out *bytes.Buffer, opts ...probe.Option) (*probe.Runner, *testutil.Clock) {
	t.Helper()
	clock := testutil.NewClock(time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC))
	base := []probe.Option{
		probe.WithLauncher(func(context.Context) (probe.Page, error) { return page, nil }),
		probe.WithOutput(out),
		probe.WithClock(clock.Now, clock.NoSleep),
	}
	return probe.NewRunner(app.DefaultConfig(), &testutil.DummyLogger{}, append(base, opts...)...), clock
}

func TestRun_ManualMessageWhenNoSuggestion(t *testing.T) {
	page := newFakePage(0)
	var out bytes.Buffer
	runner, _ := newRunner(t, page, &out)

	res, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, driver.KindManual, res.Action.Kind)
	assert.Contains(t, page.Calls, "fill:input[type='text']=Hi, what do you do?")
	assert.Contains(t, page.Calls, "click:button[aria-label='Send']")
	assert.NotContains(t, page.Calls, "click-text:tech stack")
	assert.Contains(t, out.String(), "Typing message manually\n")
	assert.True(t, page.Closed)
}

func TestRun_SuggestionClickedAndInputUntouched(t *testing.T) {
	page := newFakePage(1)
	var out bytes.Buffer
	runner, _ := newRunner(t, page, &out)

	res, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, driver.KindSuggestion, res.Action.Kind)
	assert.Contains(t, page.Calls, "click-text:tech stack")
	for _, c := range page.Calls {
		assert.False(t, strings.HasPrefix(c, "fill:"), c)
		assert.NotEqual(t, "click:button[aria-label='Send']", c)
	}
	assert.Contains(t, out.String(), "Suggestion buttons found: 1\n")
	assert.Contains(t, out.String(), "Clicking suggestion: tech stack\n")
}

func TestRun_ExactlyFiveScreenshotsOnSchedule(t *testing.T) {
	page := newFakePage(0)
	var out bytes.Buffer
	runner, clock := newRunner(t, page, &out)
	start := clock.Now()

	res, err := runner.Run(context.Background())
	require.NoError(t, err)

	want := []string{
		"/tmp/chat_initial.png",
		"/tmp/chat_1s.png",
		"/tmp/chat_3s.png",
		"/tmp/chat_6s.png",
		"/tmp/chat_10s.png",
	}
	assert.Equal(t, want, page.Screenshots)
	assert.Equal(t, want, res.Screenshots())

	// 1s settle before the initial shot, then the checkpoints.
	offsets := []time.Duration{}
	for _, f := range res.Frames {
		offsets = append(offsets, f.TakenAt.Sub(start)-time.Second)
	}
	assert.Equal(t, []time.Duration{time.Second, 3 * time.Second, 6 * time.Second, 10 * time.Second}, offsets)
}

func TestRun_OnlyMarkedNetworkEvents(t *testing.T) {
	page := newFakePage(0)
	var out bytes.Buffer
	runner, _ := newRunner(t, page, &out)

	res, err := runner.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Network, 1)
	for _, ev := range res.Network {
		assert.Contains(t, ev.URL, "chatbot-api")
	}
	assert.Contains(t, out.String(), "  http://localhost:5173/chatbot-api/api/chat -> 200\n")
	assert.NotContains(t, out.String(), "favicon.ico")
	assert.Len(t, res.Console, 2)
}

func TestRun_ReportsFinalStateAndProgress(t *testing.T) {
	page := newFakePage(0)
	var out bytes.Buffer
	runner, _ := newRunner(t, page, &out)

	res, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Hey!", "Hi", "I'm a software engineer."}, res.Final.Messages)
	require.Len(t, res.Frames, 4)
	assert.True(t, res.Frames[0].Progress.Streaming())
	assert.False(t, res.Frames[3].Progress.Streaming())

	report := out.String()
	assert.Contains(t, report, "=== Initial page loaded ===\nMessages visible: 1\n")
	assert.Contains(t, report, "Input visible: true\n")
	assert.Contains(t, report, "Final messages visible: 3\n")
	assert.Contains(t, report, "=== Console logs (2 entries) ===\n")
}

func TestRun_ConsoleReportCapped(t *testing.T) {
	page := newFakePage(0)
	for i := 0; i < 40; i++ {
		page.ClickEvents = append(page.ClickEvents, consoleLog(fmt.Sprintf("tick %d", i)))
	}
	var out bytes.Buffer
	runner, _ := newRunner(t, page, &out)

	res, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, res.Console, 42)
	section := out.String()[strings.Index(out.String(), "=== Console logs"):]
	assert.Equal(t, 30, strings.Count(section, "\n  ["))
}

func TestRun_NavigationFailureClosesBrowser(t *testing.T) {
	page := newFakePage(0)
	page.NavigateErr = errors.New("net::ERR_CONNECTION_REFUSED")
	var out bytes.Buffer
	runner, _ := newRunner(t, page, &out)

	_, err := runner.Run(context.Background())
	require.ErrorIs(t, err, page.NavigateErr)
	assert.True(t, page.Closed)
	assert.Empty(t, page.Screenshots)
}

func TestRun_MissingSendButtonFailsLoudly(t *testing.T) {
	page := newFakePage(0)
	page.ClickErr = context.DeadlineExceeded
	var out bytes.Buffer
	runner, _ := newRunner(t, page, &out)

	_, err := runner.Run(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, page.Screenshots, 1, "only the initial shot is taken")
	assert.NotContains(t, out.String(), "Final messages visible")
}

func TestRun_LaunchFailure(t *testing.T) {
	var out bytes.Buffer
	runner := probe.NewRunner(app.DefaultConfig(), nil,
		probe.WithOutput(&out),
		probe.WithLauncher(func(context.Context) (probe.Page, error) {
			return nil, errors.New("chrome not found")
		}))

	_, err := runner.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "launching browser")
}

func TestRun_SavesToStore(t *testing.T) {
	store, err := runstore.Open(filepath.Join(t.TempDir(), "runs.db"), nil)
	require.NoError(t, err)
	defer store.Close()

	page := newFakePage(1)
	var out bytes.Buffer
	runner, _ := newRunner(t, page, &out, probe.WithSaver(store))

	res, err := runner.Run(context.Background())
	require.NoError(t, err)

	got, err := store.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, res.Network, got.Network)
	assert.Len(t, got.Frames, 4)
	assert.Equal(t, driver.KindSuggestion, got.Action.Kind)
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := app.DefaultConfig()
	cfg.Schedule = nil
	runner := probe.NewRunner(cfg, nil, probe.WithLauncher(func(context.Context) (probe.Page, error) {
		t.Fatal("browser must not be launched")
		return nil, nil
	}))
	_, err := runner.Run(context.Background())
	assert.ErrorIs(t, err, app.ErrEmptySchedule)
}
