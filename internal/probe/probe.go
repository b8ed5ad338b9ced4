// Package probe runs one end-to-end pass over the chat page: load it, send a
// message, sample the reply while it streams, and report what was seen.
package probe

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/raysh454/chatprobe/internal/app"
	"github.com/raysh454/chatprobe/internal/browser"
	"github.com/raysh454/chatprobe/internal/capture"
	"github.com/raysh454/chatprobe/internal/collector"
	"github.com/raysh454/chatprobe/internal/driver"
	"github.com/raysh454/chatprobe/internal/logging"
	"github.com/raysh454/chatprobe/internal/model"
	"github.com/raysh454/chatprobe/internal/report"
	"github.com/raysh454/chatprobe/internal/snapshot"
)

// Page is the browser tab as the probe uses it.
type Page interface {
	driver.Page
	capture.Page
	Navigate(ctx context.Context, url string) error
	InputState(ctx context.Context, selector string) (visible bool, placeholder string, err error)
	Listen(fn func(ev any))
	Close() error
}

// LaunchFunc opens the browser and returns its single tab.
type LaunchFunc func(ctx context.Context) (Page, error)

// Saver persists finished runs.
type Saver interface {
	SaveRun(ctx context.Context, res *model.Result) error
}

type Runner struct {
	cfg    *app.Config
	logger logging.Logger
	launch LaunchFunc
	out    io.Writer
	saver  Saver
	sleep  capture.SleepFunc
	now    func() time.Time
}

type Option func(*Runner)

func WithLauncher(fn LaunchFunc) Option { return func(r *Runner) { r.launch = fn } }
func WithOutput(w io.Writer) Option     { return func(r *Runner) { r.out = w } }
func WithSaver(s Saver) Option          { return func(r *Runner) { r.saver = s } }

// WithClock replaces the wall clock and the sleeps between checkpoints.
func WithClock(now func() time.Time, sleep capture.SleepFunc) Option {
	return func(r *Runner) {
		r.now = now
		r.sleep = sleep
	}
}

// NewRunner builds a Runner that launches Chrome and prints to stdout unless
// told otherwise.
func NewRunner(cfg *app.Config, logger logging.Logger, opts ...Option) *Runner {
	if cfg == nil {
		cfg = app.DefaultConfig()
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	r := &Runner{
		cfg:    cfg,
		logger: logger,
		out:    os.Stdout,
		sleep:  capture.Sleep,
		now:    time.Now,
	}
	r.launch = r.launchChrome
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Runner) launchChrome(ctx context.Context) (Page, error) {
	s, err := browser.Launch(ctx, browser.Options{
		Headless:          r.cfg.Headless,
		IdleAfter:         r.cfg.IdleAfter,
		NavigationTimeout: r.cfg.NavigationTimeout,
		ActionTimeout:     r.cfg.ActionTimeout,
	}, r.logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *Runner) selectors() snapshot.Selectors {
	return snapshot.Selectors{
		Message: r.cfg.Selectors.Message,
		Cursor:  r.cfg.Selectors.Cursor,
		Input:   r.cfg.Selectors.Input,
	}
}

func (r *Runner) snapshot(ctx context.Context, page Page) (*snapshot.Snapshot, error) {
	html, err := page.HTML(ctx)
	if err != nil {
		return nil, err
	}
	return snapshot.Parse(html, r.selectors())
}

// Run performs the probe. The report is written as the run progresses, so a
// failure leaves whatever was printed so far. The browser is closed on every
// path.
func (r *Runner) Run(ctx context.Context) (*model.Result, error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}

	res := &model.Result{
		RunID:     uuid.NewString(),
		Target:    r.cfg.TargetURL,
		StartedAt: r.now(),
	}
	logger := r.logger.With(
		logging.Field{Key: "component", Value: "probe"},
		logging.Field{Key: "run_id", Value: res.RunID})
	rep := report.New(r.out, report.Options{
		InitialPreview: r.cfg.InitialPreview,
		FinalPreview:   r.cfg.FinalPreview,
		ConsoleLimit:   r.cfg.ConsoleLimit,
		Marker:         r.cfg.NetworkMarker,
	})

	page, err := r.launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			logger.Warn("closing browser", logging.Err(cerr))
		}
	}()

	coll := collector.New(r.cfg.NetworkMarker)
	page.Listen(coll.HandleEvent)

	logger.Info("opening chat page", logging.Field{Key: "url", Value: r.cfg.TargetURL})
	if err := page.Navigate(ctx, r.cfg.TargetURL); err != nil {
		return nil, err
	}
	if err := r.sleep(ctx, r.cfg.InitialDelay); err != nil {
		return nil, err
	}
	if err := page.Screenshot(ctx, r.cfg.InitialScreenshot); err != nil {
		return nil, err
	}
	res.Initial.Screenshot = r.cfg.InitialScreenshot

	if res.Initial.Snapshot, err = r.snapshot(ctx, page); err != nil {
		return nil, err
	}
	if res.Initial.InputVisible, res.Initial.InputPlaceholder, err = page.InputState(ctx, r.cfg.Selectors.Input); err != nil {
		return nil, err
	}
	if res.Initial.Suggestions, err = page.CountButtonsWithText(ctx, r.cfg.SuggestionText); err != nil {
		return nil, err
	}
	rep.Initial(res.Initial)

	drv := driver.New(driver.Config{
		SuggestionText: r.cfg.SuggestionText,
		ManualMessage:  r.cfg.ManualMessage,
		InputSelector:  r.cfg.Selectors.Input,
		SendSelector:   r.cfg.Selectors.SendButton,
	}, logger)
	if res.Action, err = drv.Interact(ctx, page); err != nil {
		return nil, err
	}
	rep.Action(res)

	loop := &capture.Loop{
		Schedule:  r.cfg.Schedule,
		Selectors: r.selectors(),
		Sleep:     r.sleep,
		Now:       r.now,
		Logger:    logger,
	}
	if res.Frames, err = loop.Run(ctx, page, res.Initial.Snapshot); err != nil {
		return nil, err
	}

	if res.Final, err = r.snapshot(ctx, page); err != nil {
		return nil, err
	}
	res.Network = coll.Network()
	res.Console = coll.Console()
	res.FinishedAt = r.now()
	rep.Final(res)

	logger.Info("probe finished",
		logging.Field{Key: "screenshots", Value: len(res.Screenshots())},
		logging.Field{Key: "network_events", Value: len(res.Network)},
		logging.Field{Key: "console_entries", Value: len(res.Console)})

	if r.saver != nil {
		if err := r.saver.SaveRun(ctx, res); err != nil {
			return res, fmt.Errorf("saving run: %w", err)
		}
	}
	return res, nil
}
