// Package testutil provides shared test doubles for use across package tests.
// The doubles satisfy the small interfaces the production code accepts, so
// components can be exercised without a browser.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/raysh454/chatprobe/internal/logging"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// ─── Page ──────────────────────────────────────────────────────────────

// FakePage stands in for a browser tab. Every call is appended to Calls in a
// short "verb:argument" form so tests can assert on the exact sequence.
type FakePage struct {
	// Suggestions is how many buttons match the suggestion text.
	Suggestions int

	// Pages are returned by successive HTML calls; the last one repeats.
	Pages []string

	InputVisible     bool
	InputPlaceholder string

	// NavigateEvents are replayed to the listener on Navigate, ClickEvents
	// after a suggestion or send click.
	NavigateEvents []any
	ClickEvents    []any

	CountErr      error
	ClickErr      error
	FillErr       error
	NavigateErr   error
	ScreenshotErr error

	Calls       []string
	Screenshots []string
	Closed      bool

	listeners []func(any)
	htmlIdx   int
}

func (p *FakePage) Listen(fn func(ev any)) {
	p.listeners = append(p.listeners, fn)
}

func (p *FakePage) emit(events []any) {
	for _, ev := range events {
		for _, fn := range p.listeners {
			fn(ev)
		}
	}
}

func (p *FakePage) Navigate(ctx context.Context, url string) error {
	p.Calls = append(p.Calls, "navigate:"+url)
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	p.emit(p.NavigateEvents)
	return nil
}

func (p *FakePage) CountButtonsWithText(ctx context.Context, text string) (int, error) {
	p.Calls = append(p.Calls, "count:"+text)
	return p.Suggestions, p.CountErr
}

func (p *FakePage) ClickButtonWithText(ctx context.Context, text string) error {
	p.Calls = append(p.Calls, "click-text:"+text)
	if p.ClickErr != nil {
		return p.ClickErr
	}
	p.emit(p.ClickEvents)
	return nil
}

func (p *FakePage) Fill(ctx context.Context, selector, value string) error {
	p.Calls = append(p.Calls, fmt.Sprintf("fill:%s=%s", selector, value))
	return p.FillErr
}

func (p *FakePage) Click(ctx context.Context, selector string) error {
	p.Calls = append(p.Calls, "click:"+selector)
	if p.ClickErr != nil {
		return p.ClickErr
	}
	p.emit(p.ClickEvents)
	return nil
}

func (p *FakePage) InputState(ctx context.Context, selector string) (bool, string, error) {
	return p.InputVisible, p.InputPlaceholder, nil
}

func (p *FakePage) Screenshot(ctx context.Context, path string) error {
	if p.ScreenshotErr != nil {
		return p.ScreenshotErr
	}
	p.Screenshots = append(p.Screenshots, path)
	return nil
}

func (p *FakePage) HTML(ctx context.Context) (string, error) {
	if len(p.Pages) == 0 {
		return "<html><body></body></html>", nil
	}
	i := p.htmlIdx
	if i >= len(p.Pages) {
		i = len(p.Pages) - 1
	} else {
		p.htmlIdx++
	}
	return p.Pages[i], nil
}

func (p *FakePage) Close() error {
	p.Closed = true
	return nil
}

// ─── Clock ─────────────────────────────────────────────────────────────

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// NoSleep advances the clock instead of waiting.
func (c *Clock) NoSleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}
