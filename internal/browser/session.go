// Package browser drives a single headless Chrome tab through chromedp.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/raysh454/chatprobe/internal/artifact"
	"github.com/raysh454/chatprobe/internal/logging"
)

// Options configure the browser and the timeouts of the actions run in it.
type Options struct {
	Headless          bool
	IdleAfter         time.Duration
	NavigationTimeout time.Duration
	ActionTimeout     time.Duration
	WindowWidth       int
	WindowHeight      int
}

func (o *Options) setDefaults() {
	if o.IdleAfter <= 0 {
		o.IdleAfter = 500 * time.Millisecond
	}
	if o.NavigationTimeout <= 0 {
		o.NavigationTimeout = 30 * time.Second
	}
	if o.ActionTimeout <= 0 {
		o.ActionTimeout = 30 * time.Second
	}
	if o.WindowWidth <= 0 || o.WindowHeight <= 0 {
		o.WindowWidth, o.WindowHeight = 1280, 720
	}
}

// Session is one browser process with one open tab.
type Session struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	opts        Options
	logger      logging.Logger
}

// Launch starts Chrome and opens a blank tab. The caller must Close the
// session; cancelling ctx also tears the browser down.
func Launch(ctx context.Context, opts Options, logger logging.Logger) (*Session, error) {
	opts.setDefaults()
	if logger == nil {
		logger = logging.Nop{}
	}
	logger = logger.With(logging.Field{Key: "component", Value: "browser"})

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...))
		}),
		chromedp.WithErrorf(func(format string, args ...any) {
			logger.Warn(fmt.Sprintf(format, args...))
		}),
	)

	// An empty Run allocates the browser and the tab.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("starting browser: %w", err)
	}

	logger.Info("browser launched", logging.Field{Key: "headless", Value: opts.Headless})
	return &Session{ctx: tabCtx, cancel: cancel, allocCancel: allocCancel, opts: opts, logger: logger}, nil
}

// scoped returns a context bound to the tab that expires after timeout or
// when ctx is done, whichever comes first.
func (s *Session) scoped(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	c, cancel := context.WithTimeout(s.ctx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return c, func() {
		stop()
		cancel()
	}
}

// Listen subscribes fn to every CDP event of the tab for the session's
// lifetime. fn runs on the event goroutine and must not block.
func (s *Session) Listen(fn func(ev any)) {
	chromedp.ListenTarget(s.ctx, fn)
}

// Navigate loads url and returns once the network has been idle for the
// configured window.
func (s *Session) Navigate(ctx context.Context, url string) error {
	c, cancel := s.scoped(ctx, s.opts.NavigationTimeout)
	defer cancel()

	w := newIdleWatcher(s.opts.IdleAfter)
	defer w.stop()
	chromedp.ListenTarget(c, w.handle)

	start := time.Now()
	if err := chromedp.Run(c, network.Enable(), chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	w.arm()

	select {
	case <-w.done:
	case <-c.Done():
		return fmt.Errorf("waiting for network idle on %s: %w", url, c.Err())
	}
	s.logger.Info("page loaded",
		logging.Field{Key: "url", Value: url},
		logging.Field{Key: "elapsed", Value: time.Since(start).String()})
	return nil
}

// Screenshot writes a full-page PNG to path.
func (s *Session) Screenshot(ctx context.Context, path string) error {
	c, cancel := s.scoped(ctx, s.opts.ActionTimeout)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(c, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return fmt.Errorf("capturing screenshot: %w", err)
	}
	if err := artifact.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("writing screenshot %s: %w", path, err)
	}
	s.logger.Debug("screenshot saved", logging.Field{Key: "path", Value: path}, logging.Field{Key: "bytes", Value: len(buf)})
	return nil
}

// HTML returns the current document's outer HTML.
func (s *Session) HTML(ctx context.Context) (string, error) {
	c, cancel := s.scoped(ctx, s.opts.ActionTimeout)
	defer cancel()

	var html string
	if err := chromedp.Run(c, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("reading page html: %w", err)
	}
	return html, nil
}

// buttonsWithText is a JS expression yielding the buttons whose text contains
// the quoted needle, ignoring case and collapsing whitespace.
func buttonsWithText(text string) string {
	needle, _ := json.Marshal(text)
	return fmt.Sprintf(`Array.from(document.querySelectorAll("button")).filter(function (b) {
	var t = (b.innerText || b.textContent || "").replace(/\s+/g, " ").toLowerCase();
	return t.indexOf(%s.toLowerCase()) !== -1;
})`, needle)
}

func (s *Session) CountButtonsWithText(ctx context.Context, text string) (int, error) {
	c, cancel := s.scoped(ctx, s.opts.ActionTimeout)
	defer cancel()

	var n int
	if err := chromedp.Run(c, chromedp.Evaluate(buttonsWithText(text)+".length", &n)); err != nil {
		return 0, fmt.Errorf("counting buttons with text %q: %w", text, err)
	}
	return n, nil
}

func (s *Session) ClickButtonWithText(ctx context.Context, text string) error {
	c, cancel := s.scoped(ctx, s.opts.ActionTimeout)
	defer cancel()

	if err := chromedp.Run(c, chromedp.Click(buttonsWithText(text)+"[0]", chromedp.ByJSPath)); err != nil {
		return fmt.Errorf("clicking button with text %q: %w", text, err)
	}
	return nil
}

// Fill replaces the value of the input matching selector by typing value, so
// frameworks that listen for key and input events see the change.
func (s *Session) Fill(ctx context.Context, selector, value string) error {
	c, cancel := s.scoped(ctx, s.opts.ActionTimeout)
	defer cancel()

	err := chromedp.Run(c,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("filling %s: %w", selector, err)
	}
	return nil
}

func (s *Session) Click(ctx context.Context, selector string) error {
	c, cancel := s.scoped(ctx, s.opts.ActionTimeout)
	defer cancel()

	if err := chromedp.Run(c, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("clicking %s: %w", selector, err)
	}
	return nil
}

type inputState struct {
	Found       bool   `json:"found"`
	Visible     bool   `json:"visible"`
	Placeholder string `json:"placeholder"`
}

// InputState reports whether the first element matching selector is rendered
// and what its placeholder says. A missing element is not an error.
func (s *Session) InputState(ctx context.Context, selector string) (bool, string, error) {
	c, cancel := s.scoped(ctx, s.opts.ActionTimeout)
	defer cancel()

	sel, _ := json.Marshal(selector)
	expr := fmt.Sprintf(`(function () {
	var el = document.querySelector(%s);
	if (!el) { return {found: false, visible: false, placeholder: ""}; }
	var r = el.getBoundingClientRect();
	var st = window.getComputedStyle(el);
	return {
		found: true,
		visible: r.width > 0 && r.height > 0 && st.visibility !== "hidden" && st.display !== "none",
		placeholder: el.getAttribute("placeholder") || ""
	};
})()`, sel)

	var st inputState
	if err := chromedp.Run(c, chromedp.Evaluate(expr, &st)); err != nil {
		return false, "", fmt.Errorf("inspecting %s: %w", selector, err)
	}
	return st.Found && st.Visible, st.Placeholder, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (s *Session) Close() error {
	if s == nil || s.cancel == nil {
		return nil
	}
	err := chromedp.Cancel(s.ctx)
	s.cancel()
	s.allocCancel()
	s.cancel = nil
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("closing browser: %w", err)
	}
	s.logger.Info("browser closed")
	return nil
}
