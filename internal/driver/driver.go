// Package driver triggers one message exchange on the chat page.
package driver

import (
	"context"
	"fmt"

	"github.com/raysh454/chatprobe/internal/logging"
)

// Page is the slice of the browser the driver needs.
type Page interface {
	// CountButtonsWithText counts buttons whose visible text contains text.
	CountButtonsWithText(ctx context.Context, text string) (int, error)
	// ClickButtonWithText clicks the first such button.
	ClickButtonWithText(ctx context.Context, text string) error
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
}

// Kind says which way the exchange was triggered.
type Kind string

const (
	KindSuggestion Kind = "suggestion"
	KindManual     Kind = "manual"
)

// Action records what the driver did.
type Action struct {
	Kind        Kind   `json:"kind"`
	Text        string `json:"text"`
	Suggestions int    `json:"suggestions"`
}

// Config holds the fixed inputs of the decision.
type Config struct {
	SuggestionText string
	ManualMessage  string
	InputSelector  string
	SendSelector   string
}

type Driver struct {
	cfg    Config
	logger logging.Logger
}

func New(cfg Config, logger logging.Logger) *Driver {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Driver{cfg: cfg, logger: logger.With(logging.Field{Key: "component", Value: "driver"})}
}

// Interact clicks the first suggestion button if there is one, otherwise it
// types the manual message and presses send. There are no retries; a missing
// element surfaces as the page's error.
func (d *Driver) Interact(ctx context.Context, page Page) (*Action, error) {
	n, err := page.CountButtonsWithText(ctx, d.cfg.SuggestionText)
	if err != nil {
		return nil, fmt.Errorf("looking up suggestion buttons: %w", err)
	}

	if n > 0 {
		d.logger.Info("clicking suggestion",
			logging.Field{Key: "text", Value: d.cfg.SuggestionText},
			logging.Field{Key: "matches", Value: n})
		if err := page.ClickButtonWithText(ctx, d.cfg.SuggestionText); err != nil {
			return nil, fmt.Errorf("clicking suggestion %q: %w", d.cfg.SuggestionText, err)
		}
		return &Action{Kind: KindSuggestion, Text: d.cfg.SuggestionText, Suggestions: n}, nil
	}

	d.logger.Info("typing message manually", logging.Field{Key: "message", Value: d.cfg.ManualMessage})
	if err := page.Fill(ctx, d.cfg.InputSelector, d.cfg.ManualMessage); err != nil {
		return nil, fmt.Errorf("filling %s: %w", d.cfg.InputSelector, err)
	}
	if err := page.Click(ctx, d.cfg.SendSelector); err != nil {
		return nil, fmt.Errorf("clicking %s: %w", d.cfg.SendSelector, err)
	}
	return &Action{Kind: KindManual, Text: d.cfg.ManualMessage}, nil
}
