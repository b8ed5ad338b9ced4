// Package snapshot reads the chat state out of a page's HTML.
package snapshot

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Selectors tells Parse where the chat keeps its parts.
type Selectors struct {
	Message string
	Cursor  string
	Input   string
}

// Snapshot is the chat as it looked at one instant.
type Snapshot struct {
	Messages         []string `json:"messages"`
	CursorCount      int      `json:"cursor_count"`
	InputPlaceholder string   `json:"input_placeholder"`
	HasInput         bool     `json:"has_input"`
}

// Parse extracts messages, animated elements and the input placeholder from
// a full HTML document. Message text is the element's text content,
// untrimmed.
func Parse(html string, sel Selectors) (*Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing page html: %w", err)
	}

	snap := &Snapshot{Messages: []string{}}
	if sel.Message != "" {
		doc.Find(sel.Message).Each(func(_ int, s *goquery.Selection) {
			snap.Messages = append(snap.Messages, s.Text())
		})
	}
	if sel.Cursor != "" {
		snap.CursorCount = doc.Find(sel.Cursor).Length()
	}
	if sel.Input != "" {
		input := doc.Find(sel.Input).First()
		if input.Length() > 0 {
			snap.HasInput = true
			snap.InputPlaceholder, _ = input.Attr("placeholder")
		}
	}
	return snap, nil
}

// Text joins all messages, which is what Progress compares.
func (s *Snapshot) Text() string {
	if s == nil {
		return ""
	}
	return strings.Join(s.Messages, "\n")
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n < 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
