package snapshot

import (
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Progress summarises how the chat text changed between two snapshots.
type Progress struct {
	Inserted int    `json:"inserted"`
	Deleted  int    `json:"deleted"`
	Added    string `json:"added,omitempty"`
}

// Streaming reports whether anything changed.
func (p Progress) Streaming() bool {
	return p.Inserted > 0 || p.Deleted > 0
}

// Diff compares the message text of prev and next. A nil prev counts as an
// empty page.
func Diff(prev, next *Snapshot) Progress {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(prev.Text(), next.Text(), false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var p Progress
	var added strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			p.Inserted += utf8.RuneCountInString(d.Text)
			added.WriteString(d.Text)
		case diffmatchpatch.DiffDelete:
			p.Deleted += utf8.RuneCountInString(d.Text)
		}
	}
	p.Added = added.String()
	return p
}
