package mapper

import (
	"fmt"

	"github.com/canonical/bib-ranking/internal/ranking"
)

// Stats counts what happened to every document a run saw.
type Stats struct {
	Total     int
	Emitted   int
	Skipped   int
	Malformed int
	Ignored   int // design and deleted documents
	Reasons   map[ranking.Reason]int
}

// Result is the sorted emission batch of one run.
type Result struct {
	View     string
	Entries  []ranking.Entry
	Stats    Stats
	Failures []string
}

// DecodeError wraps a document that could not be decoded so callers can
// tell it apart from source or output failures.
type DecodeError struct {
	ID  string
	Err error
}

func (e *DecodeError) Error() string {
	if e.ID == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("document %s: %v", e.ID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
