// Package ranking implements the map function of the bib_input/global-ranking
// view. For every qualifying participant document it derives the key
//
//	[race_id, -len(times), -site_id, times[len(times)-1]]
//
// so that an ascending-only index orders a race by most recorded times,
// then by highest site id, then by earliest last time.
package ranking

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/canonical/bib-ranking/internal/collate"
)

const (
	DesignDoc = "bib_input"
	ViewName  = "global-ranking"
)

// BibPolicy selects how the bib precondition is evaluated.
type BibPolicy int

const (
	// BibTruthy rejects null, false, 0 and "" bibs.
	BibTruthy BibPolicy = iota
	// BibPresent accepts any non-null bib, including 0 and "".
	BibPresent
)

func (p BibPolicy) String() string {
	switch p {
	case BibTruthy:
		return "truthy"
	case BibPresent:
		return "present"
	}
	return fmt.Sprintf("BibPolicy(%d)", int(p))
}

func ParseBibPolicy(s string) (BibPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "truthy":
		return BibTruthy, nil
	case "present":
		return BibPresent, nil
	}
	return 0, fmt.Errorf("unknown bib policy %q (want truthy or present)", s)
}

// Reason tells why a document was or was not emitted.
type Reason int

const (
	Qualified Reason = iota
	MissingBib
	NoTimes
	MissingSiteID
)

func (r Reason) String() string {
	switch r {
	case Qualified:
		return "qualified"
	case MissingBib:
		return "missing_bib"
	case NoTimes:
		return "no_times"
	case MissingSiteID:
		return "missing_site_id"
	}
	return fmt.Sprintf("Reason(%d)", int(r))
}

// Key is the composite sort key of a ranking entry.
// NegSiteID is nil when site_id is not a number, which is how the index
// stores the negation of an identifier.
type Key struct {
	RaceID    any
	NegTimes  int
	NegSiteID any
	LastTime  any
}

// Tuple returns the key as the 4-element array stored in the index.
func (k Key) Tuple() []any {
	return []any{k.RaceID, float64(k.NegTimes), k.NegSiteID, k.LastTime}
}

func (k Key) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.Tuple())
}

// Encode returns the order-preserving byte form of the key.
func (k Key) Encode() ([]byte, error) {
	return collate.Encode(k.Tuple())
}

// CompareKeys orders keys the way the view index does.
func CompareKeys(a, b Key) int {
	return collate.Compare(a.Tuple(), b.Tuple())
}

// Entry is one emitted (key, value) pair.
type Entry struct {
	DocID string
	Key   Key
	Value *Document
}

// Emitter is the global-ranking map function. The zero value reproduces
// the original truthy bib check.
type Emitter struct {
	BibPolicy BibPolicy
}

// Check reports the first precondition the document fails, or Qualified.
func (e Emitter) Check(doc *Document) Reason {
	if !e.bibOK(doc.Bib) {
		return MissingBib
	}
	if len(doc.Times) == 0 {
		return NoTimes
	}
	if !doc.Site.Defined() {
		return MissingSiteID
	}
	return Qualified
}

// Evaluate is Map with the reason for a non-emission.
func (e Emitter) Evaluate(doc *Document) (Entry, Reason) {
	if reason := e.Check(doc); reason != Qualified {
		return Entry{}, reason
	}
	n := len(doc.Times)
	return Entry{
		DocID: doc.ID,
		Key: Key{
			RaceID:    doc.RaceID,
			NegTimes:  -n,
			NegSiteID: negateSite(doc.Site),
			LastTime:  doc.Times[n-1],
		},
		Value: doc,
	}, Qualified
}

// Map returns the entry for doc, or false when doc does not qualify.
func (e Emitter) Map(doc *Document) (Entry, bool) {
	entry, reason := e.Evaluate(doc)
	return entry, reason == Qualified
}

func (e Emitter) bibOK(b Bib) bool {
	if e.BibPolicy == BibPresent {
		return b.Present() && b.Value() != nil
	}
	return b.Truthy()
}

func negateSite(s Site) any {
	n, ok := s.Number()
	if !ok {
		return nil
	}
	if n == 0 {
		return 0.0
	}
	return -n
}

// SortEntries orders entries by key and then by document id.
func SortEntries(entries []Entry) error {
	keys := make([][]byte, len(entries))
	for i := range entries {
		k, err := entries[i].Key.Encode()
		if err != nil {
			return fmt.Errorf("encode key of %s: %w", entries[i].DocID, err)
		}
		keys[i] = k
	}
	sort.Sort(byKey{entries: entries, keys: keys})
	return nil
}

type byKey struct {
	entries []Entry
	keys    [][]byte
}

func (s byKey) Len() int { return len(s.entries) }

func (s byKey) Less(i, j int) bool {
	if c := bytes.Compare(s.keys[i], s.keys[j]); c != 0 {
		return c < 0
	}
	return s.entries[i].DocID < s.entries[j].DocID
}

func (s byKey) Swap(i, j int) {
	s.entries[i], s.entries[j] = s.entries[j], s.entries[i]
	s.keys[i], s.keys[j] = s.keys[j], s.keys[i]
}
