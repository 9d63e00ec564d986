package ranking

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var errNotObject = errors.New("document is not a JSON object")

// Document is a race-participant record as stored in the document store.
// Only the fields the ranking view reads are decoded; the raw body is kept
// so the emitted value is the original document.
type Document struct {
	ID      string `json:"_id,omitempty"`
	Rev     string `json:"_rev,omitempty"`
	Deleted bool   `json:"_deleted,omitempty"`
	Bib     Bib    `json:"bib,omitzero"`
	RaceID  any    `json:"race_id,omitempty"`
	Site    Site   `json:"site_id,omitzero"`
	// Times holds any JSON values; the last one goes into the key as is.
	Times []any `json:"times,omitempty"`

	raw json.RawMessage
}

// Decode parses a JSON document body. A body whose times field is present
// but not an array is malformed and returns an error.
func Decode(body []byte) (*Document, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errNotObject
	}
	var doc Document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	doc.raw = bytes.Clone(trimmed)
	return &doc, nil
}

// IsDesign reports whether the document is a design document. View engines
// never pass design documents to map functions.
func (d *Document) IsDesign() bool {
	return strings.HasPrefix(d.ID, "_design/")
}

// JSON returns the original body, or a fresh encoding for documents built
// in code.
func (d *Document) JSON() (json.RawMessage, error) {
	if d.raw != nil {
		return d.raw, nil
	}
	type plain Document
	raw, err := json.Marshal((*plain)(d))
	if err != nil {
		return nil, fmt.Errorf("encode document %s: %w", d.ID, err)
	}
	return raw, nil
}

// optional is a JSON field value that remembers whether the field was
// present. JSON null counts as present with a nil value.
type optional struct {
	value   any
	present bool
}

func (o *optional) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.value = v
	o.present = true
	return nil
}

func (o optional) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.value)
}

func (o optional) IsZero() bool { return !o.present }

func (o optional) Present() bool { return o.present }

func (o optional) Value() any { return o.value }

// Bib holds the opaque bib value.
type Bib struct{ optional }

// NewBib returns a present bib holding v.
func NewBib(v any) Bib {
	return Bib{optional{value: v, present: true}}
}

// Truthy applies loose truthiness: null, false, 0 and "" are falsy, any
// other present value is truthy.
func (b Bib) Truthy() bool {
	if !b.present {
		return false
	}
	switch v := b.value.(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0 && !math.IsNaN(v)
	case int:
		return v != 0
	case string:
		return v != ""
	default:
		return true
	}
}

// Site holds the site_id value: a number or an identifier.
type Site struct{ optional }

// NewSite returns a present site id holding v.
func NewSite(v any) Site {
	return Site{optional{value: v, present: true}}
}

// Defined reports whether the site id is present and not null.
func (s Site) Defined() bool {
	return s.present && s.value != nil
}

// Number converts the site id the way the view negates it: booleans are 0
// or 1, strings are parsed as numeric literals, and an array counts as its
// only element. ok is false when the value is not a finite number.
func (s Site) Number() (float64, bool) {
	n, ok := toNumber(s.value)
	if !ok || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

var decimalLiteral = regexp.MustCompile(`^[+-]?(?:[0-9]+\.?[0-9]*|\.[0-9]+)(?:[eE][+-]?[0-9]+)?$`)

func toNumber(v any) (float64, bool) {
	switch v := v.(type) {
	case nil:
		return 0, true
	case float64:
		return v, !math.IsNaN(v)
	case int:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		return parseNumber(v)
	case []any:
		switch len(v) {
		case 0:
			return 0, true
		case 1:
			// A one-element array converts through its string form, where
			// true and false are not numbers.
			if _, isBool := v[0].(bool); isBool {
				return 0, false
			}
			return toNumber(v[0])
		}
	}
	return 0, false
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return 0, true
	case "Infinity", "+Infinity":
		return math.Inf(1), true
	case "-Infinity":
		return math.Inf(-1), true
	}
	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			n, err := strconv.ParseUint(s[2:], base, 64)
			if err != nil {
				return 0, false
			}
			return float64(n), true
		}
	}
	if !decimalLiteral.MatchString(s) {
		return 0, false
	}
	// Out-of-range literals come back as ±Inf with ErrRange.
	n, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, false
	}
	return n, true
}
