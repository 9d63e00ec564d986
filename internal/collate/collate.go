// Package collate orders view keys the way a CouchDB view engine does:
// null < false < true < numbers < strings < arrays < objects.
//
// Keys are JSON values (nil, bool, float64, string, []any, map[string]any).
// Encode turns a key into bytes whose lexicographic order matches Compare,
// so an ascending-only index can store them as opaque blobs.
package collate

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Type tags. tagEnd must stay below every other tag so that a shorter
// array sorts before any longer array sharing its prefix.
const (
	tagEnd    = 0x00
	tagNull   = 0x10
	tagFalse  = 0x20
	tagTrue   = 0x21
	tagNumber = 0x30
	tagString = 0x40
	tagArray  = 0x50
	tagObject = 0x60
)

var ErrUnsupported = errors.New("unsupported key value")

// A Collator is not safe for concurrent use.
var collators = sync.Pool{
	New: func() any {
		return &stringCollator{c: collate.New(language.Und)}
	},
}

type stringCollator struct {
	c   *collate.Collator
	buf collate.Buffer
}

// Encode returns the order-preserving byte form of v.
func Encode(v any) ([]byte, error) {
	return Append(nil, v)
}

// Append appends the order-preserving byte form of v to dst.
func Append(dst []byte, v any) ([]byte, error) {
	sc := collators.Get().(*stringCollator)
	defer collators.Put(sc)
	return sc.append(dst, v)
}

// Compare returns -1, 0 or +1 depending on whether a sorts before, equal
// to, or after b. It panics if either value holds an unsupported type.
func Compare(a, b any) int {
	ka, err := Encode(a)
	if err != nil {
		panic(err)
	}
	kb, err := Encode(b)
	if err != nil {
		panic(err)
	}
	return bytes.Compare(ka, kb)
}

// Normalize converts Go numeric types and json.Number into float64 and
// typed slices and maps into their generic JSON forms.
func Normalize(v any) (any, error) {
	switch t := v.(type) {
	case nil, bool, string:
		return t, nil
	case float64:
		if math.IsNaN(t) {
			return nil, fmt.Errorf("%w: NaN", ErrUnsupported)
		}
		return t, nil
	case float32:
		return Normalize(float64(t))
	case int:
		return float64(t), nil
	case int8:
		return float64(t), nil
	case int16:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint:
		return float64(t), nil
	case uint8:
		return float64(t), nil
	case uint16:
		return float64(t), nil
	case uint32:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: number %q", ErrUnsupported, t.String())
		}
		return f, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			n, err := Normalize(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case []float64:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return Normalize(out)
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			n, err := Normalize(e)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupported, v)
	}
}

func (sc *stringCollator) append(dst []byte, v any) ([]byte, error) {
	v, err := Normalize(v)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case nil:
		return append(dst, tagNull), nil
	case bool:
		if t {
			return append(dst, tagTrue), nil
		}
		return append(dst, tagFalse), nil
	case float64:
		return appendNumber(append(dst, tagNumber), t), nil
	case string:
		return sc.appendString(append(dst, tagString), t), nil
	case []any:
		dst = append(dst, tagArray)
		for _, e := range t {
			if dst, err = sc.append(dst, e); err != nil {
				return nil, err
			}
		}
		return append(dst, tagEnd), nil
	case map[string]any:
		// Go maps carry no member order; members are taken in key order.
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		dst = append(dst, tagObject)
		for _, k := range keys {
			dst = sc.appendString(append(dst, tagString), k)
			if dst, err = sc.append(dst, t[k]); err != nil {
				return nil, err
			}
		}
		return append(dst, tagEnd), nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupported, v)
}

func appendNumber(dst []byte, f float64) []byte {
	if f == 0 {
		f = 0 // folds -0 into +0
	}
	bits := math.Float64bits(f)
	if bits&(1<<63) == 0 {
		bits |= 1 << 63
	} else {
		bits = ^bits
	}
	return binary.BigEndian.AppendUint64(dst, bits)
}

// appendString writes the collation sort key of s with 0x00 escaped as
// 0x00 0xFF and terminated by 0x00 0x01, keeping the encoding prefix-free.
func (sc *stringCollator) appendString(dst []byte, s string) []byte {
	sc.buf.Reset()
	key := sc.c.KeyFromString(&sc.buf, s)
	for _, b := range key {
		if b == 0x00 {
			dst = append(dst, 0x00, 0xFF)
			continue
		}
		dst = append(dst, b)
	}
	return append(dst, 0x00, 0x01)
}
