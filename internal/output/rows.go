// Package output writes emitted entries as CouchDB view rows, one JSON
// object per line: {"id":…,"key":[…],"value":{…}}.
package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/canonical/bib-ranking/internal/ranking"
)

type Row struct {
	ID    string          `json:"id"`
	Key   ranking.Key     `json:"key"`
	Value json.RawMessage `json:"value"`
}

type RowWriter struct {
	buf *bufio.Writer
	enc *json.Encoder
}

func NewRowWriter(w io.Writer) *RowWriter {
	buf := bufio.NewWriter(w)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return &RowWriter{buf: buf, enc: enc}
}

func (w *RowWriter) Write(entry ranking.Entry) error {
	row := Row{ID: entry.DocID, Key: entry.Key, Value: json.RawMessage("null")}
	if entry.Value != nil {
		value, err := entry.Value.JSON()
		if err != nil {
			return err
		}
		row.Value = value
	}
	if err := w.enc.Encode(row); err != nil {
		return fmt.Errorf("write row %s: %w", entry.DocID, err)
	}
	return nil
}

func (w *RowWriter) Flush() error {
	return w.buf.Flush()
}

// WriteRows writes entries to w in the order given.
func WriteRows(w io.Writer, entries []ranking.Entry) error {
	rw := NewRowWriter(w)
	for _, entry := range entries {
		if err := rw.Write(entry); err != nil {
			return err
		}
	}
	return rw.Flush()
}
