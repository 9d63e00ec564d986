// Package docsource reads documents out of external document stores and
// hands their raw bodies to the map runner.
package docsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Raw is one document body as read from a store. ID is empty when the
// store does not carry ids outside the body.
type Raw struct {
	ID   string
	Body []byte
}

// Source streams documents. Each stops at the first error returned by fn.
type Source interface {
	Each(ctx context.Context, fn func(Raw) error) error
}

var ErrUnknownKind = errors.New("unknown source kind")

// Source kinds accepted by New.
const (
	KindNDJSON  = "ndjson"
	KindAllDocs = "alldocs"
	KindCouchDB = "couchdb"
	KindSQLite  = "sqlite"
)

func Kinds() []string {
	return []string{KindAllDocs, KindCouchDB, KindNDJSON, KindSQLite}
}

// Options describes a source. Path is used by the file and sqlite kinds,
// URL and Database by couchdb.
type Options struct {
	Kind     string
	Path     string
	URL      string
	Database string
	Username string
	Password string
	Table    string
	PageSize int
	Logger   *slog.Logger
}

func New(opts Options) (Source, error) {
	switch opts.Kind {
	case KindNDJSON:
		return &NDJSON{Path: opts.Path}, nil
	case KindAllDocs:
		return &AllDocs{Path: opts.Path}, nil
	case KindSQLite:
		return &SQLite{Path: opts.Path, Table: opts.Table}, nil
	case KindCouchDB:
		src := NewCouchDB(opts.URL, opts.Database)
		src.Username = opts.Username
		src.Password = opts.Password
		if opts.PageSize > 0 {
			src.PageSize = opts.PageSize
		}
		src.Logger = opts.Logger
		return src, nil
	}
	return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownKind, opts.Kind, Kinds())
}

type allDocsRow struct {
	ID  string          `json:"id"`
	Doc json.RawMessage `json:"doc"`
}

type allDocsPage struct {
	TotalRows int          `json:"total_rows"`
	Offset    int          `json:"offset"`
	Rows      []allDocsRow `json:"rows"`
}

func decodeAllDocs(r io.Reader) (allDocsPage, error) {
	var page allDocsPage
	if err := json.NewDecoder(r).Decode(&page); err != nil {
		return allDocsPage{}, fmt.Errorf("decode _all_docs: %w", err)
	}
	return page, nil
}

// emitRows passes every row that carries a document body to fn.
func emitRows(ctx context.Context, rows []allDocsRow, fn func(Raw) error) error {
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(row.Doc) == 0 || string(row.Doc) == "null" {
			continue
		}
		if err := fn(Raw{ID: row.ID, Body: row.Doc}); err != nil {
			return err
		}
	}
	return nil
}
