package docsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPageSize = 1000
	maxAttempts     = 3
)

// CouchDB pages through `_all_docs?include_docs=true` of a live database.
type CouchDB struct {
	URL      string
	Database string
	Username string
	Password string
	PageSize int
	Client   *http.Client
	Logger   *slog.Logger
}

func NewCouchDB(baseURL string, database string) *CouchDB {
	return &CouchDB{
		URL:      baseURL,
		Database: database,
		PageSize: defaultPageSize,
		Client:   http.DefaultClient,
	}
}

func (s *CouchDB) Each(ctx context.Context, fn func(Raw) error) error {
	if s.URL == "" || s.Database == "" {
		return errors.New("couchdb source requires url and database")
	}
	limit := s.PageSize
	if limit <= 0 {
		limit = defaultPageSize
	}

	var startKey string
	for page := 0; ; page++ {
		result, err := s.fetchPage(ctx, startKey, limit, page > 0)
		if err != nil {
			return err
		}
		if s.Logger != nil {
			s.Logger.Debug("fetched page", "database", s.Database, "page", page, "rows", len(result.Rows), "total_rows", result.TotalRows)
		}
		if err := emitRows(ctx, result.Rows, fn); err != nil {
			return err
		}
		if len(result.Rows) < limit {
			return nil
		}
		startKey = result.Rows[len(result.Rows)-1].ID
	}
}

func (s *CouchDB) pageURL(startKey string, limit int, skipFirst bool) (string, error) {
	q := url.Values{}
	q.Set("include_docs", "true")
	q.Set("limit", strconv.Itoa(limit))
	if skipFirst {
		key, err := json.Marshal(startKey)
		if err != nil {
			return "", fmt.Errorf("encode start key: %w", err)
		}
		q.Set("start_key", string(key))
		q.Set("skip", "1")
	}
	return strings.TrimSuffix(s.URL, "/") + "/" + url.PathEscape(s.Database) + "/_all_docs?" + q.Encode(), nil
}

func (s *CouchDB) fetchPage(ctx context.Context, startKey string, limit int, skipFirst bool) (allDocsPage, error) {
	src, err := s.pageURL(startKey, limit, skipFirst)
	if err != nil {
		return allDocsPage{}, err
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	var page allDocsPage
	var lastErr error
	for attempt := range maxAttempts {
		if attempt > 0 {
			if s.Logger != nil {
				s.Logger.Warn("retrying page", "url", src, "attempt", attempt+1, "error", lastErr)
			}
			select {
			case <-ctx.Done():
				return allDocsPage{}, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		lastErr = func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
			if err != nil {
				return fmt.Errorf("build request: %w", err)
			}
			req.Header.Set("Accept", "application/json")
			if s.Username != "" {
				req.SetBasicAuth(s.Username, s.Password)
			}

			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("fetch _all_docs: %w", err)
			}
			defer func() { _ = resp.Body.Close() }()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return fmt.Errorf("fetch _all_docs: status %s", resp.Status)
			}

			page, err = decodeAllDocs(resp.Body)
			return err
		}()
		if lastErr == nil {
			return page, nil
		}
		if ctx.Err() != nil {
			return allDocsPage{}, lastErr
		}
	}
	return allDocsPage{}, lastErr
}
