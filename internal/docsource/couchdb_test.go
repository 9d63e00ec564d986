package docsource

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
)

// fakeCouch serves _all_docs for ids doc-00 .. doc-(n-1).
func fakeCouch(t *testing.T, n int, requests *atomic.Int32) *httptest.Server {
	t.Helper()
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("doc-%02d", i)
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests != nil {
			requests.Add(1)
		}
		if r.URL.Path != "/races/_all_docs" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		if q.Get("include_docs") != "true" {
			t.Errorf("include_docs not set")
		}
		limit, _ := strconv.Atoi(q.Get("limit"))
		start := 0
		if sk := q.Get("start_key"); sk != "" {
			var key string
			if err := json.Unmarshal([]byte(sk), &key); err != nil {
				t.Errorf("bad start_key %q", sk)
			}
			for i, id := range ids {
				if id >= key {
					start = i
					break
				}
			}
			skip, _ := strconv.Atoi(q.Get("skip"))
			start += skip
		}

		var rows []allDocsRow
		for i := start; i < len(ids) && len(rows) < limit; i++ {
			rows = append(rows, allDocsRow{ID: ids[i], Doc: json.RawMessage(fmt.Sprintf(`{"_id":%q}`, ids[i]))})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(allDocsPage{TotalRows: len(ids), Offset: start, Rows: rows})
	}))
}

func TestCouchDBPages(t *testing.T) {
	var requests atomic.Int32
	server := fakeCouch(t, 7, &requests)
	defer server.Close()

	src := NewCouchDB(server.URL, "races")
	src.PageSize = 3
	src.Client = server.Client()

	got := collect(t, src)
	if len(got) != 7 {
		t.Fatalf("expected 7 documents, got %d", len(got))
	}
	for i, r := range got {
		if want := fmt.Sprintf("doc-%02d", i); r.ID != want {
			t.Fatalf("row %d id = %q, want %q", i, r.ID, want)
		}
	}
	if n := requests.Load(); n != 3 {
		t.Fatalf("expected 3 page requests, got %d", n)
	}
}

func TestCouchDBExactPageMultiple(t *testing.T) {
	var requests atomic.Int32
	server := fakeCouch(t, 4, &requests)
	defer server.Close()

	src := NewCouchDB(server.URL, "races")
	src.PageSize = 2
	src.Client = server.Client()

	if got := collect(t, src); len(got) != 4 {
		t.Fatalf("expected 4 documents, got %d", len(got))
	}
	// The third request returns an empty page and ends the scan.
	if n := requests.Load(); n != 3 {
		t.Fatalf("expected 3 page requests, got %d", n)
	}
}

func TestCouchDBRetriesOnConnectionReset(t *testing.T) {
	var attempts atomic.Int32
	inner := fakeCouch(t, 2, nil)
	defer inner.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			// Hijack and immediately close to simulate connection reset.
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatal("server doesn't support hijacking")
			}
			conn, _, err := hj.Hijack()
			if err != nil {
				t.Fatal(err)
			}
			_ = conn.(*net.TCPConn).SetLinger(0)
			_ = conn.Close()
			return
		}
		inner.Config.Handler.ServeHTTP(w, r)
	}))
	defer server.Close()

	src := NewCouchDB(server.URL, "races")
	src.Client = server.Client()

	if got := collect(t, src); len(got) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(got))
	}
	if got := attempts.Load(); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestCouchDBFailsAfterAllRetries(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	src := NewCouchDB(server.URL, "races")
	src.Client = server.Client()

	err := src.Each(context.Background(), func(Raw) error { return nil })
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if got := attempts.Load(); got != maxAttempts {
		t.Fatalf("expected %d attempts, got %d", maxAttempts, got)
	}
}

func TestCouchDBBasicAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"total_rows":0,"offset":0,"rows":[]}`))
	}))
	defer server.Close()

	src := NewCouchDB(server.URL, "races")
	src.Client = server.Client()
	src.Username = "admin"
	src.Password = "secret"

	if got := collect(t, src); len(got) != 0 {
		t.Fatalf("expected no documents, got %d", len(got))
	}
}

func TestCouchDBRequiresDatabase(t *testing.T) {
	err := NewCouchDB("http://localhost:5984", "").Each(context.Background(), func(Raw) error { return nil })
	if err == nil {
		t.Fatal("expected error without database")
	}
}
