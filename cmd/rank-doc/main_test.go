package main

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeDoc(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunEmitsRow(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := writeDoc(t, `{"_id":"p1","bib":"101","race_id":5,"site_id":2,"times":[10,20,30]}`)

	var out bytes.Buffer
	if err := run(logger, "global-ranking", "truthy", path, &out); err != nil {
		t.Fatal(err)
	}
	want := `{"id":"p1","key":[5,-3,-2,30],"value":{"_id":"p1","bib":"101","race_id":5,"site_id":2,"times":[10,20,30]}}` + "\n"
	if out.String() != want {
		t.Fatalf("got %q, want %q", out.String(), want)
	}
}

func TestRunNonQualifyingPrintsNothing(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := writeDoc(t, `{"bib":"102","race_id":5,"site_id":0,"times":[]}`)

	var out bytes.Buffer
	if err := run(logger, "global-ranking", "truthy", path, &out); err != nil {
		t.Fatal(err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected no output, got %q", out.String())
	}
}

func TestRunPresentPolicy(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := writeDoc(t, `{"_id":"z","bib":0,"race_id":1,"site_id":1,"times":[3]}`)

	var out bytes.Buffer
	if err := run(logger, "global-ranking", "present", path, &out); err != nil {
		t.Fatal(err)
	}
	if out.Len() == 0 {
		t.Fatal("expected a row with the present bib policy")
	}
}

func TestRunMalformed(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := writeDoc(t, `{"bib":"1","times":"late"}`)

	if err := run(logger, "global-ranking", "truthy", path, io.Discard); err == nil {
		t.Fatal("expected error for malformed document")
	}
}

func TestRunUnknownView(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := run(logger, "by-bib", "truthy", writeDoc(t, `{}`), io.Discard); err == nil {
		t.Fatal("expected error for unknown view")
	}
}
