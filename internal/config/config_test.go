package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/canonical/bib-ranking/internal/docsource"
	"github.com/canonical/bib-ranking/internal/ranking"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ranking.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.View != ranking.ViewName {
		t.Fatalf("view = %q", cfg.View)
	}
	if cfg.Source.Kind != docsource.KindNDJSON || cfg.Source.Table != docsource.DefaultTable {
		t.Fatalf("unexpected source defaults: %+v", cfg.Source)
	}
	if cfg.Output != "-" {
		t.Fatalf("output = %q", cfg.Output)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
bib_policy: present
workers: 4
log_level: debug
output: /srv/views/global-ranking.ndjson
source:
  kind: couchdb
  url: http://couch:5984
  database: bib_input
  page_size: 250
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Workers != 4 || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.View != ranking.ViewName {
		t.Fatalf("file without view must keep the default, got %q", cfg.View)
	}
	if cfg.Source.Database != "bib_input" || cfg.Source.PageSize != 250 {
		t.Fatalf("unexpected source: %+v", cfg.Source)
	}
	if cfg.Emitter().BibPolicy != ranking.BibPresent {
		t.Fatal("bib policy not applied")
	}
	if cfg.Source.Table != docsource.DefaultTable {
		t.Fatalf("table default lost: %q", cfg.Source.Table)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "workers: 4\nsource:\n  kind: ndjson\n  path: /data/a.ndjson\n")
	t.Setenv("RANKING_WORKERS", "9")
	t.Setenv("RANKING_SOURCE_PATH", "/data/b.ndjson")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Workers != 9 {
		t.Fatalf("workers = %d, want 9", cfg.Workers)
	}
	if cfg.Source.Path != "/data/b.ndjson" {
		t.Fatalf("path = %q", cfg.Source.Path)
	}
}

func TestLoadInvalidEnvInt(t *testing.T) {
	t.Setenv("RANKING_WORKERS", "many")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for non-integer RANKING_WORKERS")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"missing view", func(c *Config) { c.View = "" }, ErrMissingView},
		{"negative workers", func(c *Config) { c.Workers = -1 }, ErrInvalidWorkers},
		{"missing path", func(c *Config) { c.Source.Path = "" }, ErrMissingSourcePath},
		{"couchdb url", func(c *Config) { c.Source = Source{Kind: docsource.KindCouchDB, Database: "x"} }, ErrMissingCouchDBURL},
		{"couchdb database", func(c *Config) { c.Source = Source{Kind: docsource.KindCouchDB, URL: "http://x"} }, ErrMissingCouchDBName},
		{"unknown kind", func(c *Config) { c.Source.Kind = "mongo" }, docsource.ErrUnknownKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Source.Path = "/data/docs.ndjson"
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Fatalf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidateBibPolicy(t *testing.T) {
	cfg := Default()
	cfg.Source.Path = "/data/docs.ndjson"
	cfg.BibPolicy = "loose"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown bib policy")
	}
}
