// Package config loads the settings of a ranking view build. Values come
// from an optional YAML file, then RANKING_* environment variables, then
// command-line flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/canonical/bib-ranking/internal/docsource"
	"github.com/canonical/bib-ranking/internal/ranking"
)

const (
	DefaultView      = ranking.ViewName
	DefaultBibPolicy = "truthy"
	DefaultLogLevel  = "info"
	DefaultOutput    = "-"
)

type Config struct {
	View         string `koanf:"view"`
	BibPolicy    string `koanf:"bib_policy"`
	Workers      int    `koanf:"workers"`
	LogLevel     string `koanf:"log_level"`
	Output       string `koanf:"output"`
	FailuresPath string `koanf:"failures_path"`
	MetricsFile  string `koanf:"metrics_file"`
	Source       Source `koanf:"source"`
}

type Source struct {
	Kind     string `koanf:"kind"`
	Path     string `koanf:"path"`
	URL      string `koanf:"url"`
	Database string `koanf:"database"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	Table    string `koanf:"table"`
	PageSize int    `koanf:"page_size"`
}

var (
	ErrMissingView        = errors.New("config view is required")
	ErrInvalidWorkers     = errors.New("config workers must not be negative")
	ErrMissingSourcePath  = errors.New("config source.path is required")
	ErrMissingCouchDBURL  = errors.New("config source.url is required")
	ErrMissingCouchDBName = errors.New("config source.database is required")
)

func DefaultPath() string {
	return os.Getenv("RANKING_CONFIG_FILE")
}

func Default() *Config {
	return &Config{
		View:      DefaultView,
		BibPolicy: DefaultBibPolicy,
		LogLevel:  DefaultLogLevel,
		Output:    DefaultOutput,
		Source: Source{
			Kind:  docsource.KindNDJSON,
			Table: docsource.DefaultTable,
		},
	}
}

// Load reads path (when not empty) over the defaults and applies
// environment overrides. It does not validate; callers apply flag
// overrides first and then call Validate.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		k := koanf.New(".")
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := k.Unmarshal("", cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) error {
		v := os.Getenv(name)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", name, err)
		}
		*dst = n
		return nil
	}

	setString("RANKING_VIEW", &c.View)
	setString("RANKING_BIB_POLICY", &c.BibPolicy)
	setString("RANKING_LOG_LEVEL", &c.LogLevel)
	setString("RANKING_OUTPUT", &c.Output)
	setString("RANKING_FAILURES_PATH", &c.FailuresPath)
	setString("RANKING_METRICS_FILE", &c.MetricsFile)
	setString("RANKING_SOURCE_KIND", &c.Source.Kind)
	setString("RANKING_SOURCE_PATH", &c.Source.Path)
	setString("RANKING_SOURCE_URL", &c.Source.URL)
	setString("RANKING_SOURCE_DATABASE", &c.Source.Database)
	setString("RANKING_SOURCE_USERNAME", &c.Source.Username)
	setString("RANKING_SOURCE_PASSWORD", &c.Source.Password)
	setString("RANKING_SOURCE_TABLE", &c.Source.Table)

	return errors.Join(
		setInt("RANKING_WORKERS", &c.Workers),
		setInt("RANKING_SOURCE_PAGE_SIZE", &c.Source.PageSize),
	)
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.View) == "" {
		errs = append(errs, ErrMissingView)
	}
	if _, err := ranking.ParseBibPolicy(c.BibPolicy); err != nil {
		errs = append(errs, err)
	}
	if c.Workers < 0 {
		errs = append(errs, ErrInvalidWorkers)
	}

	switch c.Source.Kind {
	case docsource.KindNDJSON, docsource.KindAllDocs, docsource.KindSQLite:
		if c.Source.Path == "" {
			errs = append(errs, ErrMissingSourcePath)
		}
	case docsource.KindCouchDB:
		if c.Source.URL == "" {
			errs = append(errs, ErrMissingCouchDBURL)
		}
		if c.Source.Database == "" {
			errs = append(errs, ErrMissingCouchDBName)
		}
	default:
		errs = append(errs, fmt.Errorf("%w %q (available: %v)", docsource.ErrUnknownKind, c.Source.Kind, docsource.Kinds()))
	}
	return errors.Join(errs...)
}

// Emitter returns the map function settings. Validate must have passed.
func (c *Config) Emitter() ranking.Emitter {
	policy, _ := ranking.ParseBibPolicy(c.BibPolicy)
	return ranking.Emitter{BibPolicy: policy}
}

func (c *Config) SourceOptions() docsource.Options {
	return docsource.Options{
		Kind:     c.Source.Kind,
		Path:     c.Source.Path,
		URL:      c.Source.URL,
		Database: c.Source.Database,
		Username: c.Source.Username,
		Password: c.Source.Password,
		Table:    c.Source.Table,
		PageSize: c.Source.PageSize,
	}
}
