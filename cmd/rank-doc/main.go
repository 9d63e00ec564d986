package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/canonical/bib-ranking/internal/logging"
	"github.com/canonical/bib-ranking/internal/mapper"
	"github.com/canonical/bib-ranking/internal/output"
	"github.com/canonical/bib-ranking/internal/ranking"
)

func main() {
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	bibPolicy := flag.String("bib-policy", "truthy", "Bib check: truthy or present")
	view := flag.String("view", ranking.ViewName, "View to map the document with")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: rank-doc [flags] [document.json]\n\nReads stdin when no file is given.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := logging.BuildLogger(*logLevel)

	if flag.NArg() > 1 {
		flag.Usage()
		os.Exit(1)
	}

	if err := run(logger, *view, *bibPolicy, flag.Arg(0), os.Stdout); err != nil {
		logger.Error("rank-doc failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, viewName, bibPolicy, path string, out io.Writer) error {
	policy, err := ranking.ParseBibPolicy(bibPolicy)
	if err != nil {
		return err
	}
	view, err := mapper.LookupView(viewName, ranking.Emitter{BibPolicy: policy})
	if err != nil {
		return err
	}

	var body []byte
	if path == "" || path == "-" {
		body, err = io.ReadAll(os.Stdin)
	} else {
		body, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}

	runner := &mapper.Runner{View: view, Logger: logger}
	entry, reason, err := runner.MapOne(body)
	if errors.Is(err, mapper.ErrIgnored) {
		logger.Info("document is not mapped by views", "view", view.Name)
		return nil
	}
	if err != nil {
		return err
	}
	if reason != ranking.Qualified {
		logger.Info("document does not qualify", "view", view.Name, "reason", reason.String())
		return nil
	}
	return output.WriteRows(out, []ranking.Entry{entry})
}
