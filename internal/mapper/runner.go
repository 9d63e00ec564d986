// Package mapper is the host loop of a view build: it feeds every document
// of a source through a registered map function and collects the emitted
// entries in index order.
package mapper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/canonical/bib-ranking/internal/docsource"
	"github.com/canonical/bib-ranking/internal/ranking"
)

// ErrIgnored is returned by MapOne for documents a view never sees.
var ErrIgnored = errors.New("design or deleted document")

type Runner struct {
	View         View
	Workers      int
	Logger       *slog.Logger
	Metrics      *Metrics
	FailuresPath string

	mu       sync.Mutex
	stats    Stats
	failures []string
}

// Run maps every document of src. Malformed documents are recorded and
// skipped; source errors and cancellation abort the run.
func (r *Runner) Run(ctx context.Context, src docsource.Source) (Result, error) {
	if r.View.Map == nil || src == nil {
		return Result{}, errors.New("mapper runner missing dependencies")
	}
	workers := r.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	r.mu.Lock()
	r.stats = Stats{Reasons: map[ranking.Reason]int{}}
	r.failures = nil
	r.mu.Unlock()

	// Create the failure log up front so users can tail it during the run.
	if r.FailuresPath != "" {
		_ = os.MkdirAll(filepath.Dir(r.FailuresPath), 0o755)
		_ = os.WriteFile(r.FailuresPath, nil, 0o644)
	}

	if r.Logger != nil {
		r.Logger.Info("mapping documents", "view", r.View.Name, "workers", workers)
	}
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	docs := make(chan docsource.Raw, workers*2)
	g.Go(func() error {
		defer close(docs)
		return src.Each(gctx, func(raw docsource.Raw) error {
			select {
			case docs <- raw:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})

	batches := make([][]ranking.Entry, workers)
	for i := range workers {
		g.Go(func() error {
			for raw := range docs {
				entry, ok := r.mapRaw(raw)
				if ok {
					batches[i] = append(batches[i], entry)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Result{}, fmt.Errorf("map %s: %w", r.View.Name, err)
	}

	var entries []ranking.Entry
	for _, batch := range batches {
		entries = append(entries, batch...)
	}
	if err := ranking.SortEntries(entries); err != nil {
		return Result{}, fmt.Errorf("sort %s: %w", r.View.Name, err)
	}

	if r.Metrics != nil {
		r.Metrics.observeRun(r.View.Name, time.Since(start).Seconds())
	}

	r.mu.Lock()
	res := Result{
		View:     r.View.Name,
		Entries:  entries,
		Stats:    r.stats,
		Failures: r.failures,
	}
	r.mu.Unlock()

	if r.Logger != nil {
		r.Logger.Info("view done",
			"view", res.View,
			"total", res.Stats.Total,
			"emitted", res.Stats.Emitted,
			"skipped", res.Stats.Skipped,
			"malformed", res.Stats.Malformed,
			"ignored", res.Stats.Ignored,
			"duration", time.Since(start),
		)
		if res.Stats.Malformed > 0 {
			r.Logger.Warn("view completed with malformed documents", "count", res.Stats.Malformed)
		}
	}
	return res, nil
}

// MapOne decodes and maps a single document body.
func (r *Runner) MapOne(body []byte) (ranking.Entry, ranking.Reason, error) {
	if r.View.Map == nil {
		return ranking.Entry{}, 0, errors.New("mapper runner missing view")
	}
	doc, err := ranking.Decode(body)
	if err != nil {
		return ranking.Entry{}, 0, &DecodeError{Err: err}
	}
	if doc.IsDesign() || doc.Deleted {
		return ranking.Entry{}, 0, ErrIgnored
	}
	entry, reason := r.View.Map(doc)
	return entry, reason, nil
}

func (r *Runner) mapRaw(raw docsource.Raw) (ranking.Entry, bool) {
	doc, err := ranking.Decode(raw.Body)
	if err != nil {
		r.recordFailure(&DecodeError{ID: raw.ID, Err: err})
		return ranking.Entry{}, false
	}
	if doc.ID == "" {
		doc.ID = raw.ID
	}

	if doc.IsDesign() || doc.Deleted {
		r.mu.Lock()
		r.stats.Total++
		r.stats.Ignored++
		r.mu.Unlock()
		if r.Metrics != nil {
			r.Metrics.observeIgnored(r.View.Name)
		}
		return ranking.Entry{}, false
	}

	entry, reason := r.View.Map(doc)

	r.mu.Lock()
	r.stats.Total++
	if reason == ranking.Qualified {
		r.stats.Emitted++
	} else {
		r.stats.Skipped++
		r.stats.Reasons[reason]++
	}
	r.mu.Unlock()

	if r.Metrics != nil {
		r.Metrics.observe(r.View.Name, reason)
	}
	if r.Logger != nil && reason != ranking.Qualified {
		r.Logger.Debug("document not emitted", "id", doc.ID, "reason", reason.String())
	}
	return entry, reason == ranking.Qualified
}

func (r *Runner) recordFailure(err *DecodeError) {
	message := strings.TrimSpace(err.Error())
	r.mu.Lock()
	r.failures = append(r.failures, message)
	r.stats.Total++
	r.stats.Malformed++
	r.mu.Unlock()

	if r.Metrics != nil {
		r.Metrics.observeMalformed(r.View.Name)
	}

	// Append to the failure log immediately so users can tail it.
	if r.FailuresPath != "" {
		r.mu.Lock()
		f, ferr := os.OpenFile(r.FailuresPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if ferr == nil {
			_, _ = fmt.Fprintln(f, message)
			_ = f.Close()
		}
		r.mu.Unlock()
	}

	if r.Logger != nil {
		r.Logger.Warn("malformed document", "id", err.ID, "error", err.Err)
	}
}
