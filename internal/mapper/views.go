package mapper

import (
	"errors"
	"fmt"
	"sort"

	"github.com/canonical/bib-ranking/internal/ranking"
)

var ErrUnknownView = errors.New("unknown view")

// MapFunc turns one document into at most one entry. A reason other than
// ranking.Qualified means nothing was emitted.
type MapFunc func(doc *ranking.Document) (ranking.Entry, ranking.Reason)

// View is a named map function registered with the runner.
type View struct {
	Name string
	Map  MapFunc
}

var registry = map[string]func(ranking.Emitter) View{
	ranking.ViewName: func(em ranking.Emitter) View {
		return View{Name: ranking.ViewName, Map: em.Evaluate}
	},
}

// LookupView returns the registered view called name, bound to em.
func LookupView(name string, em ranking.Emitter) (View, error) {
	build, ok := registry[name]
	if !ok {
		return View{}, fmt.Errorf("%w %q (available: %v)", ErrUnknownView, name, ViewNames())
	}
	return build(em), nil
}

func ViewNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
