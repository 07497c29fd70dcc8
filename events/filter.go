package events

import (
	"fmt"

	"github.com/gobwas/glob"
)

// Filter matches database ids against glob patterns. No patterns matches
// everything.
type Filter struct {
	globs []glob.Glob
}

func NewFilter(patterns []string) (*Filter, error) {
	f := &Filter{globs: make([]glob.Glob, 0, len(patterns))}
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid database pattern %q: %w", pattern, err)
		}
		f.globs = append(f.globs, g)
	}
	return f, nil
}

func (f *Filter) Match(database string) bool {
	if len(f.globs) == 0 {
		return true
	}
	for _, g := range f.globs {
		if g.Match(database) {
			return true
		}
	}
	return false
}
