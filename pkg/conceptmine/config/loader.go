package config

import (
	"fmt"

	"github.com/cognicore/conceptmine/pkg/conceptmine/aggregate"
	"github.com/cognicore/conceptmine/pkg/conceptmine/extract"
	"github.com/cognicore/conceptmine/pkg/conceptmine/stoplist"
)

// Loader builds the engine-independent components from a Config.
type Loader struct {
	Config Config
}

// Components holds the components built from configuration.
type Components struct {
	Stops     *stoplist.Manager
	Extractor *extract.Extractor
	Bounds    aggregate.Bounds
}

// Load validates the configuration and returns initialized components.
func (l *Loader) Load() (*Components, error) {
	cfg := l.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	comp := &Components{}

	// Load stoplist; without a file the built-in English list is used.
	var base []string
	if cfg.StoplistPath != "" {
		sl, err := LoadStoplist(cfg.StoplistPath)
		if err != nil {
			return nil, fmt.Errorf("load stoplist: %w", err)
		}
		base = sl.Terms
		if base == nil {
			base = []string{}
		}
	}
	comp.Stops = stoplist.ForConcepts(base, cfg.KeepWords)

	tie, err := extract.ParseTiePolicy(cfg.TiePolicy)
	if err != nil {
		return nil, err
	}
	comp.Extractor = extract.New(extract.Options{
		TiePolicy:       tie,
		IncludeEntities: cfg.IncludeEntities,
		EntityLabels:    cfg.EntityLabels,
	})

	comp.Bounds = aggregate.Bounds{Min: cfg.MinConceptLen, Max: cfg.MaxConceptLen}
	return comp, nil
}
