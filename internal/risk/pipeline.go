package risk

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Options holds every knob of a pipeline run.
type Options struct {
	// Contamination is the expected share of anomalous records.
	Contamination float64
	// Clusters is the number of risk groups.
	Clusters int
	Seed     int64

	ForestTrees       int
	ForestSampleSize  int
	MinAnomalyRecords int

	KMeansMaxIter  int
	KMeansRestarts int
	// RankBySeverity orders risk groups by centroid severity. Disable to keep
	// raw cluster indices.
	RankBySeverity bool

	// Encoding pins scaling bounds and role vocabulary; nil derives both
	// from each batch.
	Encoding *Encoding
}

// DefaultOptions returns the documented defaults: 20% contamination, three
// risk groups, seed 42.
func DefaultOptions() Options {
	f := DefaultForestConfig()
	k := DefaultKMeansConfig()
	return Options{
		Contamination:     0.20,
		Clusters:          k.K,
		Seed:              42,
		ForestTrees:       f.NumTrees,
		ForestSampleSize:  f.SampleSize,
		MinAnomalyRecords: 5,
		KMeansMaxIter:     k.MaxIter,
		KMeansRestarts:    k.Restarts,
		RankBySeverity:    true,
	}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if o.Contamination <= 0 || o.Contamination > 0.5 {
		return fmt.Errorf("contamination must be in (0, 0.5], got %.3f", o.Contamination)
	}
	if o.Clusters < 1 {
		return fmt.Errorf("clusters must be >= 1, got %d", o.Clusters)
	}
	if o.ForestTrees < 1 {
		return fmt.Errorf("forest trees must be >= 1, got %d", o.ForestTrees)
	}
	if o.ForestSampleSize < 2 {
		return fmt.Errorf("forest sample size must be >= 2, got %d", o.ForestSampleSize)
	}
	if o.KMeansMaxIter < 1 || o.KMeansRestarts < 1 {
		return errors.New("kmeans max iterations and restarts must be >= 1")
	}
	return nil
}

func (o Options) anomalyConfig() AnomalyConfig {
	return AnomalyConfig{
		Contamination: o.Contamination,
		MinRecords:    o.MinAnomalyRecords,
		Forest: ForestConfig{
			NumTrees:   o.ForestTrees,
			SampleSize: o.ForestSampleSize,
			Seed:       o.Seed,
		},
	}
}

func (o Options) groupConfig() GroupConfig {
	return GroupConfig{
		KMeans: KMeansConfig{
			K:        o.Clusters,
			MaxIter:  o.KMeansMaxIter,
			Restarts: o.KMeansRestarts,
			Seed:     o.Seed,
		},
		RankBySeverity: o.RankBySeverity,
	}
}

// Pipeline runs Prepare, DetectAnomalies, GroupRisks and AssignInterventions
// over one batch. It holds no model state between runs and is safe for
// concurrent use.
type Pipeline struct {
	opt Options
}

// NewPipeline validates opt and returns a pipeline.
func NewPipeline(opt Options) (*Pipeline, error) {
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{opt: opt}, nil
}

// Options returns the pipeline configuration.
func (p *Pipeline) Options() Options { return p.opt }

// Run processes b and returns the annotated copy. b is left untouched. On
// error no partial batch is returned.
func (p *Pipeline) Run(ctx context.Context, b *Batch) (*Batch, error) {
	steps := []struct {
		name string
		fn   func(*Batch) (*Batch, error)
	}{
		{"prepare", func(in *Batch) (*Batch, error) { return Prepare(in, p.opt.Encoding) }},
		{"anomaly", func(in *Batch) (*Batch, error) { return DetectAnomalies(in, p.opt.anomalyConfig()) }},
		{"cluster", func(in *Batch) (*Batch, error) { return GroupRisks(in, p.opt.groupConfig()) }},
		{"intervention", AssignInterventions},
	}
	cur := b
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", s.name, err)
		}
		next, err := s.fn(cur)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	cur.RunID = uuid.NewString()
	return cur, nil
}
