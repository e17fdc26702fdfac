package risk

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// ForestConfig controls isolation forest construction.
type ForestConfig struct {
	NumTrees int
	// SampleSize caps the per-tree subsample; batches smaller than this use
	// every record.
	SampleSize int
	// MaxDepth of 0 means ceil(log2(sample size)).
	MaxDepth int
	Seed     int64
}

// DefaultForestConfig returns the configuration used by DefaultOptions.
func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		NumTrees:   100,
		SampleSize: 256,
		MaxDepth:   0,
		Seed:       42,
	}
}

// IsolationForest scores points by how quickly random axis-aligned splits
// isolate them. Scores lie in (0,1]; higher means more anomalous.
type IsolationForest struct {
	cfg           ForestConfig
	trees         []*iTreeNode
	sampleSize    int
	maxDepth      int
	avgPathLength float64
	width         int
	rng           *rand.Rand
}

type iTreeNode struct {
	splitFeature  int
	splitValue    float64
	left          *iTreeNode
	right         *iTreeNode
	isExternal    bool
	pathLengthAdj float64
}

// NewIsolationForest returns an untrained forest seeded from cfg.Seed.
func NewIsolationForest(cfg ForestConfig) *IsolationForest {
	if cfg.NumTrees <= 0 {
		cfg.NumTrees = DefaultForestConfig().NumTrees
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = DefaultForestConfig().SampleSize
	}
	return &IsolationForest{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Fit builds the trees from data, one row per sample.
func (f *IsolationForest) Fit(data [][]float64) error {
	width, err := checkMatrix(data)
	if err != nil {
		return err
	}
	if len(data) < 2 {
		return errors.New("isolation forest: need at least 2 samples")
	}
	n := len(data)
	f.width = width
	f.sampleSize = f.cfg.SampleSize
	if f.sampleSize > n {
		f.sampleSize = n
	}
	f.maxDepth = f.cfg.MaxDepth
	if f.maxDepth <= 0 {
		f.maxDepth = int(math.Ceil(math.Log2(float64(f.sampleSize))))
	}
	f.avgPathLength = averagePathLength(float64(f.sampleSize))

	f.trees = make([]*iTreeNode, 0, f.cfg.NumTrees)
	for t := 0; t < f.cfg.NumTrees; t++ {
		idx := f.rng.Perm(n)[:f.sampleSize]
		sample := make([][]float64, f.sampleSize)
		for j, i := range idx {
			sample[j] = data[i]
		}
		f.trees = append(f.trees, f.buildTree(sample, 0))
	}
	return nil
}

// Score returns the anomaly score of every row in data.
func (f *IsolationForest) Score(data [][]float64) ([]float64, error) {
	if len(f.trees) == 0 {
		return nil, errors.New("isolation forest: not fitted")
	}
	width, err := checkMatrix(data)
	if err != nil {
		return nil, err
	}
	if width != f.width {
		return nil, fmt.Errorf("isolation forest: fitted on %d features, got %d", f.width, width)
	}
	scores := make([]float64, len(data))
	for i, p := range data {
		var total float64
		for _, tree := range f.trees {
			total += pathLength(p, tree, 0)
		}
		avg := total / float64(len(f.trees))
		scores[i] = math.Pow(2, -avg/f.avgPathLength)
	}
	return scores, nil
}

// FitScore trains on data and scores the same rows.
func (f *IsolationForest) FitScore(data [][]float64) ([]float64, error) {
	if err := f.Fit(data); err != nil {
		return nil, err
	}
	return f.Score(data)
}

func (f *IsolationForest) buildTree(data [][]float64, depth int) *iTreeNode {
	if len(data) <= 1 || depth >= f.maxDepth {
		return externalNode(len(data))
	}
	feature := f.rng.Intn(len(data[0]))
	minVal, maxVal := data[0][feature], data[0][feature]
	for _, d := range data {
		if d[feature] < minVal {
			minVal = d[feature]
		}
		if d[feature] > maxVal {
			maxVal = d[feature]
		}
	}
	if minVal == maxVal {
		return externalNode(len(data))
	}
	split := minVal + f.rng.Float64()*(maxVal-minVal)
	var left, right [][]float64
	for _, d := range data {
		if d[feature] < split {
			left = append(left, d)
		} else {
			right = append(right, d)
		}
	}
	return &iTreeNode{
		splitFeature: feature,
		splitValue:   split,
		left:         f.buildTree(left, depth+1),
		right:        f.buildTree(right, depth+1),
	}
}

func externalNode(size int) *iTreeNode {
	return &iTreeNode{isExternal: true, pathLengthAdj: averagePathLength(float64(size))}
}

func pathLength(point []float64, node *iTreeNode, depth int) float64 {
	for !node.isExternal {
		if point[node.splitFeature] < node.splitValue {
			node = node.left
		} else {
			node = node.right
		}
		depth++
	}
	return float64(depth) + node.pathLengthAdj
}

// averagePathLength is the expected path length of an unsuccessful BST
// search over n points.
func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	const eulerGamma = 0.5772156649
	return 2*(math.Log(n-1)+eulerGamma) - 2*(n-1)/n
}

func checkMatrix(data [][]float64) (int, error) {
	if len(data) == 0 {
		return 0, errors.New("no samples")
	}
	width := len(data[0])
	if width == 0 {
		return 0, errors.New("samples have no features")
	}
	for i, row := range data {
		if len(row) != width {
			return 0, fmt.Errorf("sample %d has %d features, want %d", i, len(row), width)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, fmt.Errorf("sample %d has a non-finite feature", i)
			}
		}
	}
	return width, nil
}

// AnomalyConfig controls DetectAnomalies.
type AnomalyConfig struct {
	// Contamination is the expected share of anomalies, in (0, 0.5].
	Contamination float64
	MinRecords    int
	Forest        ForestConfig
}

// DetectAnomalies fits an isolation forest on the scaled features and flags
// records whose score lies above the (1 - Contamination) quantile.
func DetectAnomalies(b *Batch, cfg AnomalyConfig) (*Batch, error) {
	if b == nil {
		return nil, fmt.Errorf("anomaly: batch is nil")
	}
	if b.Stage < StagePrepared {
		return nil, stageError("anomaly", b.Stage, StagePrepared)
	}
	if cfg.Contamination <= 0 || cfg.Contamination > 0.5 {
		return nil, fmt.Errorf("anomaly: contamination %.3f outside (0, 0.5]", cfg.Contamination)
	}
	if n := len(b.Records); n < cfg.MinRecords || n < 2 {
		need := cfg.MinRecords
		if need < 2 {
			need = 2
		}
		return nil, &DegenerateBatchError{Stage: "anomaly", Have: n, Need: need}
	}
	for i, r := range b.Records {
		for j, v := range r.Scaled {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &SchemaError{Column: FeatureColumns[j], Row: i + 1, Reason: "scaled value is not numeric"}
			}
		}
	}

	forest := NewIsolationForest(cfg.Forest)
	scores, err := forest.FitScore(b.Features())
	if err != nil {
		return nil, fmt.Errorf("anomaly: %w", err)
	}
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)
	threshold := Quantile(sorted, 1-cfg.Contamination)

	out := b.Clone()
	for i := range out.Records {
		out.Records[i].AnomalyScore = scores[i]
		out.Records[i].IsAnomaly = scores[i] > threshold
	}
	if out.Stage < StageScored {
		out.Stage = StageScored
	}
	return out, nil
}
