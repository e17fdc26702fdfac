package risk

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// KMeansConfig controls centroid clustering.
type KMeansConfig struct {
	K        int
	MaxIter  int
	Restarts int
	Seed     int64
}

// DefaultKMeansConfig returns the configuration used by DefaultOptions.
func DefaultKMeansConfig() KMeansConfig {
	return KMeansConfig{K: 3, MaxIter: 300, Restarts: 10, Seed: 42}
}

// KMeans is Lloyd's algorithm with k-means++ seeding. The best of Restarts
// runs by inertia is kept.
type KMeans struct {
	cfg KMeansConfig

	Centroids  [][]float64
	Labels     []int
	Inertia    float64
	Iterations int
}

// NewKMeans returns an unfitted model.
func NewKMeans(cfg KMeansConfig) *KMeans {
	def := DefaultKMeansConfig()
	if cfg.MaxIter <= 0 {
		cfg.MaxIter = def.MaxIter
	}
	if cfg.Restarts <= 0 {
		cfg.Restarts = 1
	}
	return &KMeans{cfg: cfg}
}

// Fit clusters data into cfg.K non-empty groups.
func (km *KMeans) Fit(data [][]float64) error {
	if km.cfg.K <= 0 {
		return errors.New("kmeans: k must be positive")
	}
	if _, err := checkMatrix(data); err != nil {
		return fmt.Errorf("kmeans: %w", err)
	}
	if len(data) < km.cfg.K {
		return &DegenerateBatchError{Stage: "cluster", Have: len(data), Need: km.cfg.K}
	}
	rng := rand.New(rand.NewSource(km.cfg.Seed))
	best := math.Inf(1)
	for r := 0; r < km.cfg.Restarts; r++ {
		centroids := seedPlusPlus(data, km.cfg.K, rng)
		labels, iters := km.lloyd(data, centroids)
		inertia := inertiaOf(data, centroids, labels)
		if inertia < best {
			best = inertia
			km.Centroids = centroids
			km.Labels = labels
			km.Inertia = inertia
			km.Iterations = iters
		}
	}
	return nil
}

func (km *KMeans) lloyd(data [][]float64, centroids [][]float64) ([]int, int) {
	labels := make([]int, len(data))
	for i := range labels {
		labels[i] = -1
	}
	iter := 0
	for iter < km.cfg.MaxIter {
		iter++
		changed := false
		for i, p := range data {
			c := nearest(p, centroids)
			if labels[i] != c {
				labels[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}
		fillEmptyClusters(data, centroids, labels)
		recomputeCentroids(data, centroids, labels)
	}
	if fillEmptyClusters(data, centroids, labels) {
		recomputeCentroids(data, centroids, labels)
	}
	return labels, iter
}

// seedPlusPlus picks k initial centroids, each drawn with probability
// proportional to its squared distance from the nearest one already chosen.
func seedPlusPlus(data [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(data)
	chosen := make([]int, 0, k)
	picked := make([]bool, n)
	first := rng.Intn(n)
	chosen = append(chosen, first)
	picked[first] = true

	d2 := make([]float64, n)
	for i := range data {
		d2[i] = sqDist(data[i], data[first])
	}
	for len(chosen) < k {
		var total float64
		for _, d := range d2 {
			total += d
		}
		next := -1
		if total > 0 {
			target := rng.Float64() * total
			var acc float64
			for i, d := range d2 {
				acc += d
				if d > 0 && acc >= target {
					next = i
					break
				}
			}
		}
		if next < 0 {
			// Every remaining point coincides with a centroid.
			free := make([]int, 0, n)
			for i := range data {
				if !picked[i] {
					free = append(free, i)
				}
			}
			next = free[rng.Intn(len(free))]
		}
		chosen = append(chosen, next)
		picked[next] = true
		for i := range data {
			if d := sqDist(data[i], data[next]); d < d2[i] {
				d2[i] = d
			}
		}
	}
	centroids := make([][]float64, k)
	for c, i := range chosen {
		centroids[c] = append([]float64(nil), data[i]...)
	}
	return centroids
}

// nearest returns the closest centroid; ties go to the lowest index.
func nearest(p []float64, centroids [][]float64) int {
	best, bestD := 0, math.Inf(1)
	for c, ctr := range centroids {
		if d := sqDist(p, ctr); d < bestD {
			best, bestD = c, d
		}
	}
	return best
}

// fillEmptyClusters moves, for every empty cluster, the point farthest from
// its own centroid (taken from a cluster with more than one member) into it.
func fillEmptyClusters(data [][]float64, centroids [][]float64, labels []int) bool {
	counts := make([]int, len(centroids))
	for _, l := range labels {
		counts[l]++
	}
	moved := false
	for c := range centroids {
		if counts[c] > 0 {
			continue
		}
		far, farD := -1, -1.0
		for i, p := range data {
			l := labels[i]
			if counts[l] <= 1 {
				continue
			}
			if d := sqDist(p, centroids[l]); d > farD {
				far, farD = i, d
			}
		}
		if far < 0 {
			continue
		}
		counts[labels[far]]--
		labels[far] = c
		counts[c]++
		centroids[c] = append(centroids[c][:0], data[far]...)
		moved = true
	}
	return moved
}

func recomputeCentroids(data [][]float64, centroids [][]float64, labels []int) {
	width := len(data[0])
	sums := make([][]float64, len(centroids))
	counts := make([]int, len(centroids))
	for c := range sums {
		sums[c] = make([]float64, width)
	}
	for i, p := range data {
		l := labels[i]
		counts[l]++
		for j, v := range p {
			sums[l][j] += v
		}
	}
	for c := range centroids {
		if counts[c] == 0 {
			continue
		}
		for j := range sums[c] {
			centroids[c][j] = sums[c][j] / float64(counts[c])
		}
	}
}

func inertiaOf(data [][]float64, centroids [][]float64, labels []int) float64 {
	var s float64
	for i, p := range data {
		s += sqDist(p, centroids[labels[i]])
	}
	return s
}

// severityOrder returns cluster indices sorted by ascending mean centroid
// coordinate; ties keep the lower index first.
func severityOrder(centroids [][]float64) []int {
	sev := make([]float64, len(centroids))
	for c, ctr := range centroids {
		var s float64
		for _, v := range ctr {
			s += v
		}
		if len(ctr) > 0 {
			s /= float64(len(ctr))
		}
		sev[c] = s
	}
	order := make([]int, len(centroids))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return sev[order[a]] < sev[order[b]] })
	return order
}

// GroupConfig controls GroupRisks.
type GroupConfig struct {
	KMeans KMeansConfig
	// RankBySeverity relabels clusters so that group 0 has the lowest mean
	// scaled metrics and group K-1 the highest. When false the raw cluster
	// indices are kept and carry no ordering.
	RankBySeverity bool
}

// GroupRisks clusters the scaled features into cfg.KMeans.K risk groups.
func GroupRisks(b *Batch, cfg GroupConfig) (*Batch, error) {
	if b == nil {
		return nil, fmt.Errorf("cluster: batch is nil")
	}
	if b.Stage < StagePrepared {
		return nil, stageError("cluster", b.Stage, StagePrepared)
	}
	k := cfg.KMeans.K
	if k <= 0 {
		return nil, fmt.Errorf("cluster: number of risk groups must be positive, got %d", k)
	}
	if n := len(b.Records); n < k {
		return nil, &DegenerateBatchError{Stage: "cluster", Have: n, Need: k}
	}
	km := NewKMeans(cfg.KMeans)
	if err := km.Fit(b.Features()); err != nil {
		return nil, err
	}

	remap := make([]int, k)
	for c := range remap {
		remap[c] = c
	}
	if cfg.RankBySeverity {
		for rank, c := range severityOrder(km.Centroids) {
			remap[c] = rank
		}
	}

	out := b.Clone()
	for i := range out.Records {
		out.Records[i].RiskGroup = remap[km.Labels[i]]
	}
	out.Clusters = k
	out.Centroids = make([][]float64, k)
	for c, ctr := range km.Centroids {
		out.Centroids[remap[c]] = append([]float64(nil), ctr...)
	}
	if out.Stage < StageGrouped {
		out.Stage = StageGrouped
	}
	return out, nil
}
