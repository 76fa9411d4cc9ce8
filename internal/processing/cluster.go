package processing

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/starford/newsletter-scanner/internal/models"
)

const (
	clusterMaxFeatures   = 3000
	clusterMinDF         = 2
	clusterMaxDF         = 0.85
	clusterSeed          = 42
	clusterInits         = 3
	clusterMaxIter       = 100
	clusterTopTerms      = 5
	clusterLabelTerms    = 3
	silhouetteMinItems   = 20
	silhouetteSampleSize = 500
)

// Clusterer groups items into topics with K-means over TF-IDF vectors.
type Clusterer struct {
	enabled    bool
	minK, maxK int
	logger     *slog.Logger
}

// NewClusterer returns a Clusterer choosing K in [minK, maxK].
func NewClusterer(enabled bool, minK, maxK int, logger *slog.Logger) *Clusterer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Clusterer{enabled: enabled, minK: minK, maxK: maxK, logger: logger}
}

// Cluster returns clusters sorted by size descending. ItemIndices index into items.
func (c *Clusterer) Cluster(items []models.Item) ([]models.Cluster, error) {
	if !c.enabled || len(items) < c.minK+1 {
		return nil, nil
	}

	var docs []string
	var origin []int
	for i, it := range items {
		doc := cleanForClustering(strings.TrimSpace(it.Title + " " + it.Description))
		if doc == "" {
			continue
		}
		docs = append(docs, doc)
		origin = append(origin, i)
	}
	if len(docs) < c.minK+1 {
		return nil, nil
	}

	v := vectorizer{ngramMin: 1, ngramMax: 2, minDF: clusterMinDF, maxDF: clusterMaxDF, maxFeatures: clusterMaxFeatures}
	m, err := v.fitTransform(docs)
	if errors.Is(err, errNoTerms) {
		c.logger.Warn("no shared vocabulary for clustering", slog.Int("documents", len(docs)))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("processing: cluster: %w", err)
	}

	n := len(docs)
	maxK := min(c.maxK, n-1)
	minK := min(c.minK, maxK)
	k := minK
	if maxK > minK && n >= silhouetteMinItems {
		k = chooseK(m.rows, len(m.terms), minK, maxK)
	}
	if k < 1 {
		return nil, nil
	}

	labels, centroids := kmeans(m.rows, len(m.terms), k)
	out := buildClusters(labels, centroids, m.terms, origin)
	c.logger.Debug("items clustered", slog.Int("documents", n), slog.Int("clusters", len(out)))
	return out, nil
}

// buildClusters turns K-means assignments into clusters, largest first. Every
// centroid yields a cluster, including ones no item was assigned to.
func buildClusters(labels []int, centroids [][]float64, terms []string, origin []int) []models.Cluster {
	out := make([]models.Cluster, len(centroids))
	for id, centroid := range centroids {
		top := topTerms(centroid, terms, clusterTopTerms)
		out[id] = models.Cluster{
			ID:          id,
			Label:       strings.Join(top[:min(clusterLabelTerms, len(top))], ", "),
			TopTerms:    top,
			ItemIndices: []int{},
		}
	}
	for r, l := range labels {
		out[l].ItemIndices = append(out[l].ItemIndices, origin[r])
		out[l].Size++
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Size > out[j].Size })
	return out
}

// topTerms returns the n terms with the highest centroid weight. Equal weights,
// zero included, keep vocabulary order.
func topTerms(centroid []float64, terms []string, n int) []string {
	idx := make([]int, len(centroid))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return centroid[idx[a]] > centroid[idx[b]] })
	out := make([]string, 0, min(n, len(idx)))
	for _, i := range idx[:min(n, len(idx))] {
		out = append(out, terms[i])
	}
	return out
}

// chooseK returns the K in [minK, maxK] with the best mean silhouette.
func chooseK(rows []sparseVec, dim, minK, maxK int) int {
	sample := sampleIndices(len(rows), silhouetteSampleSize)
	dist := pairwiseDistances(rows, sample)

	best, bestScore := minK, math.Inf(-1)
	for k := minK; k <= maxK; k++ {
		labels, _ := kmeans(rows, dim, k)
		sampled := make([]int, len(sample))
		for i, r := range sample {
			sampled[i] = labels[r]
		}
		score, ok := silhouette(dist, sampled)
		if !ok {
			continue
		}
		if score > bestScore {
			best, bestScore = k, score
		}
	}
	return best
}

func sampleIndices(n, size int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	if n <= size {
		return idx
	}
	rng := rand.New(rand.NewPCG(clusterSeed, clusterSeed))
	rng.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	idx = idx[:size]
	sort.Ints(idx)
	return idx
}

func pairwiseDistances(rows []sparseVec, sample []int) [][]float64 {
	norms := make([]float64, len(sample))
	for i, r := range sample {
		norms[i] = rows[r].dot(rows[r])
	}
	d := make([][]float64, len(sample))
	for i := range d {
		d[i] = make([]float64, len(sample))
	}
	for i := range sample {
		for j := i + 1; j < len(sample); j++ {
			sq := norms[i] + norms[j] - 2*rows[sample[i]].dot(rows[sample[j]])
			v := math.Sqrt(max(sq, 0))
			d[i][j], d[j][i] = v, v
		}
	}
	return d
}

// silhouette returns the mean silhouette coefficient; ok is false with fewer
// than two distinct labels.
func silhouette(dist [][]float64, labels []int) (float64, bool) {
	sizes := make(map[int]int)
	for _, l := range labels {
		sizes[l]++
	}
	if len(sizes) < 2 {
		return 0, false
	}

	var total float64
	for i, li := range labels {
		if sizes[li] == 1 {
			continue
		}
		sums := make(map[int]float64, len(sizes))
		for j, lj := range labels {
			if i != j {
				sums[lj] += dist[i][j]
			}
		}
		a := sums[li] / float64(sizes[li]-1)
		b := math.Inf(1)
		for l, s := range sums {
			if l != li {
				b = min(b, s/float64(sizes[l]))
			}
		}
		if m := max(a, b); m > 0 {
			total += (b - a) / m
		}
	}
	return total / float64(len(labels)), true
}

// kmeans runs k-means++ seeded Lloyd iterations clusterInits times and keeps
// the lowest-inertia result. Seeding is deterministic.
func kmeans(rows []sparseVec, dim, k int) ([]int, [][]float64) {
	rng := rand.New(rand.NewPCG(clusterSeed, clusterSeed))
	norms := make([]float64, len(rows))
	for i, r := range rows {
		norms[i] = r.dot(r)
	}

	var bestLabels []int
	var bestCentroids [][]float64
	bestInertia := math.Inf(1)
	for range clusterInits {
		labels, centroids, inertia := lloyd(rows, norms, dim, k, rng)
		if inertia < bestInertia {
			bestLabels, bestCentroids, bestInertia = labels, centroids, inertia
		}
	}
	return bestLabels, bestCentroids
}

func lloyd(rows []sparseVec, norms []float64, dim, k int, rng *rand.Rand) ([]int, [][]float64, float64) {
	centroids := seedCentroids(rows, norms, dim, k, rng)
	labels := make([]int, len(rows))
	for i := range labels {
		labels[i] = -1
	}

	var inertia float64
	for iter := 0; iter < clusterMaxIter; iter++ {
		cnorms := centroidNorms(centroids)
		changed := false
		inertia = 0
		for i, r := range rows {
			best, bestD := 0, math.Inf(1)
			for c := range centroids {
				d := sqDist(r, norms[i], centroids[c], cnorms[c])
				if d < bestD {
					best, bestD = c, d
				}
			}
			if labels[i] != best {
				labels[i] = best
				changed = true
			}
			inertia += bestD
		}
		if !changed {
			break
		}
		updateCentroids(rows, labels, centroids)
	}
	return labels, centroids, inertia
}

func seedCentroids(rows []sparseVec, norms []float64, dim, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, densify(rows[rng.IntN(len(rows))], dim))

	closest := make([]float64, len(rows))
	for i := range closest {
		closest[i] = math.Inf(1)
	}
	for len(centroids) < k {
		last := centroids[len(centroids)-1]
		lastNorm := dot(last, last)
		var total float64
		for i, r := range rows {
			closest[i] = min(closest[i], sqDist(r, norms[i], last, lastNorm))
			total += closest[i]
		}
		next := rng.IntN(len(rows))
		if total > 0 {
			target := rng.Float64() * total
			for i, d := range closest {
				target -= d
				if target <= 0 {
					next = i
					break
				}
			}
		}
		centroids = append(centroids, densify(rows[next], dim))
	}
	return centroids
}

// updateCentroids sets each centroid to the mean of its members; empty
// clusters keep their previous centroid.
func updateCentroids(rows []sparseVec, labels []int, centroids [][]float64) {
	sizes := make([]int, len(centroids))
	for _, l := range labels {
		sizes[l]++
	}
	for c := range centroids {
		if sizes[c] == 0 {
			continue
		}
		clear(centroids[c])
	}
	for i, r := range rows {
		c := centroids[labels[i]]
		for k, j := range r.idx {
			c[j] += r.val[k]
		}
	}
	for c := range centroids {
		if sizes[c] == 0 {
			continue
		}
		for j := range centroids[c] {
			centroids[c][j] /= float64(sizes[c])
		}
	}
}

func densify(v sparseVec, dim int) []float64 {
	out := make([]float64, dim)
	for k, j := range v.idx {
		out[j] = v.val[k]
	}
	return out
}

func centroidNorms(centroids [][]float64) []float64 {
	out := make([]float64, len(centroids))
	for i, c := range centroids {
		out[i] = dot(c, c)
	}
	return out
}

func sqDist(r sparseVec, rNorm float64, c []float64, cNorm float64) float64 {
	var d float64
	for k, j := range r.idx {
		d += r.val[k] * c[j]
	}
	return max(rNorm+cNorm-2*d, 0)
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
