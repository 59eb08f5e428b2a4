package store

import (
	"math"

	"github.com/coder/hnsw"
)

// annGraph is the in-memory HNSW accelerator over table rows.
// Nodes are keyed by row number, so duplicate keys are separate nodes.
// It is rebuilt from the column files on open and never persisted.
type annGraph struct {
	graph    *hnsw.Graph[uint64]
	efSearch int
}

func newANNGraph(opts VectorTableOptions, distance hnsw.DistanceFunc) *annGraph {
	g := hnsw.NewGraph[uint64]()
	g.Distance = distance
	g.M = opts.M
	g.EfSearch = opts.EfSearch
	g.Ml = 0.25

	return &annGraph{graph: g, efSearch: opts.EfSearch}
}

func (a *annGraph) add(row uint64, vec []float32) {
	a.graph.Add(hnsw.MakeNode(row, vec))
}

// candidates returns up to k row numbers near q, unordered.
func (a *annGraph) candidates(q []float32, k int) []uint64 {
	nodes := a.graph.Search(q, k)
	rows := make([]uint64, len(nodes))
	for i, n := range nodes {
		rows[i] = n.Key
	}
	return rows
}

// canServe reports whether the graph can return k results reliably.
func (a *annGraph) canServe(k int) bool {
	return k <= a.efSearch
}

func (a *annGraph) len() int {
	return a.graph.Len()
}

// distanceFunc returns the metric's distance function. Cosine assumes
// both inputs were normalized on the way in.
func distanceFunc(m Metric) hnsw.DistanceFunc {
	if m == MetricL2 {
		return hnsw.EuclideanDistance
	}
	return unitCosineDistance
}

// unitCosineDistance is 1 - a·b. Zero vectors sit at distance 1 from everything.
func unitCosineDistance(a, b []float32) float32 {
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return 1 - dot
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
