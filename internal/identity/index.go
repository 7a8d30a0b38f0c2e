// index.go: in-process vector index over canonical identity embeddings.
package identity

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// candidate is one nearest-neighbor search hit.
type candidate struct {
	id       string
	distance float64
}

// vectorIndex holds unit-norm identity embeddings in memory and answers
// exact top-2 cosine-distance queries. The identity space is append-only
// and modest in size, so a linear scan is adequate.
type vectorIndex struct {
	mu   sync.RWMutex
	vecs map[string][]float64
}

func newVectorIndex() *vectorIndex {
	return &vectorIndex{vecs: make(map[string][]float64)}
}

// set stores or replaces the unit vector for an identity.
func (ix *vectorIndex) set(id string, v []float64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.vecs[id] = v
}

// get returns the stored vector for an identity.
func (ix *vectorIndex) get(id string) ([]float64, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	v, ok := ix.vecs[id]
	return v, ok
}

// size returns the number of indexed identities.
func (ix *vectorIndex) size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.vecs)
}

// nearest2 returns the two closest identities to the unit query vector by
// cosine distance. The second result is nil when fewer than two identities
// exist; both are nil for an empty index.
func (ix *vectorIndex) nearest2(query []float64) (best, second *candidate) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	for id, v := range ix.vecs {
		// Both sides are unit vectors, so cosine distance is 1 - dot.
		d := 1.0 - floats.Dot(query, v)
		switch {
		case best == nil || d < best.distance:
			second = best
			best = &candidate{id: id, distance: d}
		case second == nil || d < second.distance:
			second = &candidate{id: id, distance: d}
		}
	}
	return best, second
}

// unit returns a unit-norm float64 copy of the vector, or false for a
// zero vector.
func unit(v []float32) ([]float64, bool) {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	n := floats.Norm(out, 2)
	if n == 0 || math.IsNaN(n) {
		return nil, false
	}
	floats.Scale(1/n, out)
	return out, true
}

// toFloat32 converts a float64 vector for persistence.
func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
