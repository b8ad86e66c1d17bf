package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// NullEmbedder is a deterministic, hash-based embedder with no network
// calls. It exists purely for tests and local development: given the same
// text it always returns the same vector, and distinct texts land at
// distinct (though not semantically meaningful) points in the space.
type NullEmbedder struct {
	dims int
}

// NewNullEmbedder builds a NullEmbedder producing vectors of the given
// dimensionality.
func NewNullEmbedder(dims int) *NullEmbedder {
	if dims <= 0 {
		dims = 8
	}
	return &NullEmbedder{dims: dims}
}

func (n *NullEmbedder) Dimensions() int { return n.dims }

func (n *NullEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return hashVector(normalize(text), n.dims), nil
}

func (n *NullEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashVector(normalize(t), n.dims)
	}
	return out, nil
}

// hashVector derives a unit-length pseudo-embedding from text using FNV-1a
// seeded per dimension, so the result is stable across runs/processes.
func hashVector(text string, dims int) []float32 {
	v := make([]float32, dims)
	var sumSq float64
	for i := 0; i < dims; i++ {
		h := fnv.New32a()
		h.Write([]byte(text))
		h.Write([]byte{byte(i), byte(i >> 8)})
		sum := h.Sum32()
		val := float64(sum%2000)/1000.0 - 1.0
		v[i] = float32(val)
		sumSq += val * val
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return v
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}
