package embedding

import (
	"crypto/md5"
	"encoding/binary"
	"math"
	"math/rand"
)

// Deterministic produces a stable pseudo-embedding seeded by the MD5
// of the text, L2-normalised to unit length. Identical inputs always
// map to identical vectors, so duplicate detection keeps working even
// when the provider is down.
func Deterministic(text string, dim int) []float32 {
	if dim <= 0 {
		dim = 1536
	}
	sum := md5.Sum([]byte(text))
	seed := int64(binary.BigEndian.Uint64(sum[:8]))
	rng := rand.New(rand.NewSource(seed))

	vec := make([]float32, dim)
	var norm float64
	for i := range vec {
		v := rng.Float64()*2 - 1
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// Coerce truncates or zero-pads a vector to exactly dim entries.
func Coerce(vec []float32, dim int) []float32 {
	switch {
	case len(vec) == dim:
		return vec
	case len(vec) > dim:
		return vec[:dim]
	default:
		out := make([]float32, dim)
		copy(out, vec)
		return out
	}
}

// Cosine returns the cosine similarity of two equal-length vectors.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
