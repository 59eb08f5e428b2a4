package embed

import "math"

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// norm is the L2 length of v. Embedders return unit vectors, so tests
// expect ~1 for any non-blank input.
func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}

// similarity is the cosine of the angle between a and b; 0 when either is
// blank or the lengths differ.
func similarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return dot(a, b) / (na * nb)
}
