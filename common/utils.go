package common

// Clamp limits v to the inclusive range [lo, hi].
func Clamp[T ~int | ~uint32 | ~float32](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
