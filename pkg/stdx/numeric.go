package stdx

import "cmp"

// Clamp bounds v to the closed interval [lo, hi].
func Clamp[T cmp.Ordered](v, lo, hi T) T {
	return max(lo, min(v, hi))
}

// Ratio returns part/whole as a float64, or 0 when whole is 0.
func Ratio[N ~int | ~int64](part, whole N) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole)
}
