package calib

import "math"

// SelectR returns the k-th smallest element (0-based) of a. The slice is
// partially reordered in place. It panics when k is out of range.
func SelectR(k int, a []float64) float64 {
	if k < 0 || k >= len(a) {
		panic("calib: SelectR index out of range")
	}
	lo, hi := 0, len(a)-1
	for hi > lo {
		mid := lo + (hi-lo)/2
		// median of three, leaves the pivot in a[hi]
		if a[mid] < a[lo] {
			a[mid], a[lo] = a[lo], a[mid]
		}
		if a[hi] < a[lo] {
			a[hi], a[lo] = a[lo], a[hi]
		}
		if a[mid] < a[hi] {
			a[mid], a[hi] = a[hi], a[mid]
		}
		pivot := a[hi]

		i := lo
		for j := lo; j < hi; j++ {
			if a[j] < pivot {
				a[i], a[j] = a[j], a[i]
				i++
			}
		}
		a[i], a[hi] = a[hi], a[i]

		switch {
		case k == i:
			return a[i]
		case k < i:
			hi = i - 1
		default:
			lo = i + 1
		}
	}
	return a[k]
}

// Median returns the median of the finite values of a without modifying
// it, and false when there are none. For an even count the lower of the two
// middle values is returned.
func Median(a []float64) (float64, bool) {
	buf := make([]float64, 0, len(a))
	for _, v := range a {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			buf = append(buf, v)
		}
	}
	if len(buf) == 0 {
		return math.NaN(), false
	}
	return SelectR((len(buf)-1)/2, buf), true
}
