package mathx

import "math"

func FloorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func Mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func AbsInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func ClampInt(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// FloorIndex returns floor(v/size) as an int.
func FloorIndex(v, size float64) int {
	return int(math.Floor(v / size))
}

// IsMultiple reports whether v is an integer multiple of size within eps.
func IsMultiple(v, size, eps float64) bool {
	r := math.Mod(math.Abs(v), size)
	return r < eps || size-r < eps
}
