// Package mathx holds small generic numeric helpers.
package mathx

import "golang.org/x/exp/constraints"

// Clamp limits v to [lo, hi]. If lo > hi, the bounds are swapped.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if hi < lo {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Wrap returns v reduced into [0, n) for any signed v. n must be positive.
func Wrap[T constraints.Signed](v, n T) T {
	v %= n
	if v < 0 {
		v += n
	}
	return v
}
