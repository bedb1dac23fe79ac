// Package simdops exposes the small set of SIMD-accelerated vector operations
// the playback paths rely on, generically over float32 and float64.
//
// With Profile-Guided Optimization (Go 1.22+), function pointer calls in hot paths
// can be devirtualized and inlined, achieving near-zero overhead.
package simdops

import (
	"github.com/tphakala/simd/f32"
	"github.com/tphakala/simd/f64"
)

// Float is the type constraint for supported floating-point types.
type Float interface {
	float32 | float64
}

// Ops provides SIMD-accelerated operations for type F.
// Function pointers allow type-safe generic code while delegating
// to optimized type-specific implementations.
type Ops[F Float] struct {
	// Scale multiplies each element by scalar s: dst[i] = a[i] * s.
	// Safe to call with dst aliasing a (in-place volume application).
	Scale func(dst, a []F, s F)

	// Interleave2 interleaves two slices: dst[0]=a[0], dst[1]=b[0], dst[2]=a[1], ...
	// Used to turn planar stereo into the interleaved device layout.
	Interleave2 func(dst, a, b []F)

	// CubicInterpDot computes the fused cubic interpolation dot product:
	//   Σ hist[i] * (a[i] + x*(b[i] + x*(c[i] + x*d[i])))
	// One polyphase output sample per call, with sub-phase interpolation.
	CubicInterpDot func(hist, a, b, c, d []F, x F) F
}

// Pre-instantiated operations for each float type.
// These are package-level variables to avoid repeated allocation.
var (
	ops32 = Ops[float32]{
		Scale:          f32.Scale,
		Interleave2:    f32.Interleave2,
		CubicInterpDot: f32.CubicInterpDot,
	}
	ops64 = Ops[float64]{
		Scale:          f64.Scale,
		Interleave2:    f64.Interleave2,
		CubicInterpDot: f64.CubicInterpDot,
	}
)

// For returns the Ops instance for type F.
// The type switch happens at instantiation time, not in hot paths.
func For[F Float]() *Ops[F] {
	var zero F
	switch any(zero).(type) {
	case float32:
		ops, ok := any(&ops32).(*Ops[F])
		if !ok {
			panic("simdops: type assertion failed for float32")
		}
		return ops
	case float64:
		ops, ok := any(&ops64).(*Ops[F])
		if !ok {
			panic("simdops: type assertion failed for float64")
		}
		return ops
	default:
		panic("simdops: unsupported float type")
	}
}

// Float32Ops returns the float32 SIMD operations.
// Convenience function for non-generic code.
func Float32Ops() *Ops[float32] {
	return &ops32
}

// Float64Ops returns the float64 SIMD operations.
// Convenience function for non-generic code.
func Float64Ops() *Ops[float64] {
	return &ops64
}
