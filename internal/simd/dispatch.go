// Package simd provides the runtime-dispatched vector kernels the
// transformer runtime and quantized codec build on: dot product, vector
// add/mul, mat-vec, RMSNorm, and softmax over Q16.16 fixed-point data. A
// CPU-feature probe runs once at first use and is cached; subsequent
// calls select AVX2 -> SSE2 -> scalar on amd64, or NEON -> scalar on
// arm64. Unlike a dispatch layer built over Go's experimental archsimd
// intrinsics and real machine code, this kernel targets a hosted Go build
// with no OS underneath its bare-metal model, so each dispatch level is a
// pure-Go unrolled variant operating on plain slices rather than emitted
// assembly: the same levels, selected the same way, without archsimd.
package simd

import "sync"

// Level identifies a selected SIMD dispatch tier.
type Level int

const (
	LevelScalar Level = iota
	LevelSSE2
	LevelAVX2
	LevelNEON
)

func (l Level) String() string {
	switch l {
	case LevelScalar:
		return "scalar"
	case LevelSSE2:
		return "sse2"
	case LevelAVX2:
		return "avx2"
	case LevelNEON:
		return "neon"
	default:
		return "unknown"
	}
}

// Features is the cached result of the one-time CPU feature probe.
type Features struct {
	Level Level
	Width int // bytes processed per inner-loop iteration
}

var (
	once     sync.Once
	features Features
)

// Detect runs the feature probe exactly once and returns the cached result
// on every call thereafter, matching the reference init()-time detection.
func Detect() Features {
	once.Do(func() {
		features = detectCPUFeatures()
	})
	return features
}

// ResetForTest forces the next Detect call to re-probe. Test-only.
func ResetForTest() {
	once = sync.Once{}
}

// lanesFor returns how many Fixed (int32) lanes a dispatch level processes
// per unrolled iteration.
func lanesFor(l Level) int {
	switch l {
	case LevelAVX2:
		return 8
	case LevelSSE2, LevelNEON:
		return 4
	default:
		return 1
	}
}
