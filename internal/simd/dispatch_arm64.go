//go:build arm64

package simd

import "golang.org/x/sys/cpu"

// detectCPUFeatures probes NEON (ASIMD) availability; NEON is baseline on
// arm64, so this degrades only when golang.org/x/sys/cpu fails to populate
// the feature struct (which it does not on arm64 in practice), matching
// the "compile-time for NEON on aarch64" note.
func detectCPUFeatures() Features {
	if cpu.ARM64.HasASIMD {
		return Features{Level: LevelNEON, Width: 16}
	}
	return Features{Level: LevelScalar, Width: 4}
}
