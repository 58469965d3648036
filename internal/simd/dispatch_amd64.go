//go:build amd64

package simd

import "golang.org/x/sys/cpu"

// detectCPUFeatures probes AVX2/SSE2 availability via golang.org/x/sys/cpu,
// the same feature-bit source cmd/cpuinfo's diagnostic tool reads, standing
// in for a direct CPUID leaf 7 probe.
func detectCPUFeatures() Features {
	if cpu.X86.HasAVX2 {
		return Features{Level: LevelAVX2, Width: 32}
	}
	if cpu.X86.HasSSE2 {
		return Features{Level: LevelSSE2, Width: 16}
	}
	return Features{Level: LevelScalar, Width: 4}
}
