//go:build !amd64 && !arm64

package simd

// detectCPUFeatures falls back to scalar on architectures with no
// dispatched kernel variant, matching the reference hwy/dispatch_other.go.
func detectCPUFeatures() Features {
	return Features{Level: LevelScalar, Width: 4}
}
