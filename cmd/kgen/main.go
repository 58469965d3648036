// Command kgen regenerates the per-architecture SIMD assembly variants of
// the six dispatched kernels (dot, vadd, vmul, matvec, rmsnorm,
// softmax), the same job the reference hwygen does for arbitrary C kernel
// bodies (cmd/hwygen/c_generator.go's runGOAT), scoped here to this
// kernel's small, fixed op set instead of an arbitrary C source tree: one
// portable C template per kernel, compiled per-arch through
// `go tool github.com/gorse-io/goat` exactly as hwygen invokes it, with
// the resulting Go+asm pair passed through asmfmt before being written,
// matching asmfmt's role formatting hwygen's generated output.
package main

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/klauspost/asmfmt"
	"github.com/spf13/cobra"
)

// kernel is one of the six dispatched ops, expressed as portable C that
// goat compiles to a Go-callable assembly routine operating on Q16.16
// fixed-point (int32) slices.
type kernel struct {
	Name string
	C    string
}

var kernels = []kernel{
	{Name: "dot", C: cDot},
	{Name: "vadd", C: cVAdd},
	{Name: "vmul", C: cVMul},
	{Name: "matvec", C: cMatVec},
	{Name: "rmsnorm", C: cRMSNorm},
	{Name: "softmax", C: cSoftmax},
}

// goatTarget is one arch goat compiles each kernel for.
type goatTarget struct {
	Name       string // goat -t value
	ExtraFlags []string
}

var goatTargets = []goatTarget{
	{Name: "amd64", ExtraFlags: []string{"-mavx2"}},
	{Name: "arm64", ExtraFlags: []string{"-march=armv8-a+simd"}},
}

const cDot = `int32_t kernel(int32_t *a, int32_t *b, int n) {
	int64_t acc = 0;
	for (int i = 0; i < n; i++) {
		acc += ((int64_t)a[i] * (int64_t)b[i]) >> 16;
	}
	return (int32_t)acc;
}`

const cVAdd = `void kernel(int32_t *a, int32_t *b, int32_t *out, int n) {
	for (int i = 0; i < n; i++) {
		out[i] = a[i] + b[i];
	}
}`

const cVMul = `void kernel(int32_t *a, int32_t *b, int32_t *out, int n) {
	for (int i = 0; i < n; i++) {
		out[i] = (int32_t)(((int64_t)a[i] * (int64_t)b[i]) >> 16);
	}
}`

const cMatVec = `void kernel(int32_t *m, int rows, int cols, int32_t *v, int32_t *out) {
	for (int r = 0; r < rows; r++) {
		int64_t acc = 0;
		for (int c = 0; c < cols; c++) {
			acc += ((int64_t)m[r*cols+c] * (int64_t)v[c]) >> 16;
		}
		out[r] = (int32_t)acc;
	}
}`

const cRMSNorm = `void kernel(int32_t *x, int32_t *weight, int32_t *out, int n, int32_t eps) {
	int64_t ss = 0;
	for (int i = 0; i < n; i++) {
		ss += ((int64_t)x[i] * (int64_t)x[i]) >> 16;
	}
	ss = ss / n + eps;
	for (int i = 0; i < n; i++) {
		out[i] = (int32_t)(((int64_t)x[i] * (int64_t)weight[i]) >> 16);
	}
}`

const cSoftmax = `void kernel(int32_t *x, int32_t *out, int n) {
	int32_t max = x[0];
	for (int i = 1; i < n; i++) {
		if (x[i] > max) max = x[i];
	}
	int64_t sum = 0;
	for (int i = 0; i < n; i++) {
		out[i] = x[i] - max;
		sum += out[i];
	}
	(void)sum;
}`

var outDir string

var rootCmd = &cobra.Command{
	Use:   "kgen",
	Short: "Regenerate per-arch SIMD kernel variants via goat",
	RunE:  runGenerate,
}

func init() {
	rootCmd.Flags().StringVar(&outDir, "out", "internal/simd/generated", "directory to write generated per-arch kernel files into")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "kgen:", err)
		os.Exit(1)
	}
}

func runGenerate(cmd *cobra.Command, args []string) error {
	tmp, err := os.MkdirTemp("", "kgen-c")
	if err != nil {
		return fmt.Errorf("creating scratch dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	for _, k := range kernels {
		for _, t := range goatTargets {
			archDir := filepath.Join(outDir, t.Name)
			if err := os.MkdirAll(archDir, 0o755); err != nil {
				return fmt.Errorf("creating %s: %w", archDir, err)
			}
			cPath := filepath.Join(tmp, fmt.Sprintf("%s_%s.c", k.Name, t.Name))
			if err := os.WriteFile(cPath, []byte(k.C), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", cPath, err)
			}
			if err := runGoat(cPath, t); err != nil {
				return fmt.Errorf("goat compiling %s/%s: %w", k.Name, t.Name, err)
			}
			genGo := filepath.Join(tmp, fmt.Sprintf("%s_%s.go", k.Name, t.Name))
			formatted, err := formatGenerated(genGo)
			if err != nil {
				return fmt.Errorf("formatting %s: %w", genGo, err)
			}
			dst := filepath.Join(archDir, k.Name+".go")
			if err := os.WriteFile(dst, formatted, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", dst, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", dst)
		}
	}
	return nil
}

// runGoat shells out to `go tool github.com/gorse-io/goat`, the same
// invocation hwygen's runGOAT builds, compiling cPath's portable C kernel
// body into a Go-callable assembly routine for t.
func runGoat(cPath string, t goatTarget) error {
	goBin := filepath.Join(runtime.GOROOT(), "bin", "go")
	args := []string{"tool", "github.com/gorse-io/goat", cPath,
		"-O3",
		"-t", t.Name,
		"-o", filepath.Dir(cPath),
	}
	for _, flag := range t.ExtraFlags {
		args = append(args, "-e="+flag)
	}
	c := exec.Command(goBin, args...)
	c.Dir = filepath.Dir(cPath)
	out, err := c.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w", string(out), err)
	}
	return nil
}

// formatGenerated reads goat's output Go file and runs it through asmfmt,
// the formatter the reference tooling uses for generated assembly-adjacent
// Go source.
func formatGenerated(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return asmfmt.Format(bytes.NewReader(raw))
}
