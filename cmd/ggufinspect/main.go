// Command ggufinspect exercises the full boot-time load path (block
// device -> GGUF loader -> architecture extraction) against a GGUF file
// on the host filesystem, standing in for the real boot loader's
// GGUF.load_from_block step without needing actual hardware. Structured
// the way the reference code-generation CLIs wrap a cobra.Command tree,
// and the same shape accelbench's cmd/cli uses for a single-purpose
// inspection subcommand.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/embodios/kernel/internal/block"
	"github.com/embodios/kernel/internal/gguf"
	"github.com/embodios/kernel/internal/heap"
	"github.com/embodios/kernel/internal/pmm"
)

var rootCmd = &cobra.Command{
	Use:   "ggufinspect <path>",
	Short: "Load a GGUF file through the block/GGUF stack and report its architecture",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

var pages int

func init() {
	rootCmd.Flags().IntVar(&pages, "pmm-pages", 1<<16, "physical page count to back the inspection heap")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ggufinspect:", err)
		os.Exit(1)
	}
}

func runInspect(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if rem := len(data) % block.SectorSize; rem != 0 {
		data = append(data, make([]byte, block.SectorSize-rem)...)
	}
	dev := block.NewMemDevice(data)

	p, err := pmm.New(pages)
	if err != nil {
		return fmt.Errorf("constructing PMM: %w", err)
	}
	h := heap.New(p)

	f, err := gguf.LoadFromBlockDevice(dev, h, dev.Capacity())
	if err != nil {
		return fmt.Errorf("loading GGUF model: %w", err)
	}
	a, err := gguf.BuildArchitecture(f)
	if err != nil {
		return fmt.Errorf("extracting architecture: %w", err)
	}

	fmt.Println(gguf.Summarize(f, a).String())
	return nil
}
