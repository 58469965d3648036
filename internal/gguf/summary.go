package gguf

import "fmt"

// Summary is a flattened, display-ready view of a loaded model, the
// convenience type cmd/ggufinspect prints after running the full
// block-device -> GGUF loader -> architecture-extraction path.
type Summary struct {
	Architecture   string
	Version        uint32
	TensorCount    uint64
	StoredTensors  int
	KVCount        int
	EmbeddingLen   uint64
	BlockCount     uint64
	HeadCount      uint64
	HeadCountKV    uint64
	FeedForwardLen uint64
	ContextLength  uint64
	VocabSize      uint64
}

// Summarize builds a Summary from a parsed File and its extracted
// Architecture.
func Summarize(f *File, a *Architecture) Summary {
	return Summary{
		Architecture:   a.Name,
		Version:        f.Header.Version,
		TensorCount:    f.Header.NTensors,
		StoredTensors:  len(f.Tensors),
		KVCount:        len(f.KVs),
		EmbeddingLen:   a.EmbeddingLength,
		BlockCount:     a.BlockCount,
		HeadCount:      a.HeadCount,
		HeadCountKV:    a.HeadCountKV,
		FeedForwardLen: a.FeedForwardLen,
		ContextLength:  a.ContextLength,
		VocabSize:      a.VocabSize,
	}
}

// String renders the summary as a short multi-line report.
func (s Summary) String() string {
	return fmt.Sprintf(
		"architecture:   %s\nversion:        %d\ntensors:        %d (stored %d)\nkv pairs:       %d\nembedding_len:  %d\nblock_count:    %d\nhead_count:     %d\nhead_count_kv:  %d\nfeed_forward:   %d\ncontext_len:    %d\nvocab_size:     %d",
		s.Architecture, s.Version, s.TensorCount, s.StoredTensors, s.KVCount,
		s.EmbeddingLen, s.BlockCount, s.HeadCount, s.HeadCountKV,
		s.FeedForwardLen, s.ContextLength, s.VocabSize,
	)
}
