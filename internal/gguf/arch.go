package gguf

import (
	"github.com/embodios/kernel/internal/config"
	"github.com/embodios/kernel/internal/errs"
)

// knownArchitectures is the set of architecture prefixes the loader
// recognizes for per-architecture key lookup. An architecture name outside
// this set still parses: the per-arch keys are simply absent and defaults
// apply, since unknown keys are skipped during type-directed traversal.
var knownArchitectures = map[string]bool{
	"llama": true, "phi": true, "mistral": true, "qwen": true, "gemma": true,
}

func kvMap(kvs []KV) map[string]any {
	m := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		m[kv.Key] = kv.Value
	}
	return m
}

func uintAt(m map[string]any, key string, def uint64) uint64 {
	if v, ok := m[key]; ok {
		if u, ok := asUint(v); ok {
			return u
		}
	}
	return def
}

func floatAt(m map[string]any, key string, def float32) float32 {
	if v, ok := m[key]; ok {
		if f, ok := v.(float32); ok {
			return f
		}
		if f, ok := v.(float64); ok {
			return float32(f)
		}
	}
	return def
}

func stringAt(m map[string]any, key string, def string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// BuildArchitecture extracts the model architecture from f's KV metadata,
// dispatching on the architecture prefix found in general.architecture
// and applying the documented defaults for any per-architecture key that
// is absent.
func BuildArchitecture(f *File) (*Architecture, error) {
	m := kvMap(f.KVs)

	name := stringAt(m, "general.architecture", "")
	if name == "" {
		return nil, errs.New("gguf.BuildArchitecture", errs.NotFound, "general.architecture is absent")
	}
	prefix := name
	if !knownArchitectures[prefix] {
		prefix = name // still used verbatim for per-arch key lookup; unknown arches just miss every lookup and take defaults.
	}

	a := &Architecture{
		Name:            name,
		EmbeddingLength: uintAt(m, prefix+".embedding_length", 0),
		BlockCount:      uintAt(m, prefix+".block_count", 0),
		HeadCount:       uintAt(m, prefix+".attention.head_count", 0),
		ContextLength:   uintAt(m, prefix+".context_length", 2048),
		RMSEpsilon:      floatAt(m, prefix+".attention.layer_norm_rms_epsilon", 1e-5),
		RopeFreqBase:    floatAt(m, prefix+".rope.freq_base", 10000),
		RopeDimCount:    uintAt(m, prefix+".rope.dimension_count", 0),
		VocabSize:       uintAt(m, prefix+".vocab_size", 0),
		TokenizerModel:  stringAt(m, "tokenizer.ggml.model", ""),
		BOSTokenID:      uint32(uintAt(m, "tokenizer.ggml.bos_token_id", 0)),
		EOSTokenID:      uint32(uintAt(m, "tokenizer.ggml.eos_token_id", 0)),
		PadTokenID:      uint32(uintAt(m, "tokenizer.ggml.padding_token_id", 0)),
	}

	if a.EmbeddingLength == 0 {
		return nil, errs.New("gguf.BuildArchitecture", errs.Invalid, "%s.embedding_length is zero or absent", prefix)
	}
	if a.BlockCount == 0 {
		return nil, errs.New("gguf.BuildArchitecture", errs.Invalid, "%s.block_count is zero or absent", prefix)
	}
	if a.HeadCount == 0 {
		return nil, errs.New("gguf.BuildArchitecture", errs.Invalid, "%s.attention.head_count is zero or absent", prefix)
	}

	a.HeadCountKV = uintAt(m, prefix+".attention.head_count_kv", a.HeadCount)
	a.FeedForwardLen = uintAt(m, prefix+".feed_forward_length", 4*a.EmbeddingLength)

	if tokens, ok := m["tokenizer.ggml.tokens"].([]any); ok {
		a.Tokens = make([]string, 0, min(len(tokens), config.GGUFMaxVocab))
		for _, t := range tokens {
			if len(a.Tokens) >= config.GGUFMaxVocab {
				break
			}
			if s, ok := t.(string); ok {
				a.Tokens = append(a.Tokens, s)
			}
		}
		if a.VocabSize == 0 {
			a.VocabSize = uint64(len(a.Tokens))
		}
	}
	if scores, ok := m["tokenizer.ggml.scores"].([]any); ok {
		a.Scores = make([]float32, 0, len(scores))
		for _, s := range scores {
			if f, ok := s.(float32); ok {
				a.Scores = append(a.Scores, f)
			}
		}
	}
	if types, ok := m["tokenizer.ggml.token_type"].([]any); ok {
		a.Types = make([]int32, 0, len(types))
		for _, t := range types {
			if i, ok := t.(int32); ok {
				a.Types = append(a.Types, i)
			}
		}
	}

	return a, nil
}
