package transformer

import (
	"sort"

	"github.com/embodios/kernel/internal/fixedpoint"
)

// lowTemperature is the threshold below which Sample treats temperature as
// "very low" and returns argmax directly sampling rule.
var lowTemperature = fixedpoint.FromFloat(0.1)

// Sample implements the sample(logits, vocab, temperature, top_p):
// temperature 0 or below lowTemperature returns argmax; otherwise it
// computes softmax after dividing by temperature, sorts indices by
// probability descending, takes the smallest prefix whose cumulative
// probability is >= topP, and greedily picks the head of that prefix.
func Sample(logits []fixedpoint.Fixed, temperature, topP fixedpoint.Fixed) int {
	if temperature <= 0 || temperature < lowTemperature {
		return argmax(logits)
	}

	scaled := make([]fixedpoint.Fixed, len(logits))
	for i, l := range logits {
		scaled[i] = fixedpoint.Div(l, temperature)
	}
	probs := make([]fixedpoint.Fixed, len(scaled))
	fixedpoint.Softmax(scaled, probs)

	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return probs[idx[a]] > probs[idx[b]] })

	var cum fixedpoint.Fixed
	for i, id := range idx {
		cum = fixedpoint.Add(cum, probs[id])
		if cum >= topP || i == len(idx)-1 {
			break
		}
	}
	return idx[0]
}

func argmax(logits []fixedpoint.Fixed) int {
	best := 0
	for i, l := range logits {
		if l > logits[best] {
			best = i
		}
	}
	return best
}
