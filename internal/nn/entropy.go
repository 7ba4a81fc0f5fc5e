package nn

import (
	"math"
	"sort"

	"github.com/sensemble-ml/sensemble/internal/tensor"
)

// Entropy computes the per-row Shannon entropy of a [rows, bins] matrix of
// probability distributions, returning a [rows] tensor.
//
// Zero-probability bins contribute zero (the 0·log 0 = 0 convention), never
// NaN.
func Entropy(p *tensor.Tensor) *tensor.Tensor {
	rows := p.Rows()
	out := tensor.New(tensor.Shape{rows})
	for r := 0; r < rows; r++ {
		out.Data()[r] = entropyOf(p.Row(r))
	}
	return out
}

// TruncatedEntropy computes per-row Shannon entropy restricted to the topK
// largest probabilities of each row. With topK >= row width it equals
// Entropy.
func TruncatedEntropy(p *tensor.Tensor, topK int) *tensor.Tensor {
	rows := p.Rows()
	out := tensor.New(tensor.Shape{rows})
	for r := 0; r < rows; r++ {
		out.Data()[r] = entropyOf(topProbs(p.Row(r), topK))
	}
	return out
}

// GeneralizedEntropy computes the per-row generalized entropy score
//
//	G(p) = Σ over the topK largest probabilities of p_i^gamma (1 − p_i)^gamma
//
// with gamma in (0, 1). Like Shannon entropy it is maximal for uniform rows
// and zero for one-hot rows, but weights tail mass more aggressively.
func GeneralizedEntropy(p *tensor.Tensor, gamma float64, topK int) *tensor.Tensor {
	rows := p.Rows()
	out := tensor.New(tensor.Shape{rows})
	for r := 0; r < rows; r++ {
		var g float64
		for _, v := range topProbs(p.Row(r), topK) {
			if v > 0 && v < 1 {
				g += math.Pow(float64(v), gamma) * math.Pow(1-float64(v), gamma)
			}
		}
		out.Data()[r] = float32(g)
	}
	return out
}

func entropyOf(probs []float32) float32 {
	var h float64
	for _, v := range probs {
		if v > 0 {
			h -= float64(v) * math.Log(float64(v))
		}
	}
	return float32(h)
}

// topProbs returns the k largest values of row. The input is not modified.
func topProbs(row []float32, k int) []float32 {
	if k >= len(row) {
		return row
	}
	sorted := make([]float32, len(row))
	copy(sorted, row)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })
	return sorted[:k]
}
