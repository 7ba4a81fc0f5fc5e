// Package ood computes out-of-distribution anomaly scores from prototype
// logits.
//
// All scores follow one sign convention: higher means more anomalous.
// Confidence-style statistics (max softmax probability, max logit, energy)
// are therefore negated before they leave this package.
//
// Two score-set variants exist, differing only in which entropy refinement
// they carry: truncated Shannon entropy or the generalized entropy score.
// They are one implementation parameterized by Policy, never two copies.
package ood

import (
	"fmt"

	"github.com/sensemble-ml/sensemble/internal/nn"
	"github.com/sensemble-ml/sensemble/internal/tensor"
)

// Variant selects the entropy refinement included in the score set.
type Variant int

const (
	// TruncatedEntropy computes Shannon entropy over the top-K probabilities.
	TruncatedEntropy Variant = iota

	// GeneralizedEntropy computes the generalized entropy score over the
	// top-K probabilities.
	GeneralizedEntropy
)

func (v Variant) String() string {
	switch v {
	case TruncatedEntropy:
		return "truncated_entropy"
	case GeneralizedEntropy:
		return "generalized_entropy"
	default:
		return "unknown"
	}
}

// Policy parameterizes the score set.
type Policy struct {
	Variant Variant
	TopK    int     // truncation width for both variants
	Gamma   float64 // generalized-entropy exponent
}

// DefaultPolicy returns the standard hyperparameters for a variant.
func DefaultPolicy(v Variant) Policy {
	return Policy{Variant: v, TopK: 100, Gamma: 0.1}
}

// variantEntropy computes the policy's refined entropy score per row.
func (p Policy) variantEntropy(probas *tensor.Tensor) *tensor.Tensor {
	switch p.Variant {
	case TruncatedEntropy:
		return nn.TruncatedEntropy(probas, p.TopK)
	case GeneralizedEntropy:
		return nn.GeneralizedEntropy(probas, p.Gamma, p.TopK)
	default:
		panic(fmt.Sprintf("ood: unknown variant %d", p.Variant))
	}
}

// variantName is the score-key fragment for the policy's entropy refinement.
func (p Policy) variantName() string { return p.Variant.String() }

// Score kinds shared by both variants.
const (
	KindMSP             = "msp"
	KindMaxLogit        = "maxlogit"
	KindEnergy          = "energy"
	KindEntropy         = "entropy"
	KindMeanMSP         = "mean_msp"
	KindMeanEntropy     = "mean_entropy"
	KindExpectedEntropy = "expected_entropy"
	KindBALD            = "bald_score"

	// OnViewsSuffix marks ensemble scores computed over augmented views
	// instead of Monte Carlo dropout resamples.
	OnViewsSuffix = "_on_views"
)

// ScoreSet maps a score kind to per-sample scores, one scalar per row of the
// scored batch. Created fresh per validation step and consumed immediately.
type ScoreSet map[string]*tensor.Tensor

// WithSuffix returns a copy of the set with every key suffixed, used to tag
// the augmented-view ensemble scores.
func (s ScoreSet) WithSuffix(suffix string) ScoreSet {
	out := make(ScoreSet, len(s))
	for k, v := range s {
		out[k+suffix] = v
	}
	return out
}

// Kinds returns the ordered score-kind names a policy produces, single-pass
// and ensemble, including the on-views counterparts. Used to register one
// metric accumulator per kind.
func Kinds(p Policy) []string {
	ensemble := []string{
		KindMeanMSP, KindMeanEntropy, "mean_" + p.variantName(),
		KindExpectedEntropy, KindBALD,
	}
	kinds := []string{KindMSP, KindMaxLogit, KindEnergy, KindEntropy, p.variantName()}
	kinds = append(kinds, ensemble...)
	for _, k := range ensemble {
		kinds = append(kinds, k+OnViewsSuffix)
	}
	return kinds
}

// SinglePass computes the deterministic one-forward-pass scores from a
// [batch, prototypes] logit matrix.
func SinglePass(logits *tensor.Tensor, p Policy) ScoreSet {
	probas := logits.Softmax()
	return ScoreSet{
		KindMSP:         probas.MaxRows().Scale(-1),
		KindMaxLogit:    logits.MaxRows().Scale(-1),
		KindEnergy:      logits.LogSumExp().Scale(-1),
		KindEntropy:     nn.Entropy(probas),
		p.variantName(): p.variantEntropy(probas),
	}
}

// Ensemble computes the ensemble scores from K probability matrices of
// identical [batch, prototypes] shape: K Monte Carlo dropout passes over
// one image, or K passes over independently augmented views.
//
// bald_score is the entropy of the mean distribution minus the mean of the
// per-pass entropies. By Jensen's inequality it is non-negative up to float
// error.
func Ensemble(probas []*tensor.Tensor, p Policy) ScoreSet {
	if len(probas) == 0 {
		panic("ood: Ensemble requires at least one pass")
	}
	mean := probas[0].Clone()
	for _, pass := range probas[1:] {
		if !pass.Shape().Equal(mean.Shape()) {
			panic(fmt.Sprintf("ood: ensemble pass shape mismatch %v vs %v",
				pass.Shape(), mean.Shape()))
		}
		mean = mean.Add(pass)
	}
	mean.ScaleInPlace(1 / float32(len(probas)))

	meanEntropy := nn.Entropy(mean)

	expected := tensor.New(meanEntropy.Shape())
	for _, pass := range probas {
		expected = expected.Add(nn.Entropy(pass))
	}
	expected.ScaleInPlace(1 / float32(len(probas)))

	return ScoreSet{
		KindMeanMSP:             mean.MaxRows().Scale(-1),
		KindMeanEntropy:         meanEntropy,
		"mean_" + p.variantName(): p.variantEntropy(mean),
		KindExpectedEntropy:     expected,
		KindBALD:                meanEntropy.Sub(expected),
	}
}

// Float64s converts a 1D score tensor into the float64 slice the metric
// accumulators consume.
func Float64s(t *tensor.Tensor) []float64 {
	out := make([]float64, t.NumElements())
	for i, v := range t.Data() {
		out[i] = float64(v)
	}
	return out
}

// IsOOD derives the binary out-of-distribution labels from integer class
// labels, where the sentinel value -1 marks an OOD sample.
func IsOOD(labels []int) []bool {
	out := make([]bool, len(labels))
	for i, l := range labels {
		out[i] = l == -1
	}
	return out
}

