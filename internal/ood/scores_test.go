package ood_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensemble-ml/sensemble/internal/ood"
	"github.com/sensemble-ml/sensemble/internal/tensor"
)

func TestSinglePassSignConventions(t *testing.T) {
	// Row 0 is maximally confident, row 1 maximally uncertain.
	logits := tensor.MustFromSlice([]float32{10, -10, 0, 0}, tensor.Shape{2, 2})
	scores := ood.SinglePass(logits, ood.DefaultPolicy(ood.TruncatedEntropy))

	// Confident sample: msp ≈ -1 (low anomaly), entropy ≈ 0.
	assert.InDelta(t, -1, scores[ood.KindMSP].At(0), 1e-6)
	assert.InDelta(t, 0, scores[ood.KindEntropy].At(0), 1e-6)
	assert.InDelta(t, -10, scores[ood.KindMaxLogit].At(0), 1e-6)

	// Uncertain sample: msp ≈ -0.5, entropy = log 2, energy = -log 2.
	assert.InDelta(t, -0.5, scores[ood.KindMSP].At(1), 1e-6)
	assert.InDelta(t, math.Log(2), float64(scores[ood.KindEntropy].At(1)), 1e-6)
	assert.InDelta(t, -math.Log(2), float64(scores[ood.KindEnergy].At(1)), 1e-6)

	// Every score ranks the uncertain sample as more anomalous.
	for kind, s := range scores {
		assert.Greater(t, s.At(1), s.At(0), "score %s must rank uncertainty higher", kind)
	}
}

func TestSinglePassVariantSelectsEntropyRefinement(t *testing.T) {
	logits := tensor.Randn(tensor.Shape{3, 8}, rand.New(rand.NewSource(0)))

	trunc := ood.SinglePass(logits, ood.DefaultPolicy(ood.TruncatedEntropy))
	gen := ood.SinglePass(logits, ood.DefaultPolicy(ood.GeneralizedEntropy))

	require.Contains(t, trunc, "truncated_entropy")
	require.NotContains(t, trunc, "generalized_entropy")
	require.Contains(t, gen, "generalized_entropy")
	require.NotContains(t, gen, "truncated_entropy")
}

func TestEnsembleBALDNonNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	policy := ood.DefaultPolicy(ood.TruncatedEntropy)

	var passes []*tensor.Tensor
	for k := 0; k < 7; k++ {
		passes = append(passes, tensor.Randn(tensor.Shape{16, 32}, rng).Softmax())
	}

	scores := ood.Ensemble(passes, policy)
	for _, v := range scores[ood.KindBALD].Data() {
		assert.GreaterOrEqual(t, float64(v), -1e-5, "BALD must satisfy the Jensen bound")
	}
}

func TestEnsembleOfIdenticalPassesHasZeroBALD(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	pass := tensor.Randn(tensor.Shape{4, 8}, rng).Softmax()

	scores := ood.Ensemble([]*tensor.Tensor{pass, pass.Clone(), pass.Clone()},
		ood.DefaultPolicy(ood.GeneralizedEntropy))

	for _, v := range scores[ood.KindBALD].Data() {
		assert.InDelta(t, 0, float64(v), 1e-6, "no disagreement means no epistemic uncertainty")
	}
	// mean == each pass, so mean_entropy equals expected_entropy.
	assert.InDelta(t,
		float64(scores[ood.KindMeanEntropy].At(0)),
		float64(scores[ood.KindExpectedEntropy].At(0)), 1e-6)
}

func TestEnsembleDisagreementRaisesBALD(t *testing.T) {
	// Two confident but contradictory passes: high total entropy, low
	// per-pass entropy, so BALD is large.
	a := tensor.MustFromSlice([]float32{0.99, 0.01}, tensor.Shape{1, 2})
	b := tensor.MustFromSlice([]float32{0.01, 0.99}, tensor.Shape{1, 2})

	scores := ood.Ensemble([]*tensor.Tensor{a, b}, ood.DefaultPolicy(ood.TruncatedEntropy))

	bald := float64(scores[ood.KindBALD].At(0))
	assert.Greater(t, bald, 0.5)
	assert.InDelta(t, math.Log(2), float64(scores[ood.KindMeanEntropy].At(0)), 1e-3)
}

func TestWithSuffix(t *testing.T) {
	s := ood.ScoreSet{"mean_msp": tensor.Ones(tensor.Shape{1})}
	v := s.WithSuffix(ood.OnViewsSuffix)

	require.Contains(t, v, "mean_msp_on_views")
	require.NotContains(t, v, "mean_msp")
}

func TestKindsCoverBothPhases(t *testing.T) {
	kinds := ood.Kinds(ood.DefaultPolicy(ood.TruncatedEntropy))

	assert.Len(t, kinds, 15)
	assert.Contains(t, kinds, "msp")
	assert.Contains(t, kinds, "truncated_entropy")
	assert.Contains(t, kinds, "bald_score")
	assert.Contains(t, kinds, "bald_score_on_views")
	assert.Contains(t, kinds, "mean_truncated_entropy_on_views")
	assert.NotContains(t, kinds, "msp_on_views", "single-pass scores have no view ensemble")
}

func TestIsOOD(t *testing.T) {
	assert.Equal(t, []bool{false, true, false}, ood.IsOOD([]int{3, -1, 0}))
}
