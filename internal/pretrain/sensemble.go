// Package pretrain implements Sensemble: prototype-based self-supervised
// pretraining with a teacher/student consistency objective, Sinkhorn-Knopp
// target balancing, max-entropy regularization over the gathered prediction
// distribution, and ensemble-uncertainty OOD evaluation during validation.
package pretrain

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/sensemble-ml/sensemble/internal/autodiff"
	"github.com/sensemble-ml/sensemble/internal/data"
	"github.com/sensemble-ml/sensemble/internal/dist"
	"github.com/sensemble-ml/sensemble/internal/encoder"
	"github.com/sensemble-ml/sensemble/internal/metrics"
	"github.com/sensemble-ml/sensemble/internal/nn"
	"github.com/sensemble-ml/sensemble/internal/ood"
	"github.com/sensemble-ml/sensemble/internal/optim"
	"github.com/sensemble-ml/sensemble/internal/sinkhorn"
	"github.com/sensemble-ml/sensemble/internal/tensor"
	"github.com/sensemble-ml/sensemble/internal/tracking"
)

// Config holds every Sensemble hyperparameter. Zero values fall back to the
// defaults set by ApplyDefaults.
type Config struct {
	Architecture encoder.Architecture
	InputDim     int

	// Stochastic regularization rates.
	DropoutRate     float32 // projection-head dropout
	DropChannelRate float32
	DropBlockRate   float32
	DropPathRate    float32

	// Prototype bank and objective.
	PrototypeDim      int
	NumPrototypes     int
	Temp              float32
	SharpenTemp       float32
	NumSinkhornIters  int // -1 disables balancing entirely
	SinkhornQueueSize int // global size, divided across workers at fit start
	MemaxWeight       float32

	// Optimization.
	LR           float32
	WeightDecay  float32
	WarmupEpochs int
	MaxEpochs    int // must be finite and positive

	// OOD score set.
	ScoreVariant     ood.Variant
	ConditionalMeans bool // also track per-score means split by ID/OOD

	Seed int64
}

// ApplyDefaults fills unset fields with the standard hyperparameters.
func (c *Config) ApplyDefaults() {
	if c.Architecture == "" {
		c.Architecture = encoder.MLPSmall
	}
	if c.DropoutRate == 0 {
		c.DropoutRate = 0.5
	}
	if c.DropChannelRate == 0 {
		c.DropChannelRate = 0.5
	}
	if c.DropPathRate == 0 {
		c.DropPathRate = 0.1
	}
	if c.PrototypeDim == 0 {
		c.PrototypeDim = 128
	}
	if c.NumPrototypes == 0 {
		c.NumPrototypes = 2048
	}
	if c.Temp == 0 {
		c.Temp = 0.1
	}
	if c.SharpenTemp == 0 {
		c.SharpenTemp = 0.25
	}
	if c.NumSinkhornIters == 0 {
		c.NumSinkhornIters = sinkhorn.DefaultIters
	}
	if c.SinkhornQueueSize == 0 {
		c.SinkhornQueueSize = 3072
	}
	if c.MemaxWeight == 0 {
		c.MemaxWeight = 1.0
	}
	if c.LR == 0 {
		c.LR = 1e-2
	}
	if c.WeightDecay == 0 {
		c.WeightDecay = 1e-6
	}
	if c.WarmupEpochs == 0 {
		c.WarmupEpochs = 10
	}
}

// Validate reports configuration errors that must stop the run before
// training starts.
func (c Config) Validate() error {
	if c.InputDim < 1 {
		return fmt.Errorf("pretrain: input dim must be positive, got %d", c.InputDim)
	}
	if c.MaxEpochs <= 0 {
		return fmt.Errorf("pretrain: max epochs must be finite and positive, got %d", c.MaxEpochs)
	}
	if c.Temp <= 0 || c.SharpenTemp <= 0 {
		return fmt.Errorf("pretrain: temperatures must be positive")
	}
	if c.NumSinkhornIters < -1 {
		return fmt.Errorf("pretrain: sinkhorn iteration count must be >= 0, or -1 to disable")
	}
	return nil
}

// Sensemble is the training module. It implements the train.Step lifecycle:
// OnFitStart, TrainingStep, ValidationStep, OnValidationEpochEnd,
// ConfigureOptimizers.
type Sensemble struct {
	cfg        Config
	collective dist.Collective
	sink       tracking.Sink
	rng        *rand.Rand

	enc        encoder.Encoder
	mlp        *nn.MLP
	prototypes *nn.Parameter

	balancer *sinkhorn.Balancer
	queue    *sinkhorn.Queue

	opt      *optim.AdamW
	schedule *optim.LinearWarmupCosine

	policy     ood.Policy
	valAUROC   map[string]*metrics.AUROC
	valIDMean  map[string]*metrics.Mean
	valOODMean map[string]*metrics.Mean

	globalStep int
}

// New constructs a Sensemble module. Unknown architecture selectors and an
// unbounded epoch horizon are configuration errors.
func New(cfg Config, collective dist.Collective, sink tracking.Sink) (*Sensemble, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	enc, embedDim, err := encoder.New(cfg.Architecture, cfg.InputDim, encoder.Rates{
		DropChannel: cfg.DropChannelRate,
		DropBlock:   cfg.DropBlockRate,
		DropPath:    cfg.DropPathRate,
	}, rng)
	if err != nil {
		return nil, err
	}

	limit := float32(math.Sqrt(1 / float64(cfg.PrototypeDim)))
	s := &Sensemble{
		cfg:        cfg,
		collective: collective,
		sink:       sink,
		rng:        rng,
		enc:        enc,
		mlp:        nn.NewMLP(embedDim, embedDim, cfg.PrototypeDim, 2, cfg.DropoutRate, rng),
		prototypes: nn.NewParameter("prototypes",
			tensor.Uniform(tensor.Shape{cfg.NumPrototypes, cfg.PrototypeDim}, -limit, limit, rng)),
		balancer: sinkhorn.NewBalancer(cfg.NumSinkhornIters, collective),
		policy:   ood.DefaultPolicy(cfg.ScoreVariant),
	}

	s.valAUROC = make(map[string]*metrics.AUROC)
	s.valIDMean = make(map[string]*metrics.Mean)
	s.valOODMean = make(map[string]*metrics.Mean)
	for _, kind := range ood.Kinds(s.policy) {
		s.valAUROC[kind] = metrics.NewAUROC()
		if cfg.ConditionalMeans {
			s.valIDMean[kind] = metrics.NewMean()
			s.valOODMean[kind] = metrics.NewMean()
		}
	}
	return s, nil
}

// Parameters returns all trainable parameters: encoder, projection head,
// and the prototype bank.
func (s *Sensemble) Parameters() []*nn.Parameter {
	params := append(s.enc.Parameters(), s.mlp.Parameters()...)
	return append(params, s.prototypes)
}

// Prototypes exposes the prototype bank parameter.
func (s *Sensemble) Prototypes() *nn.Parameter { return s.prototypes }

// GlobalStep returns the number of completed training steps.
func (s *Sensemble) GlobalStep() int { return s.globalStep }

// OnFitStart sizes the per-worker Sinkhorn queue from the world size.
func (s *Sensemble) OnFitStart() error {
	if s.cfg.NumSinkhornIters > 0 {
		capacity := s.cfg.SinkhornQueueSize / s.collective.WorldSize()
		if capacity < 1 {
			return fmt.Errorf("pretrain: queue size %d too small for world size %d",
				s.cfg.SinkhornQueueSize, s.collective.WorldSize())
		}
		s.queue = sinkhorn.NewQueue(capacity, s.cfg.NumPrototypes)
	}
	return nil
}

// ConfigureOptimizers builds the AdamW optimizer over all parameters and the
// warmup-cosine schedule over the configured horizon.
func (s *Sensemble) ConfigureOptimizers() (optim.Optimizer, *optim.LinearWarmupCosine, error) {
	schedule, err := optim.NewLinearWarmupCosine(s.cfg.WarmupEpochs, s.cfg.MaxEpochs, s.cfg.LR)
	if err != nil {
		return nil, nil, err
	}
	s.opt = optim.NewAdamW(s.Parameters(), optim.AdamWConfig{
		LR:          s.cfg.LR,
		WeightDecay: s.cfg.WeightDecay,
	})
	s.schedule = schedule
	return s.opt, schedule, nil
}

// ToLogits maps an image batch to scaled cosine-similarity logits against
// the normalized prototype bank. Gradient recording follows the tape:
// non-nil for the student path, nil for teacher and scoring paths.
func (s *Sensemble) ToLogits(tape *autodiff.Tape, images *tensor.Tensor, mode nn.Mode) *tensor.Tensor {
	embeds := autodiff.NormalizeRows(tape, s.mlp.Forward(tape, s.enc.Forward(tape, images, mode), mode))
	protos := autodiff.NormalizeRows(tape, s.prototypes.Tensor())
	return autodiff.Scale(tape, autodiff.MatMulT(tape, embeds, protos), 1/s.cfg.Temp)
}

// TrainingStep runs one optimization step on a batch: student logits with
// gradients, sharpened teacher targets without, optional Sinkhorn balancing
// through the queue, bootstrap cross entropy plus weighted memax, backward,
// optimizer update, and scalar logging.
func (s *Sensemble) TrainingStep(batch *data.TrainBatch) error {
	tape := autodiff.NewTape()

	logits := s.ToLogits(tape, batch.StudentViews, nn.Train)

	// Teacher pass: same stochastic mode, no gradients, sharpened.
	targets := s.ToLogits(nil, batch.TeacherViews, nn.Train).
		Scale(1 / s.cfg.SharpenTemp).Softmax()

	if s.cfg.NumSinkhornIters > 0 {
		if s.queue == nil {
			return fmt.Errorf("pretrain: training step before OnFitStart")
		}
		batchSize := targets.Rows()
		if s.queue.Capacity() < batchSize {
			// Balancing needs the queue to hold at least one full batch.
			return fmt.Errorf("pretrain: queue capacity %d smaller than batch size %d",
				s.queue.Capacity(), batchSize)
		}
		s.queue.PushBatch(targets)
		if s.queue.IsWarm(s.globalStep, batchSize) {
			// Balance the whole queue, train on the newest rows only.
			targets = s.balancer.Balance(s.queue.Rows()).RowRange(0, batchSize)
		} else {
			targets = s.balancer.Balance(targets)
		}
	}

	bootstrapLoss := autodiff.SoftCrossEntropy(tape, logits, targets)

	probas := autodiff.Softmax(tape, logits)
	gathered := s.collective.AllGather(probas)
	memax := autodiff.Memax(tape, probas, gathered.SumCols(), gathered.Rows())

	loss := autodiff.AddScaled(tape, bootstrapLoss, memax, s.cfg.MemaxWeight)

	grads := tape.Backward(loss)
	s.opt.Step(grads)

	s.sink.LogScalar("train/bootstrap_loss", float64(bootstrapLoss.At(0)), s.globalStep)
	s.sink.LogScalar("train/memax_reg", float64(memax.At(0)), s.globalStep)
	s.sink.LogScalar("train/loss", float64(loss.At(0)), s.globalStep)
	s.sink.LogScalar("train/entropy", float64(nn.Entropy(gathered).Mean()), s.globalStep)
	s.sink.LogScalar("memax_weight", float64(s.cfg.MemaxWeight), s.globalStep)

	s.globalStep++
	return nil
}

// ValidationStep scores a batch for OOD detection and feeds the metric
// accumulators. Three scoring passes: deterministic single-pass scores on
// the canonical images, a Monte Carlo dropout ensemble over the same
// images, and a deterministic ensemble over the augmented views.
func (s *Sensemble) ValidationStep(batch *data.ValBatch) error {
	oodLabels := ood.IsOOD(batch.Labels)

	scores := ood.SinglePass(s.ToLogits(nil, batch.Images, nn.Eval), s.policy)

	k := len(batch.Views)
	if k == 0 {
		return fmt.Errorf("pretrain: validation batch carries no views for the ensemble scores")
	}

	mcPasses := make([]*tensor.Tensor, k)
	for i := 0; i < k; i++ {
		mcPasses[i] = s.ToLogits(nil, batch.Images, nn.EvalMCDropout).Softmax()
	}
	for kind, t := range ood.Ensemble(mcPasses, s.policy) {
		scores[kind] = t
	}

	viewPasses := make([]*tensor.Tensor, k)
	for i, view := range batch.Views {
		viewPasses[i] = s.ToLogits(nil, view, nn.Eval).Softmax()
	}
	for kind, t := range ood.Ensemble(viewPasses, s.policy).WithSuffix(ood.OnViewsSuffix) {
		scores[kind] = t
	}

	for kind, t := range scores {
		values := ood.Float64s(t)
		s.valAUROC[kind].Update(values, oodLabels)
		if s.cfg.ConditionalMeans {
			for i, v := range values {
				if oodLabels[i] {
					s.valOODMean[kind].UpdateOne(v)
				} else {
					s.valIDMean[kind].UpdateOne(v)
				}
			}
		}
	}
	return nil
}

// OnValidationEpochEnd computes every tracked metric, averages the values
// across workers with a single collective reduction, logs them under
// namespaced keys, and resets the accumulators so no state crosses epochs.
func (s *Sensemble) OnValidationEpochEnd() {
	names := make([]string, 0, len(s.valAUROC))
	computed := make(map[string]float64)
	for kind, m := range s.valAUROC {
		name := "val/ood_auroc_" + kind
		names = append(names, name)
		computed[name] = m.Compute()
		m.Reset()
	}
	if s.cfg.ConditionalMeans {
		for kind, m := range s.valIDMean {
			name := "val/avg_" + kind + "_for_id_data"
			names = append(names, name)
			computed[name] = m.Compute()
			m.Reset()
		}
		for kind, m := range s.valOODMean {
			name := "val/avg_" + kind + "_for_ood_data"
			names = append(names, name)
			computed[name] = m.Compute()
			m.Reset()
		}
	}

	// Deterministic ordering so every worker reduces the same vector.
	sort.Strings(names)
	values := make([]float64, len(names))
	for i, name := range names {
		values[i] = computed[name]
	}
	values = s.collective.AllReduceMean(values)
	for i, name := range names {
		s.sink.LogScalar(name, values[i], s.globalStep)
	}
}
