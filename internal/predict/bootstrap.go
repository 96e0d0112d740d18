package predict

import (
	"context"
	"fmt"
	"math/rand"

	"codesmith/internal/logging"
)

// Metric decides whether a demonstrator prediction is good enough to become a demo.
type Metric func(example Example, pred Prediction) bool

// BootstrapFewShot compiles a predictor by running a demonstrator copy over the
// trainset and keeping successful traces as demos.
type BootstrapFewShot struct {
	// Metric filters traces; nil accepts every successful run.
	Metric Metric
	// MaxBootstrappedDemos caps traced demos.
	MaxBootstrappedDemos int
	// MaxLabeledDemos caps total demos; raw examples fill the remainder.
	MaxLabeledDemos int
	// MaxErrors aborts compilation after this many failed demonstrator runs.
	MaxErrors int
	// Seed drives demo sampling.
	Seed int64
}

// DefaultBootstrapFewShot returns the stock limits.
func DefaultBootstrapFewShot() BootstrapFewShot {
	return BootstrapFewShot{
		MaxBootstrappedDemos: 4,
		MaxLabeledDemos:      16,
		MaxErrors:            10,
	}
}

// Compile returns a new predictor with demos; student itself is not modified.
func (b BootstrapFewShot) Compile(ctx context.Context, student *Predictor, trainset []Example) (*Predictor, error) {
	timer := logging.StartTimer(logging.CategoryPredict, "bootstrap "+student.Name())
	defer timer.Stop()

	rng := rand.New(rand.NewSource(b.Seed))

	demonstrator := student.Clone()
	demonstrator.SetDemos(sample(rng, trainset, b.MaxLabeledDemos))
	labeled := demonstrator.Demos()

	var bootstrapped []Example
	used := make(map[int]bool)
	errCount := 0

	for i, example := range trainset {
		if len(bootstrapped) >= b.MaxBootstrappedDemos {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// The example must not see itself among the demonstrator's demos.
		demonstrator.SetDemos(without(labeled, example))
		pred, err := demonstrator.Forward(ctx, example.Inputs())
		demonstrator.SetDemos(labeled)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			errCount++
			logging.PredictWarn("%s: bootstrap example %d failed: %v", student.Name(), i, err)
			if b.MaxErrors > 0 && errCount >= b.MaxErrors {
				return nil, fmt.Errorf("%s: bootstrap aborted after %d errors: %w", student.Name(), errCount, err)
			}
			continue
		}

		if b.Metric != nil && !b.Metric(example, pred) {
			logging.PredictDebug("%s: bootstrap example %d rejected by metric", student.Name(), i)
			continue
		}

		bootstrapped = append(bootstrapped, traceDemo(student.Signature(), example, pred))
		used[i] = true
	}

	var remaining []Example
	for i, example := range trainset {
		if !used[i] {
			remaining = append(remaining, example)
		}
	}
	fill := b.MaxLabeledDemos - len(bootstrapped)
	demos := append(bootstrapped, sample(rng, remaining, fill)...)

	compiled := student.Clone()
	compiled.SetDemos(demos)
	logging.Predict("%s: compiled with %d bootstrapped + %d labeled demos",
		student.Name(), len(bootstrapped), len(demos)-len(bootstrapped))
	return compiled, nil
}

// traceDemo builds a demo from the example's inputs and the demonstrator's outputs.
func traceDemo(sig Signature, example Example, pred Prediction) Example {
	fields := example.Inputs()
	for _, f := range sig.Outputs {
		if v, ok := pred[f.Name]; ok {
			fields[f.Name] = v
		}
	}
	return NewExample(fields).WithInputs(sig.InputNames()...)
}

func without(demos []Example, example Example) []Example {
	out := make([]Example, 0, len(demos))
	for _, d := range demos {
		if !d.Equal(example) {
			out = append(out, d)
		}
	}
	return out
}

// sample picks up to k examples without replacement.
func sample(rng *rand.Rand, examples []Example, k int) []Example {
	if k <= 0 || len(examples) == 0 {
		return nil
	}
	if k > len(examples) {
		k = len(examples)
	}
	out := make([]Example, 0, k)
	for _, idx := range rng.Perm(len(examples))[:k] {
		out = append(out, examples[idx])
	}
	return out
}
