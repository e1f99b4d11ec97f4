package sim

import (
	"context"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// BatchResult aggregates the trajectories of N independent runs. Trajectories
// shorter than the longest run are extended by carrying their final
// cumulative NPV forward, so every elementwise reduction sees aligned steps.
type BatchResult struct {
	Timesteps []float64
	NPVs      [][]float64

	paybacks []float64
}

// RunMany executes runs independent simulations over the same read-only
// inputs, each with its own deterministic random stream derived from seed.
// The first failing run cancels the batch; there is no partial aggregation.
func RunMany(ctx context.Context, in Inputs, runs int, seed int64) (*BatchResult, error) {
	if runs < 1 {
		runs = 1
	}
	results := make([]*Result, runs)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i := 0; i < runs; i++ {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := New(in, rand.New(rand.NewSource(seed+int64(i))))
			if err != nil {
				return err
			}
			res, err := s.Run()
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return aggregate(results), nil
}

// aggregate aligns the trajectories on the longest run and keeps each run's
// own payback time for the batch mean.
func aggregate(results []*Result) *BatchResult {
	longest := results[0]
	for _, r := range results[1:] {
		if len(r.Timesteps) > len(longest.Timesteps) {
			longest = r
		}
	}

	n := len(longest.Timesteps)
	b := &BatchResult{Timesteps: longest.Timesteps}
	for _, r := range results {
		padded := make([]float64, n)
		for i := 0; i < n; i++ {
			switch {
			case i < len(r.NPVs):
				padded[i] = r.NPVs[i]
			case len(r.NPVs) > 0:
				padded[i] = r.NPVs[len(r.NPVs)-1]
			}
		}
		b.NPVs = append(b.NPVs, padded)
		if t, ok := r.PaybackTime(); ok {
			b.paybacks = append(b.paybacks, t)
		}
	}
	return b
}

// MeanNPV is the elementwise mean of the aligned NPV trajectories.
func (b *BatchResult) MeanNPV() []float64 {
	if len(b.NPVs) == 0 {
		return nil
	}
	mean := make([]float64, len(b.Timesteps))
	for _, run := range b.NPVs {
		for i, v := range run {
			mean[i] += v
		}
	}
	for i := range mean {
		mean[i] /= float64(len(b.NPVs))
	}
	return mean
}

// MaxNPVs is the elementwise maximum across the aligned trajectories.
func (b *BatchResult) MaxNPVs() []float64 {
	if len(b.NPVs) == 0 {
		return nil
	}
	max := make([]float64, len(b.Timesteps))
	copy(max, b.NPVs[0])
	for _, run := range b.NPVs[1:] {
		for i, v := range run {
			if v > max[i] {
				max[i] = v
			}
		}
	}
	return max
}

// NormalizedNPV scales the mean trajectory by its largest absolute value,
// producing a [-1, 1] baseline comparable across designs.
func (b *BatchResult) NormalizedNPV() []float64 {
	mean := b.MeanNPV()
	scale := 0.0
	for _, v := range mean {
		if a := math.Abs(v); a > scale {
			scale = a
		}
	}
	if scale == 0 {
		return mean
	}
	normalized := make([]float64, len(mean))
	for i, v := range mean {
		normalized[i] = v / scale
	}
	return normalized
}

// MeanPaybackTime averages the zero-crossing timestep of the runs that broke
// even. ok is false when no run ever did.
func (b *BatchResult) MeanPaybackTime() (float64, bool) {
	if len(b.paybacks) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, t := range b.paybacks {
		sum += t
	}
	return sum / float64(len(b.paybacks)), true
}

// FinalTime is the simulated time of the last aligned timestep.
func (b *BatchResult) FinalTime() float64 {
	if len(b.Timesteps) == 0 {
		return 0
	}
	return b.Timesteps[len(b.Timesteps)-1]
}
