package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"cvsim/pkg/core/dsm"
	"cvsim/pkg/core/process"
)

// Repository provides the persisted inputs a simulation consumes. The runner
// only reads through it; all fetched data is treated as an immutable snapshot
// for the duration of the request.
type Repository interface {
	ProcessRows(ctx context.Context, vcsID int) ([]process.Row, error)
	ValueDriverValues(ctx context.Context, vcsID, designID int) (map[int]map[int]float64, error)
	MarketInputValues(ctx context.Context, vcsID int) (map[int]map[int]float64, error)
}

// PairResult is the simulation outcome for one (vcs, design) pair, shaped for
// the response payload: the final simulated time, the reduced NPV trajectory
// and the per-run trajectories behind it.
type PairResult struct {
	JobID           uuid.UUID   `json:"job_id"`
	VcsID           int         `json:"vcs_id"`
	DesignID        int         `json:"design_id"`
	Time            float64     `json:"time"`
	Timesteps       []float64   `json:"timesteps"`
	MeanNPV         []float64   `json:"mean_npv"`
	MaxNPVs         []float64   `json:"max_npvs"`
	MeanPaybackTime *float64    `json:"mean_payback_time"`
	NPVs            [][]float64 `json:"all_npvs"`
}

// Runner wires the repository, the process graph builder and the simulator
// into the per-request orchestration.
type Runner struct {
	repo Repository
	log  zerolog.Logger
	seed func() int64
}

// NewRunner builds a Runner. Monte Carlo seeds default to the wall clock.
func NewRunner(repo Repository, log zerolog.Logger) *Runner {
	return &Runner{
		repo: repo,
		log:  log,
		seed: func() int64 { return time.Now().UnixNano() },
	}
}

// Run simulates every (vcs, design) pair with the given settings. ext, when
// non-nil, is an externally supplied DSM that replaces the default sequential
// chain. With settings.MonteCarlo set, each pair runs settings.Runs times and
// normalized selects the normalized rather than the mean NPV trajectory.
func (r *Runner) Run(ctx context.Context, set Settings, vcsIDs, designIDs []int, ext *dsm.Matrix, normalized bool) ([]PairResult, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}
	if len(designIDs) == 0 {
		return nil, ErrNoDesigns
	}

	var results []PairResult
	for _, vcsID := range vcsIDs {
		rows, err := r.repo.ProcessRows(ctx, vcsID)
		if err != nil {
			return nil, fmt.Errorf("fetch process rows for vcs %d: %w", vcsID, err)
		}
		if err := process.CheckEntityRate(rows, set.FlowProcess); err != nil {
			return nil, err
		}
		miValues, err := r.repo.MarketInputValues(ctx, vcsID)
		if err != nil {
			return nil, fmt.Errorf("fetch market values for vcs %d: %w", vcsID, err)
		}

		for _, designID := range designIDs {
			vdValues, err := r.repo.ValueDriverValues(ctx, vcsID, designID)
			if err != nil {
				return nil, fmt.Errorf("fetch value driver values for design %d: %w", designID, err)
			}

			pair, err := r.runPair(ctx, set, rows, process.BindingSet{
				ValueDrivers: vdValues,
				MarketInputs: miValues,
			}, ext, normalized)
			if err != nil {
				return nil, err
			}
			pair.VcsID = vcsID
			pair.DesignID = designID
			results = append(results, *pair)

			r.log.Debug().
				Int("vcs_id", vcsID).
				Int("design_id", designID).
				Float64("time", pair.Time).
				Msg("simulation pair completed")
		}
	}
	return results, nil
}

func (r *Runner) runPair(ctx context.Context, set Settings, rows []process.Row, bindings process.BindingSet, ext *dsm.Matrix, normalized bool) (*PairResult, error) {
	technical, nonTech, err := process.Build(rows, set.NonTechAdd, bindings)
	if err != nil {
		return nil, err
	}

	matrix := ext
	if matrix == nil {
		names := make([]string, len(technical))
		for i, p := range technical {
			names[i] = p.Name
		}
		matrix = dsm.BuildSimple(names)
	}

	runs := 1
	if set.MonteCarlo {
		runs = set.Runs
	}
	batch, err := RunMany(ctx, Inputs{
		Processes: technical,
		NonTech:   nonTech,
		Matrix:    matrix,
		Settings:  set,
	}, runs, r.seed())
	if err != nil {
		return nil, err
	}

	mean := batch.MeanNPV()
	if normalized {
		mean = batch.NormalizedNPV()
	}
	pair := &PairResult{
		JobID:     uuid.New(),
		Time:      batch.FinalTime(),
		Timesteps: batch.Timesteps,
		MeanNPV:   mean,
		MaxNPVs:   batch.MaxNPVs(),
		NPVs:      batch.NPVs,
	}
	if t, ok := batch.MeanPaybackTime(); ok {
		pair.MeanPaybackTime = &t
	}
	return pair, nil
}
