package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"cvsim/pkg/core/sim"
)

// ErrSettingsNotFound marks a project that has no simulation settings row yet.
var ErrSettingsNotFound = errors.New("simulation settings not found")

// SettingsRepo handles the per-project simulation settings record.
type SettingsRepo struct{}

// NewSettingsRepo creates a new repository instance.
func NewSettingsRepo() *SettingsRepo {
	return &SettingsRepo{}
}

// Get loads the settings of a project.
func (r *SettingsRepo) Get(ctx context.Context, projectID int) (sim.Settings, error) {
	pool := GetPool()
	if pool == nil {
		return sim.Settings{}, fmt.Errorf("database pool not initialized")
	}

	query := `
		SELECT time_unit, COALESCE(flow_process, ''), flow_start_time,
		       flow_time, interarrival_time, start_time, end_time,
		       discount_rate, non_tech_add, monte_carlo, runs
		FROM cvs_simulation_settings
		WHERE project = $1;
	`

	var set sim.Settings
	err := pool.QueryRow(ctx, query, projectID).Scan(
		&set.TimeUnit, &set.FlowProcess, &set.FlowStartTime,
		&set.FlowTime, &set.Interarrival, &set.StartTime, &set.EndTime,
		&set.DiscountRate, &set.NonTechAdd, &set.MonteCarlo, &set.Runs,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return sim.Settings{}, ErrSettingsNotFound
		}
		return sim.Settings{}, fmt.Errorf("failed to load simulation settings: %w", err)
	}
	return set, nil
}

// Save validates and upserts the settings of a project.
func (r *SettingsRepo) Save(ctx context.Context, projectID int, set sim.Settings) error {
	pool := GetPool()
	if pool == nil {
		return fmt.Errorf("database pool not initialized")
	}
	if err := set.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO cvs_simulation_settings
			(project, time_unit, flow_process, flow_start_time, flow_time,
			 interarrival_time, start_time, end_time, discount_rate,
			 non_tech_add, monte_carlo, runs)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (project)
		DO UPDATE SET
			time_unit = EXCLUDED.time_unit,
			flow_process = EXCLUDED.flow_process,
			flow_start_time = EXCLUDED.flow_start_time,
			flow_time = EXCLUDED.flow_time,
			interarrival_time = EXCLUDED.interarrival_time,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			discount_rate = EXCLUDED.discount_rate,
			non_tech_add = EXCLUDED.non_tech_add,
			monte_carlo = EXCLUDED.monte_carlo,
			runs = EXCLUDED.runs;
	`

	_, err := pool.Exec(ctx, query, projectID,
		set.TimeUnit, set.FlowProcess, set.FlowStartTime, set.FlowTime,
		set.Interarrival, set.StartTime, set.EndTime, set.DiscountRate,
		set.NonTechAdd, set.MonteCarlo, set.Runs,
	)
	if err != nil {
		return fmt.Errorf("failed to save simulation settings: %w", err)
	}
	return nil
}
