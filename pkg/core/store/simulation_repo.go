package store

import (
	"context"
	"fmt"

	"cvsim/pkg/core/process"
)

// SimulationRepo fetches the per-vcs simulation inputs. It satisfies
// sim.Repository.
type SimulationRepo struct{}

// NewSimulationRepo creates a new repository instance.
func NewSimulationRepo() *SimulationRepo {
	return &SimulationRepo{}
}

// ProcessRows returns the value-chain rows of a vcs in row-index order, with
// their formula strings unevaluated. Subprocess rows resolve both their own
// name and the parent ISO process name.
func (r *SimulationRepo) ProcessRows(ctx context.Context, vcsID int) ([]process.Row, error) {
	pool := GetPool()
	if pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}

	query := `
		SELECT r.id, r.vcs, COALESCE(ip.name, ''), COALESCE(sp.name, ''),
		       r.category, COALESCE(r.time, '0'), COALESCE(r.cost, '0'),
		       COALESCE(r.revenue, '0'), r.time_unit, r.rate, r.row_index
		FROM cvs_vcs_rows r
		LEFT JOIN cvs_subprocesses sp ON r.subprocess = sp.id
		LEFT JOIN cvs_iso_processes ip
		       ON r.iso_process = ip.id OR sp.iso_process = ip.id
		WHERE r.vcs = $1
		ORDER BY r.row_index;
	`

	dbRows, err := pool.Query(ctx, query, vcsID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch vcs rows: %w", err)
	}
	defer dbRows.Close()

	var rows []process.Row
	for dbRows.Next() {
		var row process.Row
		if err := dbRows.Scan(&row.ID, &row.VcsID, &row.IsoName, &row.SubName,
			&row.Category, &row.TimeFormula, &row.CostFormula, &row.RevFormula,
			&row.TimeUnit, &row.Rate, &row.Index); err != nil {
			return nil, fmt.Errorf("failed to scan vcs row: %w", err)
		}
		rows = append(rows, row)
	}
	if err := dbRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vcs rows: %w", err)
	}
	return rows, nil
}

// ValueDriverValues returns every driver value bound to a formula row of the
// vcs for one design, keyed row id → value driver id.
func (r *SimulationRepo) ValueDriverValues(ctx context.Context, vcsID, designID int) (map[int]map[int]float64, error) {
	pool := GetPool()
	if pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}

	query := `
		SELECT f.formulas, v.value_driver, v.value
		FROM cvs_vd_design_values v
		JOIN cvs_formulas_value_drivers f ON f.value_driver = v.value_driver
		JOIN cvs_vcs_rows r ON r.id = f.formulas
		WHERE r.vcs = $1 AND v.design = $2;
	`

	return scanBindingValues(ctx, query, vcsID, designID)
}

// MarketInputValues returns every market input value bound to a formula row
// of the vcs, keyed row id → market input id.
func (r *SimulationRepo) MarketInputValues(ctx context.Context, vcsID int) (map[int]map[int]float64, error) {
	pool := GetPool()
	if pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}

	query := `
		SELECT f.formulas, v.market_input, v.value
		FROM cvs_market_values v
		JOIN cvs_formulas_market_inputs f ON f.market_input = v.market_input
		JOIN cvs_vcs_rows r ON r.id = f.formulas
		WHERE r.vcs = $1 AND v.vcs = $1;
	`

	return scanBindingValues(ctx, query, vcsID)
}

func scanBindingValues(ctx context.Context, query string, args ...any) (map[int]map[int]float64, error) {
	dbRows, err := GetPool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch binding values: %w", err)
	}
	defer dbRows.Close()

	values := make(map[int]map[int]float64)
	for dbRows.Next() {
		var rowID, refID int
		var value float64
		if err := dbRows.Scan(&rowID, &refID, &value); err != nil {
			return nil, fmt.Errorf("failed to scan binding value: %w", err)
		}
		if values[rowID] == nil {
			values[rowID] = make(map[int]float64)
		}
		values[rowID][refID] = value
	}
	if err := dbRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read binding values: %w", err)
	}
	return values, nil
}
