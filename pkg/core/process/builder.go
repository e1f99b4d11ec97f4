package process

import (
	"cvsim/pkg/core/formula"
)

// Build walks the rows in caller-supplied order and evaluates every formula,
// splitting the result into technical and non-technical processes.
//
// Technical rows get their time formula evaluated first; the computed time is
// then available to the cost and revenue formulas both as the bare "time"
// identifier and as a {process:time} reference.
func Build(rows []Row, policy NonTechCostPolicy, bindings BindingSet) ([]Process, []NonTechnicalProcess, error) {
	var technical []Process
	var nonTech []NonTechnicalProcess

	for _, row := range rows {
		vd, mi := bindings.forRow(row.ID)
		b := formula.Bindings{ValueDrivers: vd, MarketInputs: mi}

		if !row.Technical() {
			cost, err := formula.Evaluate(row.CostFormula, b)
			if err != nil {
				return nil, nil, &EvalError{RowID: row.ID, Err: err}
			}
			revenue, err := formula.Evaluate(row.RevFormula, b)
			if err != nil {
				return nil, nil, &EvalError{RowID: row.ID, Err: err}
			}
			nonTech = append(nonTech, NonTechnicalProcess{
				ID:      row.ID,
				Name:    row.DisplayName(),
				Cost:    cost,
				Revenue: revenue,
			})
			continue
		}

		if row.IsoName == "" && row.SubName == "" {
			return nil, nil, ErrProcessNotFound
		}

		elapsed, err := formula.Evaluate(row.TimeFormula, b)
		if err != nil {
			return nil, nil, &EvalError{RowID: row.ID, Err: err}
		}
		if elapsed < 0 {
			return nil, nil, &NegativeTimeError{RowID: row.ID, Time: elapsed}
		}

		b.Row = map[string]float64{"time": elapsed}
		cost, err := formula.Evaluate(row.CostFormula, b)
		if err != nil {
			return nil, nil, &EvalError{RowID: row.ID, Err: err}
		}
		revenue, err := formula.Evaluate(row.RevFormula, b)
		if err != nil {
			return nil, nil, &EvalError{RowID: row.ID, Err: err}
		}

		technical = append(technical, Process{
			ID:       row.ID,
			Name:     row.DisplayName(),
			Time:     elapsed,
			Cost:     cost,
			Revenue:  revenue,
			TimeUnit: row.TimeUnit,
			Rate:     row.Rate,
			Policy:   policy,
		})
	}

	return technical, nonTech, nil
}

// CheckEntityRate enforces the rate ordering invariant: once the flow anchor
// row is passed, no later technical row may accrue per_project. An empty
// anchor name (explicit flow start time configured instead) disables the
// check, matching the anchorless configuration.
func CheckEntityRate(rows []Row, flowProcessName string) error {
	if flowProcessName == "" {
		return nil
	}
	anchor := -1
	for i, row := range rows {
		if anchor >= 0 && i > anchor && row.Technical() && row.Rate == RatePerProject {
			return &RateOrderError{RowID: row.ID, Name: row.DisplayName()}
		}
		if anchor < 0 && rowMatches(row, flowProcessName) {
			anchor = i
		}
	}
	return nil
}

func rowMatches(row Row, name string) bool {
	return row.IsoName == name || row.SubName == name || row.DisplayName() == name
}
