// Package process turns raw value-chain rows into evaluated process entities
// ready for simulation.
package process

import "fmt"

// CategoryTechnical is the row category whose entities carry a time dimension
// and participate in the simulated flow.
const CategoryTechnical = "Technical processes"

// Rate classifies how often a process accrues its cost and revenue.
type Rate string

const (
	RatePerProduct Rate = "per_product"
	RatePerProject Rate = "per_project"
)

// TimeUnit is the unit a process time formula is expressed in.
type TimeUnit string

const (
	UnitMinutes TimeUnit = "minutes"
	UnitHour    TimeUnit = "hour"
	UnitDay     TimeUnit = "day"
	UnitWeek    TimeUnit = "week"
	UnitMonth   TimeUnit = "month"
	UnitYear    TimeUnit = "year"
)

// PerYear returns how many of this unit make up one discounting period.
func (u TimeUnit) PerYear() float64 {
	switch u {
	case UnitMinutes:
		return 525600
	case UnitHour:
		return 8760
	case UnitDay:
		return 365
	case UnitWeek:
		return 52
	case UnitMonth:
		return 12
	default:
		return 1
	}
}

// Valid reports whether the unit is one of the supported time formats.
func (u TimeUnit) Valid() bool {
	switch u {
	case UnitMinutes, UnitHour, UnitDay, UnitWeek, UnitMonth, UnitYear:
		return true
	}
	return false
}

// NonTechCostPolicy selects how non-technical cost and revenue is folded into
// a simulation run.
type NonTechCostPolicy string

const (
	PolicyToTechnicalProcess NonTechCostPolicy = "to_technical_process"
	PolicyLumpSum            NonTechCostPolicy = "lump_sum"
	PolicyContinuously       NonTechCostPolicy = "continuously"
	PolicyNoCost             NonTechCostPolicy = "no_added_cost"
)

// Row is one ordered value-chain row as fetched from persistence, with its
// formula strings still unevaluated. Exactly one of IsoName/SubName is set
// for technical rows.
type Row struct {
	ID            int
	VcsID         int
	DesignGroupID int
	IsoName       string
	SubName       string
	Category      string
	TimeFormula   string
	CostFormula   string
	RevFormula    string
	TimeUnit      TimeUnit
	Rate          Rate
	Index         int
}

// Technical reports whether the row belongs to the technical process chain.
func (r Row) Technical() bool {
	return r.Category == CategoryTechnical
}

// DisplayName is the node name the row contributes to the process graph.
// Subprocess rows are shown as "sub (parent iso)".
func (r Row) DisplayName() string {
	if r.SubName != "" {
		if r.IsoName != "" {
			return fmt.Sprintf("%s (%s)", r.SubName, r.IsoName)
		}
		return r.SubName
	}
	return r.IsoName
}

// Process is a technical process with all formulas evaluated.
type Process struct {
	ID       int
	Name     string
	Time     float64
	Cost     float64
	Revenue  float64
	TimeUnit TimeUnit
	Rate     Rate
	Policy   NonTechCostPolicy
}

// NonTechnicalProcess carries cost and revenue but no time dimension.
type NonTechnicalProcess struct {
	ID      int
	Name    string
	Cost    float64
	Revenue float64
}

// BindingSet holds the per-row resolved variable values for one
// (vcs, design) pair: row id → driver/input id → numeric value.
type BindingSet struct {
	ValueDrivers map[int]map[int]float64
	MarketInputs map[int]map[int]float64
}

func (b BindingSet) forRow(rowID int) (map[int]float64, map[int]float64) {
	return b.ValueDrivers[rowID], b.MarketInputs[rowID]
}
