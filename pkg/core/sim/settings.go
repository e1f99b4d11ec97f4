// Package sim implements the discrete-event cost-value simulator and its
// Monte Carlo batch runner.
package sim

import (
	"errors"
	"fmt"

	"cvsim/pkg/core/process"
)

var (
	// ErrInvalidFlowSettings marks a settings record where the flow anchor is
	// over- or under-specified: exactly one of flow process and flow start
	// time must be set.
	ErrInvalidFlowSettings = errors.New("exactly one of flow process and flow start time must be set")

	// ErrInvalidTimeSpan marks a simulation window whose end does not lie
	// after its start.
	ErrInvalidTimeSpan = errors.New("simulation end time must be after start time")

	// ErrNoDesigns marks a run request without any design ids.
	ErrNoDesigns = errors.New("no design ids supplied")
)

// Settings is the per-project simulation configuration. It is persisted and
// edited through the settings repository and validated before every run.
type Settings struct {
	TimeUnit      process.TimeUnit          `json:"time_unit" yaml:"time_unit"`
	FlowProcess   string                    `json:"flow_process,omitempty" yaml:"flow_process,omitempty"`
	FlowStartTime *float64                  `json:"flow_start_time,omitempty" yaml:"flow_start_time,omitempty"`
	FlowTime      float64                   `json:"flow_time" yaml:"flow_time"`
	Interarrival  float64                   `json:"interarrival_time" yaml:"interarrival_time"`
	StartTime     float64                   `json:"start_time" yaml:"start_time"`
	EndTime       float64                   `json:"end_time" yaml:"end_time"`
	DiscountRate  float64                   `json:"discount_rate" yaml:"discount_rate"`
	NonTechAdd    process.NonTechCostPolicy `json:"non_tech_add" yaml:"non_tech_add"`
	MonteCarlo    bool                      `json:"monte_carlo" yaml:"monte_carlo"`
	Runs          int                       `json:"runs" yaml:"runs"`
}

// Validate checks the structural invariants before any simulation step runs.
func (s Settings) Validate() error {
	if !s.TimeUnit.Valid() {
		return fmt.Errorf("unknown time unit %q", s.TimeUnit)
	}
	hasProcess := s.FlowProcess != ""
	hasStart := s.FlowStartTime != nil
	if hasProcess == hasStart {
		return ErrInvalidFlowSettings
	}
	if s.EndTime <= s.StartTime {
		return ErrInvalidTimeSpan
	}
	if s.FlowTime < 0 {
		return fmt.Errorf("flow time must be >= 0, got %g", s.FlowTime)
	}
	if s.Interarrival < 0 {
		return fmt.Errorf("interarrival time must be >= 0, got %g", s.Interarrival)
	}
	if s.DiscountRate <= -1 {
		return fmt.Errorf("discount rate must be > -1, got %g", s.DiscountRate)
	}
	if s.MonteCarlo && s.Runs < 1 {
		return fmt.Errorf("monte carlo requires at least one run, got %d", s.Runs)
	}
	return nil
}

// Runtime is the simulated-time budget of a single run.
func (s Settings) Runtime() float64 {
	return s.EndTime - s.StartTime
}

// FlowEntities derives how many flow entities pass through the chain during
// the flow window.
func (s Settings) FlowEntities() float64 {
	if s.Interarrival <= 0 {
		return 1
	}
	n := float64(int(s.FlowTime / s.Interarrival))
	if n < 1 {
		return 1
	}
	return n
}
