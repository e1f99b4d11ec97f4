package sim

import (
	"fmt"
	"math"
	"math/rand"

	"cvsim/pkg/core/dsm"
	"cvsim/pkg/core/process"
)

// RunFailedError wraps any unexpected failure inside a simulation run. It is
// fatal to that run and, in Monte Carlo mode, to the whole batch.
type RunFailedError struct {
	Err error
}

func (e *RunFailedError) Error() string {
	return fmt.Sprintf("simulation run failed: %v", e.Err)
}

func (e *RunFailedError) Unwrap() error { return e.Err }

type runState int

// The run leaves stateIdle when the flow anchor is crossed; reaching the End
// node or exhausting the runtime ends the traversal.
const (
	stateIdle runState = iota
	stateFlowing
)

// Inputs bundles the read-only snapshot one run consumes. Nothing in it is
// mutated by the simulator, so the same Inputs may back many concurrent runs.
type Inputs struct {
	Processes []process.Process
	NonTech   []process.NonTechnicalProcess
	Matrix    *dsm.Matrix
	Settings  Settings
}

// Simulator advances a flow entity through the process graph, accruing
// discounted cost and revenue at every node it enters.
type Simulator struct {
	in     Inputs
	byName map[string]*process.Process
	rng    *rand.Rand
}

// New validates the inputs and prepares a single-run simulator. rng is only
// consulted when the matrix offers more than one successor; it may be nil for
// a strictly sequential chain.
func New(in Inputs, rng *rand.Rand) (*Simulator, error) {
	if err := in.Settings.Validate(); err != nil {
		return nil, err
	}
	if in.Matrix == nil {
		return nil, fmt.Errorf("simulation requires a dsm")
	}
	names := make([]string, len(in.Processes))
	byName := make(map[string]*process.Process, len(in.Processes))
	for i := range in.Processes {
		p := &in.Processes[i]
		names[i] = p.Name
		byName[p.Name] = p
	}
	if err := in.Matrix.Validate(names); err != nil {
		return nil, err
	}
	if _, ok := in.Matrix.NodeID(dsm.StartNode); !ok {
		return nil, fmt.Errorf("dsm is missing the %s node", dsm.StartNode)
	}
	if _, ok := in.Matrix.NodeID(dsm.EndNode); !ok {
		return nil, fmt.Errorf("dsm is missing the %s node", dsm.EndNode)
	}
	return &Simulator{in: in, byName: byName, rng: rng}, nil
}

// Run executes one full discrete-event traversal. Unexpected panics inside
// the stepping loop surface as RunFailedError instead of crashing sibling
// Monte Carlo runs.
func (s *Simulator) Run() (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &RunFailedError{Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	set := s.in.Settings
	m := s.in.Matrix
	runtime := set.Runtime()
	entities := set.FlowEntities()
	endID, _ := m.NodeID(dsm.EndNode)
	cur, _ := m.NodeID(dsm.StartNode)

	ntCost, ntRevenue := s.nonTechTotals()
	ntNet := ntRevenue - ntCost
	techCount := float64(len(s.in.Processes))

	state := stateIdle
	t := 0.0
	npv := 0.0
	res := &Result{}
	lastEntry := make(map[int]float64, m.Len())

	for {
		next, ok := m.Next(cur, s.rng)
		if !ok {
			break
		}
		cur = next

		// a node revisited without any simulated-time progress means the
		// matrix cycles through zero-time processes and can never finish
		if prev, seen := lastEntry[cur]; seen && prev == t {
			return nil, &RunFailedError{Err: fmt.Errorf("no time progress on revisited node %q", m.Name(cur))}
		}
		lastEntry[cur] = t

		// entering node cur at simulated time t
		proc := s.byName[m.Name(cur)]
		if state == stateIdle && s.flowReached(proc, t) {
			state = stateFlowing
		}

		delta := 0.0
		if proc != nil {
			units := 1.0
			if state == stateFlowing && proc.Rate == process.RatePerProduct {
				units = entities
			}
			delta = (proc.Revenue - proc.Cost) * units
			if set.NonTechAdd == process.PolicyToTechnicalProcess && techCount > 0 {
				delta += ntNet / techCount
			}
		}
		if set.NonTechAdd == process.PolicyLumpSum && len(res.Timesteps) == 0 {
			delta += ntNet
		}
		if set.NonTechAdd == process.PolicyContinuously {
			delta += ntNet / (techCount + 1)
		}

		npv += s.discount(delta, t)
		res.Timesteps = append(res.Timesteps, t)
		res.NPVs = append(res.NPVs, npv)

		if cur == endID {
			break
		}

		if proc != nil {
			t += dwellTime(proc, set.TimeUnit)
		}
		if t > runtime {
			// runtime exhausted before reaching End: truncate, not an error
			break
		}
	}

	return res, nil
}

// flowReached reports whether entering proc at time t crosses the flow
// anchor, switching the run from the one-time per-project phase into the
// per-product flow phase.
func (s *Simulator) flowReached(proc *process.Process, t float64) bool {
	set := s.in.Settings
	if set.FlowStartTime != nil {
		return t >= *set.FlowStartTime
	}
	return proc != nil && proc.Name == set.FlowProcess
}

// discount converts an accrual at simulated time t into present value. The
// discount rate is annual; t is converted from the configured time unit.
func (s *Simulator) discount(amount, t float64) float64 {
	rate := s.in.Settings.DiscountRate
	if rate == 0 {
		return amount
	}
	years := t / s.in.Settings.TimeUnit.PerYear()
	return amount / math.Pow(1+rate, years)
}

// dwellTime converts a process's evaluated time into the simulation's unit.
func dwellTime(p *process.Process, unit process.TimeUnit) float64 {
	years := p.Time / p.TimeUnit.PerYear()
	return years * unit.PerYear()
}

func (s *Simulator) nonTechTotals() (cost, revenue float64) {
	if s.in.Settings.NonTechAdd == process.PolicyNoCost {
		return 0, 0
	}
	for _, nt := range s.in.NonTech {
		cost += nt.Cost
		revenue += nt.Revenue
	}
	return cost, revenue
}
