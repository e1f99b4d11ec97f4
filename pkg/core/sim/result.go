package sim

// Result is the trajectory of one simulation run: the simulated time of each
// recorded step and the cumulative discounted value at that step.
type Result struct {
	Timesteps []float64 `json:"timesteps"`
	NPVs      []float64 `json:"npvs"`
}

// Surplus returns the cumulative NPV at the final recorded timestep.
func (r *Result) Surplus() float64 {
	if len(r.NPVs) == 0 {
		return 0
	}
	return r.NPVs[len(r.NPVs)-1]
}

// MaxNPV returns the highest cumulative NPV observed along the trajectory.
func (r *Result) MaxNPV() float64 {
	if len(r.NPVs) == 0 {
		return 0
	}
	max := r.NPVs[0]
	for _, v := range r.NPVs[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

// PaybackTime returns the first timestep at which the cumulative NPV breaks
// even: a positive value, or a recovery to zero after a negative stretch. A
// trajectory that never accrues anything has no payback; ok is false then and
// when the NPV stays below zero throughout.
func (r *Result) PaybackTime() (float64, bool) {
	seenNegative := false
	for i, v := range r.NPVs {
		if v < 0 {
			seenNegative = true
			continue
		}
		if v > 0 || seenNegative {
			return r.Timesteps[i], true
		}
	}
	return 0, false
}
