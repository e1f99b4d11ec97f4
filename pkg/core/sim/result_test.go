package sim

import (
	"math"
	"testing"
)

func TestPaybackTime(t *testing.T) {
	cases := []struct {
		name      string
		timesteps []float64
		npvs      []float64
		want      float64
		ok        bool
	}{
		{
			name:      "recovers after a negative stretch",
			timesteps: []float64{0, 1, 2},
			npvs:      []float64{-100, 50, 50},
			want:      1,
			ok:        true,
		},
		{
			name:      "recovers exactly to zero",
			timesteps: []float64{0, 1, 2},
			npvs:      []float64{-10, 0, 5},
			want:      1,
			ok:        true,
		},
		{
			name:      "profitable from the first step",
			timesteps: []float64{0, 1},
			npvs:      []float64{5, 10},
			want:      0,
			ok:        true,
		},
		{
			name:      "all-zero trajectory never pays back",
			timesteps: []float64{0, 1, 3, 6},
			npvs:      []float64{0, 0, 0, 0},
			ok:        false,
		},
		{
			name:      "stays negative",
			timesteps: []float64{0, 1},
			npvs:      []float64{-10, -5},
			ok:        false,
		},
		{
			name: "empty trajectory",
			ok:   false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := &Result{Timesteps: tc.timesteps, NPVs: tc.npvs}
			got, ok := res.PaybackTime()
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if ok && math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("payback = %f, want %f", got, tc.want)
			}
		})
	}
}
