package sim

import (
	"errors"
	"testing"

	"cvsim/pkg/core/process"
)

func TestSettingsValidate(t *testing.T) {
	valid := baseSettings()
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid settings rejected: %v", err)
	}

	cases := []struct {
		name    string
		mutate  func(*Settings)
		wantErr error
	}{
		{
			name:    "both flow anchors set",
			mutate:  func(s *Settings) { s.FlowProcess = "Assembly" },
			wantErr: ErrInvalidFlowSettings,
		},
		{
			name: "neither flow anchor set",
			mutate: func(s *Settings) {
				s.FlowStartTime = nil
			},
			wantErr: ErrInvalidFlowSettings,
		},
		{
			name: "end before start",
			mutate: func(s *Settings) {
				s.StartTime = 10
				s.EndTime = 5
			},
			wantErr: ErrInvalidTimeSpan,
		},
		{
			name: "end equals start",
			mutate: func(s *Settings) {
				s.StartTime = 5
				s.EndTime = 5
			},
			wantErr: ErrInvalidTimeSpan,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			set := baseSettings()
			tc.mutate(&set)
			if err := set.Validate(); !errors.Is(err, tc.wantErr) {
				t.Errorf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestSettingsValidate_Bounds(t *testing.T) {
	set := baseSettings()
	set.TimeUnit = process.TimeUnit("fortnight")
	if err := set.Validate(); err == nil {
		t.Error("unknown time unit accepted")
	}

	set = baseSettings()
	set.Interarrival = -1
	if err := set.Validate(); err == nil {
		t.Error("negative interarrival accepted")
	}

	set = baseSettings()
	set.DiscountRate = -1
	if err := set.Validate(); err == nil {
		t.Error("discount rate of -100%% accepted")
	}

	set = baseSettings()
	set.MonteCarlo = true
	set.Runs = 0
	if err := set.Validate(); err == nil {
		t.Error("monte carlo with zero runs accepted")
	}
}

func TestFlowEntities(t *testing.T) {
	set := baseSettings()
	set.FlowTime = 10
	set.Interarrival = 2
	if got := set.FlowEntities(); got != 5 {
		t.Errorf("FlowEntities = %f, want 5", got)
	}

	set.Interarrival = 20 // slower than the window: still one entity
	if got := set.FlowEntities(); got != 1 {
		t.Errorf("FlowEntities = %f, want 1", got)
	}

	set.Interarrival = 0
	if got := set.FlowEntities(); got != 1 {
		t.Errorf("FlowEntities with zero interarrival = %f, want 1", got)
	}
}
