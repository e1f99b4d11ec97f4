// Command cvsim runs a simulation scenario offline, without the database:
// the value chain, its bindings and the settings all come from a YAML file.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"cvsim/pkg/core/dsm"
	"cvsim/pkg/core/process"
	"cvsim/pkg/core/sim"
	"cvsim/pkg/logging"
)

type scenarioRow struct {
	ID         int              `yaml:"id"`
	Name       string           `yaml:"name"`
	Subprocess string           `yaml:"subprocess,omitempty"`
	Category   string           `yaml:"category,omitempty"`
	Time       string           `yaml:"time"`
	Cost       string           `yaml:"cost"`
	Revenue    string           `yaml:"revenue"`
	TimeUnit   process.TimeUnit `yaml:"time_unit"`
	Rate       process.Rate     `yaml:"rate"`
}

type scenario struct {
	Settings      sim.Settings            `yaml:"settings"`
	Rows          []scenarioRow           `yaml:"rows"`
	ValueDrivers  map[int]map[int]float64 `yaml:"value_drivers,omitempty"`
	MarketInputs  map[int]map[int]float64 `yaml:"market_inputs,omitempty"`
	NormalizedNPV bool                    `yaml:"normalized_npv,omitempty"`
}

func main() {
	var scenarioPath, dsmPath, logLevel string

	root := &cobra.Command{
		Use:          "cvsim",
		Short:        "Cost-value simulation toolkit",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scenario file through the simulator",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logging.Init(logLevel, true)
			return runScenario(cmd.Context(), scenarioPath, dsmPath)
		},
	}
	runCmd.Flags().StringVar(&scenarioPath, "scenario", "", "scenario YAML file (required)")
	runCmd.Flags().StringVar(&dsmPath, "dsm", "", "optional DSM file (.csv or .xlsx) replacing the sequential chain")
	runCmd.MarkFlagRequired("scenario")
	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runScenario(ctx context.Context, scenarioPath, dsmPath string) error {
	data, err := os.ReadFile(scenarioPath)
	if err != nil {
		return fmt.Errorf("read scenario: %w", err)
	}
	var sc scenario
	if err := yaml.UnmarshalStrict(data, &sc); err != nil {
		return fmt.Errorf("parse scenario: %w", err)
	}
	if err := sc.Settings.Validate(); err != nil {
		return err
	}

	rows := make([]process.Row, len(sc.Rows))
	for i, r := range sc.Rows {
		category := r.Category
		if category == "" {
			category = process.CategoryTechnical
		}
		rows[i] = process.Row{
			ID:          r.ID,
			IsoName:     r.Name,
			SubName:     r.Subprocess,
			Category:    category,
			TimeFormula: r.Time,
			CostFormula: r.Cost,
			RevFormula:  r.Revenue,
			TimeUnit:    r.TimeUnit,
			Rate:        r.Rate,
			Index:       i,
		}
	}
	if err := process.CheckEntityRate(rows, sc.Settings.FlowProcess); err != nil {
		return err
	}

	technical, nonTech, err := process.Build(rows, sc.Settings.NonTechAdd, process.BindingSet{
		ValueDrivers: sc.ValueDrivers,
		MarketInputs: sc.MarketInputs,
	})
	if err != nil {
		return err
	}

	matrix, err := loadMatrix(dsmPath, technical)
	if err != nil {
		return err
	}

	runs := 1
	if sc.Settings.MonteCarlo {
		runs = sc.Settings.Runs
	}
	batch, err := sim.RunMany(ctx, sim.Inputs{
		Processes: technical,
		NonTech:   nonTech,
		Matrix:    matrix,
		Settings:  sc.Settings,
	}, runs, time.Now().UnixNano())
	if err != nil {
		return err
	}

	npv := batch.MeanNPV()
	if sc.NormalizedNPV {
		npv = batch.NormalizedNPV()
	}
	out := struct {
		Time            float64   `json:"time"`
		Timesteps       []float64 `json:"timesteps"`
		MeanNPV         []float64 `json:"mean_npv"`
		MaxNPVs         []float64 `json:"max_npvs"`
		MeanPaybackTime *float64  `json:"mean_payback_time"`
	}{
		Time:      batch.FinalTime(),
		Timesteps: batch.Timesteps,
		MeanNPV:   npv,
		MaxNPVs:   batch.MaxNPVs(),
	}
	if t, ok := batch.MeanPaybackTime(); ok {
		out.MeanPaybackTime = &t
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func loadMatrix(path string, technical []process.Process) (*dsm.Matrix, error) {
	if path == "" {
		names := make([]string, len(technical))
		for i, p := range technical {
			names[i] = p.Name
		}
		return dsm.BuildSimple(names), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dsm: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return dsm.LoadXLSX(f)
	case ".csv":
		return dsm.LoadCSV(f)
	default:
		return nil, fmt.Errorf("unsupported dsm file type %q", filepath.Ext(path))
	}
}
