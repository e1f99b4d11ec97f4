package main

import (
	"context"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cvsim/pkg/api/simulation"
	"cvsim/pkg/config"
	"cvsim/pkg/core/sim"
	"cvsim/pkg/core/store"
	"cvsim/pkg/logging"
)

func main() {
	cfg := config.Load()
	log := logging.Init(cfg.LogLevel, cfg.LogPretty)

	ctx := context.Background()
	if err := store.InitDB(ctx); err != nil {
		log.Fatal().Err(err).Msg("database initialization failed")
	}
	defer store.Close()

	runner := sim.NewRunner(store.NewSimulationRepo(), log)

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	simulation.NewHandler(store.NewSettingsRepo(), runner, log).Register(router)

	log.Info().Str("addr", cfg.ListenAddr).Msg("api server starting")
	if err := http.ListenAndServe(cfg.ListenAddr, router); err != nil {
		log.Error().Err(err).Msg("server failed")
		os.Exit(1)
	}
}
