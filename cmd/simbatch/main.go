// cmd/simbatch is a thin CLI/cron wrapper over internal/simcore and
// internal/mc: it loads a fund config, builds (or loads) a zone
// catalogue, runs the Monte Carlo ensemble once or on a cron schedule,
// and prints the aggregated result. It contains no simulation logic of
// its own.
package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/equihome/heloc-simfund/internal/cancel"
	"github.com/equihome/heloc-simfund/internal/config"
	"github.com/equihome/heloc-simfund/internal/events"
	"github.com/equihome/heloc-simfund/internal/mc"
	"github.com/equihome/heloc-simfund/internal/scheduler"
	"github.com/equihome/heloc-simfund/internal/zone"
	"github.com/equihome/heloc-simfund/pkg/logger"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
)

// getEnv gets an environment variable with a fallback.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

// batchJob runs one full Monte Carlo ensemble and logs a summary. It
// implements scheduler.Job so the same job can run once or on a cron
// schedule without duplicating any wiring.
type batchJob struct {
	cfg      *config.Config
	cat      *zone.Catalogue
	baseSeed int64
	paths    int
	workers  int
	sink     *events.Sink
	log      zerolog.Logger
}

func (j *batchJob) Name() string { return "mc_batch" }

func (j *batchJob) Run() error {
	runID := uuid.New().String()
	token := cancel.NewToken()

	result := mc.Run(j.cfg, j.cat, runID, j.baseSeed, j.paths, j.workers, token, j.sink, j.log)
	printSummary(j.log, result)
	return nil
}

func printSummary(log zerolog.Logger, result mc.Result) {
	event := log.Info().
		Str("run_id", result.RunID).
		Int("paths_requested", result.PathsRequested).
		Int("paths_completed", result.PathsCompleted).
		Int("paths_failed", result.PathsFailed).
		Float64("irr_mean", result.IRR.Mean).
		Float64("irr_p5", result.IRR.P5).
		Float64("irr_p95", result.IRR.P95).
		Float64("moic_mean", result.MOIC.Mean).
		Float64("max_drawdown_mean", result.MaxDrawdown.Mean).
		Float64("hurdle_clear_probability", result.HurdleClearProbability).
		Float64("guardrail_fail_rate", result.GuardrailFailRate).
		Int("efficient_frontier_points", len(result.EfficientFrontier))
	event.Msg("simulation batch complete")

	// Print the aggregated distributions, not the per-path contexts -
	// those can be large and are meant for in-process callers, not this
	// CLI's stdout summary.
	summary := struct {
		RunID                  string           `json:"run_id"`
		PathsRequested         int              `json:"paths_requested"`
		PathsCompleted         int              `json:"paths_completed"`
		PathsFailed            int              `json:"paths_failed"`
		IRR                    mc.Distribution  `json:"irr"`
		MOIC                   mc.Distribution  `json:"moic"`
		TVPI                   mc.Distribution  `json:"tvpi"`
		MaxDrawdown            mc.Distribution  `json:"max_drawdown"`
		HurdleClearProbability float64          `json:"hurdle_clear_probability"`
		GuardrailFailRate      float64          `json:"guardrail_fail_rate"`
		EfficientFrontier      []mc.FrontierPoint `json:"efficient_frontier"`
	}{
		RunID:                  result.RunID,
		PathsRequested:         result.PathsRequested,
		PathsCompleted:         result.PathsCompleted,
		PathsFailed:            result.PathsFailed,
		IRR:                    result.IRR,
		MOIC:                   result.MOIC,
		TVPI:                   result.TVPI,
		MaxDrawdown:            result.MaxDrawdown,
		HurdleClearProbability: result.HurdleClearProbability,
		GuardrailFailRate:      result.GuardrailFailRate,
		EfficientFrontier:      result.EfficientFrontier,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(summary)
}

func main() {
	_ = godotenv.Load()

	log := logger.New(logger.Config{
		Level:  getEnv("LOG_LEVEL", "info"),
		Pretty: getEnv("LOG_PRETTY", "true") == "true",
	})

	configPath := getEnv("CONFIG_PATH", "")
	if configPath == "" {
		log.Fatal().Msg("CONFIG_PATH must point to a fund config JSON file")
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("failed to read config file")
	}
	cfg, err := config.FromJSON(data)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid fund config")
	}

	cat, err := buildCatalogue(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build zone catalogue")
	}

	paths := getEnvAsInt("PATHS", 200)
	baseSeed := getEnvAsInt64("SEED", cfg.Seed)
	workers := getEnvAsInt("WORKERS", defaultWorkers())
	sink := events.NewSink(getEnvAsInt("EVENT_BUFFER", 0))

	job := &batchJob{cfg: cfg, cat: cat, baseSeed: baseSeed, paths: paths, workers: workers, sink: sink, log: log}

	cronExpr := getEnv("CRON_SCHEDULE", "")
	if cronExpr == "" {
		log.Info().Int("paths", paths).Int("workers", workers).Msg("running simulation batch once")
		if err := job.Run(); err != nil {
			log.Fatal().Err(err).Msg("simulation batch failed")
		}
		return
	}

	sched := scheduler.New(log)
	if err := sched.AddJob(cronExpr, job); err != nil {
		log.Fatal().Err(err).Str("schedule", cronExpr).Msg("failed to register batch job")
	}
	sched.Start()
	defer sched.Stop()

	log.Info().Str("schedule", cronExpr).Msg("simbatch running on cron schedule, waiting for interrupt")
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down simbatch")
}

// buildCatalogue loads a real TLS catalogue from CATALOGUE_PATH when
// configured, otherwise builds a deterministic synthetic one sized by
// SUBURBS_PER_ZONE/PROPERTIES_PER_SUBURB - useful for demos and load
// testing the engine without a live data feed.
func buildCatalogue(cfg *config.Config) (*zone.Catalogue, error) {
	if path := getEnv("CATALOGUE_PATH", ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var raw struct {
			Suburbs    []zone.Suburb   `json:"suburbs"`
			Properties []zone.Property `json:"properties"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		return zone.New(raw.Suburbs, raw.Properties)
	}

	suburbsPerZone := getEnvAsInt("SUBURBS_PER_ZONE", 20)
	propertiesPerSuburb := getEnvAsInt("PROPERTIES_PER_SUBURB", 50)
	return zone.NewSynthetic(cfg.Seed, suburbsPerZone, propertiesPerSuburb)
}

// defaultWorkers sizes the worker pool to the host's logical CPU
// count, falling back to 4 when gopsutil cannot read it (containers
// with restricted /proc access).
func defaultWorkers() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		return 4
	}
	return n
}
