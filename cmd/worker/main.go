package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"oddscollector/ingestion/internal/repository"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	// Setup logger
	setupLogger()

	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("Worker failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "oddscollector",
		Short:         "BetsAPI ended-events and odds ingestion worker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(dailyCmd())
	root.AddCommand(backfillCmd())
	root.AddCommand(scheduleCmd())

	return root
}

func dailyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daily",
		Short: "Prune old events, then ingest yesterday and today",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp("daily", func(a *app) error {
				return a.runDaily(a.stop)
			})
		},
	}
}

func backfillCmd() *cobra.Command {
	var (
		workers int
		days    int
		start   string
		end     string
		leagues []string
	)

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Re-walk a historical window across leagues with parallel workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp("backfill", func(a *app) error {
				opts := backfillOptions{Leagues: leagues}
				if cmd.Flags().Changed("workers") {
					opts.Workers = workers
				}
				if cmd.Flags().Changed("days") {
					opts.Days = days
				}

				var err error
				if opts.Start, opts.End, err = parseRange(start, end, a.loc); err != nil {
					return err
				}
				return a.runBackfill(a.stop, opts)
			})
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 0, "Number of parallel workers (default BACKFILL_WORKERS)")
	cmd.Flags().IntVar(&days, "days", 0, "Days to walk back from today (default BACKFILL_DAYS)")
	cmd.Flags().StringVar(&start, "start", "", "First day to walk, YYYY-MM-DD (requires --end)")
	cmd.Flags().StringVar(&end, "end", "", "Last day to walk, YYYY-MM-DD (requires --start)")
	cmd.Flags().StringSliceVar(&leagues, "leagues", nil, "League ids to walk (default LEAGUE_IDS)")
	return cmd
}

func scheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the daily pass and score refresh on their cron schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp("schedule", func(a *app) error {
				return a.runSchedule(a.stop)
			})
		},
	}
}

// parseRange parses an explicit --start/--end pair in loc
func parseRange(start, end string, loc *time.Location) (time.Time, time.Time, error) {
	if start == "" && end == "" {
		return time.Time{}, time.Time{}, nil
	}
	if start == "" || end == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("--start and --end must be given together")
	}

	s, err := time.ParseInLocation("2006-01-02", start, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --start: %w", err)
	}
	e, err := time.ParseInLocation("2006-01-02", end, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --end: %w", err)
	}
	if e.Before(s) {
		return time.Time{}, time.Time{}, fmt.Errorf("--end %s is before --start %s", end, start)
	}
	return s, e, nil
}

// setupLogger configures the zerolog logger
func setupLogger() {
	// Pretty console logging in development
	if os.Getenv("APP_ENV") == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	// Set log level
	level := zerolog.InfoLevel
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		parsedLevel, err := zerolog.ParseLevel(lvl)
		if err == nil {
			level = parsedLevel
		}
	}
	zerolog.SetGlobalLevel(level)

	log.Debug().
		Str("level", level.String()).
		Msg("Logger initialized")
}

// startMetricsServer starts the Prometheus metrics HTTP server
func startMetricsServer(port int, db *repository.Database) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body := map[string]interface{}{"status": "healthy"}
		if err := db.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			body["status"] = "unhealthy"
			body["error"] = err.Error()
		} else {
			body["database"] = db.PoolStats()
		}
		_ = json.NewEncoder(w).Encode(body)
	})

	addr := fmt.Sprintf(":%d", port)
	log.Info().Int("port", port).Msg("Starting metrics server")

	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Metrics server failed")
	}
}
