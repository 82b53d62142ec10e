package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/franz/pjsk-record/internal/alias"
	"github.com/franz/pjsk-record/internal/app"
	"github.com/franz/pjsk-record/internal/record"
	"github.com/franz/pjsk-record/internal/refdata"
	"github.com/franz/pjsk-record/internal/report"
	"github.com/franz/pjsk-record/internal/song"
	"github.com/franz/pjsk-record/internal/store"
	"github.com/franz/pjsk-record/internal/util"
	"github.com/franz/pjsk-record/internal/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web front end and the daily reference data refresh",
	Long: `Serve the web front end for submitting and browsing attempts.

Besides the pages, the server exposes:
  /metrics   Prometheus metrics
  /health    liveness, including a database ping

Reference documents are refreshed once at startup and then daily at
refresh_hour (plus up to refresh_jitter). A failed refresh keeps the
previous documents in use.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", defaultListen, "address to listen on")
	serveCmd.Flags().Bool("no-refresh", false, "do not download reference documents")

	viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
}

func runServe(cmd *cobra.Command, args []string) error {
	dbPath := viper.GetString("db")
	dataDir := GetConfigString("data_dir", defaultDataDir)
	noRefresh, _ := cmd.Flags().GetBool("no-refresh")

	schedule, err := scheduleOptions()
	if err != nil {
		return err
	}

	util.InfoLog("Database: %s", dbPath)
	util.InfoLog("Reference data: %s", dataDir)

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	var events *report.EventLogger
	if dir := GetConfigString("event_log", ""); dir != "" {
		events, err = report.NewEventLogger(dir, report.LevelInfo)
		if err != nil {
			return fmt.Errorf("failed to open event log: %w", err)
		}
		defer events.Close()
		util.InfoLog("Event log: %s", events.Path())
	}

	svc := record.NewService(&record.Config{
		Store:   db,
		Songs:   song.NewLookup(refdata.NewLoader(dataDir)),
		Aliases: alias.NewClient(aliasConfig()),
		Events:  events,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := web.NewMetrics(registry)

	pages, err := web.NewHandler(&web.Config{
		Service: svc,
		Logger:  util.Logger(),
		Metrics: metrics,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := app.Config{
		Listen:   GetConfigString("listen", defaultListen),
		Pages:    pages.Routes(),
		Gatherer: registry,
		DB:       db,
		Schedule: schedule,
		Logger:   util.Logger(),
	}
	if noRefresh {
		util.WarnLog("Reference data refresh disabled")
	} else {
		cfg.Refresher = metrics.InstrumentRefresher(refdata.NewFetcher(fetcherConfig(dataDir, nil)))
	}

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("application could not be initialized: %w", err)
	}

	if err := application.Run(); err != nil {
		return fmt.Errorf("application terminated abnormally: %w", err)
	}
	return nil
}
