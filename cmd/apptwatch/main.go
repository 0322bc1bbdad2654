// Command apptwatch runs the appointment monitoring daemon: a single
// browser process polled by the session scheduler, fronted by an HTTP API
// for starting sessions and reading status.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/apptwatch/apptwatch/pkg/automation"
	"github.com/apptwatch/apptwatch/pkg/config"
	"github.com/apptwatch/apptwatch/pkg/logging"
	"github.com/apptwatch/apptwatch/pkg/monitor"
	"github.com/apptwatch/apptwatch/pkg/server"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to config file (yaml)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("apptwatch v%s\n", version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Pretty)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	controller := automation.NewController(automation.Config{
		Headless:           cfg.Browser.Headless,
		BlockedResources:   cfg.Browser.BlockedResources,
		UserAgent:          cfg.Browser.UserAgent,
		HealthCheckTimeout: cfg.Browser.HealthCheckTimeout,
		InstallBrowsers:    cfg.Browser.InstallOnStart,
	}, log)

	// A browser that cannot launch is fatal for the monitoring capability
	// but not for the process: the HTTP surface stays up so the condition
	// can be inspected, and the health monitor keeps retrying.
	if err := controller.Initialize(); err != nil {
		log.Error().Err(err).Msg("browser launch failed, serving degraded")
	}
	defer func() {
		if err := controller.Shutdown(); err != nil {
			log.Error().Err(err).Msg("browser shutdown failed")
		}
	}()
	go controller.RunHealthMonitor(ctx, cfg.Browser.HealthCheckInterval)

	markers := monitor.DefaultMarkers()
	if cfg.Monitor.MarkersFile != "" {
		markers, err = monitor.LoadMarkers(cfg.Monitor.MarkersFile)
		if err != nil {
			log.Error().Err(err).Msg("markers file rejected, using defaults")
		}
	}

	engine := monitor.NewEngine(markers, monitor.EngineConfig{
		FallbackCandidates:   cfg.Monitor.FallbackCandidates,
		StepTimeout:          cfg.Monitor.StepTimeout,
		SelectTimeout:        cfg.Monitor.SelectTimeout,
		NavigationsPerMinute: cfg.Monitor.NavigationsPerMinute,
	}, log)

	retry := monitor.NewRetryPolicy(cfg.Monitor.MaxAttempts, cfg.Monitor.BaseDelay, controller, log)

	scheduler := monitor.NewScheduler(controller, engine, retry, monitor.SchedulerConfig{
		PeakSchedule:    cfg.Monitor.PeakSchedule,
		OffPeakSchedule: cfg.Monitor.OffPeakSchedule,
	}, log)
	scheduler.AddObserver(monitor.LogObserver{Log: log})

	if err := scheduler.Start(ctx); err != nil {
		log.Error().Err(err).Msg("scheduler start failed")
		os.Exit(1)
	}
	defer scheduler.Stop()

	srv := server.New(scheduler, controller, cfg.Server.Port, log)
	if err := srv.Run(ctx); err != nil {
		log.Error().Err(err).Msg("http server failed")
		os.Exit(1)
	}
}
