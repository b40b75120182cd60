package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pmoellner/hausdeck/config"
	"github.com/pmoellner/hausdeck/dashboard"
	"github.com/pmoellner/hausdeck/internal/logging"
	"github.com/pmoellner/hausdeck/mirror"
	"github.com/pmoellner/hausdeck/remote"
	"github.com/pmoellner/hausdeck/telemetry"
	"github.com/pmoellner/hausdeck/views"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "Path to configuration file")
	healthcheck := flag.Bool("healthcheck", false, "Run a health check and exit")
	configCheck := flag.Bool("config-check", false, "Validate configuration and exit")
	dashboardFlag := flag.Bool("dashboard", false, "Enable the dashboard even if the config disables it")
	dashboardListen := flag.String("dashboard-listen", "", "Override the dashboard listen address")
	flag.Parse()

	if *healthcheck {
		if err := executeHealthCheck(*cfgPath); err != nil {
			fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if *configCheck {
		os.Exit(executeConfigCheck(cfg))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger, cleanup, err := logging.Setup(cfg.Logging)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup logger")
	}
	defer cleanup()
	log.Logger = logger

	collector, err := newTelemetryCollector(cfg.Telemetry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry disabled: %v\n", err)
		collector = telemetry.Noop()
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.Listen != "" {
		go serveMetrics(cfg.Telemetry.Listen)
	}

	client, err := remote.NewClient(cfg.Bridge, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create bridge client")
	}

	intervals := mirror.Intervals{
		Active:    cfg.Poll.ActiveInterval.Duration,
		Idle:      cfg.Poll.IdleInterval.Duration,
		IdleAfter: cfg.Poll.IdleAfter.Duration,
	}
	synchronizer := mirror.NewSynchronizer(client, intervals, logger, collector)
	runner := mirror.NewRunner(synchronizer, collector, logger, 0)
	console := mirror.NewConsole(client, runner, cfg.Edits.CoalesceWindow.Duration, collector, logger)
	defer console.Close()

	if cfg.Dashboard.Enabled || *dashboardFlag {
		listen := cfg.Dashboard.Listen
		if *dashboardListen != "" {
			listen = *dashboardListen
		}
		srv, err := dashboard.New(config.DashboardConfig{Enabled: true, Listen: listen}, synchronizer, console, runner, cfg.Filters, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to start dashboard")
		}
		defer srv.Close()
	}

	synchronizer.Start(ctx)
	defer synchronizer.Stop()

	logger.Info().Str("bridge", cfg.Bridge.URL).Msg("hausdeck started")
	<-ctx.Done()
	logger.Info().Msg("shutting down")
}

// executeHealthCheck loads the configuration and probes the bridge.
func executeHealthCheck(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	client, err := remote.NewClient(cfg.Bridge, zerolog.Nop())
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.BridgeInfo(ctx); err != nil {
		return fmt.Errorf("bridge unreachable: %w", err)
	}
	return nil
}

// executeConfigCheck validates the configuration including the filter
// preset expressions, which Load alone does not compile.
func executeConfigCheck(cfg *config.Config) int {
	exitCode := 0
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration invalid: %v\n", err)
		exitCode = 1
	}
	for _, preset := range cfg.Filters {
		if _, err := views.CompilePredicate(preset.Expression); err != nil {
			fmt.Fprintf(os.Stderr, "filter preset %q invalid: %v\n", preset.ID, err)
			exitCode = 1
			continue
		}
		fmt.Printf("Filter preset %q: OK\n", preset.ID)
	}
	if exitCode == 0 {
		fmt.Println("Configuration check completed successfully.")
	} else {
		fmt.Println("Configuration check completed with errors.")
	}
	return exitCode
}

func newTelemetryCollector(cfg config.TelemetryConfig) (telemetry.Collector, error) {
	if !cfg.Enabled {
		return telemetry.Noop(), nil
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case "", "prometheus":
		return telemetry.NewPrometheusCollector(nil)
	default:
		return telemetry.Noop(), fmt.Errorf("unsupported telemetry provider %q", cfg.Provider)
	}
}

func serveMetrics(listen string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(listen, mux); err != nil {
		log.Error().Err(err).Msg("metrics server stopped")
	}
}
