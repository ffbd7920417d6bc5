package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/akamensky/argparse"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/term"

	"github.com/andesco/whitelabel/handlers"
	"github.com/andesco/whitelabel/pkg/config"
	"github.com/andesco/whitelabel/pkg/metrics"
	"github.com/andesco/whitelabel/pkg/ruleset"
)

func main() {
	// A missing .env is fine; the environment and defaults still apply.
	_ = godotenv.Load()

	parser := argparse.NewParser("whitelabel", "White-label rewriting reverse proxy")

	port := parser.String("p", "port", &argparse.Options{
		Required: false,
		Help:     "Port the proxy listens on (overrides PORT)",
	})
	configPath := parser.String("c", "config", &argparse.Options{
		Required: false,
		Default:  os.Getenv("CONFIG"),
		Help:     "Config file (.yaml, .yml or .toml)",
	})
	rulesetPath := parser.String("r", "ruleset", &argparse.Options{
		Required: false,
		Help:     "File, directory or ';'-separated list of ruleset YAML files (overrides RULESET)",
	})
	logLevel := parser.String("", "log-level", &argparse.Options{
		Required: false,
		Help:     "debug, info, warn or error (overrides LOG_LEVEL)",
	})
	metricsAddr := parser.String("", "metrics-addr", &argparse.Options{
		Required: false,
		Help:     "Address for the Prometheus endpoint, e.g. :9090 (overrides METRICS_ADDR)",
	})

	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *rulesetPath != "" {
		cfg.Ruleset = *rulesetPath
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	if err := cfg.Normalize(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(tint.NewHandler(
		os.Stderr,
		&tint.Options{NoColor: !term.IsTerminal(int(os.Stderr.Fd())), Level: level},
	)))

	rules, err := ruleset.Load(cfg.Ruleset)
	if err != nil {
		slog.Error("Could not load ruleset", "path", cfg.Ruleset, "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if cfg.Metrics.Addr != "" {
		go func() {
			slog.Info("Metrics listening", "addr", cfg.Metrics.Addr)
			err := http.ListenAndServe(cfg.Metrics.Addr, metrics.Handler(reg))
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server stopped", "error", err)
			}
		}()
	}

	app := handlers.NewApp(cfg, rules, m)

	slog.Info("White-label proxy running", "port", cfg.Server.Port)
	slog.Info("Proxying", "upstream", cfg.Target.BaseURL)
	slog.Info("Branding", "site_name", cfg.Branding.SiteName)

	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}
