package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	dsdetect "github.com/e7canasta/ds-detect"
	"github.com/e7canasta/ds-detect/internal/config"
	"github.com/e7canasta/ds-detect/internal/sink"
)

// Version information
const version = "v0.1.0"

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "Path to YAML configuration file (optional)")
	envFile := flag.String("env", ".env", "Path to .env file (skipped if missing)")
	input := flag.String("input", "", "Input video file (overrides config)")
	output := flag.String("output", "", "Detections CSV file (overrides config)")
	headless := flag.Bool("headless", false, "Use fakesink instead of nveglglessink")
	debug := flag.Bool("debug", false, "Enable debug logging")
	logJSON := flag.Bool("log-json", false, "Log in JSON instead of text")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ds-detect %s\n", version)
		os.Exit(0)
	}

	setupLogger(*debug, *logJSON)

	cfg, err := loadConfig(*configPath, *envFile)
	if err != nil {
		slog.Error("ds-detect: failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Flags override file and environment, but only when given explicitly
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			cfg.Input = *input
		case "output":
			cfg.Output.CSV.Path = *output
		case "headless":
			cfg.Render.Headless = *headless
		}
	})
	if err := config.Validate(cfg); err != nil {
		slog.Error("ds-detect: invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("ds-detect: starting",
		"version", version,
		"config", *configPath,
		"input", cfg.Input,
		"csv", cfg.Output.CSV.Path,
		"headless", cfg.Render.Headless,
		"debug", *debug,
	)

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	opts, err := buildSinks(ctx, cfg)
	if err != nil {
		slog.Error("ds-detect: failed to create sinks", "error", err)
		os.Exit(1)
	}

	pipeline, err := dsdetect.New(cfg.Pipeline(), opts...)
	if err != nil {
		slog.Error("ds-detect: failed to create pipeline", "error", err)
		os.Exit(1)
	}

	stopStats := startStatsReporter(ctx, pipeline, cfg.StatsInterval())

	errChan := make(chan error, 1)
	go func() {
		errChan <- pipeline.Run(ctx) // Always send, even if nil
	}()

	var runErr error
	select {
	case sig := <-sigChan:
		slog.Info("ds-detect: received shutdown signal", "signal", sig)
		cancel()
		runErr = <-errChan
	case runErr = <-errChan:
	}
	stopStats()

	printFinalStats(pipeline.Stats())

	if runErr != nil {
		slog.Error("ds-detect: pipeline failed", "error", runErr)
		os.Exit(1)
	}
	slog.Info("ds-detect: stopped successfully")
}

func setupLogger(debug, json bool) {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// loadConfig layers the YAML file, the .env file and DSDETECT_* variables.
func loadConfig(path, envFile string) (*config.Config, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildSinks creates the optional asynchronous sinks.
func buildSinks(ctx context.Context, cfg *config.Config) ([]dsdetect.Option, error) {
	var opts []dsdetect.Option

	if path := cfg.Output.SQLite.Path; path != "" {
		db, err := sink.NewSQLite(path)
		if err != nil {
			return nil, err
		}
		opts = append(opts, dsdetect.WithSink("sqlite", db))
		slog.Info("ds-detect: sqlite sink enabled", "path", path)
	}

	if m := cfg.Output.MQTT; m.Broker != "" {
		mqttSink, err := sink.NewMQTT(sink.MQTTConfig{
			Broker:   m.Broker,
			ClientID: m.ClientID,
			Topic:    m.Topic,
			QoS:      m.QoS,
			Encoding: m.Encoding,
		})
		if err != nil {
			return nil, err
		}

		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := mqttSink.Connect(connectCtx); err != nil {
			// The client keeps retrying in the background; batches fail until it connects
			slog.Warn("ds-detect: mqtt broker not reachable yet", "broker", m.Broker, "error", err)
		}

		opts = append(opts, dsdetect.WithSink("mqtt", mqttSink))
		slog.Info("ds-detect: mqtt sink enabled", "broker", m.Broker, "topic", m.Topic, "encoding", m.Encoding)
	}

	return opts, nil
}
