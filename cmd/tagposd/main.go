package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rfidlab/tagpos/pkg"
	"github.com/rfidlab/tagpos/pkg/api"
	"github.com/rfidlab/tagpos/pkg/config"
	"github.com/rfidlab/tagpos/pkg/logx"
	"github.com/rfidlab/tagpos/pkg/metrics"
	"github.com/rfidlab/tagpos/pkg/mqtt"
	"github.com/rfidlab/tagpos/pkg/pidfile"
	"github.com/rfidlab/tagpos/pkg/positioning"
	"github.com/rfidlab/tagpos/pkg/runhist"
	"github.com/rfidlab/tagpos/pkg/store"
	"github.com/rfidlab/tagpos/pkg/tagsee"
	"github.com/rfidlab/tagpos/pkg/telem"
)

var (
	envFile  = flag.String("env", ".env", "Path to optional .env configuration file")
	logLevel = flag.String("log-level", "", "Override log level (trace|debug|info|warn|error)")
	pidPath  = flag.String("pid-file", "", "Override PID file path")
	oneshot  = flag.Bool("oneshot", false, "Run the positioning pipeline once, print the report and exit")
	version  = flag.Bool("version", false, "Show version information")
)

const (
	AppName    = "tagposd"
	AppVersion = "1.0.0"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", AppName, AppVersion)
		os.Exit(0)
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *pidPath != "" {
		cfg.PIDFile = *pidPath
	}

	logger := logx.NewLogger(cfg.LogLevel, AppName)

	st, err := store.Open(cfg.DBPath, logger.WithComponent("store"))
	if err != nil {
		logger.Error("failed to open store", "error", err, "db_path", cfg.DBPath)
		os.Exit(1)
	}
	defer st.Close()

	params := positioning.Params{
		WarmupSize:   cfg.WarmupSize,
		WindowSize:   cfg.WindowSize,
		FeatureCount: cfg.FeatureCount,
		Model:        cfg.Model,
		KNNNeighbors: cfg.KNNNeighbors,
	}
	pipeline := positioning.NewPipeline(st, logger.WithComponent("pipeline"))

	if *oneshot {
		runOnce(pipeline, params, logger)
		return
	}

	pidFile := pidfile.New(cfg.PIDFile)
	if err := pidFile.Acquire(); err != nil {
		logger.Error("failed to acquire PID file", "error", err, "path", cfg.PIDFile)
		os.Exit(1)
	}
	defer func() {
		if err := pidFile.Release(); err != nil {
			logger.Error("failed to release PID file", "error", err)
		}
	}()

	logger.Info("starting positioning daemon", "version", AppVersion, "pid", os.Getpid())

	telemetry, err := telem.NewStore(cfg.RetentionHours, cfg.MaxEvents)
	if err != nil {
		logger.Error("failed to create telemetry store", "error", err)
		os.Exit(1)
	}

	history, err := runhist.Open(cfg.RunHistoryPath, cfg.RunHistoryLimit, logger.WithComponent("runhist"))
	if err != nil {
		logger.Error("failed to open run history", "error", err, "path", cfg.RunHistoryPath)
		os.Exit(1)
	}
	defer history.Close()

	publisher := mqtt.NewClient(&mqtt.Config{
		Broker:      cfg.MQTTBroker,
		Port:        cfg.MQTTPort,
		ClientID:    cfg.MQTTClientID,
		Username:    cfg.MQTTUsername,
		Password:    cfg.MQTTPassword,
		TopicPrefix: cfg.MQTTTopicPrefix,
		QoS:         1,
		Enabled:     cfg.MQTTEnabled,
	}, logger.WithComponent("mqtt"))
	if err := publisher.Connect(); err != nil {
		logger.Error("failed to connect to mqtt broker", "error", err)
		os.Exit(1)
	}
	defer publisher.Disconnect()

	telemetry.SetEventCallback(func(event *pkg.Event) {
		if err := publisher.PublishEvent(event); err != nil {
			logger.Warn("failed to publish event", "error", err)
		}
	})

	var m *metrics.Metrics
	if cfg.MetricsListener {
		m = metrics.New(logger.WithComponent("metrics"))
		m.Serve(cfg.APIHost, cfg.MetricsPort)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.TagSeeEnabled {
		client := tagsee.NewClient(cfg.TagSeeHost, cfg.TagSeePort, logger.WithComponent("tagsee"))
		agents, err := client.DiscoverAgents(ctx)
		if err != nil {
			logger.Error("failed to discover reader agents", "error", err)
			os.Exit(1)
		}
		if len(agents) == 0 {
			logger.Warn("no reader agents discovered, collection disabled")
		}
		for _, agent := range agents {
			collector := tagsee.NewCollector(client, agent.IP, st, telemetry, logger.WithComponent("collector"))
			if m != nil {
				readings := m.ReadingsIngested
				collector.SetBatchHook(func(count int) { readings.Add(float64(count)) })
			}
			go collector.Run(ctx)
			logger.Info("reading collection started", "agent_ip", agent.IP, "agent_name", agent.Name)
		}
	}

	server := api.NewServer(st, pipeline, history, telemetry, publisher, m, params, &api.Config{
		Host:    cfg.APIHost,
		Port:    cfg.APIPort,
		AuthKey: cfg.APIAuthKey,
	}, logger.WithComponent("api"))
	server.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())
	cancel()
}

// runOnce executes a single pipeline run and prints the result as JSON.
func runOnce(pipeline *positioning.Pipeline, params positioning.Params, logger *logx.Logger) {
	result, err := pipeline.Run(context.Background(), params)
	if err != nil {
		logger.Error("pipeline run failed", "error", err)
		os.Exit(1)
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		logger.Error("failed to encode result", "error", err)
		os.Exit(1)
	}
}
