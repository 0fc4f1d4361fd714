package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/mlo-primary/core"
	"github.com/signalsfoundry/mlo-primary/internal/config"
	"github.com/signalsfoundry/mlo-primary/internal/logging"
	"github.com/signalsfoundry/mlo-primary/internal/observability"
	"github.com/signalsfoundry/mlo-primary/kb"
)

var errNoScenario = errors.New("a --scenario file is required")

// env is everything a subcommand needs, built from the persistent flags.
type env struct {
	cfg       config.Config
	log       logging.Logger
	reg       *kb.Registry
	eng       *core.Engine
	collector *observability.EngineCollector

	shutdownTracing func(context.Context) error
}

func setup(ctx context.Context, logOut io.Writer) (*env, error) {
	if rootFlags.scenario == "" {
		return nil, errNoScenario
	}

	cfg := config.Default()
	if rootFlags.config != "" {
		loaded, err := config.Load(rootFlags.config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	logCfg := cfg.LoggerConfig()
	logCfg.Output = logOut
	log := logging.NewFromEnv(logCfg).With(logging.String("component", "primaryctl"))

	shutdown, err := observability.InitTracing(ctx, cfg.TracingOptions(), log)
	if err != nil {
		return nil, err
	}

	reg := kb.NewRegistry()
	sc, err := kb.LoadScenarioFile(reg, rootFlags.scenario)
	if err != nil {
		observability.ShutdownWithTimeout(ctx, shutdown, log)
		return nil, err
	}
	for _, psoc := range sc.PSOCs {
		limit, ok := cfg.Quota(psoc)
		if !ok {
			continue
		}
		if err := reg.SetQuota(psoc, limit); err != nil {
			observability.ShutdownWithTimeout(ctx, shutdown, log)
			return nil, fmt.Errorf("apply quota: %w", err)
		}
	}

	power, err := cfg.PowerTable()
	if err != nil {
		observability.ShutdownWithTimeout(ctx, shutdown, log)
		return nil, err
	}
	collector, err := observability.NewEngineCollector(prometheus.NewRegistry())
	if err != nil {
		observability.ShutdownWithTimeout(ctx, shutdown, log)
		return nil, err
	}

	opts := []core.EngineOption{
		core.WithLogger(log),
		core.WithMetricsRecorder(collector),
		core.WithPowerLookup(power),
	}
	if adj := cfg.Adjacency(); adj != nil {
		opts = append(opts, core.WithAdjacency(adj))
	}
	eng := core.NewEngine(reg, cfg.EnginePolicy(), opts...)

	log.Info(ctx, "scenario loaded",
		logging.String("path", rootFlags.scenario),
		logging.Int("psocs", len(sc.PSOCs)),
		logging.Int("vdevs", len(sc.VdevIDs)),
		logging.Int("ml_peers", len(sc.MLDs)),
	)
	return &env{
		cfg:             cfg,
		log:             log,
		reg:             reg,
		eng:             eng,
		collector:       collector,
		shutdownTracing: shutdown,
	}, nil
}

func (e *env) close(ctx context.Context) {
	observability.ShutdownWithTimeout(ctx, e.shutdownTracing, e.log)
}
