package main

// #region imports
import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/cache"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/canvas"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/config"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/controller"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/logging"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/metrics"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/pipeline"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/policy"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/reasoner"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/state"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/transport"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/transport/openai"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/transport/rpc"
)

// #endregion

// #region app

// app holds everything a command needs, built from one config.
type app struct {
	cfg      config.Config
	store    *state.Store
	cache    *cache.Cache
	policies *policy.Manager
	registry *prometheus.Registry
	pipe     *pipeline.Pipeline
	closers  []io.Closer
}

// loadConfig reads --config and applies --db.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if dbPath != "" {
		cfg.Database = dbPath
	}
	return cfg, nil
}

// newApp opens the database, replays policy history and wires the pipeline.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}
	a.closers = append(a.closers, logging.Setup(cfg.LogFile))

	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg
	st, err := state.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open state %s: %w", cfg.Database, err)
	}
	a.store = st
	a.closers = append(a.closers, st)

	m := metrics.New(a.registry)

	canvasStore, err := a.canvasStore(ctx)
	if err != nil {
		return err
	}
	a.cache = cache.New(canvasStore, cache.Options{
		Retries: cfg.Cache.BuildRetries,
		Backoff: cfg.Cache.BuildBackoff,
		Metrics: m,
	})

	a.policies = policy.NewManager(cfg.Policy, st.Observations())
	if err := a.policies.Replay(ctx, st.Observations()); err != nil {
		return fmt.Errorf("replay policy history: %w", err)
	}

	ctrl, err := controller.New(cfg.Controller, a.policies.Recommender())
	if err != nil {
		return err
	}

	model, err := a.model()
	if err != nil {
		return err
	}

	a.pipe = pipeline.New(pipeline.Deps{
		Encoder:    canvas.NewHeuristicEncoder(canvas.DefaultEncoderConfig()),
		Cache:      a.cache,
		Controller: ctrl,
		Reasoner:   reasoner.New(model, cfg.Reasoner, m),
		Policies:   a.policies,
		TraceDB:    st.DB(),
		Metrics:    m,
		Baseline:   model,
		Config:     cfg.Pipeline,
	})
	log.Printf("[BRAIN] ready db=%s cache=%s provider=%s", cfg.Database, cfg.Cache.Backend, cfg.Transport.Provider)
	return nil
}

func (a *app) canvasStore(ctx context.Context) (cache.Store, error) {
	switch a.cfg.Cache.Backend {
	case "memory":
		return cache.NewMemoryStore(), nil
	case "redis":
		rs, err := cache.NewRedisStore(ctx, a.cfg.Cache.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rs)
		return rs, nil
	default:
		return a.store.Canvases(), nil
	}
}

// model builds the configured provider, rate limited when rate_per_sec > 0.
func (a *app) model() (transport.Model, error) {
	tc := a.cfg.Transport
	var model transport.Model
	switch tc.Provider {
	case "openai":
		m, err := openai.New(openai.Config{
			APIKey:     tc.APIKey,
			BaseURL:    tc.BaseURL,
			SmallModel: tc.SmallModel,
			LargeModel: tc.LargeModel,
		})
		if err != nil {
			return nil, err
		}
		model = m
	case "rpc":
		c, err := rpc.NewClient(tc.RPCAddr)
		if err != nil {
			return nil, fmt.Errorf("connect model service %s: %w", tc.RPCAddr, err)
		}
		a.closers = append(a.closers, c)
		model = c
	default:
		model = transport.NewScripted(nil)
	}
	if tc.RatePerSec > 0 {
		model = transport.NewRateLimited(model, tc.RatePerSec, tc.Burst)
	}
	return model, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			log.Printf("[BRAIN] close: %v", err)
		}
	}
}

// #endregion app
