package main

import (
	"context"
	stderrors "errors"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/happyflowgames/spawnpool/internal/engine"
	"github.com/happyflowgames/spawnpool/internal/level"
	"github.com/happyflowgames/spawnpool/pkg/config"
	"github.com/happyflowgames/spawnpool/pkg/errors"
	"github.com/happyflowgames/spawnpool/pkg/logger"
	"github.com/happyflowgames/spawnpool/pkg/metrics"
	"github.com/happyflowgames/spawnpool/pkg/observability"
	"github.com/happyflowgames/spawnpool/pkg/pool"
)

type simulateOptions struct {
	configFile  string
	ticks       int
	ticksSet    bool
	seed        uint64
	seedSet     bool
	metricsAddr string
	trace       bool
	logLevel    string
	// traceOutput receives spans when trace is set; nil means stderr
	traceOutput io.Writer
}

// simulationReport is printed by the simulate command.
type simulationReport struct {
	level.Report
	Level      string                `json:"level"`
	Seed       uint64                `json:"seed"`
	DurationMS int64                 `json:"duration_ms"`
	RSSBytes   uint64                `json:"rss_bytes,omitempty"`
	AfterReset map[string]pool.Stats `json:"after_reset"`
}

func loadSimulationConfig(opts simulateOptions) (*config.Config, error) {
	var cfg *config.Config
	if opts.configFile == "" {
		cfg = config.Default()
	} else {
		var err error
		if cfg, err = config.LoadFile(opts.configFile); err != nil {
			return nil, err
		}
	}

	if opts.ticksSet {
		cfg.Loop.PlayTicks = opts.ticks
	}
	if opts.seedSet {
		cfg.Loop.Seed = opts.seed
	}
	if opts.metricsAddr != "" {
		cfg.Metrics.Addr = opts.metricsAddr
	}
	if opts.trace {
		cfg.Tracing.Enabled = true
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	// stdout carries the report
	if len(cfg.Logging.OutputPaths) == 0 {
		cfg.Logging.OutputPaths = []string{"stderr"}
	}
	return cfg, cfg.Validate()
}

func simulate(ctx context.Context, opts simulateOptions, out io.Writer) error {
	cfg, err := loadSimulationConfig(opts)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	runID := uuid.NewString()
	ctx = context.WithValue(ctx, logger.RunIDKey, runID)
	ctx = context.WithValue(ctx, logger.LevelNameKey, cfg.Name)
	runLog := logger.WithContext(ctx, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)
	var srv *http.Server
	if cfg.Metrics.Addr != "" {
		if srv, err = serveMetrics(cfg.Metrics.Addr, reg, runLog); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	tracingCfg := observability.DefaultTracingConfig()
	tracingCfg.Enabled = cfg.Tracing.Enabled
	tracingCfg.ServiceName = cfg.Tracing.ServiceName
	tracingCfg.ServiceVersion = version
	tracingCfg.SamplingRate = cfg.Tracing.SampleRate
	tracingCfg.Writer = opts.traceOutput
	tracing, err := observability.InitTracing(tracingCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := tracing.Shutdown(context.Background()); err != nil {
			runLog.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	world := engine.NewWorld(log)
	rng := rand.New(rand.NewPCG(cfg.Loop.Seed, cfg.Loop.Seed))
	f, err := level.NewFactory(world, cfg, log, pool.WithObserver(collector), pool.WithRand(rng))
	if err != nil {
		return err
	}

	runner := level.NewRunner(f, world, cfg.Loop,
		level.WithLogger(log),
		level.WithTracing(tracing),
		level.WithMetrics(collector),
		level.WithRunID(runID),
	)

	start := time.Now()
	runLog.Info("starting simulation",
		zap.String("config", opts.configFile),
		zap.Int("play_ticks", cfg.Loop.PlayTicks),
		zap.Uint64("seed", cfg.Loop.Seed))

	if _, err := runner.Precreate(ctx); err != nil {
		return err
	}
	if err := runner.Play(ctx, cfg.Loop.PlayTicks); err != nil {
		return err
	}
	report := simulationReport{
		Report: runner.Report(),
		Level:  cfg.Name,
		Seed:   cfg.Loop.Seed,
	}
	if err := runner.End(ctx); err != nil {
		return err
	}
	report.AfterReset = runner.Report().Pools
	report.DurationMS = time.Since(start).Milliseconds()
	report.RSSBytes = residentMemory(runLog)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	if _, err := out.Write(append(data, '\n')); err != nil {
		return err
	}

	if srv != nil {
		runLog.Info("run finished, serving metrics until interrupted", zap.String("addr", cfg.Metrics.Addr))
		<-ctx.Done()
	}
	return nil
}

// serveMetrics binds addr before returning so that a taken port fails the run.
func serveMetrics(addr string, reg *prometheus.Registry, log *zap.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "cannot serve metrics").
			WithDetail("addr", addr)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	return srv, nil
}

func residentMemory(log *zap.Logger) uint64 {
	proc, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec // pid fits in int32
	if err != nil {
		log.Debug("process lookup failed", zap.Error(err))
		return 0
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		log.Debug("memory info unavailable", zap.Error(err))
		return 0
	}
	return mem.RSS
}
