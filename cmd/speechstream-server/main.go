package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/davecgh/go-spew/spew"
	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/observability"
	"google.golang.org/grpc"

	"github.com/xaionaro-go/speechstream/pkg/config"
	"github.com/xaionaro-go/speechstream/pkg/decoder"
	"github.com/xaionaro-go/speechstream/pkg/decoder/implementations/kalditcp"
	"github.com/xaionaro-go/speechstream/pkg/decoder/implementations/stub"
	"github.com/xaionaro-go/speechstream/pkg/metrics"
	"github.com/xaionaro-go/speechstream/pkg/server"
	"github.com/xaionaro-go/speechstream/pkg/session"
)

func main() {
	loggerLevel := logger.LevelInfo
	pflag.Var(&loggerLevel, "log-level", "Log level")
	configPath := pflag.String("config", "", "path to the YAML config file")
	listenAddr := pflag.String("listen", "", "address to serve gRPC at (overrides the config)")
	workers := pflag.Uint("workers", 0, "amount of worker goroutines (overrides the config)")
	metricsAddr := pflag.String("metrics-listen", "", "address to serve Prometheus metrics at (overrides the config)")
	resources := pflag.StringSlice("resource", nil, "a model file the engine depends on (adds to the config)")
	pflag.Parse()

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	cfg, err := config.Load(*configPath)
	assertNoError(ctx, err)
	if *listenAddr != "" {
		cfg.ListenAddress = *listenAddr
	}
	if *workers != 0 {
		cfg.Workers = *workers
	}
	if *metricsAddr != "" {
		cfg.Metrics.ListenAddress = *metricsAddr
	}
	cfg.Engine.Resources = append(cfg.Engine.Resources, *resources...)
	assertNoError(ctx, cfg.Validate())
	logger.Debugf(ctx, "config: %s", spew.Sdump(cfg))

	ctx, cancelFn := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancelFn()

	engine, err := newEngine(cfg.Engine)
	assertNoError(ctx, err)
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Errorf(ctx, "unable to close the engine: %v", err)
		}
	}()

	registry, err := session.NewRegistry(ctx, engine, cfg.PrewarmSession)
	assertNoError(ctx, err)
	defer func() {
		if err := registry.Close(); err != nil {
			logger.Errorf(ctx, "unable to close the sessions: %v", err)
		}
	}()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if cfg.Metrics.ListenAddress != "" {
		metricsListener, err := net.Listen("tcp", cfg.Metrics.ListenAddress)
		assertNoError(ctx, err)
		observability.Go(ctx, func() {
			if err := metrics.Serve(ctx, metricsListener, promRegistry); err != nil {
				logger.Errorf(ctx, "the metrics server failed: %v", err)
			}
		})
	}

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	assertNoError(ctx, err)
	logger.Infof(ctx, "listening at %s with %d workers (engine: %s)", listener.Addr(), cfg.Workers, cfg.Engine.Type)

	var grpcOpts []grpc.ServerOption
	if cfg.MaxRecvMessageSize > 0 {
		grpcOpts = append(grpcOpts, grpc.MaxRecvMsgSize(cfg.MaxRecvMessageSize))
	}
	srv := server.New(registry, cfg.Workers, metrics.NewServer(promRegistry), grpcOpts...)
	assertNoError(ctx, srv.Serve(ctx, listener))
	logger.Infof(ctx, "stopped")
}

func newEngine(cfg config.EngineConfig) (decoder.Engine, error) {
	switch cfg.Type {
	case config.EngineTypeStub:
		return stub.New(cfg.Stub)
	case config.EngineTypeKaldiTCP:
		return kalditcp.New(cfg.KaldiTCP)
	default:
		return nil, fmt.Errorf("unknown engine type '%s'", cfg.Type)
	}
}

func assertNoError(ctx context.Context, err error) {
	if err != nil {
		logger.Errorf(ctx, "%v", err)
		belt.Flush(ctx)
		os.Exit(1)
	}
}
