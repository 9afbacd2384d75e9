package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/commflow/config"
	"github.com/BaSui01/commflow/group"
	"github.com/BaSui01/commflow/internal/telemetry"
	"github.com/BaSui01/commflow/quick"
	"github.com/BaSui01/commflow/tensor"
	"github.com/BaSui01/commflow/types"
)

// runBench spins up N in-process ranks sharing one exchange and drives
// them through broadcast, allreduce and barrier phases, reporting
// per-phase throughput. It doubles as an end-to-end smoke test of the
// dispatch path.
func runBench(args []string) {
	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	ranks := fs.Int("ranks", 4, "Number of in-process ranks")
	rounds := fs.Int("rounds", 100, "Collective rounds per phase")
	numel := fs.Int("numel", 1024, "Elements per tensor")
	metricsAddr := fs.String("metrics", "", "Serve prometheus metrics on this address")
	fs.Parse(args)

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := cfg.Log.BuildLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Fatal("telemetry init failed", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(ctx); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		logger.Info("serving metrics", zap.String("addr", *metricsAddr))
	}

	groups, err := quick.LocalGroups(*ranks,
		quick.WithLogger(logger),
		quick.WithMetrics(),
	)
	if err != nil {
		logger.Fatal("group construction failed", zap.Error(err))
	}
	defer func() {
		for _, g := range groups {
			g.Close()
		}
	}()

	ctx := context.Background()
	phases := []struct {
		name string
		run  func(context.Context, *group.Group, *tensor.Dense) error
	}{
		{"broadcast", benchBroadcast},
		{"allreduce", benchAllreduce},
		{"barrier", benchBarrier},
	}

	for _, phase := range phases {
		start := time.Now()
		var eg errgroup.Group
		for _, g := range groups {
			eg.Go(func() error {
				buf := tensor.NewDense(types.NewDevice(types.DeviceCPU), *numel)
				buf.Fill(float64(g.Rank()))
				for i := 0; i < *rounds; i++ {
					if err := phase.run(ctx, g, buf); err != nil {
						return fmt.Errorf("rank %d %s round %d: %w", g.Rank(), phase.name, i, err)
					}
				}
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			logger.Fatal("benchmark failed", zap.String("phase", phase.name), zap.Error(err))
		}
		elapsed := time.Since(start)
		logger.Info("phase complete",
			zap.String("phase", phase.name),
			zap.Int("ranks", *ranks),
			zap.Int("rounds", *rounds),
			zap.Duration("elapsed", elapsed),
			zap.Float64("ops_per_sec", float64(*rounds)/elapsed.Seconds()))
	}
}

func benchBroadcast(ctx context.Context, g *group.Group, buf *tensor.Dense) error {
	w, err := g.Broadcast(ctx, []types.Tensor{buf}, types.DefaultBroadcastOptions())
	if err != nil {
		return err
	}
	return w.Wait(ctx)
}

func benchAllreduce(ctx context.Context, g *group.Group, buf *tensor.Dense) error {
	w, err := g.Allreduce(ctx, []types.Tensor{buf}, types.DefaultAllreduceOptions())
	if err != nil {
		return err
	}
	return w.Wait(ctx)
}

func benchBarrier(ctx context.Context, g *group.Group, buf *tensor.Dense) error {
	w, err := g.Barrier(ctx, types.DefaultBarrierOptions())
	if err != nil {
		return err
	}
	return w.Wait(ctx)
}
