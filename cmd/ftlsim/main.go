// Command ftlsim drives the hot/cold FTL core standalone: it loads
// configuration, builds a Core, feeds it a synthetic request
// workload through the SPSC ring, and serves Prometheus metrics.
//
// The real NVMe command front-end and device-timing model are treated
// as external collaborators out of scope for this binary; it supplies
// a minimal synthetic generator in their place so the core can be
// exercised end to end.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"hcftl/internal/config"
	"hcftl/internal/ftl"
	"hcftl/internal/reqring"
	"hcftl/internal/request"
)

var (
	configFile   string
	metricsAddr  string
	numOps       int
	hotFraction  float64
	logLevelFlag string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ftlsim",
		Short: "Run the hot/cold flash translation layer simulator",
		RunE:  run,
	}
	cmd.Flags().StringVar(&configFile, "config", "", "path to a YAML/TOML/JSON config file (optional)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9110", "address to serve Prometheus /metrics on")
	cmd.Flags().IntVar(&numOps, "ops", 50000, "number of synthetic host requests to service before exiting")
	cmd.Flags().Float64Var(&hotFraction, "hot-fraction", 0.05, "fraction of ops targeting a small hot working set")
	cmd.Flags().StringVar(&logLevelFlag, "log-level", "info", "logrus level: debug, info, warn, error")
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	log := logrus.New()
	level, err := logrus.ParseLevel(logLevelFlag)
	if err != nil {
		return fmt.Errorf("ftlsim: bad --log-level: %w", err)
	}
	log.SetLevel(level)

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	core, err := ftl.New(cfg, reg, log)
	if err != nil {
		return fmt.Errorf("ftlsim: building core: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		log.WithField("addr", metricsAddr).Info("ftlsim: serving metrics")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("ftlsim: metrics server stopped")
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	in := reqring.New[*request.Request](cfg.RingCapacity)
	out := reqring.New[*request.Completion](cfg.RingCapacity)

	workerCtx, workerCancel := context.WithCancel(ctx)
	workerErr := make(chan error, 1)
	go func() {
		workerErr <- core.Run(workerCtx, in, out)
	}()

	feedSyntheticWorkload(ctx, cfg, in, out, log)
	workerCancel()

	_ = srv.Shutdown(context.Background())

	if err := <-workerErr; err != nil && err != context.Canceled {
		return fmt.Errorf("ftlsim: worker stopped: %w", err)
	}
	return nil
}

// feedSyntheticWorkload pushes numOps requests drawn from a small hot
// working set plus a large cold range, mimicking the update-interval
// skew the classifier (package classifier) is built to detect.
func feedSyntheticWorkload(ctx context.Context, cfg *config.Config, in *reqring.Ring[*request.Request], out *reqring.Ring[*request.Completion], log *logrus.Logger) {
	rng := rand.New(rand.NewSource(1))
	ttPgs := (cfg.NChs * cfg.LunsPerCh) * cfg.PlsPerLun * cfg.BlksPerPl * cfg.PgsPerBlk
	hotSetSize := ttPgs / 20
	if hotSetSize < 1 {
		hotSetSize = 1
	}

	for i := 0; i < numOps; i++ {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var lpn int
		if rng.Float64() < hotFraction {
			lpn = rng.Intn(hotSetSize)
		} else {
			lpn = rng.Intn(ttPgs)
		}
		req := &request.Request{
			Opcode: request.OpWrite,
			SLBA:   uint64(lpn) * uint64(cfg.SecsPerPg),
			NLB:    1,
			STime:  uint64(i),
		}
		for !in.Push(req) {
			time.Sleep(time.Millisecond)
		}
		for {
			if _, ok := out.Pop(); ok {
				break
			}
			time.Sleep(time.Millisecond)
		}
	}
}
