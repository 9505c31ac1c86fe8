package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/mrz1836/courier/internal/app"
	courierr "github.com/mrz1836/courier/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	watchMetricsAddr string
	watchOnce        bool
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Track pending transactions until they are mined",
	Long: `Poll every configured chain for receipts of pending transactions and
mark them succeeded or failed. Runs until interrupted unless --once is set.

With --metrics-addr, Prometheus metrics are served on /metrics.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc, err := openService(app.Options{Registerer: reg})
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	if watchOnce {
		n, err := svc.Watcher.Poll(ctx)
		formatter.Statusf("Finalized %d transaction(s), %d still pending.", n, len(svc.Pending()))
		return err
	}

	addr := watchMetricsAddr
	if addr == "" {
		addr = cfg.Metrics.ListenAddr
	}
	if addr != "" {
		srv, err := serveMetrics(addr, reg)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		formatter.Statusf("Serving metrics on %s/metrics", addr)
	}

	formatter.Statusf("Watching %d pending transaction(s). Press Ctrl+C to stop.", len(svc.Pending()))
	return svc.Watch(ctx)
}

func serveMetrics(addr string, reg *prometheus.Registry) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, courierr.Wrap(err, "listening on %s", addr)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	return srv, nil
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "poll once and exit")
	rootCmd.AddCommand(watchCmd)
}
