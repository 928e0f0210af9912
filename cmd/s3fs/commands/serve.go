package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/mwantia/s3fs/config"
	"github.com/spf13/cobra"
)

var (
	listenAddr      string
	refreshInterval time.Duration
	refreshOnStart  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Keep the filesystem mounted and refresh its metadata cache periodically",
	Long: `Mount the filesystem and keep it mounted until interrupted.

Prometheus metrics are exposed on /metrics and a liveness probe on /healthz.
With --refresh-interval the metadata cache is rebuilt from the bucket on
every tick.

Examples:
  # Serve metrics on the configured address
  s3fs serve --config /etc/s3fs/config.yaml

  # Rebuild the cache every hour
  s3fs serve --refresh-interval 1h --refresh-on-start`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Metrics listen address (default: metrics.listen from config)")
	serveCmd.Flags().DurationVar(&refreshInterval, "refresh-interval", 0, "Interval between full cache refreshes (0 disables)")
	serveCmd.Flags().BoolVar(&refreshOnStart, "refresh-on-start", false, "Refresh the whole cache before serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fs, unmount, err := mountFileSystem(ctx, func(cfg *config.Config) {
		cfg.Metrics.Enabled = true
		if listenAddr != "" {
			cfg.Metrics.Listen = listenAddr
		}
	})
	if err != nil {
		return err
	}
	defer unmount()

	if refreshOnStart {
		result, err := fs.Refresh(ctx, "")
		if err != nil {
			return fmt.Errorf("initial refresh failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), result.Message())
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", fs.Metrics().Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              fs.Config().Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverDone := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
		close(serverDone)
	}()

	if refreshInterval > 0 {
		go fs.RefreshEvery(ctx, refreshInterval)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s, metrics on %s. Press Ctrl+C to stop.\n", fs.Namespace().Root(), srv.Addr)

	select {
	case <-ctx.Done():
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("metrics server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
