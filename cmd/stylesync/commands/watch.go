package commands

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/stylesync/internal/config"
	"git.home.luguber.info/inful/stylesync/internal/logfields"
	"git.home.luguber.info/inful/stylesync/internal/metrics"
	"git.home.luguber.info/inful/stylesync/internal/watch"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Output      string `short:"o" help:"Output directory (overrides output_dir)"`
	MetricsAddr string `name:"metrics-addr" help:"Serve Prometheus metrics on this address (e.g. :9090)"`
	ModeFlags `embed:""`
}

func (w *WatchCmd) Run(g *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	logger := g.logger()

	ctx, cancel := signalContext()
	defer cancel()

	var recorder metrics.Recorder
	if w.MetricsAddr != "" {
		reg := prom.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(reg)
		srv, err := startMetricsServer(w.MetricsAddr, reg, logger)
		if err != nil {
			return err
		}
		defer shutdownServer(srv, logger)
	}

	svc := newReloadingService(cfg, logger, recorder)
	defer svc.Close()

	watcher := watch.New(svc, cfg, watch.Options{
		OutputDir: w.Output,
		DevMode:   w.Override(),
		Logger:    logger,
	})
	return watcher.Run(ctx)
}

// startMetricsServer binds addr before returning so a busy port fails the
// command instead of a background goroutine.
func startMetricsServer(addr string, reg *prom.Registry, logger *slog.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(reg))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", logfields.Error(err))
		}
	}()
	logger.Info("Serving metrics", slog.String("addr", ln.Addr().String()))
	return srv, nil
}

func shutdownServer(srv *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("Metrics server shutdown failed", logfields.Error(err))
	}
}
