package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/vitwit/chaindonate/api"
	"github.com/vitwit/chaindonate/metrics"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, log, err := loadConfig(flags)
			if err != nil {
				return err
			}

			var (
				rec     metrics.Recorder = metrics.NoopRecorder{}
				handler http.Handler
			)
			if cfg.Metrics.Enabled {
				reg := prometheus.NewRegistry()
				reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
				prom, err := metrics.NewPrometheusRecorder(reg)
				if err != nil {
					return err
				}
				rec, handler = prom, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
			}

			engine, err := buildEngine(ctx, cfg, log, rec)
			if err != nil {
				return err
			}
			defer engine.Close()

			gin.SetMode(gin.ReleaseMode)
			srv := &http.Server{
				Addr:         cfg.Server.Addr,
				Handler:      api.NewRouter(engine, handler, log),
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info("http server listening", map[string]any{"addr": cfg.Server.Addr})
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			log.Info("shutting down", nil)
			return srv.Shutdown(shutdownCtx)
		},
	}
}
