package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/szaher/contextd/internal/compaction"
	"github.com/szaher/contextd/internal/config"
	"github.com/szaher/contextd/internal/telemetry"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	var (
		watch     bool
		runOnBoot bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daily compaction scheduler",
		Long: `Runs in the foreground, compacting every conversation once a day at
compaction_time. Serves Prometheus metrics on metrics_addr when set, and
reschedules when compaction_time changes in the config file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			metrics := telemetry.NewMetrics()
			c, err := a.compactor(metrics)
			if err != nil {
				return err
			}
			sched, err := compaction.NewScheduler(c, a.cfg.At(), compaction.WithReportHandler(a.recordReport))
			if err != nil {
				return err
			}

			var srv *http.Server
			if a.cfg.MetricsAddr != "" {
				srv = &http.Server{
					Addr:              a.cfg.MetricsAddr,
					Handler:           newServeMux(metrics, sched),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					a.logger.Info("metrics listening", "addr", srv.Addr)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.logger.Error("metrics server stopped", "error", err)
					}
				}()
			}

			if watch {
				go func() {
					err := config.Watch(ctx, configFile, func(cfg *config.Config, err error) {
						applyReload(a, sched, cfg, err)
					})
					if err != nil {
						a.logger.Warn("config reload disabled", "error", err)
					}
				}()
			}

			sched.Start(ctx)
			if runOnBoot {
				go func() {
					report, err := sched.RunNow(telemetry.WithRunID(ctx, ""))
					if err != nil {
						a.logger.Warn("startup sweep skipped", "error", err)
						return
					}
					a.recordReport(report)
				}()
			}

			<-ctx.Done()
			a.logger.Info("shutting down")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			if srv != nil {
				_ = srv.Shutdown(shutdownCtx)
			}
			if err := sched.Stop(shutdownCtx); err != nil {
				return fmt.Errorf("stopping scheduler: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&watch, "watch-config", true, "Reload compaction_time when the config file changes")
	cmd.Flags().BoolVar(&runOnBoot, "compact-on-start", false, "Run one sweep immediately after starting")

	return cmd
}

// applyReload reschedules the sweep when the reloaded config moves it. Other
// options take effect on restart.
func applyReload(a *app, sched *compaction.Scheduler, cfg *config.Config, err error) {
	if err != nil {
		a.logger.Error("config reload failed, keeping previous settings", "error", err)
		return
	}
	at := cfg.At()
	if at == sched.At() {
		a.logger.Debug("config reloaded, schedule unchanged")
		return
	}
	if err := sched.Reschedule(at); err != nil {
		a.logger.Error("reschedule failed", "error", err)
		return
	}
	a.logger.Info("compaction rescheduled", "at", at.String(), "next", sched.Next())
}

func newServeMux(metrics *telemetry.Metrics, sched *compaction.Scheduler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "ok state=%s next=%s\n", sched.State(), sched.Next().Format(time.RFC3339))
	})
	return mux
}
