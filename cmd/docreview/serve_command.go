package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docreview/internal/api"
	"github.com/dgallion1/docreview/internal/pipeline"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the reconciliation HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateServer(); err != nil {
				return err
			}
			log, err := ctx.logger(os.Stdout)
			if err != nil {
				return err
			}

			runCtx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			store, closeStore, err := ctx.openStore(log)
			if err != nil {
				return err
			}
			defer closeStore()

			l, err := ctx.openLedger(runCtx)
			if err != nil {
				return err
			}
			defer l.Close()

			// Initialize pipeline.
			orch := pipeline.NewOrchestrator(cfg, store, l, log)
			orch.Start(runCtx)

			// Initialize HTTP server.
			srv := api.NewServer(orch, store, l, log, cfg)

			httpServer := &http.Server{
				Addr:         ":" + cfg.Port,
				Handler:      srv,
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 120 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			// Graceful shutdown.
			done := make(chan struct{})
			go func() {
				defer close(done)
				sigCh := make(chan os.Signal, 1)
				signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
				defer signal.Stop(sigCh)
				select {
				case <-sigCh:
				case <-runCtx.Done():
				}
				log.Info("shutting down...")

				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer shutdownCancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					log.Warn("http shutdown", "error", err)
				}
				orch.Stop()
			}()

			log.Info("starting docreview",
				"port", cfg.Port,
				"storage_backend", cfg.StorageBackend,
				"confidence_threshold", cfg.ConfidenceThreshold)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("server error", "error", err)
				cancel()
				<-done
				return err
			}
			<-done
			return nil
		},
	}
}
