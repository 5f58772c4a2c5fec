package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ledgercore/internal/adapters/export"
	"ledgercore/internal/adapters/rest"
	"ledgercore/internal/blob"
	"ledgercore/internal/core"
	"ledgercore/internal/infra/persistence"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the registry HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

// applyStorageEnv pushes file-backed config values into the environment so the
// env-driven store and blob factories see them.
func applyStorageEnv(cfg *viper.Viper) {
	pairs := map[string]string{
		"LEDGERCORE_STORAGE_DRIVER": cfg.GetString("storage.driver"),
		"LEDGERCORE_SQLITE_PATH":    cfg.GetString("storage.sqlite_path"),
		"LEDGERCORE_POSTGRES_DSN":   cfg.GetString("storage.postgres_dsn"),
		"LEDGERCORE_BLOB_DRIVER":    cfg.GetString("blob.driver"),
		"LEDGERCORE_BLOB_FS_ROOT":   cfg.GetString("blob.fs_root"),
	}
	for key, value := range pairs {
		if value != "" {
			_ = os.Setenv(key, value)
		}
	}
}

func serve(ctx context.Context, cfg *viper.Viper) error {
	applyStorageEnv(cfg)

	engine := core.NewDefaultRulesEngine()
	store, err := persistence.Open(cfg.GetString("owner"), engine)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	blobStore, err := blob.Open(ctx)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	promReg := prometheus.NewRegistry()
	metrics, err := core.NewPrometheusMetricsRecorder(promReg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	audit := core.NewJSONAuditRecorder(os.Stdout)

	registry := core.NewRegistry(store,
		core.WithMetricsRecorder(metrics),
		core.WithAuditRecorder(audit),
	)

	source, ok := store.(export.SnapshotSource)
	var worker *export.Worker
	if ok {
		worker = export.NewWorker(source, blobStore, audit)
		worker.Start()
	}

	handler := rest.NewHandler(registry)
	handler.Exports = worker

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", handler)
	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	mux.Handle("/debug/vars", expvar.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.GetString("listen_addr"),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	fmt.Printf("ledgercore listening on %s\n", server.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if worker != nil {
		if err := worker.Stop(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "export worker stop: %v\n", err)
		}
	}
	return server.Shutdown(shutdownCtx)
}
