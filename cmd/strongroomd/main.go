// strongroomd hosts the wallet core's operational surface: it wires the
// credential store, HSM, vault, and binding registry from configuration and
// serves health and metrics endpoints. Key ceremonies and signing flows are
// driven by the embedding application through the core packages.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/strongroom-wallet/strongroom/internal/binding"
	"github.com/strongroom-wallet/strongroom/internal/config"
	"github.com/strongroom-wallet/strongroom/internal/credstore"
	"github.com/strongroom-wallet/strongroom/internal/hsm"
	"github.com/strongroom-wallet/strongroom/internal/logger"
	"github.com/strongroom-wallet/strongroom/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx := context.Background()

	var store credstore.Store
	switch cfg.CredStoreBackend {
	case "postgres":
		pgStore, err := credstore.NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			slog.Error("failed to connect to credential store", "error", err)
			os.Exit(1)
		}
		defer pgStore.Close()
		store = pgStore
		slog.Info("connected to credential store", "backend", "postgres")
	default:
		store = credstore.NewMemoryStore()
		slog.Warn("using in-memory credential store; records will not survive restart")
	}

	module, err := hsm.New(&hsm.Config{
		Provider:          cfg.HSMProvider,
		LocalMasterKeyHex: cfg.HSMLocalMasterKey,
		AWSKMSKeyID:       cfg.AWSKMSKeyID,
		AWSKMSRegion:      cfg.AWSKMSRegion,
		VaultAddress:      cfg.VaultAddress,
		VaultToken:        cfg.VaultToken,
		VaultTransitKey:   cfg.VaultTransitKey,
	})
	if err != nil {
		slog.Error("failed to initialize HSM module", "error", err)
		os.Exit(1)
	}

	secretVault := vault.New(module, store)
	registry := binding.NewRegistry(store, secretVault)

	slog.Info("initialized wallet core",
		"hsm_provider", module.Provider(),
		"hardware_backed", secretVault.IsProtected())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		// A readable binding list proves the credential store is reachable.
		if _, err := registry.GetBinding(r.Context(), "0x0000000000000000000000000000000000000000"); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintln(w, "credential store unreachable")
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("serving metrics and health", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		slog.Error("server error", "error", err)
		os.Exit(1)

	case sig := <-shutdown:
		slog.Info("received shutdown signal", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("error during shutdown", "error", err)
			slog.Warn("forcing shutdown")
		}

		slog.Info("server stopped")
	}
}
