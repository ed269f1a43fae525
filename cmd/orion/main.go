// SPDX-License-Identifier: MIT

// Command orion runs the control-plane daemon: the tenant API, the metrics
// listener and the reconciliation loops, all against a shared Postgres
// catalog. Any number of replicas may run concurrently.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/orionhq/orion/internal/alloc"
	"github.com/orionhq/orion/internal/api"
	"github.com/orionhq/orion/internal/auth"
	"github.com/orionhq/orion/internal/catalog"
	"github.com/orionhq/orion/internal/config"
	"github.com/orionhq/orion/internal/core"
	xlog "github.com/orionhq/orion/internal/log"
	"github.com/orionhq/orion/internal/netutil"
	"github.com/orionhq/orion/internal/probe"
	"github.com/orionhq/orion/internal/provision"
	"github.com/orionhq/orion/internal/reconcile"
	"github.com/orionhq/orion/internal/vault"
)

var (
	version   = "v1.0.0"
	commit    = "none"
	buildDate = "unknown"
)

const shutdownGrace = 10 * time.Second

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	cfg := config.FromEnv()
	xlog.Configure(xlog.Config{Level: cfg.LogLevel, Service: "orion"})
	logger := xlog.WithComponent("daemon")

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).
			Str("event", "config_invalid").
			Msg("refusing to start with invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("addr", cfg.ListenAddr).
		Msg("starting orion")

	cat, err := catalog.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).
			Str("event", "catalog_open_failed").
			Msg("cannot reach the catalog")
	}
	defer cat.Close()

	v, err := vault.New(cfg.VaultKey)
	if err != nil {
		logger.Fatal().Err(err).
			Str("event", "vault_init_failed").
			Msg("cannot derive vault key")
	}

	if err := bootstrapAdmin(ctx, cat); err != nil {
		logger.Fatal().Err(err).
			Str("event", "admin_bootstrap_failed").
			Msg("cannot create the bootstrap admin")
	}

	resolver := netutil.Resolver{Alias: cfg.DockerHostAlias}
	prober := &probe.SSH{
		User:     cfg.WorkerSSHUser,
		Password: cfg.WorkerSSHPass,
		Timeout:  cfg.ProbeTimeout,
		Resolver: resolver,
	}
	provisioner := &provision.SSH{
		User:           cfg.WorkerSSHUser,
		Password:       cfg.WorkerSSHPass,
		CreatePlaybook: cfg.PlaybookCreate,
		DeletePlaybook: cfg.PlaybookDelete,
		Timeout:        cfg.ProvisionTimeout,
		Resolver:       resolver,
	}

	allocSvc := alloc.New(cat, provisioner, v, resolver)
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)
	reconciler := reconcile.New(cat, prober, provisioner, v, reconcile.Config{
		HealthInterval:  cfg.HealthInterval,
		MigrateInterval: cfg.MigrateInterval,
		ExpiryInterval:  cfg.ExpiryInterval,
		ScrubInterval:   cfg.ScrubInterval,
		StalePeriod:     cfg.StalePeriod,
		HealthBatch:     cfg.HealthBatch,
		MigrateBatch:    cfg.MigrateBatch,
		ExpiryBatch:     cfg.ExpiryBatch,
		ScrubBatch:      cfg.ScrubBatch,
	})

	apiServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.New(allocSvc, cat, issuer).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return reconciler.Run(ctx)
	})

	g.Go(func() error {
		logger.Info().Str("event", "api_listening").Str("addr", cfg.ListenAddr).Msg("tenant API up")
		if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info().Str("event", "metrics_listening").Str("addr", cfg.MetricsAddr).Msg("metrics up")
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("api shutdown incomplete")
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("metrics shutdown incomplete")
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).
			Str("event", "daemon_failed").
			Msg("orion exited with error")
	}
	logger.Info().Str("event", "shutdown_complete").Msg("orion exiting")
}

// bootstrapAdmin seeds the operator account from ORION_ADMIN_USER and
// ORION_ADMIN_PASS. An existing handle is left untouched so replicas can all
// run the bootstrap.
func bootstrapAdmin(ctx context.Context, cat catalog.Catalog) error {
	user := config.ParseString("ORION_ADMIN_USER", "")
	pass := config.ParseString("ORION_ADMIN_PASS", "")
	if user == "" || pass == "" {
		return nil
	}
	hash, err := auth.HashPassword(pass)
	if err != nil {
		return err
	}
	err = cat.WithTx(ctx, func(tx catalog.Tx) error {
		_, err := tx.CreateTenant(ctx, user, hash, core.RoleAdmin)
		return err
	})
	if core.IsKind(err, core.KindConflict) {
		return nil
	}
	return err
}
