package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"custodian/internal/platform/postgres"
	"custodian/internal/platform/telemetry"
	httptransport "custodian/internal/transport/http"
	"custodian/pkg/platform/notify"
	"custodian/pkg/platform/retry"
)

func newServeCommand() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the notification relay",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the database schema before serving")
	return cmd
}

func serve(ctx context.Context, migrate bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTel)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	if migrate && a.db != nil {
		if err := postgres.Migrate(ctx, a.db, log); err != nil {
			return err
		}
	}

	router := httptransport.NewRouter(a.services, httptransport.Options{
		Logger: log,
		Retry: retry.Policy{
			MaxAttempts:     cfg.Retry.MaxAttempts,
			InitialInterval: cfg.Retry.InitialInterval,
			MaxInterval:     cfg.Retry.MaxInterval,
		},
		RequestTimeout: cfg.Server.WriteTimeout,
		Forms: httptransport.FormDefaults{
			RequiredSignatures: cfg.Forms.RequiredSignatures,
			ExpirationDays:     cfg.Forms.ExpirationDays,
		},
		Checks: a.healthChecks(),
	})
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("custodian listening", "addr", cfg.Server.Addr, "postgres", a.db != nil, "redis", a.redis != nil, "kafka", a.kafka != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if a.outbox != nil {
		relay := notify.NewRelay(a.outbox, a.sink,
			notify.WithRelayLogger(log),
			notify.WithPollInterval(cfg.Outbox.PollInterval),
			notify.WithBatchSize(cfg.Outbox.BatchSize),
		)
		g.Go(func() error {
			if err := relay.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
