package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	assetservice "custodian/internal/asset/service"
	assetstore "custodian/internal/asset/store"
	auditservice "custodian/internal/audit/service"
	auditstore "custodian/internal/audit/store"
	custodyservice "custodian/internal/custody/service"
	custodystore "custodian/internal/custody/store"
	kitservice "custodian/internal/kit/service"
	kitstore "custodian/internal/kit/store"
	manifestservice "custodian/internal/manifest/service"
	manifeststore "custodian/internal/manifest/store"
	"custodian/internal/platform/config"
	"custodian/internal/platform/dispatch"
	"custodian/internal/platform/logger"
	"custodian/internal/platform/metrics"
	"custodian/internal/platform/postgres"
	"custodian/internal/platform/redis"
	sealservice "custodian/internal/seal/service"
	sealstore "custodian/internal/seal/store"
	httptransport "custodian/internal/transport/http"
	"custodian/pkg/platform/filestore"
	"custodian/pkg/platform/lock"
	"custodian/pkg/platform/notify"
	"custodian/pkg/platform/strings"
)

// app is the wired process: stores, services and the infrastructure they
// share. Optional backends are nil when unconfigured.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	db     *sql.DB
	redis  *redis.Client
	kafka  *kgo.Client
	outbox *notify.Outbox
	// sink is where notifications finally land; the relay drains the outbox
	// into it when postgres is configured.
	sink notify.Notifier

	services httptransport.Services
}

// assetStore and eventStore are read and written by more than one service.
type (
	assetStore interface {
		assetservice.Store
		auditservice.AssetStore
	}
	eventStore interface {
		custodyservice.EventStore
		manifestservice.CustodyLog
	}
)

type stores struct {
	assets    assetStore
	seals     sealservice.Store
	kits      kitservice.Store
	manifests manifestservice.Store
	events    eventStore
	forms     custodyservice.FormStore
	sessions  auditservice.Store
}

func memoryStores() stores {
	return stores{
		assets:    assetstore.NewInMemoryStore(),
		seals:     sealstore.NewInMemoryStore(),
		kits:      kitstore.NewInMemoryStore(),
		manifests: manifeststore.NewInMemoryStore(),
		events:    custodystore.NewInMemoryEventStore(),
		forms:     custodystore.NewInMemoryFormStore(),
		sessions:  auditstore.NewInMemoryStore(),
	}
}

func postgresStores(db *sql.DB) stores {
	return stores{
		assets:    assetstore.NewPostgres(db),
		seals:     sealstore.NewPostgres(db),
		kits:      kitstore.NewPostgres(db),
		manifests: manifeststore.NewPostgres(db),
		events:    custodystore.NewPostgresEvents(db),
		forms:     custodystore.NewPostgresForms(db),
		sessions:  auditstore.NewPostgres(db),
	}
}

func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)
	return cfg, log, nil
}

// newApp connects every configured backend and builds the services. Memory
// stores are used when no database URL is set.
func newApp(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: log, metrics: metrics.New()}
	if err := a.connect(ctx); err != nil {
		a.close()
		return nil, err
	}

	st := memoryStores()
	if a.db != nil {
		st = postgresStores(a.db)
	}

	var locker lock.Locker = lock.NewSharded(lock.WithTimeout(cfg.LockTimeout))
	if a.redis != nil {
		locker = lock.NewRedis(a.redis.Client, lock.WithLease(cfg.Redis.LockLease))
	}

	files, err := a.fileStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	var notifier notify.Notifier = a.sink
	if a.outbox != nil {
		notifier = a.outbox
	}
	effects := dispatch.New(notifier, dispatch.WithLogger(log), dispatch.WithMetrics(a.metrics))

	custody, err := custodyservice.New(st.events, st.forms, st.manifests, st.assets,
		custodyservice.FormConfig{BaseURL: cfg.Forms.BaseURL, SigningKey: cfg.Forms.SigningKey},
		custodyservice.WithLogger(log),
		custodyservice.WithMetrics(a.metrics),
		custodyservice.WithLocker(locker),
		custodyservice.WithDispatcher(effects),
		custodyservice.WithFileStore(files),
	)
	if err != nil {
		a.close()
		return nil, err
	}
	withForms := effects.WithForms(custody, dispatch.FormDefaults{
		RequiredSignatures: cfg.Forms.RequiredSignatures,
		ExpirationDays:     cfg.Forms.ExpirationDays,
	})

	a.services = httptransport.Services{
		Assets: assetservice.New(st.assets,
			assetservice.WithLogger(log),
			assetservice.WithMetrics(a.metrics),
			assetservice.WithLocker(locker),
			assetservice.WithDispatcher(effects),
			assetservice.WithMembershipStores(st.kits, st.manifests),
		),
		Seals: sealservice.New(st.seals,
			sealservice.WithLogger(log),
			sealservice.WithMetrics(a.metrics),
			sealservice.WithLocker(locker),
			sealservice.WithDispatcher(effects),
		),
		Kits: kitservice.New(st.kits, st.assets,
			kitservice.WithLogger(log),
			kitservice.WithMetrics(a.metrics),
			kitservice.WithLocker(locker),
			kitservice.WithDispatcher(effects),
		),
		Manifests: manifestservice.New(st.manifests, st.assets, st.seals,
			manifestservice.WithLogger(log),
			manifestservice.WithMetrics(a.metrics),
			manifestservice.WithLocker(locker),
			manifestservice.WithDispatcher(withForms),
			manifestservice.WithCustodyLog(st.events),
		),
		Custody: custody,
		Audits: auditservice.New(st.sessions, st.assets,
			auditservice.WithLogger(log),
			auditservice.WithMetrics(a.metrics),
			auditservice.WithLocker(locker),
			auditservice.WithDispatcher(effects),
		),
	}
	return a, nil
}

func (a *app) connect(ctx context.Context) error {
	if a.cfg.Database.URL != "" {
		db, err := postgres.Open(ctx, a.cfg.Database)
		if err != nil {
			return err
		}
		a.db = db
		a.outbox = notify.NewOutbox(db)
	}

	rc, err := redis.New(ctx, a.cfg.Redis)
	if err != nil {
		return err
	}
	a.redis = rc

	a.sink = notify.NewLog(a.logger)
	if brokers := strings.Compact(a.cfg.Kafka.Brokers); len(brokers) > 0 {
		client, err := notify.NewKafkaClient(brokers)
		if err != nil {
			return err
		}
		a.kafka = client
		if err := notify.EnsureTopic(ctx, client, a.cfg.Kafka.Topic, 1, 1); err != nil {
			return err
		}
		a.sink = notify.NewKafka(client, a.cfg.Kafka.Topic)
	}
	return nil
}

func (a *app) fileStore(ctx context.Context) (filestore.Store, error) {
	if a.cfg.S3.Bucket == "" {
		return filestore.NewMemory(), nil
	}
	return filestore.NewS3(ctx, filestore.S3Config{
		Bucket:   a.cfg.S3.Bucket,
		Region:   a.cfg.S3.Region,
		Endpoint: a.cfg.S3.Endpoint,
		Prefix:   a.cfg.S3.Prefix,
	})
}

func (a *app) close() {
	if a.kafka != nil {
		a.kafka.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func (a *app) healthChecks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{}
	if a.db != nil {
		checks["postgres"] = a.db.PingContext
	}
	if a.redis != nil {
		checks["redis"] = a.redis.Health
	}
	return checks
}
