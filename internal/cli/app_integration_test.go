//go:build integration

package cli

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	assetmodels "custodian/internal/asset/models"
	manifestmodels "custodian/internal/manifest/models"
	manifestservice "custodian/internal/manifest/service"
	"custodian/internal/platform/config"
	"custodian/internal/platform/postgres"
	id "custodian/pkg/domain"
	"custodian/pkg/platform/notify"
	"custodian/pkg/requestcontext"
	"custodian/pkg/testutil/containers"
)

// AppSuite runs the fully wired process against real postgres, redis and a
// Kafka-compatible broker.
type AppSuite struct {
	suite.Suite
	ctx     context.Context
	app     *app
	brokers []string
	actor   id.UserID
}

func TestAppSuite(t *testing.T) {
	suite.Run(t, new(AppSuite))
}

func (s *AppSuite) SetupSuite() {
	t := s.T()
	pg := containers.NewPostgresContainer(t)
	rc := containers.NewRedisContainer(t)
	rp := containers.NewRedpandaContainer(t)
	s.brokers = rp.Brokers

	cfg, err := config.LoadFrom(map[string]string{
		"CUSTODIAN_DATABASE_URL":  pg.DSN,
		"CUSTODIAN_REDIS_URL":     rc.URL,
		"CUSTODIAN_KAFKA_BROKERS": rp.Brokers[0],
		"CUSTODIAN_KAFKA_TOPIC":   "custodian.it",
	})
	s.Require().NoError(err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.ctx = requestcontext.WithTime(context.Background(), time.Now().UTC())
	s.Require().NoError(postgres.Migrate(s.ctx, pg.DB, log))

	s.app, err = newApp(s.ctx, cfg, log)
	s.Require().NoError(err)
	s.T().Cleanup(s.app.close)
	s.actor = id.UserID(uuid.New())
}

func (s *AppSuite) TestShipmentGeneratesForm() {
	svc := s.app.services
	asset, err := svc.Assets.Register(s.ctx, assetmodels.RegisterInput{
		Serial: "IT-BB-1", Type: "ballot_box", Location: "WH-CENTRAL",
	}, s.actor)
	s.Require().NoError(err)
	_, err = svc.Seals.Register(s.ctx, "IT-SEAL-1", s.actor)
	s.Require().NoError(err)

	m, err := svc.Manifests.Create(s.ctx, manifestservice.CreateInput{
		ElectionID: id.ElectionID(uuid.New()), From: "WH-CENTRAL", To: "PS-0001",
	}, s.actor)
	s.Require().NoError(err)
	_, err = svc.Manifests.AddItem(s.ctx, m.ID, asset.ID, "IT-SEAL-1", s.actor)
	s.Require().NoError(err)
	_, err = svc.Manifests.ReadyForPacking(s.ctx, m.ID, s.actor)
	s.Require().NoError(err)
	_, err = svc.Manifests.MarkItemPacked(s.ctx, m.ID, asset.ID, s.actor)
	s.Require().NoError(err)
	done, err := svc.Manifests.Complete(s.ctx, m.ID, s.actor)
	s.Require().NoError(err)
	s.Equal(manifestmodels.StatusCompleted, done.Status)

	form, err := svc.Custody.GetFormByManifest(s.ctx, m.ID)
	s.Require().NoError(err)
	s.Equal(s.app.cfg.Forms.RequiredSignatures, form.RequiredSignatures)

	history, err := svc.Custody.History(s.ctx, asset.ID)
	s.Require().NoError(err)
	s.Len(history, 1)
}

func (s *AppSuite) TestNotificationsRelayToKafka() {
	_, err := s.app.services.Seals.Register(s.ctx, "IT-SEAL-LOST", s.actor)
	s.Require().NoError(err)
	_, err = s.app.services.Seals.ReportLost(s.ctx, "IT-SEAL-LOST", "not in bag", s.actor)
	s.Require().NoError(err)

	relay := notify.NewRelay(s.app.outbox, s.app.sink)
	published, err := relay.RelayOnce(s.ctx)
	s.Require().NoError(err)
	s.GreaterOrEqual(published, 1)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.brokers...),
		kgo.ConsumeTopics(s.app.cfg.Kafka.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	ctx, cancel := context.WithTimeout(s.ctx, 15*time.Second)
	defer cancel()
	fetches := consumer.PollFetches(ctx)
	s.Require().Empty(fetches.Errors())
	s.NotZero(fetches.NumRecords())
}

func (s *AppSuite) TestSeedRunsInOneTransaction() {
	inv := inventory{
		Assets: []seedAsset{{Serial: "IT-SEED-1", Type: "tabulator"}, {Serial: "IT-SEED-2"}},
		Seals:  []string{"IT-SEED-SEAL"},
	}
	err := postgres.RunInTx(s.ctx, s.app.db, func(ctx context.Context) error {
		_, err := applyInventory(ctx, s.app.services.Assets, s.app.services.Seals, inv, s.actor)
		return err
	})
	s.Require().Error(err)

	_, err = s.app.services.Assets.GetBySerial(s.ctx, "IT-SEED-1")
	s.Error(err, "first asset must be rolled back with the failing second")
}
