package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"custodian/internal/asset/models"
	assetstore "custodian/internal/asset/store"
	kitmodels "custodian/internal/kit/models"
	kitstore "custodian/internal/kit/store"
	manifestmodels "custodian/internal/manifest/models"
	manifeststore "custodian/internal/manifest/store"
	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/effect"
	"custodian/pkg/testutil"
)

type ServiceSuite struct {
	suite.Suite
	ctx        context.Context
	clock      *testutil.FixedClock
	assets     *assetstore.InMemoryStore
	kits       *kitstore.InMemoryStore
	manifests  *manifeststore.InMemoryStore
	dispatcher *testutil.RecordingDispatcher
	service    *Service
	actor      id.UserID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.clock = testutil.NewFixedClock(time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC))
	s.ctx = s.clock.Ctx(context.Background())
	s.assets = assetstore.NewInMemoryStore()
	s.kits = kitstore.NewInMemoryStore()
	s.manifests = manifeststore.NewInMemoryStore()
	s.dispatcher = &testutil.RecordingDispatcher{}
	s.service = New(s.assets,
		WithDispatcher(s.dispatcher),
		WithMembershipStores(s.kits, s.manifests),
	)
	s.actor = id.UserID(uuid.New())
}

func (s *ServiceSuite) register(serial, tag string) *models.Asset {
	a, err := s.service.Register(s.ctx, models.RegisterInput{
		Serial: serial, Type: "ballot_scanner", Tag: tag, Location: "WH-NORTH",
	}, s.actor)
	s.Require().NoError(err)
	return a
}

func (s *ServiceSuite) TestRegister() {
	s.Run("new asset is available", func() {
		a := s.register("SN-100", "BC-100")
		s.Equal(models.StatusAvailable, a.Status)
		s.Equal("good", a.Condition)
		s.Equal(s.clock.Now(), a.CreatedAt)
	})

	s.Run("duplicate serial", func() {
		_, err := s.service.Register(s.ctx, models.RegisterInput{Serial: "SN-100", Type: "tablet"}, s.actor)
		s.True(dErrors.HasReason(err, dErrors.ReasonDuplicateAsset))
		s.True(dErrors.HasCode(err, dErrors.CodeDuplicate))
	})

	s.Run("duplicate tag", func() {
		_, err := s.service.Register(s.ctx, models.RegisterInput{Serial: "SN-101", Type: "tablet", Tag: "BC-100"}, s.actor)
		s.True(dErrors.HasReason(err, dErrors.ReasonDuplicateTag))
	})

	s.Run("blank serial", func() {
		_, err := s.service.Register(s.ctx, models.RegisterInput{Serial: "  ", Type: "tablet"}, s.actor)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestLookups() {
	a := s.register("SN-200", "BC-200")

	bySerial, err := s.service.GetBySerial(s.ctx, " SN-200 ")
	s.Require().NoError(err)
	s.Equal(a.ID, bySerial.ID)

	byTag, err := s.service.GetByTag(s.ctx, "BC-200")
	s.Require().NoError(err)
	s.Equal(a.ID, byTag.ID)

	_, err = s.service.Get(s.ctx, id.AssetID(uuid.New()))
	s.True(dErrors.HasReason(err, dErrors.ReasonAssetNotFound))

	_, err = s.service.GetByTag(s.ctx, "")
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *ServiceSuite) TestConfirmDeliveryRequiresInTransit() {
	a := s.register("SN-300", "")

	_, err := s.service.ConfirmDelivery(s.ctx, a.ID, "PS-0001", s.actor)
	s.True(dErrors.HasReason(err, dErrors.ReasonInvalidAssetState))

	manifestID := id.ManifestID(uuid.New())
	s.putInTransit(a.ID, manifestID)

	delivered, err := s.service.ConfirmDelivery(s.ctx, a.ID, "PS-0001", s.actor)
	s.Require().NoError(err)
	s.Equal(models.StatusDeployed, delivered.Status)
	s.Equal(id.Location("PS-0001"), delivered.Location)
	s.Nil(delivered.ManifestID)
	s.Len(s.dispatcher.OnChannel(effect.ChannelLogistics), 1)
}

// putInTransit drives an asset through the manifest edges directly on the
// store, standing in for the manifest service.
func (s *ServiceSuite) putInTransit(assetID id.AssetID, manifestID id.ManifestID) {
	a, err := s.assets.FindByID(s.ctx, assetID)
	s.Require().NoError(err)
	s.Require().NoError(a.ReserveForManifest(manifestID, s.actor, s.clock.Now()))
	_, err = a.Dispatch(manifestID, s.actor, s.clock.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.assets.Update(s.ctx, a))
}

func (s *ServiceSuite) TestUpdateConditionKeepsStatus() {
	a := s.register("SN-400", "")
	updated, err := s.service.UpdateCondition(s.ctx, a.ID, "scuffed", s.actor)
	s.Require().NoError(err)
	s.Equal("scuffed", updated.Condition)
	s.Equal(models.StatusAvailable, updated.Status)
	s.Equal(1, updated.Version)
}

func (s *ServiceSuite) TestReturnToWarehouseDetachesKitAndManifest() {
	a := s.register("SN-500", "")
	now := s.clock.Now()

	k, err := kitmodels.NewKit(id.KitID(uuid.New()), "precinct 5", "", s.actor, now)
	s.Require().NoError(err)
	s.Require().NoError(k.AddAsset(a.ID, s.actor, now))
	s.Require().NoError(s.kits.Create(s.ctx, k))

	m, err := manifestmodels.NewManifest(id.ManifestID(uuid.New()), id.ElectionID(uuid.New()),
		"WH-NORTH", "PS-0005", s.actor, now)
	s.Require().NoError(err)
	s.Require().NoError(m.AddItem(a.ID, "", s.actor, now))
	s.Require().NoError(s.manifests.Create(s.ctx, m))

	stored, err := s.assets.FindByID(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Require().NoError(stored.AssignToKit(k.ID, s.actor, now))
	s.Require().NoError(stored.ReserveForManifest(m.ID, s.actor, now))
	s.Require().NoError(s.assets.Update(s.ctx, stored))

	returned, err := s.service.ReturnToWarehouse(s.ctx, a.ID, "WH-SOUTH", s.actor)
	s.Require().NoError(err)
	s.Equal(models.StatusAvailable, returned.Status)
	s.Nil(returned.KitID)
	s.Nil(returned.ManifestID)
	s.Equal(id.Location("WH-SOUTH"), returned.Location)

	kitAfter, err := s.kits.FindByID(s.ctx, k.ID)
	s.Require().NoError(err)
	s.False(kitAfter.Contains(a.ID))

	manifestAfter, err := s.manifests.FindByID(s.ctx, m.ID)
	s.Require().NoError(err)
	_, listed := manifestAfter.Item(a.ID)
	s.False(listed)

	s.Len(s.dispatcher.OnChannel(effect.ChannelWarehouse), 1)
}

func (s *ServiceSuite) TestReturnToWarehouseReportsPartialUpdate() {
	a := s.register("SN-600", "")
	now := s.clock.Now()

	m, err := manifestmodels.NewManifest(id.ManifestID(uuid.New()), id.ElectionID(uuid.New()),
		"WH-NORTH", "PS-0006", s.actor, now)
	s.Require().NoError(err)
	s.Require().NoError(m.AddItem(a.ID, "", s.actor, now))
	s.Require().NoError(s.manifests.Create(s.ctx, m))

	kitID := id.KitID(uuid.New())
	k := &kitmodels.Kit{ID: kitID, Name: "ghost", Status: kitmodels.StatusAssembling,
		AssetIDs: []id.AssetID{a.ID}, Version: 0}
	s.Require().NoError(s.kits.Create(s.ctx, k))

	stored, err := s.assets.FindByID(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Require().NoError(stored.AssignToKit(kitID, s.actor, now))
	s.Require().NoError(stored.ReserveForManifest(m.ID, s.actor, now))
	s.Require().NoError(s.assets.Update(s.ctx, stored))

	// Bump the kit behind the service's back so its write conflicts.
	bumped, err := s.kits.FindByID(s.ctx, kitID)
	s.Require().NoError(err)
	s.Require().NoError(s.kits.Update(s.ctx, bumped))
	s.service = New(s.assets,
		WithDispatcher(s.dispatcher),
		WithMembershipStores(staleKits{s.kits}, s.manifests),
	)

	_, err = s.service.ReturnToWarehouse(s.ctx, a.ID, "", s.actor)
	s.Require().Error(err)
	s.True(dErrors.HasReason(err, dErrors.ReasonPartialUpdate))
	s.True(dErrors.HasCode(err, dErrors.CodeConflict), "partial updates keep the retryable code")
	s.Empty(s.dispatcher.Effects())
}

// staleKits returns kits with their version rewound so every update conflicts.
type staleKits struct {
	*kitstore.InMemoryStore
}

func (s staleKits) FindByID(ctx context.Context, kitID id.KitID) (*kitmodels.Kit, error) {
	k, err := s.InMemoryStore.FindByID(ctx, kitID)
	if err != nil {
		return nil, err
	}
	k.Version--
	return k, nil
}

func (s *ServiceSuite) TestMarkOutOfServiceIsTerminal() {
	a := s.register("SN-700", "")
	retired, err := s.service.MarkOutOfService(s.ctx, a.ID, "water damage", s.actor)
	s.Require().NoError(err)
	s.Equal(models.StatusOutOfService, retired.Status)

	_, err = s.service.UpdateCondition(s.ctx, a.ID, "fine", s.actor)
	s.True(dErrors.HasReason(err, dErrors.ReasonInvalidAssetState))
	_, err = s.service.ReturnToWarehouse(s.ctx, a.ID, "", s.actor)
	s.True(dErrors.HasReason(err, dErrors.ReasonInvalidAssetState))
}

func (s *ServiceSuite) TestSendToMaintenanceAndBack() {
	a := s.register("SN-800", "")
	_, err := s.service.SendToMaintenance(s.ctx, a.ID, "screen flicker", s.actor)
	s.Require().NoError(err)

	back, err := s.service.ReturnToWarehouse(s.ctx, a.ID, "", s.actor)
	s.Require().NoError(err)
	s.Equal(models.StatusAvailable, back.Status)
	s.Equal(id.Location("WH-NORTH"), back.Location, "blank return location keeps the current one")
}

func (s *ServiceSuite) TestMissingActorRejected() {
	a := s.register("SN-900", "")
	_, err := s.service.CorrectLocation(s.ctx, a.ID, "WH-EAST", id.UserID{})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}
