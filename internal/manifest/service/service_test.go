package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	assetmodels "custodian/internal/asset/models"
	assetstore "custodian/internal/asset/store"
	custodystore "custodian/internal/custody/store"
	"custodian/internal/manifest/models"
	manifeststore "custodian/internal/manifest/store"
	sealmodels "custodian/internal/seal/models"
	sealstore "custodian/internal/seal/store"
	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/effect"
	"custodian/pkg/platform/sentinel"
	"custodian/pkg/testutil"
)

type ServiceSuite struct {
	suite.Suite
	ctx        context.Context
	clock      *testutil.FixedClock
	manifests  *manifeststore.InMemoryStore
	assets     *assetstore.InMemoryStore
	seals      *sealstore.InMemoryStore
	events     *custodystore.InMemoryEventStore
	dispatcher *testutil.RecordingDispatcher
	service    *Service
	actor      id.UserID
	election   id.ElectionID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.clock = testutil.NewFixedClock(time.Date(2026, 11, 2, 5, 30, 0, 0, time.UTC))
	s.ctx = s.clock.Ctx(context.Background())
	s.manifests = manifeststore.NewInMemoryStore()
	s.assets = assetstore.NewInMemoryStore()
	s.seals = sealstore.NewInMemoryStore()
	s.events = custodystore.NewInMemoryEventStore()
	s.dispatcher = &testutil.RecordingDispatcher{}
	s.service = New(s.manifests, s.assets, s.seals,
		WithCustodyLog(s.events),
		WithDispatcher(s.dispatcher),
	)
	s.actor = id.UserID(uuid.New())
	s.election = id.ElectionID(uuid.New())
}

func (s *ServiceSuite) asset(serial string) *assetmodels.Asset {
	a, err := assetmodels.NewAsset(id.AssetID(uuid.New()), assetmodels.RegisterInput{
		Serial: serial, Type: "ballot_box", Location: "WH-CENTRAL",
	}, s.actor, s.clock.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.assets.Create(s.ctx, a))
	return a
}

func (s *ServiceSuite) seal(number string) {
	seal, err := sealmodels.NewSeal(id.SealID(uuid.New()), number, s.actor, s.clock.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.seals.Create(s.ctx, seal))
}

func (s *ServiceSuite) manifest() *models.Manifest {
	m, err := s.service.Create(s.ctx, CreateInput{ElectionID: s.election, From: "WH-CENTRAL", To: "PS-0142"}, s.actor)
	s.Require().NoError(err)
	return m
}

func (s *ServiceSuite) storedAsset(assetID id.AssetID) *assetmodels.Asset {
	a, err := s.assets.FindByID(s.ctx, assetID)
	s.Require().NoError(err)
	return a
}

// Three items, two packed is partial; the third makes it fully packed, and
// completion ships every asset and requests a custody form.
func (s *ServiceSuite) TestPackAndCompleteThreeItems() {
	m := s.manifest()
	items := []*assetmodels.Asset{s.asset("BOX-1"), s.asset("BOX-2"), s.asset("BOX-3")}
	s.seal("SEAL-1")
	for i, a := range items {
		sealNumber := ""
		if i == 0 {
			sealNumber = "SEAL-1"
		}
		_, err := s.service.AddItem(s.ctx, m.ID, a.ID, sealNumber, s.actor)
		s.Require().NoError(err)
		s.Equal(assetmodels.StatusAssigned, s.storedAsset(a.ID).Status)
	}
	_, err := s.service.ReadyForPacking(s.ctx, m.ID, s.actor)
	s.Require().NoError(err)

	var got *models.Manifest
	for _, a := range items[:2] {
		got, err = s.service.MarkItemPacked(s.ctx, m.ID, a.ID, s.actor)
		s.Require().NoError(err)
	}
	s.Equal(models.StatusPartiallyPacked, got.Status)

	got, err = s.service.MarkItemPacked(s.ctx, m.ID, items[2].ID, s.actor)
	s.Require().NoError(err)
	s.Equal(models.StatusFullyPacked, got.Status)
	s.NotNil(got.PackedAt)

	seal, err := s.seals.FindByNumber(s.ctx, "SEAL-1")
	s.Require().NoError(err)
	s.Equal(sealmodels.StatusApplied, seal.Status)
	s.Equal(items[0].ID, *seal.AssetID)

	got, err = s.service.Complete(s.ctx, m.ID, s.actor)
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, got.Status)

	requests := s.dispatcher.Of(effect.KindRequestCustodyForm)
	s.Require().Len(requests, 1)
	s.Equal(m.ID, requests[0].ManifestID)

	for _, a := range items {
		s.Equal(assetmodels.StatusInTransit, s.storedAsset(a.ID).Status)
	}
	events, err := s.events.ListByManifest(s.ctx, m.ID)
	s.Require().NoError(err)
	s.Len(events, 3)
	s.Equal("PS-0142", events[0].ToParty)
}

func (s *ServiceSuite) TestMarkItemPackedTwiceFails() {
	m := s.manifest()
	a := s.asset("BOX-10")
	_, err := s.service.AddItem(s.ctx, m.ID, a.ID, "", s.actor)
	s.Require().NoError(err)
	_, err = s.service.ReadyForPacking(s.ctx, m.ID, s.actor)
	s.Require().NoError(err)

	_, err = s.service.MarkItemPacked(s.ctx, m.ID, a.ID, s.actor)
	s.Require().NoError(err)
	_, err = s.service.MarkItemPacked(s.ctx, m.ID, a.ID, s.actor)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

	stored, err := s.manifests.FindByID(s.ctx, m.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusFullyPacked, stored.Status)
}

func (s *ServiceSuite) TestAddItemValidation() {
	m := s.manifest()
	a := s.asset("BOX-20")

	s.Run("unknown asset", func() {
		_, err := s.service.AddItem(s.ctx, m.ID, id.AssetID(uuid.New()), "", s.actor)
		s.True(dErrors.HasReason(err, dErrors.ReasonAssetNotFound))
	})

	s.Run("unknown seal", func() {
		_, err := s.service.AddItem(s.ctx, m.ID, a.ID, "SEAL-404", s.actor)
		s.True(dErrors.HasReason(err, dErrors.ReasonSealNotFound))
		s.Equal(assetmodels.StatusAvailable, s.storedAsset(a.ID).Status)
	})

	s.Run("duplicate item", func() {
		_, err := s.service.AddItem(s.ctx, m.ID, a.ID, "", s.actor)
		s.Require().NoError(err)
		_, err = s.service.AddItem(s.ctx, m.ID, a.ID, "", s.actor)
		s.True(dErrors.HasReason(err, dErrors.ReasonDuplicateManifestItem))
	})

	s.Run("asset on another open manifest", func() {
		other := s.manifest()
		_, err := s.service.AddItem(s.ctx, other.ID, a.ID, "", s.actor)
		s.True(dErrors.HasReason(err, dErrors.ReasonInvalidAssetState))
	})

	s.Run("unknown manifest", func() {
		_, err := s.service.AddItem(s.ctx, id.ManifestID(uuid.New()), a.ID, "", s.actor)
		s.True(dErrors.HasReason(err, dErrors.ReasonManifestNotFound))
	})
}

func (s *ServiceSuite) TestRemoveItemReleasesReservation() {
	m := s.manifest()
	a := s.asset("BOX-30")
	_, err := s.service.AddItem(s.ctx, m.ID, a.ID, "", s.actor)
	s.Require().NoError(err)

	got, err := s.service.RemoveItem(s.ctx, m.ID, a.ID, s.actor)
	s.Require().NoError(err)
	s.Empty(got.Items)
	stored := s.storedAsset(a.ID)
	s.Equal(assetmodels.StatusAvailable, stored.Status)
	s.Nil(stored.ManifestID)
}

func (s *ServiceSuite) TestCompleteRequiresFullyPacked() {
	m := s.manifest()
	_, err := s.service.Complete(s.ctx, m.ID, s.actor)
	s.True(dErrors.HasReason(err, dErrors.ReasonInvalidManifestState))

	_, err = s.service.ReadyForPacking(s.ctx, m.ID, s.actor)
	s.Require().NoError(err)
	_, err = s.service.Complete(s.ctx, m.ID, s.actor)
	s.True(dErrors.HasReason(err, dErrors.ReasonInvalidManifestState), "an empty manifest is never fully packed")
	s.Empty(s.dispatcher.Of(effect.KindRequestCustodyForm))
}

// flakyManifests fails the next manifest update once.
type flakyManifests struct {
	*manifeststore.InMemoryStore
	fail bool
}

func (f *flakyManifests) Update(ctx context.Context, m *models.Manifest) error {
	if f.fail {
		f.fail = false
		return sentinel.ErrUnavailable
	}
	return f.InMemoryStore.Update(ctx, m)
}

func (s *ServiceSuite) TestCompleteRetryAfterPartialFailure() {
	manifests := &flakyManifests{InMemoryStore: s.manifests}
	s.service = New(manifests, s.assets, s.seals, WithCustodyLog(s.events), WithDispatcher(s.dispatcher))
	m := s.manifest()
	a := s.asset("BOX-40")
	_, err := s.service.AddItem(s.ctx, m.ID, a.ID, "", s.actor)
	s.Require().NoError(err)
	_, err = s.service.ReadyForPacking(s.ctx, m.ID, s.actor)
	s.Require().NoError(err)
	_, err = s.service.MarkItemPacked(s.ctx, m.ID, a.ID, s.actor)
	s.Require().NoError(err)

	s.dispatcher.Reset()
	manifests.fail = true
	_, err = s.service.Complete(s.ctx, m.ID, s.actor)
	s.True(dErrors.HasReason(err, dErrors.ReasonPartialUpdate))
	s.Equal(assetmodels.StatusInTransit, s.storedAsset(a.ID).Status)
	s.Empty(s.dispatcher.Effects(), "nothing is dispatched for a failed operation")

	got, err := s.service.Complete(s.ctx, m.ID, s.actor)
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, got.Status)

	events, err := s.events.ListByManifest(s.ctx, m.ID)
	s.Require().NoError(err)
	s.Len(events, 1, "retry must not log the hop twice")
}
