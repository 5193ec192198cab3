package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"custodian/internal/seal/models"
	"custodian/internal/seal/store"
	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/effect"
	"custodian/pkg/testutil"
)

type ServiceSuite struct {
	suite.Suite
	ctx        context.Context
	clock      *testutil.FixedClock
	dispatcher *testutil.RecordingDispatcher
	service    *Service
	actor      id.UserID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.clock = testutil.NewFixedClock(time.Date(2026, 11, 3, 6, 0, 0, 0, time.UTC))
	s.ctx = s.clock.Ctx(context.Background())
	s.dispatcher = &testutil.RecordingDispatcher{}
	s.service = New(store.NewInMemoryStore(), WithDispatcher(s.dispatcher))
	s.actor = id.UserID(uuid.New())
}

func (s *ServiceSuite) TestRegisterRejectsDuplicateNumber() {
	_, err := s.service.Register(s.ctx, "SEAL-001", s.actor)
	s.Require().NoError(err)

	_, err = s.service.Register(s.ctx, " SEAL-001 ", s.actor)
	s.True(dErrors.HasReason(err, dErrors.ReasonDuplicateSeal))
	s.True(dErrors.HasCode(err, dErrors.CodeDuplicate))
}

// Applying SEAL-001 to asset 42 for election 7 consumes it; a second
// application to asset 43 is rejected and leaves the first binding intact.
func (s *ServiceSuite) TestApplyConsumesSeal() {
	election := id.ElectionID(uuid.New())
	asset42 := id.AssetID(uuid.New())
	asset43 := id.AssetID(uuid.New())
	_, err := s.service.Register(s.ctx, "SEAL-001", s.actor)
	s.Require().NoError(err)

	applied, err := s.service.Apply(s.ctx, "SEAL-001", election, asset42, s.actor)
	s.Require().NoError(err)
	s.Equal(models.StatusApplied, applied.Status)
	s.Equal(1, applied.Version)

	_, err = s.service.Apply(s.ctx, "SEAL-001", election, asset43, s.actor)
	s.True(dErrors.HasReason(err, dErrors.ReasonInvalidSealState))

	stored, err := s.service.GetByNumber(s.ctx, "SEAL-001")
	s.Require().NoError(err)
	s.Require().NotNil(stored.AssetID)
	s.Equal(asset42, *stored.AssetID)
}

func (s *ServiceSuite) TestApplyUnknownSeal() {
	_, err := s.service.Apply(s.ctx, "SEAL-404", id.ElectionID(uuid.New()), id.AssetID(uuid.New()), s.actor)
	s.True(dErrors.HasReason(err, dErrors.ReasonSealNotFound))
}

func (s *ServiceSuite) TestBreakNotifiesElectionStatus() {
	assetID := id.AssetID(uuid.New())
	_, err := s.service.Register(s.ctx, "SEAL-007", s.actor)
	s.Require().NoError(err)

	_, err = s.service.Break(s.ctx, "SEAL-007", "cut", s.actor)
	s.True(dErrors.HasReason(err, dErrors.ReasonInvalidSealState), "only applied seals break")
	s.Empty(s.dispatcher.Effects())

	_, err = s.service.Apply(s.ctx, "SEAL-007", id.ElectionID(uuid.New()), assetID, s.actor)
	s.Require().NoError(err)
	broken, err := s.service.Break(s.ctx, "SEAL-007", "cut at intake", s.actor)
	s.Require().NoError(err)
	s.Equal(models.StatusBroken, broken.Status)

	notes := s.dispatcher.OnChannel(effect.ChannelElectionStatus)
	s.Require().Len(notes, 1)
	s.Contains(notes[0].Message, "SEAL-007")

	_, err = s.service.ReportLost(s.ctx, "SEAL-007", "", s.actor)
	s.True(dErrors.HasReason(err, dErrors.ReasonInvalidSealState), "broken is terminal")
}

func (s *ServiceSuite) TestListByAsset() {
	assetID := id.AssetID(uuid.New())
	election := id.ElectionID(uuid.New())
	for _, n := range []string{"S-1", "S-2", "S-3"} {
		_, err := s.service.Register(s.ctx, n, s.actor)
		s.Require().NoError(err)
	}
	_, err := s.service.Apply(s.ctx, "S-1", election, assetID, s.actor)
	s.Require().NoError(err)
	s.clock.Advance(time.Hour)
	_, err = s.service.Apply(s.clock.Ctx(context.Background()), "S-3", election, assetID, s.actor)
	s.Require().NoError(err)

	seals, err := s.service.ListByAsset(s.ctx, assetID)
	s.Require().NoError(err)
	s.Require().Len(seals, 2)
	s.Equal("S-1", seals[0].Number)
	s.Equal("S-3", seals[1].Number)
}
