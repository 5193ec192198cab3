package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
)

type SessionSuite struct {
	suite.Suite
	auditor id.UserID
	now     time.Time
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionSuite))
}

func (s *SessionSuite) SetupTest() {
	s.auditor = id.UserID(uuid.New())
	s.now = time.Date(2026, 11, 10, 14, 0, 0, 0, time.UTC)
}

func (s *SessionSuite) newSession() *Session {
	sess, err := NewSession(id.AuditSessionID(uuid.New()), s.auditor, "Loc-B", s.now)
	s.Require().NoError(err)
	return sess
}

func (s *SessionSuite) TestNewSession() {
	_, err := NewSession(id.AuditSessionID(uuid.New()), id.UserID{}, "Loc-B", s.now)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	_, err = NewSession(id.AuditSessionID(uuid.New()), s.auditor, " ", s.now)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Equal(StatusInitiated, s.newSession().Status)
}

func (s *SessionSuite) TestMismatchOpensDiscrepancy() {
	sess := s.newSession()
	asset := &ScannedAsset{ID: id.AssetID(uuid.New()), Location: "Loc-A"}

	d, effects, err := sess.RecordScan("BC-100", "Loc-B", asset, s.now)
	s.Require().NoError(err)
	s.Require().NotNil(d)
	s.Equal(id.Location("Loc-A"), d.ExpectedLocation)
	s.Equal(id.Location("Loc-B"), d.ActualLocation)
	s.Equal(asset.ID, *d.AssetID)
	s.Equal(StatusDiscrepanciesFound, sess.Status)
	s.Len(effects, 1)
	s.Len(sess.Scans, 1)
}

func (s *SessionSuite) TestMatchingScanOnlyRecords() {
	sess := s.newSession()
	d, effects, err := sess.RecordScan("BC-1", "", &ScannedAsset{ID: id.AssetID(uuid.New()), Location: "Loc-B"}, s.now)
	s.Require().NoError(err)
	s.Nil(d)
	s.Empty(effects)
	s.Equal(StatusScanning, sess.Status)
	s.Equal(id.Location("Loc-B"), sess.Scans[0].Location, "empty location defaults to the session's")
}

func (s *SessionSuite) TestUnknownBarcodeOpensDiscrepancyWithoutAsset() {
	sess := s.newSession()
	d, _, err := sess.RecordScan("BC-404", "Loc-B", nil, s.now)
	s.Require().NoError(err)
	s.Require().NotNil(d)
	s.Nil(d.AssetID)
	s.True(d.ExpectedLocation.IsZero())

	again, _, err := sess.RecordScan("BC-404", "Loc-B", nil, s.now)
	s.Require().NoError(err)
	s.Nil(again)
	s.Len(sess.Discrepancies, 1)
	s.Len(sess.Scans, 2)
}

func (s *SessionSuite) TestRepeatMismatchDoesNotDuplicate() {
	sess := s.newSession()
	asset := &ScannedAsset{ID: id.AssetID(uuid.New()), Location: "Loc-A"}
	_, _, err := sess.RecordScan("BC-100", "Loc-B", asset, s.now)
	s.Require().NoError(err)
	d, _, err := sess.RecordScan("BC-100", "Loc-C", asset, s.now)
	s.Require().NoError(err)
	s.Nil(d)
	s.Len(sess.Discrepancies, 1)
}

func (s *SessionSuite) TestResolveOnce() {
	sess := s.newSession()
	d, _, err := sess.RecordScan("BC-100", "Loc-B", &ScannedAsset{ID: id.AssetID(uuid.New()), Location: "Loc-A"}, s.now)
	s.Require().NoError(err)

	_, err = sess.ResolveDiscrepancy(d.ID, "  ", s.auditor, s.now)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	resolved, err := sess.ResolveDiscrepancy(d.ID, "moved by facilities", s.auditor, s.now)
	s.Require().NoError(err)
	s.True(resolved.Resolved)
	s.Equal(StatusScanning, sess.Status)

	_, err = sess.ResolveDiscrepancy(d.ID, "again", s.auditor, s.now)
	s.True(dErrors.HasReason(err, dErrors.ReasonAlreadyResolved))

	_, err = sess.ResolveDiscrepancy(id.DiscrepancyID(uuid.New()), "x", s.auditor, s.now)
	s.True(dErrors.HasReason(err, dErrors.ReasonDiscrepancyNotFound))
}

func (s *SessionSuite) TestCompleteBlockedByOpenDiscrepancies() {
	sess := s.newSession()
	d, _, err := sess.RecordScan("BC-100", "Loc-B", nil, s.now)
	s.Require().NoError(err)

	err = sess.Complete(s.auditor, s.now)
	s.True(dErrors.HasReason(err, dErrors.ReasonUnresolved))
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	_, err = sess.Approve(s.auditor, s.now)
	s.True(dErrors.HasReason(err, dErrors.ReasonUnresolved))

	_, err = sess.ResolveDiscrepancy(d.ID, "tag reprinted", s.auditor, s.now)
	s.Require().NoError(err)
	s.Require().NoError(sess.Complete(s.auditor, s.now))
	s.Equal(StatusReconciled, sess.Status)

	_, _, err = sess.RecordScan("BC-101", "Loc-B", nil, s.now)
	s.True(dErrors.HasReason(err, dErrors.ReasonInvalidAuditState))

	_, err = sess.Approve(s.auditor, s.now)
	s.Require().NoError(err)
	s.Equal(StatusApproved, sess.Status)
	s.Error(sess.Complete(s.auditor, s.now))
}

func (s *SessionSuite) TestCompleteNeedsScans() {
	sess := s.newSession()
	s.True(dErrors.HasReason(sess.Complete(s.auditor, s.now), dErrors.ReasonInvalidAuditState))
}
