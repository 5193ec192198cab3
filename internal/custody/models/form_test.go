package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
)

type FormSuite struct {
	suite.Suite
	actor id.UserID
	event id.CustodyEventID
	now   time.Time
}

func TestFormSuite(t *testing.T) {
	suite.Run(t, new(FormSuite))
}

func (s *FormSuite) SetupTest() {
	s.actor = id.UserID(uuid.New())
	s.event = id.CustodyEventID(uuid.New())
	s.now = time.Date(2026, 11, 1, 10, 0, 0, 0, time.UTC)
}

func (s *FormSuite) newForm(required int) *Form {
	f, err := NewForm(id.FormID(uuid.New()), id.ManifestID(uuid.New()), "https://forms/x", required,
		s.now.Add(48*time.Hour), s.actor, s.now)
	s.Require().NoError(err)
	return f
}

func (s *FormSuite) sign(f *Form, signer string) (Signature, error) {
	sig, _, err := f.SubmitSignature(SignatureRequest{
		ID: id.SignatureID(uuid.New()), EventID: s.event, Signer: signer,
	}, DefaultSignaturePolicy{}, s.now)
	return sig, err
}

func (s *FormSuite) TestNewFormValidation() {
	_, err := NewForm(id.FormID(uuid.New()), id.ManifestID(uuid.New()), "", 0, s.now.Add(time.Hour), s.actor, s.now)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	_, err = NewForm(id.FormID(uuid.New()), id.ManifestID(uuid.New()), "", 1, s.now, s.actor, s.now)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *FormSuite) TestTwoSignaturesComplete() {
	f := s.newForm(2)
	s.Equal(FormGenerated, f.Status)

	_, err := s.sign(f, "Poll Worker A")
	s.Require().NoError(err)
	s.Equal(FormInProgress, f.Status)
	s.Equal(1, f.CompletedSignatures())

	_, effects, err := f.SubmitSignature(SignatureRequest{
		ID: id.SignatureID(uuid.New()), EventID: s.event, Signer: "Driver B",
	}, nil, s.now)
	s.Require().NoError(err)
	s.Equal(FormCompleted, f.Status)
	s.Equal(2, f.CompletedSignatures())
	s.Len(effects, 1)
}

func (s *FormSuite) TestInvalidSignaturesAreKeptButNotCounted() {
	f := s.newForm(2)

	empty, err := s.sign(f, "  ")
	s.Require().NoError(err)
	s.False(empty.Valid)
	s.Equal("signer is required", empty.InvalidReason)

	_, err = s.sign(f, "Alice")
	s.Require().NoError(err)
	dup, err := s.sign(f, "alice")
	s.Require().NoError(err)
	s.False(dup.Valid)

	s.Len(f.Signatures, 3)
	s.Equal(1, f.CompletedSignatures())
	s.Equal(FormInProgress, f.Status)
}

func (s *FormSuite) TestSameSignerOnDifferentEventsCounts() {
	f := s.newForm(2)
	_, err := s.sign(f, "Alice")
	s.Require().NoError(err)

	sig, _, err := f.SubmitSignature(SignatureRequest{
		ID: id.SignatureID(uuid.New()), EventID: id.CustodyEventID(uuid.New()), Signer: "Alice",
	}, DefaultSignaturePolicy{}, s.now)
	s.Require().NoError(err)
	s.True(sig.Valid)
	s.Equal(FormCompleted, f.Status)
}

func (s *FormSuite) TestCustomPolicy() {
	f := s.newForm(1)
	rejectAll := SignaturePolicyFunc(func(*Form, Signature) (bool, string) { return false, "wet ink only" })
	sig, _, err := f.SubmitSignature(SignatureRequest{ID: id.SignatureID(uuid.New()), EventID: s.event, Signer: "A"}, rejectAll, s.now)
	s.Require().NoError(err)
	s.False(sig.Valid)
	s.Equal(FormInProgress, f.Status)
}

func (s *FormSuite) TestUnknownSignatureTypeIsNotCounted() {
	f := s.newForm(1)
	sig, _, err := f.SubmitSignature(SignatureRequest{
		ID: id.SignatureID(uuid.New()), EventID: s.event, Signer: "Dana Ortiz", Type: SignatureType("bogus"),
	}, DefaultSignaturePolicy{}, s.now)
	s.Require().NoError(err)
	s.False(sig.Valid)
	s.Contains(sig.InvalidReason, "unknown signature type")
	s.Zero(f.CompletedSignatures())
	s.Equal(FormInProgress, f.Status)

	sig, _, err = f.SubmitSignature(SignatureRequest{
		ID: id.SignatureID(uuid.New()), EventID: s.event, Signer: "Dana Ortiz", Type: SignatureWet,
	}, DefaultSignaturePolicy{}, s.now)
	s.Require().NoError(err)
	s.True(sig.Valid)
	s.Equal(FormCompleted, f.Status)
}

func (s *FormSuite) TestAsOfReportsExpiryWithoutTouchingStoredStatus() {
	f := s.newForm(2)
	_, err := s.sign(f, "Alice")
	s.Require().NoError(err)

	view := f.AsOf(f.ExpiresAt.Add(time.Minute))
	s.Equal(FormExpired, view.Status)
	s.Equal(FormInProgress, f.Status)
	s.Equal(FormInProgress, f.AsOf(s.now).Status)
}

func (s *FormSuite) TestJSONCarriesCompletedSignatures() {
	f := s.newForm(2)
	_, err := s.sign(f, "Alice")
	s.Require().NoError(err)
	_, err = s.sign(f, "")
	s.Require().NoError(err)

	raw, err := json.Marshal(f)
	s.Require().NoError(err)
	var body map[string]any
	s.Require().NoError(json.Unmarshal(raw, &body))
	s.EqualValues(1, body["completed_signatures"])
	s.Equal("in_progress", body["status"])
	s.Len(body["signatures"], 2)
}

func (s *FormSuite) TestExpiredFormRejectsSignaturesAndAccess() {
	f := s.newForm(1)
	late := f.ExpiresAt.Add(time.Minute)

	_, _, err := f.SubmitSignature(SignatureRequest{ID: id.SignatureID(uuid.New()), EventID: s.event, Signer: "A"}, nil, late)
	s.True(dErrors.HasReason(err, dErrors.ReasonFormExpired))
	s.Empty(f.Signatures)
	s.Equal(FormExpired, f.EffectiveStatus(late))
	s.True(dErrors.HasReason(f.Open(late), dErrors.ReasonFormExpired))
	s.Equal(0, f.AccessCount)
}

func (s *FormSuite) TestResolvedFormIsNotActionable() {
	f := s.newForm(3)
	_, err := f.Close(s.actor, s.now)
	s.Require().NoError(err)
	s.True(f.IsResolved())
	s.Equal(FormCompleted, f.EffectiveStatus(f.ExpiresAt.Add(time.Hour)), "resolved forms never expire")

	_, err = s.sign(f, "late signer")
	s.True(dErrors.HasReason(err, dErrors.ReasonInvalidFormState))
	_, err = f.Close(s.actor, s.now)
	s.Error(err)

	s.Require().NoError(f.Open(s.now))
	s.Equal(1, f.AccessCount)
}

func (s *FormSuite) TestAttachScan() {
	f := s.newForm(1)
	s.True(dErrors.HasCode(f.AttachScan("", s.now), dErrors.CodeValidation))
	s.Require().NoError(f.AttachScan("sha256:abc", s.now))
	s.Equal("sha256:abc", f.ScannedRef)
}

func (s *FormSuite) TestNewEventValidation() {
	_, err := NewEvent(id.CustodyEventID(uuid.New()), TransferInput{
		ElectionID: id.ElectionID(uuid.New()), AssetID: id.AssetID(uuid.New()), FromParty: "WH",
	}, s.actor, s.now)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	ev, err := NewEvent(id.CustodyEventID(uuid.New()), TransferInput{
		ElectionID: id.ElectionID(uuid.New()), AssetID: id.AssetID(uuid.New()),
		FromParty: " Warehouse ", ToParty: "Driver", SealNumber: "SEAL-1",
	}, s.actor, s.now)
	s.Require().NoError(err)
	s.Equal("Warehouse", ev.FromParty)
	s.Equal(s.now, ev.OccurredAt)
}
