package models

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/effect"
)

// FormStatus of a chain-of-custody form. Expired is never stored as a
// transition; it is derived from ExpiresAt by EffectiveStatus.
type FormStatus string

const (
	FormGenerated  FormStatus = "generated"
	FormInProgress FormStatus = "in_progress"
	FormCompleted  FormStatus = "completed"
	FormExpired    FormStatus = "expired"
)

// SignatureType records how the signer acknowledged the form.
type SignatureType string

const (
	SignatureDrawn SignatureType = "drawn"
	SignatureTyped SignatureType = "typed"
	SignatureWet   SignatureType = "wet"
)

func (t SignatureType) IsKnown() bool {
	switch t {
	case SignatureDrawn, SignatureTyped, SignatureWet:
		return true
	}
	return false
}

type Signature struct {
	ID            id.SignatureID    `json:"id"`
	EventID       id.CustodyEventID `json:"event_id"`
	Signer        string            `json:"signer"`
	Type          SignatureType     `json:"type"`
	SignedAt      time.Time         `json:"signed_at"`
	Valid         bool              `json:"valid"`
	InvalidReason string            `json:"invalid_reason,omitempty"`
}

// Form is the digital acknowledgment workflow for one completed manifest.
type Form struct {
	ID                 id.FormID     `json:"id"`
	ManifestID         id.ManifestID `json:"manifest_id"`
	URL                string        `json:"url"`
	RequiredSignatures int           `json:"required_signatures"`
	Status             FormStatus    `json:"status"`
	ExpiresAt          time.Time     `json:"expires_at"`
	AccessCount        int           `json:"access_count"`
	ClosedBy           *id.UserID    `json:"closed_by,omitempty"`
	ScannedRef         string        `json:"scanned_ref,omitempty"`
	Signatures         []Signature   `json:"signatures"`
	Version            int           `json:"version"`
	CreatedBy          id.UserID     `json:"created_by"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// NewForm builds a Generated form. The URL is minted by the caller because it
// embeds a signed token over the form id and expiry.
func NewForm(formID id.FormID, manifestID id.ManifestID, url string, required int, expiresAt time.Time, actor id.UserID, now time.Time) (*Form, error) {
	switch {
	case manifestID.IsNil():
		return nil, dErrors.New(dErrors.CodeValidation, "manifest is required")
	case required < 1:
		return nil, dErrors.New(dErrors.CodeValidation, "at least one signature must be required")
	case !expiresAt.After(now):
		return nil, dErrors.New(dErrors.CodeValidation, "expiry must be in the future")
	case actor.IsNil():
		return nil, dErrors.New(dErrors.CodeValidation, "actor is required")
	}
	return &Form{
		ID:                 formID,
		ManifestID:         manifestID,
		URL:                url,
		RequiredSignatures: required,
		Status:             FormGenerated,
		ExpiresAt:          expiresAt,
		Signatures:         []Signature{},
		CreatedBy:          actor,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

func (f *Form) Clone() *Form {
	if f == nil {
		return nil
	}
	c := *f
	c.Signatures = slices.Clone(f.Signatures)
	if c.Signatures == nil {
		c.Signatures = []Signature{}
	}
	if f.ClosedBy != nil {
		v := *f.ClosedBy
		c.ClosedBy = &v
	}
	return &c
}

// CompletedSignatures counts valid signatures only.
func (f *Form) CompletedSignatures() int {
	n := 0
	for _, sig := range f.Signatures {
		if sig.Valid {
			n++
		}
	}
	return n
}

// IsResolved reports whether enough signatures were collected or the form was
// closed explicitly.
func (f *Form) IsResolved() bool {
	return f.Status == FormCompleted
}

// EffectiveStatus folds expiry into the stored status.
func (f *Form) EffectiveStatus(now time.Time) FormStatus {
	if !f.IsResolved() && !now.Before(f.ExpiresAt) {
		return FormExpired
	}
	return f.Status
}

// AsOf returns a copy whose Status is the effective status at now. Reads hand
// this copy out; it is never written back.
func (f *Form) AsOf(now time.Time) *Form {
	c := f.Clone()
	c.Status = f.EffectiveStatus(now)
	return c
}

// MarshalJSON adds the derived completed_signatures count.
func (f Form) MarshalJSON() ([]byte, error) {
	type form Form
	return json.Marshal(struct {
		form
		CompletedSignatures int `json:"completed_signatures"`
	}{form: form(f), CompletedSignatures: f.CompletedSignatures()})
}

func (f *Form) ensureActionable(now time.Time) error {
	if f.IsResolved() {
		return dErrors.NewReason(dErrors.ReasonInvalidFormState,
			fmt.Sprintf("custody form %s is already completed", f.ID))
	}
	if f.EffectiveStatus(now) == FormExpired {
		return dErrors.NewReason(dErrors.ReasonFormExpired,
			fmt.Sprintf("custody form %s expired at %s", f.ID, f.ExpiresAt.Format(time.RFC3339)))
	}
	return nil
}

// Open records one access through the form link. Completed forms stay
// viewable; expired ones do not.
func (f *Form) Open(now time.Time) error {
	if f.EffectiveStatus(now) == FormExpired {
		return dErrors.NewReason(dErrors.ReasonFormExpired,
			fmt.Sprintf("custody form %s expired", f.ID))
	}
	f.AccessCount++
	f.UpdatedAt = now
	return nil
}

// SignatureRequest is one submitted acknowledgment.
type SignatureRequest struct {
	ID      id.SignatureID
	EventID id.CustodyEventID
	Signer  string
	Type    SignatureType
}

// SubmitSignature records a signature, judged by policy, and re-derives the
// form status from the valid count. Invalid signatures are kept for the record
// but never counted.
func (f *Form) SubmitSignature(req SignatureRequest, policy SignaturePolicy, now time.Time) (Signature, []effect.Effect, error) {
	if err := f.ensureActionable(now); err != nil {
		return Signature{}, nil, err
	}
	if req.EventID.IsNil() {
		return Signature{}, nil, dErrors.New(dErrors.CodeValidation, "custody event is required")
	}
	if policy == nil {
		policy = DefaultSignaturePolicy{}
	}
	if req.Type == "" {
		req.Type = SignatureTyped
	}
	sig := Signature{
		ID:       req.ID,
		EventID:  req.EventID,
		Signer:   strings.TrimSpace(req.Signer),
		Type:     req.Type,
		SignedAt: now,
	}
	sig.Valid, sig.InvalidReason = policy.Evaluate(f, sig)
	f.Signatures = append(f.Signatures, sig)
	f.UpdatedAt = now

	if f.CompletedSignatures() >= f.RequiredSignatures {
		f.Status = FormCompleted
		return sig, []effect.Effect{
			effect.Notify(effect.ChannelElectionStatus, "custody form for manifest %s completed with %d signatures",
				f.ManifestID, f.CompletedSignatures()),
		}, nil
	}
	f.Status = FormInProgress
	return sig, nil, nil
}

// Close resolves the form without waiting for the remaining signatures.
func (f *Form) Close(actor id.UserID, now time.Time) ([]effect.Effect, error) {
	if actor.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "actor is required")
	}
	if err := f.ensureActionable(now); err != nil {
		return nil, err
	}
	f.Status = FormCompleted
	f.ClosedBy = &actor
	f.UpdatedAt = now
	return []effect.Effect{
		effect.Notify(effect.ChannelElectionStatus, "custody form for manifest %s closed with %d of %d signatures",
			f.ManifestID, f.CompletedSignatures(), f.RequiredSignatures),
	}, nil
}

// AttachScan keeps an opaque file-store reference to a scanned paper form.
func (f *Form) AttachScan(ref string, now time.Time) error {
	if strings.TrimSpace(ref) == "" {
		return dErrors.New(dErrors.CodeValidation, "scan reference is required")
	}
	f.ScannedRef = ref
	f.UpdatedAt = now
	return nil
}
