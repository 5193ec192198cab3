package models

import (
	"fmt"
	"strings"
	"time"

	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/effect"
)

// Status of a tamper-evident seal. Broken and Lost are terminal; a seal is
// consumed by its first application and never returns to Available.
type Status string

const (
	StatusAvailable Status = "available"
	StatusApplied   Status = "applied"
	StatusBroken    Status = "broken"
	StatusLost      Status = "lost"
)

func (s Status) IsTerminal() bool {
	return s == StatusBroken || s == StatusLost
}

// Seal is the aggregate root for one numbered seal.
type Seal struct {
	ID          id.SealID      `json:"id"`
	Number      string         `json:"number"`
	Status      Status         `json:"status"`
	ElectionID  *id.ElectionID `json:"election_id,omitempty"`
	AssetID     *id.AssetID    `json:"asset_id,omitempty"`
	CreatedBy   id.UserID      `json:"created_by"`
	AppliedBy   *id.UserID     `json:"applied_by,omitempty"`
	AppliedAt   *time.Time     `json:"applied_at,omitempty"`
	CloseReason string         `json:"close_reason,omitempty"`
	Version     int            `json:"version"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NewSeal registers a seal as Available.
func NewSeal(sealID id.SealID, number string, actor id.UserID, now time.Time) (*Seal, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "seal number is required")
	}
	if actor.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "actor is required")
	}
	return &Seal{
		ID:        sealID,
		Number:    number,
		Status:    StatusAvailable,
		CreatedBy: actor,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *Seal) Clone() *Seal {
	if s == nil {
		return nil
	}
	c := *s
	if s.ElectionID != nil {
		v := *s.ElectionID
		c.ElectionID = &v
	}
	if s.AssetID != nil {
		v := *s.AssetID
		c.AssetID = &v
	}
	if s.AppliedBy != nil {
		v := *s.AppliedBy
		c.AppliedBy = &v
	}
	if s.AppliedAt != nil {
		v := *s.AppliedAt
		c.AppliedAt = &v
	}
	return &c
}

// CanApply reports whether the seal is still unused.
func (s *Seal) CanApply() error {
	if s.Status != StatusAvailable {
		return dErrors.NewReason(dErrors.ReasonInvalidSealState,
			fmt.Sprintf("seal %s is %s", s.Number, s.Status))
	}
	return nil
}

// Apply binds the seal to an asset for an election.
func (s *Seal) Apply(electionID id.ElectionID, assetID id.AssetID, appliedBy id.UserID, now time.Time) error {
	if electionID.IsNil() || assetID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "election and asset are required to apply a seal")
	}
	if appliedBy.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "actor is required")
	}
	if err := s.CanApply(); err != nil {
		return err
	}
	s.Status = StatusApplied
	s.ElectionID = &electionID
	s.AssetID = &assetID
	s.AppliedBy = &appliedBy
	at := now
	s.AppliedAt = &at
	s.UpdatedAt = now
	return nil
}

// Break records that an applied seal was opened or tampered with.
func (s *Seal) Break(reason string, actor id.UserID, now time.Time) ([]effect.Effect, error) {
	if actor.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "actor is required")
	}
	if s.Status != StatusApplied {
		return nil, dErrors.NewReason(dErrors.ReasonInvalidSealState,
			fmt.Sprintf("seal %s is %s; only applied seals can be broken", s.Number, s.Status))
	}
	s.Status = StatusBroken
	s.CloseReason = strings.TrimSpace(reason)
	s.UpdatedAt = now
	return []effect.Effect{s.closedNotice("broken")}, nil
}

// ReportLost retires a seal that can no longer be accounted for.
func (s *Seal) ReportLost(reason string, actor id.UserID, now time.Time) ([]effect.Effect, error) {
	if actor.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "actor is required")
	}
	if s.Status.IsTerminal() {
		return nil, dErrors.NewReason(dErrors.ReasonInvalidSealState,
			fmt.Sprintf("seal %s is already %s", s.Number, s.Status))
	}
	s.Status = StatusLost
	s.CloseReason = strings.TrimSpace(reason)
	s.UpdatedAt = now
	return []effect.Effect{s.closedNotice("lost")}, nil
}

func (s *Seal) closedNotice(what string) effect.Effect {
	if s.AssetID != nil {
		return effect.Notify(effect.ChannelElectionStatus, "seal %s on asset %s reported %s: %s",
			s.Number, *s.AssetID, what, s.CloseReason)
	}
	return effect.Notify(effect.ChannelElectionStatus, "seal %s reported %s: %s", s.Number, what, s.CloseReason)
}
