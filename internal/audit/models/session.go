package models

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/effect"
)

type Status string

const (
	StatusInitiated          Status = "initiated"
	StatusScanning           Status = "scanning"
	StatusDiscrepanciesFound Status = "discrepancies_found"
	StatusReconciled         Status = "reconciled"
	StatusApproved           Status = "approved"
)

// Scan is one barcode read. AssetID is nil when the barcode matched nothing.
type Scan struct {
	Barcode   string      `json:"barcode"`
	Location  id.Location `json:"location"`
	AssetID   *id.AssetID `json:"asset_id,omitempty"`
	ScannedAt time.Time   `json:"scanned_at"`
}

// Discrepancy is a mismatch between where an asset is recorded and where it
// was scanned. It is resolved at most once.
type Discrepancy struct {
	ID               id.DiscrepancyID `json:"id"`
	AssetID          *id.AssetID      `json:"asset_id,omitempty"`
	Barcode          string           `json:"barcode"`
	ExpectedLocation id.Location      `json:"expected_location"`
	ActualLocation   id.Location      `json:"actual_location"`
	Notes            string           `json:"notes,omitempty"`
	Resolved         bool             `json:"resolved"`
	Resolution       string           `json:"resolution,omitempty"`
	ResolvedBy       *id.UserID       `json:"resolved_by,omitempty"`
	DetectedAt       time.Time        `json:"detected_at"`
	ResolvedAt       *time.Time       `json:"resolved_at,omitempty"`
}

// ScannedAsset is what the asset registry knows about a scanned barcode.
type ScannedAsset struct {
	ID       id.AssetID
	Location id.Location
}

// Session is a physical inventory scan reconciled against recorded locations.
type Session struct {
	ID            id.AuditSessionID `json:"id"`
	AuditorID     id.UserID         `json:"auditor_id"`
	Location      id.Location       `json:"location"`
	Status        Status            `json:"status"`
	Scans         []Scan            `json:"scans"`
	Discrepancies []Discrepancy     `json:"discrepancies"`
	ApprovedBy    *id.UserID        `json:"approved_by,omitempty"`
	Version       int               `json:"version"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

func NewSession(sessionID id.AuditSessionID, auditor id.UserID, location id.Location, now time.Time) (*Session, error) {
	if auditor.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "auditor is required")
	}
	location = id.NewLocation(string(location))
	if location.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "audit location is required")
	}
	return &Session{
		ID:            sessionID,
		AuditorID:     auditor,
		Location:      location,
		Status:        StatusInitiated,
		Scans:         []Scan{},
		Discrepancies: []Discrepancy{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Scans = slices.Clone(s.Scans)
	c.Discrepancies = slices.Clone(s.Discrepancies)
	if c.Scans == nil {
		c.Scans = []Scan{}
	}
	if c.Discrepancies == nil {
		c.Discrepancies = []Discrepancy{}
	}
	return &c
}

// OpenDiscrepancies counts unresolved records.
func (s *Session) OpenDiscrepancies() int {
	n := 0
	for _, d := range s.Discrepancies {
		if !d.Resolved {
			n++
		}
	}
	return n
}

func (s *Session) scanning() bool {
	return s.Status == StatusInitiated || s.Status == StatusScanning || s.Status == StatusDiscrepanciesFound
}

func (s *Session) invalidState(op string) error {
	return dErrors.NewReason(dErrors.ReasonInvalidAuditState,
		fmt.Sprintf("audit session %s is %s; cannot %s", s.ID, s.Status, op))
}

func (s *Session) hasOpenFor(assetID *id.AssetID, barcode string) bool {
	return slices.ContainsFunc(s.Discrepancies, func(d Discrepancy) bool {
		if d.Resolved {
			return false
		}
		if assetID != nil {
			return d.AssetID != nil && *d.AssetID == *assetID
		}
		return d.AssetID == nil && d.Barcode == barcode
	})
}

// RecordScan appends a scan and opens a discrepancy when the scanned location
// disagrees with the recorded one, or when the barcode is unknown (asset nil).
// An empty location defaults to the session location. It returns the opened
// discrepancy, if any.
func (s *Session) RecordScan(barcode string, location id.Location, asset *ScannedAsset, now time.Time) (*Discrepancy, []effect.Effect, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return nil, nil, dErrors.New(dErrors.CodeValidation, "barcode is required")
	}
	if !s.scanning() {
		return nil, nil, s.invalidState("record scans")
	}
	location = id.NewLocation(string(location))
	if location.IsZero() {
		location = s.Location
	}

	scan := Scan{Barcode: barcode, Location: location, ScannedAt: now}
	var assetID *id.AssetID
	if asset != nil {
		v := asset.ID
		assetID = &v
		scan.AssetID = &v
	}
	s.Scans = append(s.Scans, scan)
	s.UpdatedAt = now
	if s.Status == StatusInitiated {
		s.Status = StatusScanning
	}

	mismatch := asset == nil || asset.Location != location
	if !mismatch || s.hasOpenFor(assetID, barcode) {
		return nil, nil, nil
	}

	d := Discrepancy{
		ID:             id.DiscrepancyID(uuid.New()),
		AssetID:        assetID,
		Barcode:        barcode,
		ActualLocation: location,
		DetectedAt:     now,
	}
	if asset != nil {
		d.ExpectedLocation = asset.Location
	} else {
		d.Notes = "barcode not registered"
	}
	s.Discrepancies = append(s.Discrepancies, d)
	s.Status = StatusDiscrepanciesFound

	expected := string(d.ExpectedLocation)
	if expected == "" {
		expected = "unknown"
	}
	return &d, []effect.Effect{
		effect.Notify(effect.ChannelWarehouse, "audit %s: %s expected at %s, scanned at %s",
			s.ID, barcode, expected, location),
	}, nil
}

// Discrepancy returns the record with the given id.
func (s *Session) Discrepancy(discrepancyID id.DiscrepancyID) (Discrepancy, bool) {
	i := slices.IndexFunc(s.Discrepancies, func(d Discrepancy) bool { return d.ID == discrepancyID })
	if i < 0 {
		return Discrepancy{}, false
	}
	return s.Discrepancies[i], true
}

// CanResolve checks that the discrepancy exists and is still open.
func (s *Session) CanResolve(discrepancyID id.DiscrepancyID) error {
	if !s.scanning() {
		return s.invalidState("resolve discrepancies")
	}
	d, ok := s.Discrepancy(discrepancyID)
	if !ok {
		return dErrors.NewReason(dErrors.ReasonDiscrepancyNotFound,
			fmt.Sprintf("discrepancy %s not found in audit %s", discrepancyID, s.ID))
	}
	if d.Resolved {
		return dErrors.NewReason(dErrors.ReasonAlreadyResolved,
			fmt.Sprintf("discrepancy %s is already resolved", discrepancyID))
	}
	return nil
}

// ResolveDiscrepancy closes one record. When it was the last open one the
// session returns to Scanning.
func (s *Session) ResolveDiscrepancy(discrepancyID id.DiscrepancyID, resolution string, actor id.UserID, now time.Time) (Discrepancy, error) {
	resolution = strings.TrimSpace(resolution)
	if resolution == "" {
		return Discrepancy{}, dErrors.New(dErrors.CodeValidation, "resolution is required")
	}
	if actor.IsNil() {
		return Discrepancy{}, dErrors.New(dErrors.CodeValidation, "actor is required")
	}
	if err := s.CanResolve(discrepancyID); err != nil {
		return Discrepancy{}, err
	}
	i := slices.IndexFunc(s.Discrepancies, func(d Discrepancy) bool { return d.ID == discrepancyID })
	at := now
	by := actor
	s.Discrepancies[i].Resolved = true
	s.Discrepancies[i].Resolution = resolution
	s.Discrepancies[i].ResolvedAt = &at
	s.Discrepancies[i].ResolvedBy = &by
	if s.OpenDiscrepancies() == 0 {
		s.Status = StatusScanning
	}
	s.UpdatedAt = now
	return s.Discrepancies[i], nil
}

func (s *Session) unresolved() error {
	if n := s.OpenDiscrepancies(); n > 0 {
		return dErrors.NewReason(dErrors.ReasonUnresolved,
			fmt.Sprintf("audit session %s has %d unresolved discrepancies", s.ID, n))
	}
	return nil
}

// Complete reconciles the session. At least one scan is required.
func (s *Session) Complete(actor id.UserID, now time.Time) error {
	if actor.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "actor is required")
	}
	if err := s.unresolved(); err != nil {
		return err
	}
	if s.Status != StatusScanning {
		return s.invalidState("complete")
	}
	s.Status = StatusReconciled
	at := now
	s.CompletedAt = &at
	s.UpdatedAt = now
	return nil
}

// Approve signs off a reconciled session; Approved is terminal.
func (s *Session) Approve(approver id.UserID, now time.Time) ([]effect.Effect, error) {
	if approver.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "approver is required")
	}
	if err := s.unresolved(); err != nil {
		return nil, err
	}
	if s.Status != StatusReconciled {
		return nil, s.invalidState("approve")
	}
	s.Status = StatusApproved
	s.ApprovedBy = &approver
	s.UpdatedAt = now
	return []effect.Effect{
		effect.Notify(effect.ChannelWarehouse, "audit %s at %s approved: %d scans, %d discrepancies",
			s.ID, s.Location, len(s.Scans), len(s.Discrepancies)),
	}, nil
}
