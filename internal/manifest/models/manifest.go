package models

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/effect"
)

// Status of a manifest. Once packing starts the status is derived from the
// items' packed flags by PackingStatus; Completed is terminal.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusReadyForPacking Status = "ready_for_packing"
	StatusPartiallyPacked Status = "partially_packed"
	StatusFullyPacked     Status = "fully_packed"
	StatusCompleted       Status = "completed"
)

// Item is one asset line on a manifest.
type Item struct {
	ID         id.ManifestItemID `json:"id"`
	AssetID    id.AssetID        `json:"asset_id"`
	SealNumber string            `json:"seal_number,omitempty"`
	Packed     bool              `json:"packed"`
	PackedBy   *id.UserID        `json:"packed_by,omitempty"`
	PackedAt   *time.Time        `json:"packed_at,omitempty"`
}

// Manifest moves a set of assets from one location to another for one
// election.
type Manifest struct {
	ID          id.ManifestID `json:"id"`
	ElectionID  id.ElectionID `json:"election_id"`
	From        id.Location   `json:"from"`
	To          id.Location   `json:"to"`
	Status      Status        `json:"status"`
	Items       []Item        `json:"items"`
	Version     int           `json:"version"`
	CreatedBy   id.UserID     `json:"created_by"`
	UpdatedBy   id.UserID     `json:"updated_by"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	PackedAt    *time.Time    `json:"packed_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// PackingStatus derives the packing-phase status from items. An empty item
// set never counts as fully packed.
func PackingStatus(items []Item) Status {
	packed := 0
	for _, it := range items {
		if it.Packed {
			packed++
		}
	}
	switch {
	case len(items) > 0 && packed == len(items):
		return StatusFullyPacked
	case packed > 0:
		return StatusPartiallyPacked
	default:
		return StatusReadyForPacking
	}
}

func NewManifest(manifestID id.ManifestID, electionID id.ElectionID, from, to id.Location, actor id.UserID, now time.Time) (*Manifest, error) {
	from = id.NewLocation(string(from))
	to = id.NewLocation(string(to))
	switch {
	case electionID.IsNil():
		return nil, dErrors.New(dErrors.CodeValidation, "election is required")
	case from.IsZero() || to.IsZero():
		return nil, dErrors.New(dErrors.CodeValidation, "from and to locations are required")
	case from == to:
		return nil, dErrors.New(dErrors.CodeValidation, "from and to locations must differ")
	case actor.IsNil():
		return nil, dErrors.New(dErrors.CodeValidation, "actor is required")
	}
	return &Manifest{
		ID:         manifestID,
		ElectionID: electionID,
		From:       from,
		To:         to,
		Status:     StatusDraft,
		Items:      []Item{},
		CreatedBy:  actor,
		UpdatedBy:  actor,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (m *Manifest) Clone() *Manifest {
	if m == nil {
		return nil
	}
	c := *m
	c.Items = make([]Item, len(m.Items))
	for i, it := range m.Items {
		if it.PackedBy != nil {
			v := *it.PackedBy
			it.PackedBy = &v
		}
		if it.PackedAt != nil {
			v := *it.PackedAt
			it.PackedAt = &v
		}
		c.Items[i] = it
	}
	if m.PackedAt != nil {
		v := *m.PackedAt
		c.PackedAt = &v
	}
	if m.CompletedAt != nil {
		v := *m.CompletedAt
		c.CompletedAt = &v
	}
	return &c
}

func (m *Manifest) IsOpen() bool {
	return m.Status != StatusCompleted
}

func (m *Manifest) itemIndex(assetID id.AssetID) int {
	return slices.IndexFunc(m.Items, func(it Item) bool { return it.AssetID == assetID })
}

// Item returns the line for assetID.
func (m *Manifest) Item(assetID id.AssetID) (Item, bool) {
	if i := m.itemIndex(assetID); i >= 0 {
		return m.Items[i], true
	}
	return Item{}, false
}

func (m *Manifest) invalidState(op string) error {
	return dErrors.NewReason(dErrors.ReasonInvalidManifestState,
		fmt.Sprintf("manifest %s is %s; cannot %s", m.ID, m.Status, op))
}

func (m *Manifest) editable() bool {
	return m.Status == StatusDraft || m.Status == StatusReadyForPacking
}

func (m *Manifest) touch(actor id.UserID, now time.Time) {
	m.UpdatedBy = actor
	m.UpdatedAt = now
}

func (m *Manifest) CanAddItem(assetID id.AssetID) error {
	if !m.editable() {
		return m.invalidState("add items")
	}
	if m.itemIndex(assetID) >= 0 {
		return dErrors.NewReason(dErrors.ReasonDuplicateManifestItem,
			fmt.Sprintf("asset %s is already on manifest %s", assetID, m.ID))
	}
	return nil
}

// AddItem lists an asset with an optional seal number.
func (m *Manifest) AddItem(assetID id.AssetID, sealNumber string, actor id.UserID, now time.Time) error {
	if err := m.CanAddItem(assetID); err != nil {
		return err
	}
	m.Items = append(m.Items, Item{
		ID:         id.ManifestItemID(uuid.New()),
		AssetID:    assetID,
		SealNumber: sealNumber,
	})
	m.touch(actor, now)
	return nil
}

func (m *Manifest) CanRemoveItem(assetID id.AssetID) error {
	if !m.editable() {
		return m.invalidState("remove items")
	}
	if m.itemIndex(assetID) < 0 {
		return dErrors.NewReason(dErrors.ReasonInvalidManifestState,
			fmt.Sprintf("asset %s is not on manifest %s", assetID, m.ID))
	}
	return nil
}

func (m *Manifest) RemoveItem(assetID id.AssetID, actor id.UserID, now time.Time) error {
	if err := m.CanRemoveItem(assetID); err != nil {
		return err
	}
	i := m.itemIndex(assetID)
	m.Items = slices.Delete(m.Items, i, i+1)
	m.touch(actor, now)
	return nil
}

// DetachAsset drops the asset's line from an open manifest regardless of its
// packed flag and re-derives the packing status. It reports whether the
// manifest changed.
func (m *Manifest) DetachAsset(assetID id.AssetID, actor id.UserID, now time.Time) bool {
	i := m.itemIndex(assetID)
	if i < 0 || !m.IsOpen() {
		return false
	}
	m.Items = slices.Delete(m.Items, i, i+1)
	if m.Status != StatusDraft {
		m.recompute(now)
	}
	m.touch(actor, now)
	return true
}

func (m *Manifest) ReadyForPacking(actor id.UserID, now time.Time) error {
	if m.Status != StatusDraft {
		return m.invalidState("mark ready for packing")
	}
	m.Status = StatusReadyForPacking
	m.touch(actor, now)
	return nil
}

// CanMarkItemPacked checks that an unpacked line exists for assetID while
// packing is open.
func (m *Manifest) CanMarkItemPacked(assetID id.AssetID) error {
	if m.Status != StatusReadyForPacking && m.Status != StatusPartiallyPacked {
		return m.invalidState("pack items")
	}
	i := m.itemIndex(assetID)
	if i < 0 {
		return dErrors.NewReason(dErrors.ReasonInvalidManifestState,
			fmt.Sprintf("asset %s is not on manifest %s", assetID, m.ID))
	}
	if m.Items[i].Packed {
		return dErrors.NewReason(dErrors.ReasonInvalidManifestState,
			fmt.Sprintf("asset %s is already packed", assetID))
	}
	return nil
}

func (m *Manifest) MarkItemPacked(assetID id.AssetID, packedBy id.UserID, now time.Time) error {
	if packedBy.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "actor is required")
	}
	if err := m.CanMarkItemPacked(assetID); err != nil {
		return err
	}
	i := m.itemIndex(assetID)
	at := now
	by := packedBy
	m.Items[i].Packed = true
	m.Items[i].PackedAt = &at
	m.Items[i].PackedBy = &by
	m.recompute(now)
	m.touch(packedBy, now)
	return nil
}

func (m *Manifest) recompute(now time.Time) {
	m.Status = PackingStatus(m.Items)
	if m.Status == StatusFullyPacked {
		at := now
		m.PackedAt = &at
	} else {
		m.PackedAt = nil
	}
}

func (m *Manifest) CanComplete() error {
	if m.Status != StatusFullyPacked {
		return m.invalidState("complete")
	}
	return nil
}

// Complete closes the manifest and asks for a custody form.
func (m *Manifest) Complete(actor id.UserID, now time.Time) ([]effect.Effect, error) {
	if actor.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "actor is required")
	}
	if err := m.CanComplete(); err != nil {
		return nil, err
	}
	m.Status = StatusCompleted
	at := now
	m.CompletedAt = &at
	m.touch(actor, now)
	return []effect.Effect{
		effect.RequestCustodyForm(m.ID),
		effect.Notify(effect.ChannelLogistics, "manifest %s completed: %d items from %s to %s",
			m.ID, len(m.Items), m.From, m.To),
	}, nil
}
