package models

import (
	"fmt"
	"strings"
	"time"

	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/effect"
)

// Asset is the aggregate root for one serial-numbered piece of election
// equipment.
//
// Invariants:
//   - Serial and Type are non-empty; Serial never changes after registration
//   - Status only moves along the edges in transitions
//   - KitID is set only while the asset is held by a kit (Assigned or later)
//   - ManifestID is set only while the asset is reserved by, or travelling on,
//     a manifest; delivery clears it, and an Available asset never has one
//   - No field changes outside the named transitions below; each transition
//     validates fully before touching the aggregate
type Asset struct {
	ID         id.AssetID     `json:"id"`
	Serial     string         `json:"serial"`
	Type       string         `json:"type"`
	Tag        string         `json:"tag,omitempty"`
	Status     Status         `json:"status"`
	Condition  string         `json:"condition,omitempty"`
	Location   id.Location    `json:"location,omitempty"`
	FacilityID *id.FacilityID `json:"facility_id,omitempty"`
	ElectionID *id.ElectionID `json:"election_id,omitempty"`
	KitID      *id.KitID      `json:"kit_id,omitempty"`
	ManifestID *id.ManifestID `json:"manifest_id,omitempty"`
	Version    int            `json:"version"`
	CreatedBy  id.UserID      `json:"created_by"`
	UpdatedBy  id.UserID      `json:"updated_by"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// RegisterInput carries the registration attributes.
type RegisterInput struct {
	Serial     string
	Type       string
	Tag        string
	Condition  string
	Location   id.Location
	FacilityID *id.FacilityID
	ElectionID *id.ElectionID
}

// NewAsset registers an asset, moving it from Unregistered to Available.
func NewAsset(assetID id.AssetID, in RegisterInput, actor id.UserID, now time.Time) (*Asset, error) {
	serial := strings.TrimSpace(in.Serial)
	assetType := strings.TrimSpace(in.Type)
	if serial == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "serial number is required")
	}
	if assetType == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "asset type is required")
	}
	if actor.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "actor is required")
	}
	condition := strings.TrimSpace(in.Condition)
	if condition == "" {
		condition = "good"
	}
	return &Asset{
		ID:         assetID,
		Serial:     serial,
		Type:       assetType,
		Tag:        strings.TrimSpace(in.Tag),
		Status:     StatusAvailable,
		Condition:  condition,
		Location:   id.NewLocation(string(in.Location)),
		FacilityID: in.FacilityID,
		ElectionID: in.ElectionID,
		CreatedBy:  actor,
		UpdatedBy:  actor,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Clone returns a deep copy safe to hand across store boundaries.
func (a *Asset) Clone() *Asset {
	if a == nil {
		return nil
	}
	c := *a
	c.FacilityID = clonePtr(a.FacilityID)
	c.ElectionID = clonePtr(a.ElectionID)
	c.KitID = clonePtr(a.KitID)
	c.ManifestID = clonePtr(a.ManifestID)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func (a *Asset) invalidState(op string, want ...Status) error {
	names := make([]string, len(want))
	for i, s := range want {
		names[i] = string(s)
	}
	return dErrors.NewReason(dErrors.ReasonInvalidAssetState,
		fmt.Sprintf("asset %s is %s; %s requires %s", a.Serial, a.Status, op, strings.Join(names, " or ")))
}

func requireActor(actor id.UserID) error {
	if actor.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "actor is required")
	}
	return nil
}

func (a *Asset) touch(actor id.UserID, now time.Time) {
	a.UpdatedBy = actor
	a.UpdatedAt = now
}

// CanAssignToKit checks that the asset may join a kit.
func (a *Asset) CanAssignToKit(kitID id.KitID) error {
	if kitID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "kit id is required")
	}
	if a.Status != StatusAvailable {
		return a.invalidState("assign to kit", StatusAvailable)
	}
	return nil
}

// AssignToKit moves an Available asset into a kit.
func (a *Asset) AssignToKit(kitID id.KitID, actor id.UserID, now time.Time) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if err := a.CanAssignToKit(kitID); err != nil {
		return err
	}
	a.Status = StatusAssigned
	a.KitID = &kitID
	a.touch(actor, now)
	return nil
}

// CanReleaseFromKit checks that the asset can leave kitID. An asset already
// reserved by a manifest must be released from the manifest first.
func (a *Asset) CanReleaseFromKit(kitID id.KitID) error {
	if a.KitID == nil || *a.KitID != kitID {
		return dErrors.NewReason(dErrors.ReasonInvalidAssetState,
			fmt.Sprintf("asset %s is not held by kit %s", a.Serial, kitID))
	}
	if a.Status != StatusAssigned {
		return a.invalidState("release from kit", StatusAssigned)
	}
	if a.ManifestID != nil {
		return dErrors.NewReason(dErrors.ReasonInvalidAssetState,
			fmt.Sprintf("asset %s is reserved by manifest %s", a.Serial, *a.ManifestID))
	}
	return nil
}

// ReleaseFromKit returns a kit member to Available.
func (a *Asset) ReleaseFromKit(kitID id.KitID, actor id.UserID, now time.Time) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if err := a.CanReleaseFromKit(kitID); err != nil {
		return err
	}
	a.Status = StatusAvailable
	a.KitID = nil
	a.touch(actor, now)
	return nil
}

// CanReserveForManifest checks that the asset is free to be listed on a
// manifest. Kit members (Assigned) may travel on their kit's manifest.
func (a *Asset) CanReserveForManifest(manifestID id.ManifestID) error {
	if manifestID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "manifest id is required")
	}
	if a.Status != StatusAvailable && a.Status != StatusAssigned {
		return a.invalidState("reserve for manifest", StatusAvailable, StatusAssigned)
	}
	if a.ManifestID != nil {
		return dErrors.NewReason(dErrors.ReasonInvalidAssetState,
			fmt.Sprintf("asset %s is already on manifest %s", a.Serial, *a.ManifestID))
	}
	return nil
}

// ReserveForManifest marks the asset as listed on an open manifest.
func (a *Asset) ReserveForManifest(manifestID id.ManifestID, actor id.UserID, now time.Time) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if err := a.CanReserveForManifest(manifestID); err != nil {
		return err
	}
	a.Status = StatusAssigned
	a.ManifestID = &manifestID
	a.touch(actor, now)
	return nil
}

// CanReleaseFromManifest checks that manifestID holds an un-dispatched
// reservation on the asset.
func (a *Asset) CanReleaseFromManifest(manifestID id.ManifestID) error {
	if a.ManifestID == nil || *a.ManifestID != manifestID {
		return dErrors.NewReason(dErrors.ReasonInvalidAssetState,
			fmt.Sprintf("asset %s is not reserved by manifest %s", a.Serial, manifestID))
	}
	if a.Status != StatusAssigned {
		return a.invalidState("release from manifest", StatusAssigned)
	}
	return nil
}

// ReleaseFromManifest drops the reservation. Kit members stay Assigned.
func (a *Asset) ReleaseFromManifest(manifestID id.ManifestID, actor id.UserID, now time.Time) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if err := a.CanReleaseFromManifest(manifestID); err != nil {
		return err
	}
	a.ManifestID = nil
	if a.KitID == nil {
		a.Status = StatusAvailable
	}
	a.touch(actor, now)
	return nil
}

// CanDispatch checks that the asset is reserved by manifestID and ready to ship.
func (a *Asset) CanDispatch(manifestID id.ManifestID) error {
	if a.ManifestID == nil || *a.ManifestID != manifestID {
		return dErrors.NewReason(dErrors.ReasonInvalidAssetState,
			fmt.Sprintf("asset %s is not reserved by manifest %s", a.Serial, manifestID))
	}
	if a.Status != StatusAssigned {
		return a.invalidState("dispatch", StatusAssigned)
	}
	return nil
}

// Dispatch puts the asset in transit on its manifest.
func (a *Asset) Dispatch(manifestID id.ManifestID, actor id.UserID, now time.Time) ([]effect.Effect, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := a.CanDispatch(manifestID); err != nil {
		return nil, err
	}
	a.Status = StatusInTransit
	a.touch(actor, now)
	return []effect.Effect{
		effect.Notify(effect.ChannelLogistics, "asset %s dispatched on manifest %s", a.Serial, manifestID),
	}, nil
}

// ConfirmDelivery records arrival at location.
func (a *Asset) ConfirmDelivery(location id.Location, actor id.UserID, now time.Time) ([]effect.Effect, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if location.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "delivery location is required")
	}
	if a.Status != StatusInTransit {
		return nil, a.invalidState("confirm delivery", StatusInTransit)
	}
	a.Status = StatusDeployed
	a.Location = id.NewLocation(string(location))
	a.ManifestID = nil
	a.touch(actor, now)
	return []effect.Effect{
		effect.Notify(effect.ChannelLogistics, "asset %s delivered to %s", a.Serial, a.Location),
	}, nil
}

// UpdateCondition grades the asset without changing its status.
func (a *Asset) UpdateCondition(grade string, actor id.UserID, now time.Time) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	grade = strings.TrimSpace(grade)
	if grade == "" {
		return dErrors.New(dErrors.CodeValidation, "condition grade is required")
	}
	if a.Status.IsTerminal() {
		return dErrors.NewReason(dErrors.ReasonInvalidAssetState,
			fmt.Sprintf("asset %s is %s", a.Serial, a.Status))
	}
	a.Condition = grade
	a.touch(actor, now)
	return nil
}

// CanMarkOutOfService checks the retirement edge.
func (a *Asset) CanMarkOutOfService() error {
	if !a.Status.CanTransitionTo(StatusOutOfService) {
		return a.invalidState("mark out of service", StatusAvailable, StatusDeployed, StatusInMaintenance)
	}
	return nil
}

// CanReturnToWarehouse checks the return edge.
func (a *Asset) CanReturnToWarehouse() error {
	if a.Status == StatusAvailable || !a.Status.CanTransitionTo(StatusAvailable) {
		return a.invalidState("return to warehouse",
			StatusAssigned, StatusInTransit, StatusDeployed, StatusInMaintenance)
	}
	return nil
}

// ReturnToWarehouse resets the asset to Available at location and clears its
// kit and manifest associations.
func (a *Asset) ReturnToWarehouse(location id.Location, actor id.UserID, now time.Time) ([]effect.Effect, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := a.CanReturnToWarehouse(); err != nil {
		return nil, err
	}
	a.Status = StatusAvailable
	a.KitID = nil
	a.ManifestID = nil
	if !location.IsZero() {
		a.Location = id.NewLocation(string(location))
	}
	a.touch(actor, now)
	return []effect.Effect{
		effect.Notify(effect.ChannelWarehouse, "asset %s returned to warehouse at %s", a.Serial, a.Location),
	}, nil
}

// SendToMaintenance takes an Available or Deployed asset out of rotation.
func (a *Asset) SendToMaintenance(reason string, actor id.UserID, now time.Time) ([]effect.Effect, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if a.Status != StatusAvailable && a.Status != StatusDeployed {
		return nil, a.invalidState("send to maintenance", StatusAvailable, StatusDeployed)
	}
	a.Status = StatusInMaintenance
	a.touch(actor, now)
	return []effect.Effect{
		effect.Notify(effect.ChannelWarehouse, "asset %s sent to maintenance: %s", a.Serial, strings.TrimSpace(reason)),
	}, nil
}

// MarkOutOfService retires the asset and drops any kit or manifest link.
// Assets on the move must be returned first.
func (a *Asset) MarkOutOfService(reason string, actor id.UserID, now time.Time) ([]effect.Effect, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := a.CanMarkOutOfService(); err != nil {
		return nil, err
	}
	a.Status = StatusOutOfService
	a.KitID = nil
	a.ManifestID = nil
	a.touch(actor, now)
	return []effect.Effect{
		effect.Notify(effect.ChannelWarehouse, "asset %s out of service: %s", a.Serial, strings.TrimSpace(reason)),
	}, nil
}

// CorrectLocation overwrites the recorded location, used when an audit shows
// the asset somewhere else.
func (a *Asset) CorrectLocation(location id.Location, actor id.UserID, now time.Time) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if location.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "location is required")
	}
	if a.Status.IsTerminal() {
		return dErrors.NewReason(dErrors.ReasonInvalidAssetState,
			fmt.Sprintf("asset %s is %s", a.Serial, a.Status))
	}
	a.Location = id.NewLocation(string(location))
	a.touch(actor, now)
	return nil
}
