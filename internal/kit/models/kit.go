package models

import (
	"fmt"
	"slices"
	"strings"
	"time"

	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/effect"
)

// Status of a kit. Retired is terminal and reachable from every other status;
// any non-retired kit is open.
type Status string

const (
	StatusAssembling Status = "assembling"
	StatusReady      Status = "ready"
	StatusDeployed   Status = "deployed"
	StatusRetired    Status = "retired"
)

// Kit is a named bundle of assets destined for one poll site. Members are
// referenced by id only; asset state lives on the Asset aggregate.
type Kit struct {
	ID         id.KitID       `json:"id"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Status     Status         `json:"status"`
	PollSite   id.Location    `json:"poll_site,omitempty"`
	AssetIDs   []id.AssetID   `json:"asset_ids"`
	ManifestID *id.ManifestID `json:"manifest_id,omitempty"`
	Version    int            `json:"version"`
	CreatedBy  id.UserID      `json:"created_by"`
	UpdatedBy  id.UserID      `json:"updated_by"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// NewKit creates an empty kit in Assembling.
func NewKit(kitID id.KitID, name, kitType string, actor id.UserID, now time.Time) (*Kit, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "kit name is required")
	}
	if actor.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "actor is required")
	}
	kitType = strings.TrimSpace(kitType)
	if kitType == "" {
		kitType = "standard"
	}
	return &Kit{
		ID:        kitID,
		Name:      name,
		Type:      kitType,
		Status:    StatusAssembling,
		AssetIDs:  []id.AssetID{},
		CreatedBy: actor,
		UpdatedBy: actor,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (k *Kit) Clone() *Kit {
	if k == nil {
		return nil
	}
	c := *k
	c.AssetIDs = slices.Clone(k.AssetIDs)
	if c.AssetIDs == nil {
		c.AssetIDs = []id.AssetID{}
	}
	if k.ManifestID != nil {
		v := *k.ManifestID
		c.ManifestID = &v
	}
	return &c
}

func (k *Kit) IsOpen() bool {
	return k.Status != StatusRetired
}

func (k *Kit) Contains(assetID id.AssetID) bool {
	return slices.Contains(k.AssetIDs, assetID)
}

func (k *Kit) invalidState(op string) error {
	return dErrors.NewReason(dErrors.ReasonInvalidKitState,
		fmt.Sprintf("kit %s is %s; cannot %s", k.Name, k.Status, op))
}

func (k *Kit) touch(actor id.UserID, now time.Time) {
	k.UpdatedBy = actor
	k.UpdatedAt = now
}

// CanAddAsset checks membership rules local to the kit. Whether the asset is
// free is checked against the asset and the other kits by the caller.
func (k *Kit) CanAddAsset(assetID id.AssetID) error {
	if k.Status != StatusAssembling {
		return k.invalidState("add assets")
	}
	if k.Contains(assetID) {
		return dErrors.NewReason(dErrors.ReasonDuplicateKitMember,
			fmt.Sprintf("asset %s is already in kit %s", assetID, k.Name))
	}
	return nil
}

func (k *Kit) AddAsset(assetID id.AssetID, actor id.UserID, now time.Time) error {
	if err := k.CanAddAsset(assetID); err != nil {
		return err
	}
	k.AssetIDs = append(k.AssetIDs, assetID)
	k.touch(actor, now)
	return nil
}

func (k *Kit) CanRemoveAsset(assetID id.AssetID) error {
	if k.Status != StatusAssembling {
		return k.invalidState("remove assets")
	}
	if !k.Contains(assetID) {
		return dErrors.NewReason(dErrors.ReasonInvalidKitState,
			fmt.Sprintf("asset %s is not in kit %s", assetID, k.Name))
	}
	return nil
}

func (k *Kit) RemoveAsset(assetID id.AssetID, actor id.UserID, now time.Time) error {
	if err := k.CanRemoveAsset(assetID); err != nil {
		return err
	}
	k.drop(assetID)
	k.touch(actor, now)
	return nil
}

// DetachAsset drops a member in any status, used when the asset itself leaves
// circulation. It reports whether the kit changed.
func (k *Kit) DetachAsset(assetID id.AssetID, actor id.UserID, now time.Time) bool {
	if !k.Contains(assetID) {
		return false
	}
	k.drop(assetID)
	k.touch(actor, now)
	return true
}

func (k *Kit) drop(assetID id.AssetID) {
	k.AssetIDs = slices.DeleteFunc(k.AssetIDs, func(a id.AssetID) bool { return a == assetID })
}

// MarkReady closes assembly. An empty kit cannot be ready.
func (k *Kit) MarkReady(actor id.UserID, now time.Time) error {
	if k.Status != StatusAssembling {
		return k.invalidState("mark ready")
	}
	if len(k.AssetIDs) == 0 {
		return dErrors.NewReason(dErrors.ReasonInvalidKitState,
			fmt.Sprintf("kit %s has no assets", k.Name))
	}
	k.Status = StatusReady
	k.touch(actor, now)
	return nil
}

func (k *Kit) AssignPollSite(site id.Location, actor id.UserID, now time.Time) error {
	if site.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "poll site is required")
	}
	if k.Status != StatusAssembling && k.Status != StatusReady {
		return k.invalidState("assign a poll site")
	}
	k.PollSite = id.NewLocation(string(site))
	k.touch(actor, now)
	return nil
}

func (k *Kit) Deploy(actor id.UserID, now time.Time) ([]effect.Effect, error) {
	if k.Status != StatusReady {
		return nil, k.invalidState("deploy")
	}
	if k.PollSite.IsZero() {
		return nil, dErrors.NewReason(dErrors.ReasonInvalidKitState,
			fmt.Sprintf("kit %s has no poll site", k.Name))
	}
	k.Status = StatusDeployed
	k.touch(actor, now)
	return []effect.Effect{
		effect.Notify(effect.ChannelLogistics, "kit %s deployed to %s with %d assets", k.Name, k.PollSite, len(k.AssetIDs)),
	}, nil
}

// Retire closes the kit for good.
func (k *Kit) Retire(actor id.UserID, now time.Time) ([]effect.Effect, error) {
	if !k.IsOpen() {
		return nil, k.invalidState("retire")
	}
	k.Status = StatusRetired
	k.touch(actor, now)
	return []effect.Effect{
		effect.Notify(effect.ChannelWarehouse, "kit %s retired", k.Name),
	}, nil
}

// LinkManifest records the manifest the kit travels on.
func (k *Kit) LinkManifest(manifestID id.ManifestID, actor id.UserID, now time.Time) error {
	if manifestID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "manifest id is required")
	}
	if !k.IsOpen() {
		return k.invalidState("link a manifest")
	}
	k.ManifestID = &manifestID
	k.touch(actor, now)
	return nil
}
