package models

import (
	"strings"
	"time"

	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
)

// Event is one custody transfer. Events are append-only: nothing mutates an
// Event after NewEvent returns it.
type Event struct {
	ID         id.CustodyEventID `json:"id"`
	ElectionID id.ElectionID     `json:"election_id"`
	AssetID    id.AssetID        `json:"asset_id"`
	FromParty  string            `json:"from_party"`
	ToParty    string            `json:"to_party"`
	SealNumber string            `json:"seal_number,omitempty"`
	FromOrg    string            `json:"from_org,omitempty"`
	ToOrg      string            `json:"to_org,omitempty"`
	ManifestID *id.ManifestID    `json:"manifest_id,omitempty"`
	Notes      string            `json:"notes,omitempty"`
	CreatedBy  id.UserID         `json:"created_by"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// TransferInput carries the attributes of a custody transfer.
type TransferInput struct {
	ElectionID id.ElectionID
	AssetID    id.AssetID
	FromParty  string
	ToParty    string
	SealNumber string
	FromOrg    string
	ToOrg      string
	ManifestID *id.ManifestID
	Notes      string
}

func NewEvent(eventID id.CustodyEventID, in TransferInput, actor id.UserID, now time.Time) (*Event, error) {
	from := strings.TrimSpace(in.FromParty)
	to := strings.TrimSpace(in.ToParty)
	switch {
	case in.ElectionID.IsNil() || in.AssetID.IsNil():
		return nil, dErrors.New(dErrors.CodeValidation, "election and asset are required")
	case from == "" || to == "":
		return nil, dErrors.New(dErrors.CodeValidation, "from and to parties are required")
	case actor.IsNil():
		return nil, dErrors.New(dErrors.CodeValidation, "actor is required")
	}
	return &Event{
		ID:         eventID,
		ElectionID: in.ElectionID,
		AssetID:    in.AssetID,
		FromParty:  from,
		ToParty:    to,
		SealNumber: strings.TrimSpace(in.SealNumber),
		FromOrg:    strings.TrimSpace(in.FromOrg),
		ToOrg:      strings.TrimSpace(in.ToOrg),
		ManifestID: in.ManifestID,
		Notes:      strings.TrimSpace(in.Notes),
		CreatedBy:  actor,
		OccurredAt: now,
	}, nil
}
