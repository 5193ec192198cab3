// Package domain holds the typed identifiers and small value types shared by
// every bounded context.
//
// Identifiers are distinct types over uuid.UUID so an AssetID can never be
// passed where a KitID is expected. Construct them with the Parse* helpers at
// trust boundaries; direct conversion from uuid.UUID is reserved for stores and
// constructors that mint fresh values.
package domain

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"

	dErrors "custodian/pkg/domain-errors"
)

// ID is a UUID tagged with the kind of aggregate it identifies.
type ID[K any] uuid.UUID

type (
	assetKind        struct{}
	kitKind          struct{}
	manifestKind     struct{}
	manifestItemKind struct{}
	sealKind         struct{}
	electionKind     struct{}
	facilityKind     struct{}
	userKind         struct{}
	custodyEventKind struct{}
	formKind         struct{}
	signatureKind    struct{}
	auditSessionKind struct{}
	discrepancyKind  struct{}
)

// UserID identifies the actor performing an operation; every mutating
// operation takes one explicitly.
type (
	AssetID        = ID[assetKind]
	KitID          = ID[kitKind]
	ManifestID     = ID[manifestKind]
	ManifestItemID = ID[manifestItemKind]
	SealID         = ID[sealKind]
	ElectionID     = ID[electionKind]
	FacilityID     = ID[facilityKind]
	UserID         = ID[userKind]
	CustodyEventID = ID[custodyEventKind]
	FormID         = ID[formKind]
	SignatureID    = ID[signatureKind]
	AuditSessionID = ID[auditSessionKind]
	DiscrepancyID  = ID[discrepancyKind]
)

func (i ID[K]) String() string {
	return uuid.UUID(i).String()
}

// IsNil reports whether the identifier is the zero UUID.
func (i ID[K]) IsNil() bool {
	return uuid.UUID(i) == uuid.Nil
}

// UUID returns the underlying uuid value.
func (i ID[K]) UUID() uuid.UUID {
	return uuid.UUID(i)
}

func (i ID[K]) MarshalText() ([]byte, error) {
	return uuid.UUID(i).MarshalText()
}

func (i *ID[K]) UnmarshalText(data []byte) error {
	var u uuid.UUID
	if err := u.UnmarshalText(data); err != nil {
		return err
	}
	*i = ID[K](u)
	return nil
}

// Value implements driver.Valuer so identifiers can be bound directly as SQL args.
func (i ID[K]) Value() (driver.Value, error) {
	return uuid.UUID(i).String(), nil
}

// Scan implements sql.Scanner.
func (i *ID[K]) Scan(src any) error {
	var u uuid.UUID
	if err := u.Scan(src); err != nil {
		return fmt.Errorf("scan id: %w", err)
	}
	*i = ID[K](u)
	return nil
}

func parse[K any](kind, s string) (ID[K], error) {
	if s == "" {
		return ID[K]{}, dErrors.New(dErrors.CodeInvalidInput, kind+" id is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return ID[K]{}, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind+" id")
	}
	if u == uuid.Nil {
		return ID[K]{}, dErrors.New(dErrors.CodeInvalidInput, kind+" id cannot be nil")
	}
	return ID[K](u), nil
}

func ParseAssetID(s string) (AssetID, error)       { return parse[assetKind]("asset", s) }
func ParseKitID(s string) (KitID, error)           { return parse[kitKind]("kit", s) }
func ParseManifestID(s string) (ManifestID, error) { return parse[manifestKind]("manifest", s) }
func ParseSealID(s string) (SealID, error)         { return parse[sealKind]("seal", s) }
func ParseElectionID(s string) (ElectionID, error) { return parse[electionKind]("election", s) }
func ParseFacilityID(s string) (FacilityID, error) { return parse[facilityKind]("facility", s) }
func ParseUserID(s string) (UserID, error)         { return parse[userKind]("user", s) }
func ParseFormID(s string) (FormID, error)         { return parse[formKind]("form", s) }

func ParseCustodyEventID(s string) (CustodyEventID, error) {
	return parse[custodyEventKind]("custody event", s)
}

func ParseAuditSessionID(s string) (AuditSessionID, error) {
	return parse[auditSessionKind]("audit session", s)
}

func ParseDiscrepancyID(s string) (DiscrepancyID, error) {
	return parse[discrepancyKind]("discrepancy", s)
}
