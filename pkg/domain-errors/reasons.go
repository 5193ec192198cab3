package domainerrors

// Reason names the specific domain cause behind an error.
type Reason string

const (
	ReasonAssetNotFound        Reason = "asset_not_found"
	ReasonKitNotFound          Reason = "kit_not_found"
	ReasonManifestNotFound     Reason = "manifest_not_found"
	ReasonSealNotFound         Reason = "seal_not_found"
	ReasonEventNotFound        Reason = "custody_event_not_found"
	ReasonFormNotFound         Reason = "custody_form_not_found"
	ReasonAuditSessionNotFound Reason = "audit_session_not_found"
	ReasonDiscrepancyNotFound  Reason = "discrepancy_not_found"

	ReasonDuplicateAsset        Reason = "duplicate_asset"
	ReasonDuplicateTag          Reason = "duplicate_tag"
	ReasonDuplicateSeal         Reason = "duplicate_seal"
	ReasonDuplicateManifestItem Reason = "duplicate_manifest_item"
	ReasonDuplicateKitMember    Reason = "duplicate_kit_member"

	ReasonInvalidAssetState    Reason = "invalid_asset_state"
	ReasonInvalidSealState     Reason = "invalid_seal_state"
	ReasonInvalidManifestState Reason = "invalid_manifest_state"
	ReasonInvalidKitState      Reason = "invalid_kit_state"
	ReasonInvalidFormState     Reason = "invalid_form_state"
	ReasonInvalidAuditState    Reason = "invalid_audit_state"
	ReasonFormExpired          Reason = "form_expired"
	ReasonAlreadyResolved      Reason = "already_resolved"
	ReasonUnresolved           Reason = "unresolved_discrepancies"
	ReasonAssetInOpenKit       Reason = "asset_in_open_kit"

	ReasonStaleVersion Reason = "stale_version"
	// ReasonPartialUpdate has no fixed code. PartialUpdate copies the code of
	// the failure it wraps, so it is absent from reasonCodes.
	ReasonPartialUpdate Reason = "partial_update"
)

var reasonCodes = map[Reason]Code{
	ReasonAssetNotFound:        CodeNotFound,
	ReasonKitNotFound:          CodeNotFound,
	ReasonManifestNotFound:     CodeNotFound,
	ReasonSealNotFound:         CodeNotFound,
	ReasonEventNotFound:        CodeNotFound,
	ReasonFormNotFound:         CodeNotFound,
	ReasonAuditSessionNotFound: CodeNotFound,
	ReasonDiscrepancyNotFound:  CodeNotFound,

	ReasonDuplicateAsset:        CodeDuplicate,
	ReasonDuplicateTag:          CodeDuplicate,
	ReasonDuplicateSeal:         CodeDuplicate,
	ReasonDuplicateManifestItem: CodeDuplicate,
	ReasonDuplicateKitMember:    CodeDuplicate,

	ReasonInvalidAssetState:    CodeInvalidState,
	ReasonInvalidSealState:     CodeInvalidState,
	ReasonInvalidManifestState: CodeInvalidState,
	ReasonInvalidKitState:      CodeInvalidState,
	ReasonInvalidFormState:     CodeInvalidState,
	ReasonInvalidAuditState:    CodeInvalidState,
	ReasonFormExpired:          CodeInvalidState,
	ReasonAlreadyResolved:      CodeInvalidState,
	ReasonUnresolved:           CodeInvalidState,
	ReasonAssetInOpenKit:       CodeInvalidState,

	ReasonStaleVersion: CodeConflict,
}

// Code maps the reason onto its error kind. Unknown reasons are internal.
func (r Reason) Code() Code {
	if c, ok := reasonCodes[r]; ok {
		return c
	}
	return CodeInternal
}
