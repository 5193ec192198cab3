package sentinel

import "errors"

// Sentinel errors for persistence facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors carrying the
// aggregate-specific reason.
//
//   - ErrNotFound: no record for the identity or unique key
//   - ErrAlreadyUsed: a unique key (serial, tag, seal number) is taken
//   - ErrConflict: the stored version no longer matches the loaded version
//   - ErrUnavailable: backing store or lock service temporarily unavailable
var (
	ErrNotFound    = errors.New("not found")
	ErrAlreadyUsed = errors.New("already used")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
