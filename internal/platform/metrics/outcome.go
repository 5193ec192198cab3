package metrics

import (
	dErrors "custodian/pkg/domain-errors"
)

// OutcomeFor classifies an operation result for the transitions counter.
func OutcomeFor(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case dErrors.HasCode(err, dErrors.CodeConflict):
		return OutcomeConflict
	case dErrors.HasCode(err, dErrors.CodeInternal), dErrors.CodeOf(err) == "":
		return OutcomeError
	default:
		return OutcomeRejected
	}
}
