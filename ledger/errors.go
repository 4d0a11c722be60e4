package ledger

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNotEligible is returned when an operation targets an operator that is
// not currently registered.
var ErrNotEligible = errors.New("operator is not eligible")

// PenaltyNotDueError is returned by ApplyPenalty when the operator's proof
// deadline has not elapsed yet. Expected carries the exact chain time after
// which the penalty becomes applicable.
type PenaltyNotDueError struct {
	Expected int64
}

// Error implements the error interface.
func (e *PenaltyNotDueError) Error() string {
	return fmt.Sprintf("penalty not due until chain time %d", e.Expected)
}

// IsPenaltyNotDue reports whether err is a PenaltyNotDueError and returns the
// expected deadline if so.
func IsPenaltyNotDue(err error) (int64, bool) {
	var notDue *PenaltyNotDueError
	if errors.As(err, &notDue) {
		return notDue.Expected, true
	}
	return 0, false
}
