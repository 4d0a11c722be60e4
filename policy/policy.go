// Package policy implements the slashing policy shared by the liveness ledger
// and the liveness monitor. Classify is the single source of truth for both
// sides: the ledger gates penalty eligibility on it and the monitor derives
// displayed statuses from it, so the two can never disagree given the same
// inputs.
package policy

// Status is the closed set of liveness verdicts for an operator.
type Status uint8

const (
	// StatusNeverProved indicates the operator has never submitted a proof.
	StatusNeverProved Status = iota
	// StatusHealthy indicates the latest proof is within the proof interval.
	StatusHealthy
	// StatusWarning indicates the proof interval has elapsed but the grace
	// period has not.
	StatusWarning
	// StatusOverdue indicates both the proof interval and the grace period
	// have elapsed, making the operator slashable.
	StatusOverdue
	// StatusError is assigned by the monitor when an operator's ledger read
	// fails. Classify never returns it.
	StatusError
)

// String returns the human-readable label for the status.
func (s Status) String() string {
	switch s {
	case StatusNeverProved:
		return "never_proved"
	case StatusHealthy:
		return "healthy"
	case StatusWarning:
		return "warning"
	case StatusOverdue:
		return "overdue"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Classify maps an operator's last proof time to a liveness status given the
// chain-time now and the configured thresholds, all in chain-time seconds.
// A lastProof of zero means the operator has never proved liveness. The
// function is total and deterministic in its arguments alone.
func Classify(now, lastProof, interval, grace int64) Status {
	if lastProof == 0 {
		return StatusNeverProved
	}
	elapsed := now - lastProof
	switch {
	case elapsed <= interval:
		return StatusHealthy
	case elapsed <= interval+grace:
		return StatusWarning
	default:
		return StatusOverdue
	}
}

// PenaltyDeadline returns the chain time after which a penalty becomes
// applicable for an operator whose latest proof was at lastProof.
func PenaltyDeadline(lastProof, interval, grace int64) int64 {
	return lastProof + interval + grace
}

// PenaltyDue reports whether an operator is slashable at chain-time now.
// It holds exactly when Classify returns StatusOverdue.
func PenaltyDue(now, lastProof, interval, grace int64) bool {
	return Classify(now, lastProof, interval, grace) == StatusOverdue
}
