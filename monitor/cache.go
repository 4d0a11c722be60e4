package monitor

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kelbelss/heartbeat-avs/policy"
)

// OperatorStatus is the monitor's cached view of one operator. It is a
// read-side replica derived from ledger reads; it may lag the ledger by up to
// one polling cycle and never feeds back into ledger truth.
type OperatorStatus struct {
	// LastKnownProofTime is the operator's last proof time as of the latest
	// successful read, in chain-time seconds. Zero means never proved.
	LastKnownProofTime int64
	// LastObservationTime is the chain time of the latest successful read.
	LastObservationTime int64
	// Status is the operator's health as of the latest cycle.
	Status policy.Status
	// LastAlertSentAt is the wall-clock time of the most recent warning or
	// read-failure alert for this operator. Zero when no resend is pending.
	LastAlertSentAt time.Time
}

// StatusCache maps operator addresses to their cached status. The cache is an
// explicit state object owned by the monitor's run loop: it is passed into
// and returned from each cycle, never shared as ambient global state. Entries
// are created on first observation and persist for the process lifetime.
type StatusCache map[common.Address]*OperatorStatus

// snapshot returns a by-value copy of the cache for the query path.
func (c StatusCache) snapshot() map[common.Address]OperatorStatus {
	out := make(map[common.Address]OperatorStatus, len(c))
	for op, entry := range c {
		out[op] = *entry
	}
	return out
}
