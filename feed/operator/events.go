// Package operator contains types for operator-specific events fired by the
// liveness ledger during the runtime of a heartbeat node.
package operator

import (
	"github.com/ethereum/go-ethereum/common"
)

const (
	// ProofReceived is sent after an operator's liveness proof has been
	// accepted by the ledger.
	ProofReceived = iota + 1

	// PenaltyApplied is sent after a penalty has been applied against an
	// operator that missed its proof deadline.
	PenaltyApplied

	// Deregistered is sent when repeated penalties push an operator past the
	// escalation threshold and the ledger revokes its registration.
	Deregistered
)

// ProofReceivedData is the data sent with ProofReceived events.
type ProofReceivedData struct {
	// Operator that submitted the proof.
	Operator common.Address
	// Timestamp is the chain time recorded for the proof.
	Timestamp int64
	// Note is the free-form note attached to the proof.
	Note string
}

// PenaltyAppliedData is the data sent with PenaltyApplied events.
type PenaltyAppliedData struct {
	// Operator that was penalized.
	Operator common.Address
	// MissedProofTime is the last proof time whose deadline the operator missed.
	MissedProofTime int64
	// PenaltyCount is the operator's penalty count after this penalty.
	PenaltyCount uint64
}

// DeregisteredData is the data sent with Deregistered events.
type DeregisteredData struct {
	// Operator that lost its registration.
	Operator common.Address
}
