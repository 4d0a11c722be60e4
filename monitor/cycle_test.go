package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelbelss/heartbeat-avs/config/params"
	"github.com/kelbelss/heartbeat-avs/policy"
)

func TestRunCycle_FirstObservation(t *testing.T) {
	s, ledger, sink, _ := setupMonitor(t, opA)
	ledger.setProof(opA, genesis)
	ledger.setChainTime(genesis + 10)

	cache := s.runCycle(context.Background(), make(StatusCache))

	require.Contains(t, cache, opA)
	assert.Equal(t, policy.StatusHealthy, cache[opA].Status)
	assert.Equal(t, genesis, cache[opA].LastKnownProofTime)
	assert.Equal(t, genesis+10, cache[opA].LastObservationTime)
	msgs := sink.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "New operator")
	assert.Contains(t, msgs[0], "healthy")
}

func TestRunCycle_FirstProofAlert(t *testing.T) {
	s, ledger, sink, _ := setupMonitor(t, opA)
	ledger.setChainTime(genesis)

	cache := s.runCycle(context.Background(), make(StatusCache))
	require.Equal(t, policy.StatusNeverProved, cache[opA].Status)

	ledger.setProof(opA, genesis+5)
	ledger.setChainTime(genesis + 10)
	cache = s.runCycle(context.Background(), cache)

	assert.Equal(t, policy.StatusHealthy, cache[opA].Status)
	msgs := sink.Messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1], "first liveness proof")
}

func TestRunCycle_WarningResendCooldown(t *testing.T) {
	s, ledger, sink, fc := setupMonitor(t, opA)
	ledger.setProof(opA, genesis)
	ledger.setChainTime(genesis + 10)
	cache := s.runCycle(context.Background(), make(StatusCache))
	sink.Reset()

	// Entering the warning window alerts with the penalty deadline.
	ledger.setChainTime(genesis + 35)
	cache = s.runCycle(context.Background(), cache)
	msgs := sink.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "missed its proof interval")
	assert.Contains(t, msgs[0], "1700000040")

	// Still warning within the cooldown: no resend.
	fc.Advance(time.Second)
	ledger.setChainTime(genesis + 36)
	cache = s.runCycle(context.Background(), cache)
	assert.Len(t, sink.Messages(), 1)

	// Past the cooldown the warning is re-delivered.
	fc.Advance(params.HeartbeatNetworkConfig().WarningResendCooldown)
	ledger.setChainTime(genesis + 37)
	s.runCycle(context.Background(), cache)
	msgs = sink.Messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1], "still in the warning window")
}

func TestRunCycle_OverduePenalizesOnEntryOnly(t *testing.T) {
	s, ledger, sink, _ := setupMonitor(t, opA)
	params.HeartbeatNetworkConfig().Remediation = params.RemediationAlertAndPenalize
	ledger.setProof(opA, genesis)
	ledger.setChainTime(genesis + 10)
	cache := s.runCycle(context.Background(), make(StatusCache))
	sink.Reset()

	ledger.setChainTime(genesis + 41)
	cache = s.runCycle(context.Background(), cache)
	require.Equal(t, policy.StatusOverdue, cache[opA].Status)
	require.Len(t, ledger.penalizedOps(), 1)
	msgs := sink.Messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0], "overdue")
	assert.Contains(t, msgs[1], "Penalty applied")

	// Staying overdue is quiet and triggers no further invocations.
	ledger.setChainTime(genesis + 50)
	s.runCycle(context.Background(), cache)
	assert.Len(t, ledger.penalizedOps(), 1)
	assert.Len(t, sink.Messages(), 2)
}

func TestRunCycle_AlertOnlyNeverPenalizes(t *testing.T) {
	s, ledger, sink, _ := setupMonitor(t, opA)
	ledger.setProof(opA, genesis)
	ledger.setChainTime(genesis + 10)
	cache := s.runCycle(context.Background(), make(StatusCache))
	sink.Reset()

	ledger.setChainTime(genesis + 41)
	s.runCycle(context.Background(), cache)
	assert.Empty(t, ledger.penalizedOps())
	msgs := sink.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "overdue")
}

func TestRunCycle_PenaltyInvocationFailure(t *testing.T) {
	s, ledger, sink, _ := setupMonitor(t, opA)
	params.HeartbeatNetworkConfig().Remediation = params.RemediationAlertAndPenalize
	ledger.penaltyErr = errors.New("ledger unavailable")
	ledger.setProof(opA, genesis)
	ledger.setChainTime(genesis + 10)
	cache := s.runCycle(context.Background(), make(StatusCache))
	sink.Reset()

	ledger.setChainTime(genesis + 41)
	s.runCycle(context.Background(), cache)
	msgs := sink.Messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1], "Penalty invocation")
	assert.Contains(t, msgs[1], "failed")
}

func TestRunCycle_RecoveryAlert(t *testing.T) {
	s, ledger, sink, _ := setupMonitor(t, opA)
	ledger.setProof(opA, genesis)
	ledger.setChainTime(genesis + 41)
	cache := s.runCycle(context.Background(), make(StatusCache))
	require.Equal(t, policy.StatusOverdue, cache[opA].Status)
	sink.Reset()

	ledger.setProof(opA, genesis+45)
	ledger.setChainTime(genesis + 50)
	cache = s.runCycle(context.Background(), cache)

	assert.Equal(t, policy.StatusHealthy, cache[opA].Status)
	assert.True(t, cache[opA].LastAlertSentAt.IsZero())
	msgs := sink.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "recovered")
}

func TestRunCycle_ReadFailureIsolation(t *testing.T) {
	s, ledger, sink, _ := setupMonitor(t, opA, opB)
	ledger.setProof(opA, genesis)
	ledger.setProof(opB, genesis)
	ledger.setChainTime(genesis + 10)
	cache := s.runCycle(context.Background(), make(StatusCache))
	sink.Reset()

	ledger.setReadErr(opA, errors.New("connection refused"))
	ledger.setChainTime(genesis + 15)
	cache = s.runCycle(context.Background(), cache)

	// The failed operator moves to the error status with its replica fields
	// intact; its sibling is unaffected.
	assert.Equal(t, policy.StatusError, cache[opA].Status)
	assert.Equal(t, genesis, cache[opA].LastKnownProofTime)
	assert.Equal(t, genesis+10, cache[opA].LastObservationTime)
	assert.Equal(t, policy.StatusHealthy, cache[opB].Status)
	assert.Equal(t, genesis+15, cache[opB].LastObservationTime)
	msgs := sink.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "could not be read")

	// Recovery from a read failure alerts once.
	sink.Reset()
	ledger.setReadErr(opA, nil)
	ledger.setChainTime(genesis + 20)
	cache = s.runCycle(context.Background(), cache)
	assert.Equal(t, policy.StatusHealthy, cache[opA].Status)
	msgs = sink.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "recovered")
}

func TestRunCycle_FirstObservationReadFailure(t *testing.T) {
	s, ledger, sink, _ := setupMonitor(t, opA)
	ledger.setReadErr(opA, errors.New("connection refused"))
	ledger.setChainTime(genesis + 10)

	cache := s.runCycle(context.Background(), make(StatusCache))

	// First contact mirrors the successful branch: one new-operator alert
	// carrying the status, with the replica fields left unset because no read
	// has ever succeeded.
	require.Contains(t, cache, opA)
	assert.Equal(t, policy.StatusError, cache[opA].Status)
	assert.Zero(t, cache[opA].LastKnownProofTime)
	assert.Zero(t, cache[opA].LastObservationTime)
	msgs := sink.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "New operator")
	assert.Contains(t, msgs[0], "status error")

	// A later successful read is the operator's real first observation shape:
	// the entry recovers through the normal transition path.
	sink.Reset()
	ledger.setReadErr(opA, nil)
	ledger.setChainTime(genesis + 15)
	cache = s.runCycle(context.Background(), cache)
	assert.Equal(t, policy.StatusNeverProved, cache[opA].Status)
	assert.Equal(t, genesis+15, cache[opA].LastObservationTime)
	msgs = sink.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "readable again")
}

func TestRunCycle_SnapshotFailureAbortsCycle(t *testing.T) {
	s, ledger, sink, _ := setupMonitor(t, opA)
	ledger.setProof(opA, genesis)
	ledger.setChainTime(genesis + 10)
	cache := s.runCycle(context.Background(), make(StatusCache))
	before := *cache[opA]
	sink.Reset()

	ledger.chainErr = errors.New("rpc timeout")
	ledger.setProof(opA, genesis+20)
	got := s.runCycle(context.Background(), cache)

	// No snapshot means no verdicts: the cache entry is untouched even though
	// the ledger moved on.
	assert.Equal(t, before, *got[opA])
	msgs := sink.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "cycle aborted")
}
