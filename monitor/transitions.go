package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kelbelss/heartbeat-avs/config/params"
	"github.com/kelbelss/heartbeat-avs/policy"
)

// applyObservation folds one operator's read outcome into the cache and
// issues the side effects its status transition calls for. A read failure
// moves the operator to the error status while preserving the rest of its
// cached fields.
func (s *Service) applyObservation(cache StatusCache, obs *observation, now int64, wall time.Time) {
	entry, seen := cache[obs.operator]

	if obs.err != nil {
		readFailuresTotal.Inc()
		log.WithError(obs.err).WithField("operator", obs.operator.Hex()).Error("Could not read operator from ledger")
		if !seen {
			// LastObservationTime stays zero: there has been no successful
			// read to date the replica fields from.
			cache[obs.operator] = &OperatorStatus{Status: policy.StatusError, LastAlertSentAt: wall}
			s.notify(fmt.Sprintf("New operator %s detected, status %s", obs.operator.Hex(), policy.StatusError))
			return
		}
		s.transition(obs.operator, entry, policy.StatusError, wall)
		entry.Status = policy.StatusError
		return
	}

	current := policy.Classify(now, obs.lastProof, s.interval, s.grace)
	if !seen {
		cache[obs.operator] = &OperatorStatus{
			LastKnownProofTime:  obs.lastProof,
			LastObservationTime: now,
			Status:              current,
		}
		s.notify(fmt.Sprintf("New operator %s detected, status %s", obs.operator.Hex(), current))
		return
	}
	// Refresh the replica fields before handling the transition so alerts
	// reference the freshly observed proof time; the previous status is
	// what the transition keys on.
	entry.LastKnownProofTime = obs.lastProof
	entry.LastObservationTime = now
	s.transition(obs.operator, entry, current, wall)
	entry.Status = current
}

// transition handles the (previous, current) status pair for an operator that
// already has a cache entry, exhaustively over the closed status set.
func (s *Service) transition(op common.Address, entry *OperatorStatus, current policy.Status, wall time.Time) {
	previous := entry.Status

	if previous == current {
		switch current {
		case policy.StatusWarning:
			// Warning persists: resend only after the cooldown to avoid
			// notification storms.
			s.maybeResend(entry, wall, fmt.Sprintf(
				"Operator %s is still in the warning window, no proof since chain time %d",
				op.Hex(), entry.LastKnownProofTime,
			))
		case policy.StatusError:
			// Read failures persist: same cooldown as the warning path.
			s.maybeResend(entry, wall, fmt.Sprintf(
				"Operator %s is still unreadable from the ledger", op.Hex(),
			))
		case policy.StatusNeverProved, policy.StatusHealthy, policy.StatusOverdue:
			// Quiet steady states. Overdue remediation fires on entry only;
			// the next cycle's classification decides whether it is still
			// warranted.
		}
		return
	}

	switch current {
	case policy.StatusHealthy:
		switch previous {
		case policy.StatusNeverProved:
			s.notify(fmt.Sprintf("Operator %s submitted its first liveness proof", op.Hex()))
		case policy.StatusWarning, policy.StatusOverdue, policy.StatusError:
			s.notify(fmt.Sprintf("Operator %s recovered, proofs are current again", op.Hex()))
			entry.LastAlertSentAt = time.Time{}
		}
	case policy.StatusWarning:
		s.notify(fmt.Sprintf(
			"Operator %s missed its proof interval, penalty due after chain time %d",
			op.Hex(), policy.PenaltyDeadline(entry.LastKnownProofTime, s.interval, s.grace),
		))
		entry.LastAlertSentAt = wall
	case policy.StatusOverdue:
		s.notify(fmt.Sprintf(
			"Operator %s is overdue, no proof since chain time %d",
			op.Hex(), entry.LastKnownProofTime,
		))
		s.remediate(op)
	case policy.StatusError:
		s.notify(fmt.Sprintf("Operator %s could not be read from the ledger", op.Hex()))
		entry.LastAlertSentAt = wall
	case policy.StatusNeverProved:
		if previous == policy.StatusError {
			s.notify(fmt.Sprintf("Operator %s is readable again and has never proved liveness", op.Hex()))
			entry.LastAlertSentAt = time.Time{}
			return
		}
		// Proof times never regress to zero on a live ledger.
		log.WithField("operator", op.Hex()).Warn("Operator proof history regressed, ledger may have been reset")
	}
}

// maybeResend re-delivers a persisting alert once its cooldown has elapsed.
// A zero LastAlertSentAt means no alert is pending, so one is sent.
func (s *Service) maybeResend(entry *OperatorStatus, wall time.Time, text string) {
	cooldown := params.HeartbeatNetworkConfig().WarningResendCooldown
	if !entry.LastAlertSentAt.IsZero() && wall.Sub(entry.LastAlertSentAt) <= cooldown {
		return
	}
	s.notify(text)
	entry.LastAlertSentAt = wall
}

// remediate triggers the ledger's penalty entrypoint for an operator that
// just became overdue, when remediation is configured to penalize. A failed
// invocation is reported and never retried automatically: the operator may
// have recovered by the next cycle, which reclassifies from scratch.
func (s *Service) remediate(op common.Address) {
	cfg := params.HeartbeatNetworkConfig()
	if cfg.Remediation != params.RemediationAlertAndPenalize {
		return
	}
	if s.cfg.Invoker == nil {
		log.WithField("operator", op.Hex()).Warn("Remediation is set to penalize but no penalty invoker is configured")
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, cfg.ReadTimeout)
	defer cancel()
	if err := s.cfg.Invoker.ApplyPenalty(ctx, op); err != nil {
		penaltyInvocationFailuresTotal.Inc()
		log.WithError(err).WithField("operator", op.Hex()).Error("Penalty invocation failed")
		s.notify(fmt.Sprintf("Penalty invocation for operator %s failed: %v", op.Hex(), err))
		return
	}
	penaltyInvocationsTotal.Inc()
	s.notify(fmt.Sprintf("Penalty applied against operator %s", op.Hex()))
}
