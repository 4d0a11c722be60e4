// Package ledger implements the authoritative liveness ledger of the
// heartbeat protocol. It records each operator's last proof of life,
// registration flag and penalty count, applies penalties against operators
// that miss their proof deadline, and emits operator events over a feed for
// other services to consume. All durable state is owned here.
package ledger

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/trace"

	"github.com/kelbelss/heartbeat-avs/clock"
	"github.com/kelbelss/heartbeat-avs/config/params"
	"github.com/kelbelss/heartbeat-avs/feed"
	opfeed "github.com/kelbelss/heartbeat-avs/feed/operator"
	"github.com/kelbelss/heartbeat-avs/policy"
)

var (
	proofsReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heartbeat_ledger_proofs_received_total",
		Help: "The number of liveness proofs accepted by the ledger",
	})
	penaltiesAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heartbeat_ledger_penalties_applied_total",
		Help: "The number of penalties applied against operators",
	})
	penaltyFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heartbeat_ledger_penalty_failures_total",
		Help: "The number of penalty attempts rejected by the penalty authority",
	})
	deregistrationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heartbeat_ledger_deregistrations_total",
		Help: "The number of operators deregistered after repeated penalties",
	})
)

// PenaltyAuthority is the staking-layer capability invoked to apply an actual
// economic penalty. The ledger calls it as part of ApplyPenalty; a failure
// aborts the whole penalty operation.
type PenaltyAuthority interface {
	Penalize(ctx context.Context, op common.Address) error
}

// NopAuthority is a PenaltyAuthority that accepts every penalty without
// applying an economic sanction. Used when no staking layer is wired.
type NopAuthority struct{}

// Penalize implements PenaltyAuthority.
func (NopAuthority) Penalize(_ context.Context, _ common.Address) error {
	return nil
}

// ServiceConfig holds the dependencies required by the ledger service.
type ServiceConfig struct {
	// Store persists operator records. A nil store keeps the ledger
	// in-memory only.
	Store *Store
	// Authority applies the economic sanction for each penalty. Defaults to
	// NopAuthority.
	Authority PenaltyAuthority
	// Clock provides chain time. Defaults to the system clock.
	Clock clock.Clock
}

// Service is the authoritative liveness ledger.
type Service struct {
	cfg          *ServiceConfig
	ctx          context.Context
	cancel       context.CancelFunc
	lock         sync.RWMutex
	operators    map[common.Address]*OperatorRecord
	operatorFeed event.Feed
}

// NewService instantiates a ledger service, loading any previously persisted
// operator records from its store.
func NewService(ctx context.Context, cfg *ServiceConfig) (*Service, error) {
	ctx, cancel := context.WithCancel(ctx)
	if cfg.Authority == nil {
		cfg.Authority = NopAuthority{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	s := &Service{
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
		operators: make(map[common.Address]*OperatorRecord),
	}
	if cfg.Store != nil {
		records, err := cfg.Store.AllOperators(ctx)
		if err != nil {
			cancel()
			return nil, errors.Wrap(err, "could not load operator records")
		}
		s.operators = records
		if len(records) > 0 {
			log.WithField("operators", len(records)).Info("Restored operator records from disk")
		}
	}
	return s, nil
}

// Start the ledger service.
func (s *Service) Start() {
	cfg := params.HeartbeatNetworkConfig()
	log.WithFields(logrus.Fields{
		"proofInterval":       cfg.ProofInterval,
		"gracePeriod":         cfg.GracePeriod,
		"escalationThreshold": cfg.EscalationThreshold,
	}).Info("Liveness ledger ready")
}

// Stop the ledger service and close its store.
func (s *Service) Stop() error {
	s.cancel()
	if s.cfg.Store != nil {
		return s.cfg.Store.Close()
	}
	return nil
}

// Status of the ledger service.
func (_ *Service) Status() error {
	return nil
}

// OperatorFeed returns the feed over which proof, penalty and deregistration
// events are sent.
func (s *Service) OperatorFeed() *event.Feed {
	return &s.operatorFeed
}

// Register marks an operator as eligible and resets its penalty count.
// Registering an already-registered operator is not an error.
func (s *Service) Register(ctx context.Context, op common.Address) error {
	ctx, span := trace.StartSpan(ctx, "ledger.Register")
	defer span.End()
	s.lock.Lock()
	defer s.lock.Unlock()
	updated := &OperatorRecord{Registered: true}
	if rec, ok := s.operators[op]; ok {
		// Re-registration clears penalties but never resets the proof clock.
		updated.LastProofTime = rec.LastProofTime
	}
	if err := s.persist(ctx, op, updated); err != nil {
		return err
	}
	s.operators[op] = updated
	log.WithField("operator", op.Hex()).Info("Operator registered")
	return nil
}

// SubmitProof records a liveness proof for a registered operator, advancing
// its last proof time to the current chain time and emitting a proof event.
func (s *Service) SubmitProof(ctx context.Context, op common.Address, note string) error {
	ctx, span := trace.StartSpan(ctx, "ledger.SubmitProof")
	defer span.End()
	s.lock.Lock()
	defer s.lock.Unlock()
	rec, ok := s.operators[op]
	if !ok || !rec.Registered {
		return ErrNotEligible
	}
	now := s.cfg.Clock.Now().Unix()
	updated := *rec
	updated.LastProofTime = now
	if err := s.persist(ctx, op, &updated); err != nil {
		return err
	}
	s.operators[op] = &updated
	proofsReceivedTotal.Inc()
	s.operatorFeed.Send(&feed.Event{
		Type: opfeed.ProofReceived,
		Data: &opfeed.ProofReceivedData{Operator: op, Timestamp: now, Note: note},
	})
	log.WithFields(logrus.Fields{
		"operator":  op.Hex(),
		"timestamp": now,
	}).Debug("Liveness proof accepted")
	return nil
}

// ApplyPenalty penalizes a registered operator whose proof deadline has
// elapsed. The external penalty authority is invoked before any state is
// committed, so a rejected penalty leaves the record untouched. Reaching the
// escalation threshold deregisters the operator.
func (s *Service) ApplyPenalty(ctx context.Context, op common.Address) error {
	ctx, span := trace.StartSpan(ctx, "ledger.ApplyPenalty")
	defer span.End()
	cfg := params.HeartbeatNetworkConfig()
	s.lock.Lock()
	defer s.lock.Unlock()
	rec, ok := s.operators[op]
	if !ok || !rec.Registered {
		return ErrNotEligible
	}
	now := s.cfg.Clock.Now().Unix()
	if !policy.PenaltyDue(now, rec.LastProofTime, cfg.ProofInterval, cfg.GracePeriod) {
		return &PenaltyNotDueError{
			Expected: policy.PenaltyDeadline(rec.LastProofTime, cfg.ProofInterval, cfg.GracePeriod),
		}
	}
	if err := s.cfg.Authority.Penalize(ctx, op); err != nil {
		penaltyFailuresTotal.Inc()
		return errors.Wrap(err, "penalty authority rejected penalty")
	}
	updated := *rec
	updated.PenaltyCount++
	deregistered := updated.PenaltyCount >= cfg.EscalationThreshold
	if deregistered {
		updated.Registered = false
	}
	if err := s.persist(ctx, op, &updated); err != nil {
		return err
	}
	s.operators[op] = &updated
	penaltiesAppliedTotal.Inc()
	s.operatorFeed.Send(&feed.Event{
		Type: opfeed.PenaltyApplied,
		Data: &opfeed.PenaltyAppliedData{
			Operator:        op,
			MissedProofTime: rec.LastProofTime,
			PenaltyCount:    updated.PenaltyCount,
		},
	})
	log.WithFields(logrus.Fields{
		"operator":     op.Hex(),
		"penaltyCount": updated.PenaltyCount,
		"missedProof":  rec.LastProofTime,
	}).Warn("Penalty applied against operator")
	if deregistered {
		deregistrationsTotal.Inc()
		s.operatorFeed.Send(&feed.Event{
			Type: opfeed.Deregistered,
			Data: &opfeed.DeregisteredData{Operator: op},
		})
		log.WithField("operator", op.Hex()).Warn("Operator deregistered after repeated penalties")
	}
	return nil
}

// LastProofTime returns the chain time of the operator's latest proof, or
// zero if it has never proved liveness.
func (s *Service) LastProofTime(ctx context.Context, op common.Address) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.lock.RLock()
	defer s.lock.RUnlock()
	if rec, ok := s.operators[op]; ok {
		return rec.LastProofTime, nil
	}
	return 0, nil
}

// Registered reports whether the operator is currently eligible.
func (s *Service) Registered(ctx context.Context, op common.Address) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.lock.RLock()
	defer s.lock.RUnlock()
	if rec, ok := s.operators[op]; ok {
		return rec.Registered, nil
	}
	return false, nil
}

// PenaltyCount returns the operator's penalty count since its latest
// registration.
func (s *Service) PenaltyCount(ctx context.Context, op common.Address) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.lock.RLock()
	defer s.lock.RUnlock()
	if rec, ok := s.operators[op]; ok {
		return rec.PenaltyCount, nil
	}
	return 0, nil
}

// ProofInterval returns the protocol's proof interval in chain-time seconds.
func (s *Service) ProofInterval(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return params.HeartbeatNetworkConfig().ProofInterval, nil
}

// GracePeriod returns the protocol's grace period in chain-time seconds.
func (s *Service) GracePeriod(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return params.HeartbeatNetworkConfig().GracePeriod, nil
}

// ChainTime returns a chain-time snapshot from the ledger's clock.
func (s *Service) ChainTime(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.cfg.Clock.Now().Unix(), nil
}

// Operators lists every operator the ledger has seen, in a stable order.
func (s *Service) Operators(ctx context.Context) ([]common.Address, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.lock.RLock()
	defer s.lock.RUnlock()
	ops := make([]common.Address, 0, len(s.operators))
	for op := range s.operators {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool {
		return bytes.Compare(ops[i].Bytes(), ops[j].Bytes()) < 0
	})
	return ops, nil
}

func (s *Service) persist(ctx context.Context, op common.Address, rec *OperatorRecord) error {
	if s.cfg.Store == nil {
		return nil
	}
	return s.cfg.Store.SaveOperator(ctx, op, rec)
}
