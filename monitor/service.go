// Package monitor implements the liveness monitor: a polling service that
// re-derives each operator's health from the ledger on a fixed cadence, diffs
// it against a cached previous status, and issues alerts and policy-gated
// penalty invocations on transitions. It holds no authoritative state; the
// ledger remains the single source of truth.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/kelbelss/heartbeat-avs/alert"
	"github.com/kelbelss/heartbeat-avs/clock"
	"github.com/kelbelss/heartbeat-avs/config/params"
	"github.com/kelbelss/heartbeat-avs/feed"
	opfeed "github.com/kelbelss/heartbeat-avs/feed/operator"
)

// recentAlertsCap bounds the alert history retained for the report surface.
const recentAlertsCap = 128

// LedgerReader is the query capability the monitor polls: the per-operator
// ledger fields, the two protocol constants, and a chain-time snapshot.
// Every call must honor its context deadline.
type LedgerReader interface {
	ChainTime(ctx context.Context) (int64, error)
	LastProofTime(ctx context.Context, op common.Address) (int64, error)
	Registered(ctx context.Context, op common.Address) (bool, error)
	PenaltyCount(ctx context.Context, op common.Address) (uint64, error)
	ProofInterval(ctx context.Context) (int64, error)
	GracePeriod(ctx context.Context) (int64, error)
}

// PenaltyInvoker is the guarded write capability used to trigger the ledger's
// penalty entrypoint when remediation is configured to penalize.
type PenaltyInvoker interface {
	ApplyPenalty(ctx context.Context, op common.Address) error
}

// ServiceConfig holds the dependencies required by the monitor service.
type ServiceConfig struct {
	// Reader polls the ledger.
	Reader LedgerReader
	// Invoker triggers penalties. May be nil when remediation is alert-only.
	Invoker PenaltyInvoker
	// Alerts delivers notifications. Defaults to a log-backed sink.
	Alerts alert.Sink
	// Operators is the monitored set.
	Operators []common.Address
	// OperatorNotifier optionally delivers ledger events so deregistrations
	// are alerted immediately rather than on the next poll.
	OperatorNotifier opfeed.Notifier
	// Clock provides wall-clock time for alert cooldowns. Defaults to the
	// system clock.
	Clock clock.Clock
}

// reportView is the immutable snapshot published after each cycle for the
// on-demand query path, which must not block on the cycle loop.
type reportView struct {
	entries   map[common.Address]OperatorStatus
	chainTime int64
	wallTime  time.Time
}

// Service is the liveness monitor.
type Service struct {
	cfg    *ServiceConfig
	ctx    context.Context
	cancel context.CancelFunc

	// Protocol constants fetched from the ledger at startup.
	interval int64
	grace    int64

	mu           sync.RWMutex
	view         reportView
	runErr       error
	recentAlerts *lru.Cache
	alertSeq     uint64
}

// NewService instantiates a monitor from configuration values.
func NewService(ctx context.Context, cfg *ServiceConfig) (*Service, error) {
	if cfg.Reader == nil {
		return nil, errors.New("monitor requires a ledger reader")
	}
	if cfg.Alerts == nil {
		cfg.Alerts = alert.LogSink{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	recent, err := lru.New(recentAlertsCap)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		cfg:          cfg,
		ctx:          ctx,
		cancel:       cancel,
		recentAlerts: recent,
	}, nil
}

// Start the monitor's polling loop.
func (s *Service) Start() {
	go s.run()
}

// Stop the monitor service, attempting one best-effort final notification
// before the loop terminates.
func (s *Service) Stop() error {
	s.notify("Liveness monitor shutting down")
	s.cancel()
	return nil
}

// Status of the monitor service. Reports the startup error if the protocol
// constants could not be read.
func (s *Service) Status() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runErr
}

func (s *Service) run() {
	if err := s.fetchConstants(); err != nil {
		// Running with unknown thresholds would produce bogus verdicts, so
		// this is fatal for the whole process: alert once and terminate.
		s.notify("Liveness monitor failed to start: protocol constants unavailable")
		s.mu.Lock()
		s.runErr = errors.Wrap(err, "could not read protocol constants")
		s.mu.Unlock()
		log.WithError(err).Fatal("Could not read protocol constants from ledger, terminating")
		return
	}
	cfg := params.HeartbeatNetworkConfig()
	log.WithFields(logrus.Fields{
		"operators":     len(s.cfg.Operators),
		"pollInterval":  cfg.PollInterval,
		"proofInterval": s.interval,
		"gracePeriod":   s.grace,
		"remediation":   cfg.Remediation,
	}).Info("Starting liveness checks")

	eventsChan := make(chan *feed.Event, 1)
	var sub event.Subscription
	// Nil when no notifier is wired; receiving on a nil channel blocks, so the
	// select below simply never fires for it.
	var subErr <-chan error
	if s.cfg.OperatorNotifier != nil {
		sub = s.cfg.OperatorNotifier.OperatorFeed().Subscribe(eventsChan)
		defer sub.Unsubscribe()
		subErr = sub.Err()
	}

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	// The cache lives on this goroutine's stack and flows through the cycle
	// function. Cycles run strictly one at a time: a tick that fires while a
	// cycle is in flight is dropped by the ticker, never run concurrently.
	cache := make(StatusCache)
	for {
		select {
		case <-s.ctx.Done():
			log.Debug("Context closed, exiting monitor loop")
			return
		case ev := <-eventsChan:
			s.handleLedgerEvent(ev)
		case err := <-subErr:
			log.WithError(err).Debug("Subscriber closed with error")
			subErr = nil
		case <-ticker.C:
			cache = s.runCycle(s.ctx, cache)
		}
	}
}

// fetchConstants reads the proof interval and grace period from the ledger.
// Failing this leaves the monitor without thresholds, which is fatal.
func (s *Service) fetchConstants() error {
	cfg := params.HeartbeatNetworkConfig()
	ctx, cancel := context.WithTimeout(s.ctx, cfg.ReadTimeout)
	defer cancel()
	interval, err := s.cfg.Reader.ProofInterval(ctx)
	if err != nil {
		return errors.Wrap(err, "could not read proof interval")
	}
	grace, err := s.cfg.Reader.GracePeriod(ctx)
	if err != nil {
		return errors.Wrap(err, "could not read grace period")
	}
	s.interval = interval
	s.grace = grace
	return nil
}

// handleLedgerEvent alerts on deregistration events pushed by the ledger.
// Other event types are observed through polling and need no handling here.
func (s *Service) handleLedgerEvent(ev *feed.Event) {
	data, ok := ev.Data.(*opfeed.DeregisteredData)
	if ev.Type != opfeed.Deregistered || !ok {
		return
	}
	s.notify("Operator " + data.Operator.Hex() + " was deregistered after repeated penalties")
}

// notify delivers a single alert through the sink, recording it in the
// bounded history consumed by the report surface.
func (s *Service) notify(text string) {
	if err := s.cfg.Alerts.Notify(text); err != nil {
		alertFailuresTotal.Inc()
		log.WithError(err).Error("Could not deliver alert")
		return
	}
	alertsSentTotal.Inc()
	s.mu.Lock()
	s.alertSeq++
	seq := s.alertSeq
	s.mu.Unlock()
	s.recentAlerts.Add(seq, text)
}

// RecentAlerts returns the retained alert history, oldest first.
func (s *Service) RecentAlerts() []string {
	keys := s.recentAlerts.Keys()
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if v, ok := s.recentAlerts.Peek(k); ok {
			out = append(out, v.(string))
		}
	}
	return out
}
