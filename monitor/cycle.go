package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opencensus.io/trace"

	"github.com/kelbelss/heartbeat-avs/config/params"
)

// observation is the outcome of one operator's ledger read within a cycle.
type observation struct {
	operator  common.Address
	lastProof int64
	err       error
}

// runCycle performs one liveness check cycle: it takes a single chain-time
// snapshot shared by every operator checked in the cycle, reads each
// operator's last proof time concurrently, and applies the status transitions
// against the cache. The updated cache is returned to the caller's loop.
//
// A failed snapshot aborts the whole cycle and leaves the cache untouched; a
// failed per-operator read is isolated to that operator.
func (s *Service) runCycle(ctx context.Context, cache StatusCache) StatusCache {
	ctx, span := trace.StartSpan(ctx, "monitor.runCycle")
	defer span.End()
	cfg := params.HeartbeatNetworkConfig()

	snapCtx, cancel := context.WithTimeout(ctx, cfg.ReadTimeout)
	now, err := s.cfg.Reader.ChainTime(snapCtx)
	cancel()
	if err != nil {
		cycleFailuresTotal.Inc()
		log.WithError(err).Error("Could not obtain chain time snapshot, skipping cycle")
		s.notify("Liveness check cycle aborted: chain time snapshot unavailable")
		return cache
	}
	span.AddAttributes(trace.Int64Attribute("chainTime", now))

	observations := s.collectObservations(ctx, cfg.ReadTimeout, cfg.MaxConcurrentReads)
	wall := s.cfg.Clock.Now()
	for i := range observations {
		s.applyObservation(cache, &observations[i], now, wall)
	}
	cyclesRunTotal.Inc()
	s.publishView(cache, now, wall)
	return cache
}

// collectObservations reads every monitored operator's last proof time
// concurrently under bounded parallelism. Each read carries its own timeout
// and completes or fails independently without blocking siblings.
func (s *Service) collectObservations(ctx context.Context, readTimeout time.Duration, maxConcurrent int) []observation {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	results := make([]observation, len(s.cfg.Operators))
	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup
	for i, op := range s.cfg.Operators {
		wg.Add(1)
		go func(i int, op common.Address) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			readCtx, cancel := context.WithTimeout(ctx, readTimeout)
			defer cancel()
			lastProof, err := s.cfg.Reader.LastProofTime(readCtx, op)
			results[i] = observation{operator: op, lastProof: lastProof, err: err}
		}(i, op)
	}
	wg.Wait()
	return results
}

// publishView stores an immutable copy of the cycle's outcome for the
// on-demand query path.
func (s *Service) publishView(cache StatusCache, chainTime int64, wall time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = reportView{
		entries:   cache.snapshot(),
		chainTime: chainTime,
		wallTime:  wall,
	}
}
