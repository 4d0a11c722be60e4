package monitor

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kelbelss/heartbeat-avs/config/params"
)

// OperatorReport is one operator's entry in the on-demand status report.
type OperatorReport struct {
	Operator string `json:"operator"`
	Status   string `json:"status"`
	// EverProved reports whether a proof has ever been observed.
	EverProved bool `json:"ever_proved"`
	// ProofAge is the seconds elapsed since the last known proof. Zero when
	// the operator has never proved.
	ProofAge int64 `json:"proof_age_seconds"`
	// LastCheckedAge is the seconds elapsed since the operator was last read
	// successfully. Negative one when it has never been read.
	LastCheckedAge int64 `json:"last_checked_age_seconds"`
}

// StatusReport is the rendered state of every monitored operator.
type StatusReport struct {
	// ChainTime the report was computed against.
	ChainTime int64 `json:"chain_time"`
	// FreshSnapshot is false when the report fell back to the last
	// successful cycle's chain time.
	FreshSnapshot bool             `json:"fresh_snapshot"`
	Operators     []OperatorReport `json:"operators"`
}

// Report recomputes status freshness for all monitored operators using the
// latest obtainable chain time, falling back to the last successful cycle's
// snapshot when a fresh one is unavailable. It reads only the published view
// and therefore never blocks, nor is blocked by, the cycle loop.
func (s *Service) Report(ctx context.Context) (*StatusReport, error) {
	s.mu.RLock()
	view := s.view
	runErr := s.runErr
	s.mu.RUnlock()
	if runErr != nil {
		return nil, runErr
	}

	now := view.chainTime
	fresh := false
	snapCtx, cancel := context.WithTimeout(ctx, params.HeartbeatNetworkConfig().ReadTimeout)
	defer cancel()
	if t, err := s.cfg.Reader.ChainTime(snapCtx); err == nil {
		now = t
		fresh = true
	} else {
		log.WithError(err).Debug("Fresh chain time unavailable, reporting against last cycle")
	}

	report := &StatusReport{
		ChainTime:     now,
		FreshSnapshot: fresh,
		Operators:     make([]OperatorReport, 0, len(view.entries)),
	}
	for op, entry := range view.entries {
		r := OperatorReport{
			Operator:       op.Hex(),
			Status:         entry.Status.String(),
			EverProved:     entry.LastKnownProofTime > 0,
			LastCheckedAge: -1,
		}
		if r.EverProved {
			r.ProofAge = now - entry.LastKnownProofTime
		}
		if entry.LastObservationTime > 0 {
			r.LastCheckedAge = now - entry.LastObservationTime
		}
		report.Operators = append(report.Operators, r)
	}
	sort.Slice(report.Operators, func(i, j int) bool {
		return report.Operators[i].Operator < report.Operators[j].Operator
	})
	return report, nil
}

// FormatReport renders a status report as a human-readable multi-operator
// message for the alert sink.
func FormatReport(r *StatusReport) string {
	var buf bytes.Buffer
	freshness := "fresh snapshot"
	if !r.FreshSnapshot {
		freshness = "last cycle snapshot"
	}
	fmt.Fprintf(&buf, "Operator liveness report at chain time %d (%s)\n", r.ChainTime, freshness)
	if len(r.Operators) == 0 {
		buf.WriteString("No operators observed yet")
		return buf.String()
	}
	for _, op := range r.Operators {
		fmt.Fprintf(&buf, "%s: %s", op.Operator, op.Status)
		if op.EverProved {
			fmt.Fprintf(&buf, ", proof age %s", (time.Duration(op.ProofAge) * time.Second).String())
		} else {
			buf.WriteString(", never proved")
		}
		if op.LastCheckedAge >= 0 {
			fmt.Fprintf(&buf, ", checked %s ago", (time.Duration(op.LastCheckedAge) * time.Second).String())
		}
		buf.WriteString("\n")
	}
	return buf.String()
}

// NotifyReport renders the current report and delivers it through the alert
// sink as one formatted message.
func (s *Service) NotifyReport(ctx context.Context) error {
	report, err := s.Report(ctx)
	if err != nil {
		return err
	}
	s.notify(FormatReport(report))
	return nil
}
