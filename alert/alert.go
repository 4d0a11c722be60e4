// Package alert defines the notification sink used by the liveness monitor
// for single-event alerts and formatted multi-operator reports.
package alert

import (
	"sync"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "alert")

// Sink delivers human-readable notifications. Implementations decide the
// transport; the monitor only cares about success or failure.
type Sink interface {
	Notify(text string) error
}

// LogSink is a Sink that writes every notification to the process log. It is
// the default delivery channel when no external messenger is wired.
type LogSink struct{}

// Notify implements Sink.
func (LogSink) Notify(text string) error {
	log.Info(text)
	return nil
}

// RecordingSink is a Sink that retains every notification in memory. Used in
// tests to assert on alert traffic.
type RecordingSink struct {
	mu   sync.Mutex
	msgs []string
}

// Notify implements Sink.
func (r *RecordingSink) Notify(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, text)
	return nil
}

// Messages returns a copy of every notification received so far.
func (r *RecordingSink) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	copy(out, r.msgs)
	return out
}

// Reset discards all recorded notifications.
func (r *RecordingSink) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = nil
}
