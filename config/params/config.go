// Package params defines the heartbeat protocol thresholds and monitor
// parameters used across the repo, following a single active configuration
// that can be swapped out for testing.
package params

import "time"

// RemediationMode selects what the monitor does when an operator becomes
// overdue. Both behaviors are reachable so they can be exercised in tests.
type RemediationMode string

const (
	// RemediationAlertOnly sends alerts for overdue operators and never
	// invokes the ledger's penalty entrypoint.
	RemediationAlertOnly RemediationMode = "alert-only"
	// RemediationAlertAndPenalize additionally invokes the ledger's penalty
	// entrypoint when an operator transitions into the overdue state.
	RemediationAlertAndPenalize RemediationMode = "alert-and-penalize"
)

// HeartbeatConfig contains the thresholds of the liveness protocol together
// with the monitor's operational parameters.
type HeartbeatConfig struct {
	// ConfigName identifies the active configuration.
	ConfigName string

	// Protocol thresholds, in chain-time seconds.
	ProofInterval       int64  // Maximum allowed time between proofs before the warning state begins.
	GracePeriod         int64  // Additional buffer after the interval before a penalty becomes applicable.
	EscalationThreshold uint64 // Penalty count at which an operator is deregistered.

	// Monitor parameters.
	PollInterval          time.Duration // Cadence of the liveness check cycle.
	ReadTimeout           time.Duration // Timeout applied to every ledger read.
	WarningResendCooldown time.Duration // Minimum wall-clock gap between repeated warning alerts.
	MaxConcurrentReads    int           // Bound on per-operator reads in flight within a cycle.
	Remediation           RemediationMode
}

var heartbeatConfig = MainnetConfig()

// HeartbeatNetworkConfig retrieves the current active configuration.
func HeartbeatNetworkConfig() *HeartbeatConfig {
	return heartbeatConfig
}

// OverrideHeartbeatConfig replaces the active configuration. Intended for
// process startup and for tests.
func OverrideHeartbeatConfig(c *HeartbeatConfig) {
	heartbeatConfig = c
}

// Copy returns a deep copy of the configuration.
func (c *HeartbeatConfig) Copy() *HeartbeatConfig {
	cp := *c
	return &cp
}

// MainnetConfig returns the default production configuration.
func MainnetConfig() *HeartbeatConfig {
	return &HeartbeatConfig{
		ConfigName:            "mainnet",
		ProofInterval:         3600, // 1 hour between proofs.
		GracePeriod:           900,  // 15 minute grace buffer.
		EscalationThreshold:   3,
		PollInterval:          30 * time.Second,
		ReadTimeout:           10 * time.Second,
		WarningResendCooldown: 10 * time.Minute,
		MaxConcurrentReads:    16,
		Remediation:           RemediationAlertOnly,
	}
}

// MinimalConfig returns a configuration with short thresholds suitable for
// local runs and unit tests.
func MinimalConfig() *HeartbeatConfig {
	c := MainnetConfig()
	c.ConfigName = "minimal"
	c.ProofInterval = 30
	c.GracePeriod = 10
	c.PollInterval = time.Second
	c.ReadTimeout = time.Second
	c.WarningResendCooldown = 5 * time.Second
	c.MaxConcurrentReads = 4
	return c
}

// SetupTestConfigCleanup installs the minimal configuration for the duration
// of a test and restores the previous active configuration afterwards.
func SetupTestConfigCleanup(t interface{ Cleanup(func()) }) {
	prev := heartbeatConfig
	heartbeatConfig = MinimalConfig()
	t.Cleanup(func() {
		heartbeatConfig = prev
	})
}
