// Package ratelimit keeps a failure budget for the timetable site. Every
// communication failure spends one unit; when the budget runs low requests
// are throttled and then blocked until the window resets. The budget is
// shared across processes through Redis when one is configured.
package ratelimit

import (
	"time"
)

// RedisKeyFailuresRemaining holds the remaining budget; its TTL is the window.
const RedisKeyFailuresRemaining = "rozklad:budget:failures_remaining"

// Thresholds for budget decisions.
const (
	// ErrorThresholdCritical blocks all requests when the remaining budget falls below this value.
	ErrorThresholdCritical = 5

	// ErrorThresholdWarning throttles requests when the remaining budget falls below this value.
	ErrorThresholdWarning = 20

	// ErrorThresholdHealthy marks normal operation.
	ErrorThresholdHealthy = 50
)

// BudgetState is a snapshot of the failure budget.
type BudgetState struct {
	// FailuresRemaining is how many more failures the window tolerates.
	FailuresRemaining int `json:"failures_remaining"`

	// ResetAt is when the window restarts with a full budget.
	ResetAt time.Time `json:"reset_at"`

	// IsHealthy is true when FailuresRemaining >= ErrorThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// NeedsCriticalBlock returns true if requests should be blocked.
func (s *BudgetState) NeedsCriticalBlock() bool {
	return s.FailuresRemaining < ErrorThresholdCritical
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *BudgetState) NeedsThrottling() bool {
	return s.FailuresRemaining < ErrorThresholdWarning && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the duration until the window resets, or 0.
func (s *BudgetState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates IsHealthy from FailuresRemaining.
func (s *BudgetState) UpdateHealth() {
	s.IsHealthy = s.FailuresRemaining >= ErrorThresholdHealthy
}
