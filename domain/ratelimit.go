package domain

import (
	"time"
)

type RateLimitDecision struct {
	Allowed     bool
	RetryAfter  time.Duration
	FrozenUntil time.Time
}

// RateLimitStats is a pure snapshot for client display; reading it never
// consumes a request slot.
type RateLimitStats struct {
	RequestsLastMinute int        `json:"requestsLastMinute"`
	RemainingMinute    int        `json:"remainingMinute"`
	LimitMinute        int        `json:"limitMinute"`
	RequestsLastHour   int        `json:"requestsLastHour"`
	RemainingHour      int        `json:"remainingHour"`
	LimitHour          int        `json:"limitHour"`
	FrozenUntil        *time.Time `json:"frozenUntil,omitempty"`
}
