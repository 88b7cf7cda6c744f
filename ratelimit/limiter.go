package ratelimit

import (
	"sync"
	"time"

	"nport-service/conf"
	"nport-service/domain"
)

type identityState struct {
	minute      []time.Time
	hour        []time.Time
	frozenUntil time.Time
}

func (s *identityState) purge(now time.Time) {
	s.minute = keepSince(s.minute, now.Add(-time.Minute))
	s.hour = keepSince(s.hour, now.Add(-time.Hour))
}

// Limiter admits requests per client identity against two rolling windows.
// A single lock guards the state map; admission never blocks on anything
// but other admissions.
type Limiter struct {
	perMinute int
	perHour   int
	freeze    time.Duration

	lock   *sync.Mutex
	states map[string]*identityState
	now    func() time.Time
}

func New(config conf.RateLimit) *Limiter {
	return NewWithClock(config, time.Now)
}

func NewWithClock(config conf.RateLimit, now func() time.Time) *Limiter {
	return &Limiter{
		perMinute: config.GetRequestsPerMinute(),
		perHour:   config.GetRequestsPerHour(),
		freeze:    config.GetFreezeDuration(),
		lock:      &sync.Mutex{},
		states:    map[string]*identityState{},
		now:       now,
	}
}

// Allow purges expired entries, then either rejects with the time until the
// oldest offending entry expires or records the request in both windows.
// Hitting the hourly limit additionally freezes the identity.
func (l *Limiter) Allow(identity string) domain.RateLimitDecision {
	l.lock.Lock()
	defer l.lock.Unlock()

	now := l.now()
	state, ok := l.states[identity]
	if !ok {
		state = &identityState{}
		l.states[identity] = state
	}
	state.purge(now)

	if now.Before(state.frozenUntil) {
		return domain.RateLimitDecision{
			RetryAfter:  state.frozenUntil.Sub(now),
			FrozenUntil: state.frozenUntil,
		}
	}

	if len(state.minute) >= l.perMinute {
		return domain.RateLimitDecision{
			RetryAfter: state.minute[0].Add(time.Minute).Sub(now),
		}
	}

	if len(state.hour) >= l.perHour {
		state.frozenUntil = now.Add(l.freeze)
		return domain.RateLimitDecision{
			RetryAfter:  l.freeze,
			FrozenUntil: state.frozenUntil,
		}
	}

	state.minute = append(state.minute, now)
	state.hour = append(state.hour, now)
	return domain.RateLimitDecision{Allowed: true}
}

// Stats is a side-effect-free read: it neither records a request nor purges
// stored entries.
func (l *Limiter) Stats(identity string) domain.RateLimitStats {
	l.lock.Lock()
	defer l.lock.Unlock()

	stats := domain.RateLimitStats{
		LimitMinute:     l.perMinute,
		RemainingMinute: l.perMinute,
		LimitHour:       l.perHour,
		RemainingHour:   l.perHour,
	}

	state, ok := l.states[identity]
	if !ok {
		return stats
	}

	now := l.now()
	stats.RequestsLastMinute = countSince(state.minute, now.Add(-time.Minute))
	stats.RequestsLastHour = countSince(state.hour, now.Add(-time.Hour))
	stats.RemainingMinute = remaining(l.perMinute, stats.RequestsLastMinute)
	stats.RemainingHour = remaining(l.perHour, stats.RequestsLastHour)
	if state.frozenUntil.After(now) {
		frozenUntil := state.frozenUntil
		stats.FrozenUntil = &frozenUntil
	}

	return stats
}

func keepSince(timestamps []time.Time, cutoff time.Time) []time.Time {
	kept := timestamps[:0:len(timestamps)]
	for _, t := range timestamps {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

func countSince(timestamps []time.Time, cutoff time.Time) int {
	count := 0
	for _, t := range timestamps {
		if t.After(cutoff) {
			count++
		}
	}
	return count
}

func remaining(limit int, count int) int {
	if count >= limit {
		return 0
	}
	return limit - count
}
