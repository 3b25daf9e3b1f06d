// Package retry implements the orchestrator's retry executor: a
// fallible operation run under a pluggable, data-described back-off
// policy (spec §4.1). Policies are data, not code, per the "Retry policy
// as data" design note — a Kind plus parameters, so the executor stays
// trivially testable.
package retry

import "time"

// Kind selects the shape of the delay sequence a Policy produces.
type Kind string

const (
	Exponential Kind = "exponential"
	Fixed       Kind = "fixed"
	Linear      Kind = "linear"
	Phased      Kind = "phased"
)

// Policy describes a bounded back-off sequence. MaxAttempts is the total
// number of tries (including the first); GetDelay returns the delay
// before attempt k+1 (k is 0-indexed, 0 == delay before the 2nd try), or
// ok=false once attempts are exhausted.
type Policy struct {
	Kind        Kind
	Base        time.Duration
	Cap         time.Duration // 0 means uncapped
	MaxAttempts int
	Phases      []Phase // only used when Kind == Phased
}

// Phase is one segment of a Phased policy: while elapsed time since the
// first attempt is within [Until of the previous phase, Until), poll
// every Interval. The engine's receipt validator (§4.5 step 5) uses this
// instead of an attempt count, bounded by a wall-clock budget instead.
type Phase struct {
	Until    time.Duration
	Interval time.Duration
}

// GetDelay returns the delay before the next attempt (attempt index k,
// 0-based, is the attempt that just failed) and whether another attempt
// is permitted at all under MaxAttempts.
func (p Policy) GetDelay(k int) (time.Duration, bool) {
	if p.MaxAttempts > 0 && k+1 >= p.MaxAttempts {
		return 0, false
	}

	var d time.Duration
	switch p.Kind {
	case Fixed:
		d = p.Base
	case Linear:
		d = p.Base * time.Duration(k+1)
	case Exponential:
		d = p.Base
		for i := 0; i < k; i++ {
			d *= 2
			if p.Cap > 0 && d >= p.Cap {
				d = p.Cap
				break
			}
		}
	default:
		d = p.Base
	}

	if p.Cap > 0 && d > p.Cap {
		d = p.Cap
	}
	return d, true
}

// IntervalAt returns the poll interval for a Phased policy at the given
// elapsed duration since the first attempt.
func (p Policy) IntervalAt(elapsed time.Duration) time.Duration {
	for _, ph := range p.Phases {
		if elapsed < ph.Until {
			return ph.Interval
		}
	}
	if len(p.Phases) > 0 {
		return p.Phases[len(p.Phases)-1].Interval
	}
	return p.Base
}

// Named operation-specific policies, per spec §4.1's table.

// SourceBlockFetch: exponential, base 1s, 8 attempts (7 back-offs of
// 1s..64s, ~127s worst case).
func SourceBlockFetch(maxAttempts int) Policy {
	return Policy{Kind: Exponential, Base: time.Second, MaxAttempts: maxAttempts}
}

// TargetHashPoll: exponential, base 100ms, cap 30s, 100 attempts.
func TargetHashPoll(maxAttempts int) Policy {
	return Policy{Kind: Exponential, Base: 100 * time.Millisecond, Cap: 30 * time.Second, MaxAttempts: maxAttempts}
}

// HashMatch: exponential, base 100ms, 400 attempts. Mismatch itself is
// non-retryable (see DefaultIsRetryable); this policy only bounds
// transient lag while the target hasn't finalized yet.
func HashMatch(maxAttempts int) Policy {
	return Policy{Kind: Exponential, Base: 100 * time.Millisecond, MaxAttempts: maxAttempts}
}

// ReceiptPollSerial: fixed 100ms, 20 attempts, seeded with a >=2s
// initial delay by the caller before the first poll.
func ReceiptPollSerial(maxAttempts int) Policy {
	return Policy{Kind: Fixed, Base: 100 * time.Millisecond, MaxAttempts: maxAttempts}
}

// ReceiptPollBatch: phased by wall-clock budget, not attempt count.
// 0-5s: 100ms; 5s-1m: 500ms; >1m: 2s.
func ReceiptPollBatch() Policy {
	return Policy{
		Kind: Phased,
		Phases: []Phase{
			{Until: 5 * time.Second, Interval: 100 * time.Millisecond},
			{Until: time.Minute, Interval: 500 * time.Millisecond},
			{Until: 0, Interval: 2 * time.Second}, // open-ended final phase
		},
	}
}

// TransactionInject: fixed 30s, 3 attempts.
func TransactionInject(maxAttempts int) Policy {
	return Policy{Kind: Fixed, Base: 30 * time.Second, MaxAttempts: maxAttempts}
}
