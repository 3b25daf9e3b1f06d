package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/starknet-replay/orchestrator/internal/rerr"
)

// Op is a fallible operation run under a Policy.
type Op func(ctx context.Context, attempt int) error

// IsRetryable decides whether err should be retried. The default
// predicate below returns false for target-down and hash-mismatch:
// those must surface immediately so the engine or recovery coordinator
// can react (spec §4.1).
type IsRetryable func(err error) bool

// DefaultIsRetryable returns false for target-down and hash-mismatch,
// true for everything else.
func DefaultIsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if rerr.Is(err, rerr.CodeTargetDown) || rerr.Is(err, rerr.CodeHashMismatch) {
		return false
	}
	return true
}

// Executor runs operations under a policy, sleeping between attempts at
// a cancellable suspension point.
type Executor struct {
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor builds an Executor. sleep is injectable so tests can
// collapse back-off delays to nothing.
func NewExecutor() *Executor {
	return &Executor{sleep: contextSleep}
}

func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Execute runs op under policy, retrying while isRetryable(err) is true
// and the policy still permits another attempt. A non-retryable error
// and a policy-exhausted error both return immediately with the last
// error. Returns the number of attempts made alongside any error.
func (e *Executor) Execute(ctx context.Context, policy Policy, isRetryable IsRetryable, op Op) (attempts int, err error) {
	if isRetryable == nil {
		isRetryable = DefaultIsRetryable
	}

	for k := 0; ; k++ {
		attempts = k + 1
		err = op(ctx, k)
		if err == nil {
			return attempts, nil
		}

		if ctx.Err() != nil {
			return attempts, ctx.Err()
		}

		if !isRetryable(err) {
			return attempts, err
		}

		delay, ok := policy.GetDelay(k)
		if !ok {
			return attempts, fmt.Errorf("retry exhausted after %d attempts: %w", attempts, err)
		}

		if serr := e.sleep(ctx, delay); serr != nil {
			return attempts, serr
		}
	}
}

// ExecutePhased runs op repeatedly under a Phased policy until it
// succeeds or the wall-clock budget elapses, using the phase-appropriate
// poll interval (spec §4.5 step 5: receipt validation). seed, if
// non-zero, is an initial delay applied before the first attempt.
// isRetryable works as in Execute: nil defaults to DefaultIsRetryable.
func (e *Executor) ExecutePhased(ctx context.Context, policy Policy, budget time.Duration, seed time.Duration, isRetryable IsRetryable, op Op) (attempts int, err error) {
	if isRetryable == nil {
		isRetryable = DefaultIsRetryable
	}

	start := nowFunc()

	if seed > 0 {
		if serr := e.sleep(ctx, seed); serr != nil {
			return 0, serr
		}
	}

	for k := 0; ; k++ {
		attempts = k + 1
		err = op(ctx, k)
		if err == nil {
			return attempts, nil
		}

		if ctx.Err() != nil {
			return attempts, ctx.Err()
		}

		if !isRetryable(err) {
			return attempts, err
		}

		elapsed := nowFunc().Sub(start)
		if elapsed >= budget {
			return attempts, fmt.Errorf("receipt validation budget of %s exceeded: %w", budget, err)
		}

		interval := policy.IntervalAt(elapsed)
		remaining := budget - elapsed
		if interval > remaining {
			interval = remaining
		}
		if serr := e.sleep(ctx, interval); serr != nil {
			return attempts, serr
		}
	}
}

// nowFunc is indirected so tests can control elapsed-time accounting
// without sleeping in real time.
var nowFunc = time.Now
