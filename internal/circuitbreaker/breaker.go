// Package circuitbreaker guards the price/yield feed against implausible
// batches. A tripped breaker rejects every batch until the reset delay has
// passed, then needs a run of good batches before it closes again.
package circuitbreaker

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/restake-risk-ea/internal/model"
	"github.com/yourorg/restake-risk-ea/internal/validation"
)

// State represents the current state of the circuit breaker
type State int

// Circuit breaker states
const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Tripped, batches rejected
	StateHalfOpen              // Testing if the feed has recovered
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrOpen is returned while the breaker is open. It wraps
// validation.ErrMalformedPayload so callers fall back the same way.
var ErrOpen = fmt.Errorf("%w: yield breaker open", validation.ErrMalformedPayload)

// CircuitBreaker checks yield batches against plausibility thresholds.
type CircuitBreaker struct {
	thresholds Thresholds

	state    State
	lastTrip time.Time

	// Duration before a half-open attempt
	resetDelay time.Duration

	mu sync.RWMutex

	// Per-symbol TVL of the last accepted batch; empty until one is accepted
	baseline map[string]float64

	// Consecutive good batches while half-open
	successCount     int
	successThreshold int

	now func() time.Time

	// Event callback for monitoring/alerting
	onTripCallback func(reason string, batch model.YieldBook)
}

// Thresholds defines the limits that will trigger the circuit breaker
type Thresholds struct {
	// Maximum allowed APY in percent
	MaxAPY float64 `json:"max_apy"`

	// Maximum allowed change in total TVL versus the last accepted batch (0.5 = 50%)
	MaxTVLChange float64 `json:"max_tvl_change"`

	// Minimum number of quoted assets in a batch
	MinAssets int `json:"min_assets"`
}

// New creates a new CircuitBreaker with the provided thresholds
func New(t Thresholds) *CircuitBreaker {
	return &CircuitBreaker{
		thresholds:       t,
		state:            StateClosed,
		resetDelay:       5 * time.Minute,
		successThreshold: 3,
		now:              time.Now,
	}
}

// WithResetDelay sets a custom reset delay and returns the circuit breaker
func (cb *CircuitBreaker) WithResetDelay(delay time.Duration) *CircuitBreaker {
	cb.resetDelay = delay
	return cb
}

// WithSuccessThreshold sets the number of good batches needed to close the circuit
func (cb *CircuitBreaker) WithSuccessThreshold(threshold int) *CircuitBreaker {
	cb.successThreshold = threshold
	return cb
}

// WithTripCallback sets a callback function that is called when the circuit trips
func (cb *CircuitBreaker) WithTripCallback(callback func(reason string, batch model.YieldBook)) *CircuitBreaker {
	cb.onTripCallback = callback
	return cb
}

// WithClock replaces the time source
func (cb *CircuitBreaker) WithClock(now func() time.Time) *CircuitBreaker {
	cb.now = now
	return cb
}

// Check evaluates a yield batch. Rejections wrap validation.ErrMalformedPayload.
func (cb *CircuitBreaker) Check(batch model.YieldBook) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.lastTrip) < cb.resetDelay {
			return ErrOpen
		}
		cb.state = StateHalfOpen
		cb.successCount = 0
		logrus.Info("Yield breaker half-open: testing feed recovery")
	}

	if len(batch) == 0 {
		return cb.trip("empty yield batch", batch)
	}
	if len(batch) < cb.thresholds.MinAssets {
		return cb.trip(fmt.Sprintf("insufficient asset count: got %d, need %d",
			len(batch), cb.thresholds.MinAssets), batch)
	}

	for sym, q := range batch {
		if q.TotalAPY > cb.thresholds.MaxAPY {
			return cb.trip(fmt.Sprintf("APY for %s exceeds maximum threshold: %.2f > %.2f",
				sym, q.TotalAPY, cb.thresholds.MaxAPY), batch)
		}
	}

	// A half-open batch that passes the other checks becomes the new
	// baseline, so a lasting TVL move cannot keep the breaker open.
	if cb.state != StateHalfOpen {
		previous, current := sharedTVL(cb.baseline, batch)
		if previous > 1.0 {
			changeRatio := math.Abs(current-previous) / previous
			if changeRatio > cb.thresholds.MaxTVLChange {
				return cb.trip(fmt.Sprintf("TVL change too drastic: %.2f%% (threshold: %.2f%%)",
					changeRatio*100, cb.thresholds.MaxTVLChange*100), batch)
			}
		}
	}

	logrus.Debug("Yield breaker checks passed")
	cb.baseline = make(map[string]float64, len(batch))
	for sym, q := range batch {
		cb.baseline[sym] = q.TVLUSD
	}

	if cb.state == StateHalfOpen {
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = StateClosed
			cb.successCount = 0
			logrus.Info("Yield breaker closed: feed has recovered")
		}
	}
	return nil
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Reset forcibly resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.successCount = 0
	cb.baseline = nil
	logrus.Info("Yield breaker manually reset to closed state")
}

// sharedTVL sums TVL over the symbols quoted in both the baseline and batch,
// so a pool missing from one fetch is not mistaken for a TVL swing.
func sharedTVL(baseline map[string]float64, batch model.YieldBook) (previous, current float64) {
	for sym, q := range batch {
		if prev, ok := baseline[sym]; ok {
			previous += prev
			current += q.TVLUSD
		}
	}
	return previous, current
}

// trip opens the circuit; callers hold mu.
func (cb *CircuitBreaker) trip(reason string, batch model.YieldBook) error {
	cb.state = StateOpen
	cb.lastTrip = cb.now()
	logrus.WithField("reason", reason).Warn("Yield breaker tripped")

	if cb.onTripCallback != nil {
		go cb.onTripCallback(reason, batch)
	}
	return fmt.Errorf("%w: %s", validation.ErrMalformedPayload, reason)
}

// IsOpen reports whether err came from an open breaker.
func IsOpen(err error) bool {
	return errors.Is(err, ErrOpen)
}
