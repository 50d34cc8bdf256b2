// Package resilience provides a circuit breaker for flaky external
// backends such as object storage and push gateways.
package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"chatlink-backend/pkg/logger"
)

// ErrOpen is returned while the breaker is open and calls are short-circuited.
var ErrOpen = errors.New("resilience: circuit breaker open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

func (s state) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"name"})

	breakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circuit_breaker_trips_total",
		Help: "Number of times a circuit breaker opened",
	}, []string{"name"})
)

// Breaker opens after a run of consecutive failures and lets a single
// probe through once the cooldown has passed.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration

	mu          sync.Mutex
	state       state
	failures    int
	lastFailure time.Time
	probing     bool
}

// NewBreaker creates a closed breaker that opens after threshold
// consecutive failures and probes again after cooldown.
func NewBreaker(name string, threshold int, cooldown time.Duration) *Breaker {
	breakerState.WithLabelValues(name).Set(0)
	return &Breaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// Do runs op unless the breaker is open. A failed op counts toward the
// threshold; a successful op closes the breaker.
func (b *Breaker) Do(op func() error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := op()
	b.after(err)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return nil
	case stateOpen:
		if time.Since(b.lastFailure) < b.cooldown {
			return ErrOpen
		}
		b.transition(stateHalfOpen)
		b.probing = true
		return nil
	default: // half-open, one probe at a time
		if b.probing {
			return ErrOpen
		}
		b.probing = true
		return nil
	}
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false

	if err == nil {
		b.failures = 0
		if b.state != stateClosed {
			b.transition(stateClosed)
		}
		return
	}

	b.failures++
	b.lastFailure = time.Now()
	if b.state == stateHalfOpen || b.failures >= b.threshold {
		if b.state != stateOpen {
			b.transition(stateOpen)
			breakerTrips.WithLabelValues(b.name).Inc()
		}
	}
}

func (b *Breaker) transition(next state) {
	logger.Warn("Circuit breaker state change",
		zap.String("breaker", b.name),
		zap.String("from", b.state.String()),
		zap.String("to", next.String()))
	b.state = next
	breakerState.WithLabelValues(b.name).Set(float64(next))
}
