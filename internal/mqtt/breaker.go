package mqtt

import (
	"log"
	"time"

	"github.com/sony/gobreaker"
	"github.com/sweeney/valve-controller/internal/logic"
)

// BreakerSettings configures the circuit breaker around a publisher.
type BreakerSettings struct {
	Failures uint32        // consecutive failures that open the breaker
	Open     time.Duration // how long the breaker stays open before a trial request
	Interval time.Duration // counts reset period while closed (0 = never)
}

// DefaultBreakerSettings returns the daemon defaults.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{Failures: 3, Open: 30 * time.Second}
}

// BreakerPublisher fails fast while the wrapped publisher keeps failing,
// so a dead broker costs the control loop nothing.
type BreakerPublisher struct {
	next Publisher
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerPublisher wraps next in a circuit breaker.
func NewBreakerPublisher(next Publisher, s BreakerSettings) *BreakerPublisher {
	return &BreakerPublisher{
		next: next,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     "mqtt",
			Interval: s.Interval,
			Timeout:  s.Open,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= s.Failures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Printf("%s: breaker %s -> %s", name, from, to)
			},
		}),
	}
}

// Publish forwards the event unless the breaker is open.
func (b *BreakerPublisher) Publish(event logic.Event) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Publish(event)
	})
	return err
}

// PublishSystem forwards the event unless the breaker is open.
func (b *BreakerPublisher) PublishSystem(event SystemEvent) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.PublishSystem(event)
	})
	return err
}

// Close closes the wrapped publisher.
func (b *BreakerPublisher) Close() error {
	return b.next.Close()
}

// IsConnected reports the wrapped publisher's connection state, or false
// if it cannot tell.
func (b *BreakerPublisher) IsConnected() bool {
	if cs, ok := b.next.(ConnectionStatus); ok {
		return cs.IsConnected()
	}
	return false
}

// State returns the breaker state ("closed", "open" or "half-open").
func (b *BreakerPublisher) State() string {
	return b.cb.State().String()
}
