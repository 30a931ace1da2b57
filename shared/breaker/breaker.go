// Package breaker implements a process-local circuit breaker. One
// instance guards one external dependency; state is not shared across
// orchestrator instances, so each instance trips independently.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"firelater-orchestrator/shared/metricsx"
)

var (
	ErrOpen        = errors.New("circuit open")
	ErrCallTimeout = errors.New("call timed out")
)

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

type Breaker struct {
	name        string
	threshold   int
	cooldown    time.Duration
	callTimeout time.Duration

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	openedAt    time.Time
}

func New(name string, failureThreshold int, cooldown time.Duration, callTimeout time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	return &Breaker{
		name:        name,
		threshold:   failureThreshold,
		cooldown:    cooldown,
		callTimeout: callTimeout,
		state:       StateClosed,
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Call runs op under the breaker. When the breaker is open and the
// cooldown has not elapsed it fails fast without invoking op. Every
// attempt races a fixed timeout; a timeout counts as a failure but the
// operation itself is not aborted mid-flight.
func (b *Breaker) Call(ctx context.Context, op func(context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(cctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			b.recordFailure()
			return err
		}
		b.recordSuccess()
		return nil
	case <-cctx.Done():
		b.recordFailure()
		return fmt.Errorf("%s: %w", b.name, ErrCallTimeout)
	}
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return nil
	case StateOpen:
		if time.Since(b.openedAt) < b.cooldown {
			return fmt.Errorf("%s: %w", b.name, ErrOpen)
		}
		b.transition(StateHalfOpen)
		return nil
	}
	return nil
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	if b.state != StateClosed {
		b.transition(StateClosed)
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = time.Now()
	switch b.state {
	case StateClosed:
		if b.failures >= b.threshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.transition(StateOpen)
	}
}

// transition must be called with the lock held.
func (b *Breaker) transition(next State) {
	b.state = next
	if next == StateOpen {
		b.openedAt = time.Now()
	}
	metricsx.SetBreakerState(b.name, gaugeValue(next))
}

func gaugeValue(s State) int {
	switch s {
	case StateHalfOpen:
		return 1
	case StateOpen:
		return 2
	default:
		return 0
	}
}
