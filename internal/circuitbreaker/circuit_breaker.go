package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State of a breaker guarding one upstream (a search provider or the source mirror)
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

var stateNames = [...]string{
	StateClosed:   "closed",
	StateHalfOpen: "half-open",
	StateOpen:     "open",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

var (
	// ErrCircuitBreakerOpen rejects calls while the upstream is considered down
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests rejects calls beyond the half-open trial quota
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config tunes when an upstream is cut off and when it is tried again.
//
// Interval resets the closed-state counters; zero keeps them forever.
// Timeout is how long an open breaker waits before allowing trial calls.
// MaxRequests caps trial calls while half-open.
type Config struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	SuccessThreshold uint32
	OnStateChange    func(name string, from State, to State)
}

// DefaultConfig opens after 5 straight provider failures and retries after 10s
func DefaultConfig() Config {
	return Config{
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
	}
}

// Counts are reset whenever the breaker changes state or the interval rolls over
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// CircuitBreaker guards calls to one upstream. Each state change starts a new
// generation; outcomes reported for an older generation are dropped.
type CircuitBreaker struct {
	name   string
	config Config
	logger *zap.Logger
	now    func() time.Time

	mutex      sync.RWMutex
	state      State
	generation uint64
	counts     Counts
	expiry     time.Time
}

// NewCircuitBreaker returns a closed breaker named after the upstream it guards
func NewCircuitBreaker(name string, config Config, logger *zap.Logger) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := &CircuitBreaker{
		name:   name,
		config: config,
		logger: logger,
		now:    time.Now,
	}
	cb.expiry = cb.now().Add(config.Interval)
	return cb
}

// Name identifies the guarded upstream
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute calls fn when the breaker admits it and records the outcome.
// An error caused by ctx ending is not held against the upstream.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	generation, err := cb.admit()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			cb.settle(generation, false)
			panic(r)
		}
	}()

	err = fn()
	cb.settle(generation, err == nil || (ctx.Err() != nil && errors.Is(err, ctx.Err())))
	return err
}

// State reports the state, moving an expired open breaker to half-open
func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.refresh(cb.now())
}

// Counts returns a copy of the current generation's counters
func (cb *CircuitBreaker) Counts() Counts {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()
	return cb.counts
}

func (cb *CircuitBreaker) admit() (uint64, error) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.refresh(cb.now()) {
	case StateOpen:
		return cb.generation, ErrCircuitBreakerOpen
	case StateHalfOpen:
		if cb.counts.Requests >= cb.config.MaxRequests {
			return cb.generation, ErrTooManyRequests
		}
	}
	cb.counts.Requests++
	return cb.generation, nil
}

func (cb *CircuitBreaker) settle(generation uint64, success bool) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := cb.now()
	state := cb.refresh(now)
	if cb.generation != generation {
		return
	}

	c := &cb.counts
	if success {
		c.TotalSuccesses++
		c.ConsecutiveFailures = 0
		if state == StateHalfOpen {
			c.ConsecutiveSuccesses++
			if c.ConsecutiveSuccesses >= cb.config.SuccessThreshold {
				cb.transition(StateClosed, now)
			}
		}
		return
	}

	c.TotalFailures++
	c.ConsecutiveSuccesses = 0
	switch state {
	case StateClosed:
		c.ConsecutiveFailures++
		if c.ConsecutiveFailures >= cb.config.FailureThreshold {
			cb.transition(StateOpen, now)
		}
	case StateHalfOpen:
		cb.transition(StateOpen, now)
	}
}

// refresh applies any expiry that has passed and returns the resulting state
func (cb *CircuitBreaker) refresh(now time.Time) State {
	switch cb.state {
	case StateClosed:
		if !cb.expiry.IsZero() && now.After(cb.expiry) {
			cb.nextGeneration(now)
		}
	case StateOpen:
		if now.After(cb.expiry) {
			cb.transition(StateHalfOpen, now)
		}
	}
	return cb.state
}

func (cb *CircuitBreaker) transition(to State, now time.Time) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.nextGeneration(now)

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.name, from, to)
	}
	cb.logger.Info("Circuit breaker state changed",
		zap.String("upstream", cb.name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
}

func (cb *CircuitBreaker) nextGeneration(now time.Time) {
	cb.generation++
	cb.counts = Counts{}

	switch cb.state {
	case StateClosed:
		cb.expiry = time.Time{}
		if cb.config.Interval > 0 {
			cb.expiry = now.Add(cb.config.Interval)
		}
	case StateOpen:
		cb.expiry = now.Add(cb.config.Timeout)
	default:
		cb.expiry = time.Time{}
	}
}
