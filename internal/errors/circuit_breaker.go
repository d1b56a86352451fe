package errors

import (
	"sort"
	"sync"
	"time"

	"reelpipe/internal/logging"
)

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	// StateClosed - normal operation, requests allowed
	StateClosed CircuitState = iota
	// StateOpen - failing, requests blocked
	StateOpen
	// StateHalfOpen - a single trial request decides recovery
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures circuit breaker behavior
type CircuitBreakerConfig struct {
	FailureThreshold int                                      // Consecutive failures before opening (default: 5)
	Timeout          time.Duration                            // Time after the last failure before a trial is allowed (default: 60s)
	OnStateChange    func(name string, from, to CircuitState) // Optional, called synchronously outside the lock
	Now              func() time.Time                         // Clock, defaults to time.Now
}

// DefaultCircuitBreakerConfig returns sensible defaults
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		Timeout:          60 * time.Second,
	}
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	defaults := DefaultCircuitBreakerConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = defaults.FailureThreshold
	}
	if c.Timeout <= 0 {
		c.Timeout = defaults.Timeout
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// CircuitBreaker implements the circuit breaker pattern
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	logger logging.Logger

	mu              sync.Mutex
	state           CircuitState
	failureCount    int
	trialInFlight   bool
	lastFailureTime time.Time
	lastStateChange time.Time
}

type transition struct {
	from, to CircuitState
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	config = config.withDefaults()
	return &CircuitBreaker{
		name:            name,
		config:          config,
		logger:          logging.NewComponentLogger("circuit-breaker"),
		state:           StateClosed,
		lastStateChange: config.Now(),
	}
}

// Name returns the breaker key.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// SetLimits updates the failure threshold and open timeout in place.
// Non-positive values keep the current setting.
func (cb *CircuitBreaker) SetLimits(threshold int, timeout time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if threshold > 0 {
		cb.config.FailureThreshold = threshold
	}
	if timeout > 0 {
		cb.config.Timeout = timeout
	}
}

// Allow checks whether a request can proceed and, when it does so from
// half-open, claims the single trial slot. Callers must report the outcome
// through Mark.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	var changed *transition
	err := func() error {
		changed = cb.advanceLocked()
		switch cb.state {
		case StateClosed:
			return nil
		case StateHalfOpen:
			if cb.trialInFlight {
				return &CircuitOpenError{Name: cb.name}
			}
			cb.trialInFlight = true
			return nil
		default:
			return &CircuitOpenError{
				Name:       cb.name,
				RetryAfter: cb.config.Timeout - cb.config.Now().Sub(cb.lastFailureTime),
			}
		}
	}()
	cb.mu.Unlock()
	cb.emit(changed)
	return err
}

// Check evaluates the lazy open-to-half-open transition without claiming
// the trial slot, and returns the resulting state.
func (cb *CircuitBreaker) Check() CircuitState {
	cb.mu.Lock()
	changed := cb.advanceLocked()
	state := cb.state
	cb.mu.Unlock()
	cb.emit(changed)
	return state
}

// Mark records a request outcome for the circuit breaker.
// Pass nil to mark success, or a non-nil error to record failure.
func (cb *CircuitBreaker) Mark(err error) {
	cb.mu.Lock()
	var changed *transition
	if err == nil {
		changed = cb.onSuccessLocked()
	} else {
		changed = cb.onFailureLocked()
	}
	cb.mu.Unlock()
	cb.emit(changed)
}

// advanceLocked moves an expired open breaker to half-open. Caller holds mu.
func (cb *CircuitBreaker) advanceLocked() *transition {
	if cb.state != StateOpen {
		return nil
	}
	if cb.config.Now().Sub(cb.lastFailureTime) < cb.config.Timeout {
		return nil
	}
	cb.trialInFlight = false
	cb.logger.Info("[%s] Circuit breaker transitioning to half-open (testing recovery)", cb.name)
	return cb.setStateLocked(StateHalfOpen)
}

func (cb *CircuitBreaker) onSuccessLocked() *transition {
	switch cb.state {
	case StateClosed:
		if cb.failureCount > 0 {
			cb.logger.Debug("[%s] Success, resetting failure count", cb.name)
			cb.failureCount = 0
		}
	case StateHalfOpen:
		cb.failureCount = 0
		cb.trialInFlight = false
		cb.logger.Info("[%s] Circuit breaker closed (service recovered)", cb.name)
		return cb.setStateLocked(StateClosed)
	case StateOpen:
		// A call admitted before the breaker opened finished late.
		cb.logger.Debug("[%s] Late success while circuit open", cb.name)
	}
	return nil
}

func (cb *CircuitBreaker) onFailureLocked() *transition {
	cb.lastFailureTime = cb.config.Now()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		cb.logger.Debug("[%s] Failure in closed state (%d/%d)",
			cb.name, cb.failureCount, cb.config.FailureThreshold)
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.logger.Warn("[%s] Circuit breaker opened (too many failures)", cb.name)
			return cb.setStateLocked(StateOpen)
		}
	case StateHalfOpen:
		cb.failureCount++
		cb.trialInFlight = false
		cb.logger.Warn("[%s] Circuit breaker reopened (trial failed)", cb.name)
		return cb.setStateLocked(StateOpen)
	case StateOpen:
		cb.failureCount++
		cb.logger.Debug("[%s] Failure while circuit open", cb.name)
	}
	return nil
}

func (cb *CircuitBreaker) setStateLocked(newState CircuitState) *transition {
	oldState := cb.state
	cb.state = newState
	cb.lastStateChange = cb.config.Now()
	return &transition{from: oldState, to: newState}
}

func (cb *CircuitBreaker) emit(t *transition) {
	if t == nil || cb.config.OnStateChange == nil {
		return
	}
	cb.config.OnStateChange(cb.name, t.from, t.to)
}

// State returns the current state of the circuit breaker without evaluating
// the open timeout.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Metrics returns current circuit breaker metrics
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerMetrics{
		Name:            cb.name,
		State:           cb.state,
		FailureCount:    cb.failureCount,
		Threshold:       cb.config.FailureThreshold,
		Timeout:         cb.config.Timeout,
		LastFailureTime: cb.lastFailureTime,
		LastStateChange: cb.lastStateChange,
	}
}

// Reset manually resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	oldState := cb.state
	cb.failureCount = 0
	cb.trialInFlight = false
	var changed *transition
	if oldState != StateClosed {
		changed = cb.setStateLocked(StateClosed)
	}
	cb.mu.Unlock()

	cb.logger.Info("[%s] Circuit breaker manually reset from %s to closed", cb.name, oldState)
	cb.emit(changed)
}

// CircuitBreakerMetrics contains circuit breaker statistics
type CircuitBreakerMetrics struct {
	Name            string        `json:"name"`
	State           CircuitState  `json:"-"`
	FailureCount    int           `json:"failure_count"`
	Threshold       int           `json:"threshold"`
	Timeout         time.Duration `json:"timeout"`
	LastFailureTime time.Time     `json:"last_failure_time"`
	LastStateChange time.Time     `json:"last_state_change"`
}

// CircuitBreakerManager manages multiple circuit breakers
type CircuitBreakerManager struct {
	breakers map[string]*CircuitBreaker
	config   CircuitBreakerConfig
	mu       sync.RWMutex
	logger   logging.Logger
}

// NewCircuitBreakerManager creates a new circuit breaker manager. Every
// breaker it creates shares config, including the state-change hook.
func NewCircuitBreakerManager(config CircuitBreakerConfig) *CircuitBreakerManager {
	return &CircuitBreakerManager{
		breakers: make(map[string]*CircuitBreaker),
		config:   config,
		logger:   logging.NewComponentLogger("circuit-breaker-manager"),
	}
}

// Get returns a circuit breaker for the given name (creates if not exists)
func (m *CircuitBreakerManager) Get(name string) *CircuitBreaker {
	m.mu.RLock()
	if breaker, ok := m.breakers[name]; ok {
		m.mu.RUnlock()
		return breaker
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if breaker, ok := m.breakers[name]; ok {
		return breaker
	}

	breaker := NewCircuitBreaker(name, m.config)
	m.breakers[name] = breaker
	m.logger.Debug("Created circuit breaker for: %s", name)
	return breaker
}

// Lookup returns the breaker for name without creating one.
func (m *CircuitBreakerManager) Lookup(name string) (*CircuitBreaker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	breaker, ok := m.breakers[name]
	return breaker, ok
}

// GetMetrics returns metrics for all circuit breakers, sorted by name
func (m *CircuitBreakerManager) GetMetrics() []CircuitBreakerMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	metrics := make([]CircuitBreakerMetrics, 0, len(m.breakers))
	for _, breaker := range m.breakers {
		metrics = append(metrics, breaker.Metrics())
	}
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].Name < metrics[j].Name })
	return metrics
}

// ResetAll resets all circuit breakers
func (m *CircuitBreakerManager) ResetAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, breaker := range m.breakers {
		breaker.Reset()
	}
	m.logger.Info("Reset all circuit breakers")
}
