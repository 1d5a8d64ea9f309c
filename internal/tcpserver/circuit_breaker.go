package tcpserver

import (
	"errors"
	"sync"
	"time"
)

// State 熔断器状态
type State int

const (
	StateClosed   State = iota // 正常状态，允许请求通过
	StateOpen                  // 熔断状态，拒绝所有请求
	StateHalfOpen              // 半开状态，允许少量请求试探
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen 熔断器打开，拒绝请求
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests 半开状态试探请求已满
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// CircuitBreaker 熔断器：连续失败达到阈值后打开，超时后半开试探，
// 半开期间试探成功过半则关闭，任一失败重新打开。
type CircuitBreaker struct {
	mu            sync.Mutex
	state         State
	failures      int // Closed: 连续失败数
	probes        int // HalfOpen: 已放行试探数
	probeOK       int // HalfOpen: 试探成功数
	totalFailures int64
	totalSuccess  int64
	lastFailTime  time.Time
	lastStateTime time.Time
	tripCount     int64

	threshold   int
	timeout     time.Duration
	halfOpenMax int

	onStateChange func(from, to State)
}

// NewCircuitBreaker 创建熔断器
func NewCircuitBreaker(threshold int, timeout time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CircuitBreaker{
		state:         StateClosed,
		threshold:     threshold,
		timeout:       timeout,
		halfOpenMax:   4,
		lastStateTime: time.Now(),
	}
}

// Call 执行函数，受熔断器保护
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.before(); err != nil {
		return err
	}
	err := fn()
	cb.after(err)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(cb.lastFailTime) <= cb.timeout {
			return ErrCircuitOpen
		}
		cb.transitionTo(StateHalfOpen)
		cb.probes, cb.probeOK = 0, 0
	}
	if cb.probes >= cb.halfOpenMax {
		return ErrTooManyRequests
	}
	cb.probes++
	return nil
}

func (cb *CircuitBreaker) after(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.totalFailures++
		cb.lastFailTime = time.Now()
		switch cb.state {
		case StateClosed:
			cb.failures++
			if cb.failures >= cb.threshold {
				cb.trip()
			}
		case StateHalfOpen:
			cb.trip()
		}
		return
	}

	cb.totalSuccess++
	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.probeOK++
		if cb.probeOK >= cb.halfOpenMax/2 {
			cb.transitionTo(StateClosed)
			cb.failures = 0
		}
	}
}

func (cb *CircuitBreaker) trip() {
	cb.transitionTo(StateOpen)
	cb.tripCount++
	cb.failures = 0
}

// transitionTo 状态转换，调用方持有锁
func (cb *CircuitBreaker) transitionTo(newState State) {
	if cb.state == newState {
		return
	}
	old := cb.state
	cb.state = newState
	cb.lastStateTime = time.Now()
	if cb.onStateChange != nil {
		go cb.onStateChange(old, newState)
	}
}

// State 获取当前状态
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats 获取统计信息
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return CircuitBreakerStats{
		State:           cb.state.String(),
		FailureTotal:    cb.totalFailures,
		SuccessTotal:    cb.totalSuccess,
		TripCount:       cb.tripCount,
		LastStateChange: cb.lastStateTime,
	}
}

// SetStateChangeCallback 设置状态变化回调（异步执行）
func (cb *CircuitBreaker) SetStateChangeCallback(fn func(from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// Reset 手动恢复为关闭状态
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionTo(StateClosed)
	cb.failures, cb.probes, cb.probeOK = 0, 0, 0
}

// CircuitBreakerStats 熔断器统计信息
type CircuitBreakerStats struct {
	State           string    `json:"state"`
	FailureTotal    int64     `json:"failure_total"`
	SuccessTotal    int64     `json:"success_total"`
	TripCount       int64     `json:"trip_count"`
	LastStateChange time.Time `json:"last_state_change"`
}
