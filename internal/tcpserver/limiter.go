package tcpserver

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// ErrConnLimit 连接数已达上限
var ErrConnLimit = errors.New("connection limit exceeded")

// ConnectionLimiter 连接数限流器（基于信号量 channel）
type ConnectionLimiter struct {
	sem           chan struct{}
	timeout       time.Duration
	maxConn       int
	activeCount   atomic.Int64
	rejectedCount atomic.Int64
}

// NewConnectionLimiter 创建连接限流器
// maxConn: 最大并发连接数
// timeout: 获取连接许可的超时时间
func NewConnectionLimiter(maxConn int, timeout time.Duration) *ConnectionLimiter {
	if maxConn <= 0 {
		maxConn = 10000
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	return &ConnectionLimiter{
		sem:     make(chan struct{}, maxConn),
		timeout: timeout,
		maxConn: maxConn,
	}
}

// Acquire 获取连接许可，超过 timeout 或 ctx 结束时返回 ErrConnLimit
func (l *ConnectionLimiter) Acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		l.activeCount.Add(1)
		return nil
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	select {
	case l.sem <- struct{}{}:
		l.activeCount.Add(1)
		return nil
	case <-ctx.Done():
		l.rejectedCount.Add(1)
		return fmt.Errorf("%w: max=%d", ErrConnLimit, l.maxConn)
	}
}

// TryAcquire 非阻塞获取连接许可
func (l *ConnectionLimiter) TryAcquire() bool {
	select {
	case l.sem <- struct{}{}:
		l.activeCount.Add(1)
		return true
	default:
		l.rejectedCount.Add(1)
		return false
	}
}

// Release 释放连接许可，未持有许可时为空操作
func (l *ConnectionLimiter) Release() {
	select {
	case <-l.sem:
		l.activeCount.Add(-1)
	default:
	}
}

// Current 当前活跃连接数
func (l *ConnectionLimiter) Current() int { return int(l.activeCount.Load()) }

// Available 可用连接数
func (l *ConnectionLimiter) Available() int { return l.maxConn - l.Current() }

// MaxConnections 最大连接数
func (l *ConnectionLimiter) MaxConnections() int { return l.maxConn }

// RejectedCount 被拒绝的连接数（累计）
func (l *ConnectionLimiter) RejectedCount() int64 { return l.rejectedCount.Load() }

// Stats 获取统计信息
func (l *ConnectionLimiter) Stats() LimiterStats {
	return LimiterStats{
		MaxConnections:    l.maxConn,
		ActiveConnections: l.Current(),
		RejectedTotal:     l.RejectedCount(),
		Utilization:       float64(l.Current()) / float64(l.maxConn),
	}
}

// LimiterStats 限流器统计信息
type LimiterStats struct {
	MaxConnections    int     `json:"max_connections"`
	ActiveConnections int     `json:"active_connections"`
	RejectedTotal     int64   `json:"rejected_total"`
	Utilization       float64 `json:"utilization"` // 0.0 - 1.0
}
