package tcpserver

import (
	"golang.org/x/time/rate"
)

// AcceptLimiter 新建连接令牌桶，perSec<=0 时不限速。
// 拒绝计数统一由 Server 按原因记录，这里不重复计数。
type AcceptLimiter struct {
	lim *rate.Limiter
}

// NewAcceptLimiter burst<=0 时取速率的2倍
func NewAcceptLimiter(perSec, burst int) *AcceptLimiter {
	if perSec <= 0 {
		return &AcceptLimiter{lim: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst <= 0 {
		burst = perSec * 2
	}
	return &AcceptLimiter{lim: rate.NewLimiter(rate.Limit(perSec), burst)}
}

// Allow 取一个令牌，不阻塞
func (l *AcceptLimiter) Allow() bool { return l.lim.Allow() }

// Unlimited 是否未限速
func (l *AcceptLimiter) Unlimited() bool { return l.lim.Limit() == rate.Inf }

// AcceptRateStats accept 限速快照
type AcceptRateStats struct {
	PerSecond float64 `json:"per_second"` // 0 表示不限速
	Burst     int     `json:"burst"`
	Tokens    float64 `json:"tokens"`
	Rejected  int64   `json:"rejected_total"`
}

func (l *AcceptLimiter) snapshot(rejected int64) AcceptRateStats {
	st := AcceptRateStats{Rejected: rejected}
	if l.Unlimited() {
		return st
	}
	st.PerSecond = float64(l.lim.Limit())
	st.Burst = l.lim.Burst()
	st.Tokens = l.lim.Tokens()
	return st
}
