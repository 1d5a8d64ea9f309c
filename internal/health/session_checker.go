package health

import (
	"context"
	"time"
)

// SessionStats 会话统计来源，*session.Manager 实现该接口
type SessionStats interface {
	Count() int
	PlayerCount() int
	OnlineCount(now time.Time) int
}

// SessionChecker 会话概况，仅上报数据，始终健康
type SessionChecker struct {
	sessions SessionStats
}

func NewSessionChecker(s SessionStats) *SessionChecker { return &SessionChecker{sessions: s} }

func (c *SessionChecker) Name() string { return "sessions" }

func (c *SessionChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	return CheckResult{
		Status: StatusHealthy,
		Details: map[string]any{
			"sessions": c.sessions.Count(),
			"players":  c.sessions.PlayerCount(),
			"online":   c.sessions.OnlineCount(start),
		},
		Latency: time.Since(start),
	}
}
