package health

import (
	"context"
	"fmt"
	"time"

	"github.com/moyu3390/netty-game-server/internal/tcpserver"
)

// TCPStats TCP 服务统计来源，*tcpserver.Server 实现该接口
type TCPStats interface {
	LimiterStats() tcpserver.LimiterStats
	AcceptRateStats() tcpserver.AcceptRateStats
	RejectStats() map[string]int64
	BreakerStats() tcpserver.CircuitBreakerStats
	BreakerState() tcpserver.State
	PoolStats() tcpserver.PoolStats
}

// TCPChecker TCP 网关健康检查器：连接占用率与熔断器状态
type TCPChecker struct {
	server TCPStats
}

// NewTCPChecker 创建 TCP 健康检查器
func NewTCPChecker(server TCPStats) *TCPChecker {
	return &TCPChecker{server: server}
}

func (c *TCPChecker) Name() string {
	return "tcp"
}

// Check 占用率超过 80% 降级，超过 95% 不健康；熔断器非关闭状态降级
func (c *TCPChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	ls := c.server.LimiterStats()
	bs := c.server.BreakerStats()
	ps := c.server.PoolStats()

	status := StatusHealthy
	message := "ok"

	if ls.Utilization > 0.8 {
		status = StatusDegraded
		message = "high connection usage"
	}
	if state := c.server.BreakerState(); state != tcpserver.StateClosed && status == StatusHealthy {
		status = StatusDegraded
		message = "circuit breaker " + state.String()
	}
	if ls.Utilization > 0.95 {
		status = StatusUnhealthy
		message = "connection limit near exhausted"
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: map[string]any{
			"active_connections":    ls.ActiveConnections,
			"max_connections":       ls.MaxConnections,
			"utilization":           fmt.Sprintf("%.1f%%", ls.Utilization*100),
			"rejected_total":        ls.RejectedTotal,
			"rate_rejected_total":   c.server.AcceptRateStats().Rejected,
			"rejected_by_reason":    c.server.RejectStats(),
			"circuit_breaker_state": bs.State,
			"circuit_breaker_trips": bs.TripCount,
			"pool_running":          ps.Running,
			"pool_capacity":         ps.Capacity,
		},
		Latency: time.Since(start),
	}
}
