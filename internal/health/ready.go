package health

import "sync/atomic"

// Readiness 启动阶段就绪标记（Redis、TCP）
type Readiness struct {
	redisReady atomic.Bool
	tcpReady   atomic.Bool
	draining   atomic.Bool
}

// New 创建就绪标记；未启用 Redis 时调用方应直接 SetRedisReady(true)
func New() *Readiness { return &Readiness{} }

func (r *Readiness) SetRedisReady(v bool) { r.redisReady.Store(v) }
func (r *Readiness) SetTCPReady(v bool)   { r.tcpReady.Store(v) }

// Drain 进入关闭流程，此后 Ready 恒为 false
func (r *Readiness) Drain() { r.draining.Store(true) }

// Ready 总体就绪：各子系统均为 true 且未在关闭
func (r *Readiness) Ready() bool {
	return !r.draining.Load() && r.redisReady.Load() && r.tcpReady.Load()
}
