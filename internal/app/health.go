package app

import (
	"github.com/redis/go-redis/v9"

	"github.com/moyu3390/netty-game-server/internal/health"
	"github.com/moyu3390/netty-game-server/internal/session"
)

// NewHealthAggregator 创建健康检查聚合器，初始只含会话概况
func NewHealthAggregator(sessions *session.Manager) *health.Aggregator {
	return health.NewAggregator(health.NewSessionChecker(sessions))
}

// AddTCPChecker TCP 启动后接入检查
func AddTCPChecker(aggregator *health.Aggregator, stats health.TCPStats) {
	aggregator.AddChecker(health.NewTCPChecker(stats))
}

// AddRedisChecker Redis 可用时接入检查
func AddRedisChecker(aggregator *health.Aggregator, client *redis.Client) {
	if client != nil {
		aggregator.AddChecker(health.NewRedisChecker(client))
	}
}
