package app

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	cfgpkg "github.com/moyu3390/netty-game-server/internal/config"
	"github.com/moyu3390/netty-game-server/internal/session"
)

// NewSessionManager 构造会话管理器。
// Redis 可用时玩家在线信息同步登记到 Redis（跨实例定位），否则仅在本进程内维护。
func NewSessionManager(
	cfg cfgpkg.SessionConfig,
	redisClient *redis.Client,
	serverID string,
	logger *zap.Logger,
) (*session.Manager, *session.RedisPresence) {
	opts := []session.Option{session.WithLogger(logger)}

	var presence *session.RedisPresence
	if redisClient != nil {
		presence = session.NewRedisPresence(redisClient, serverID, cfg.HeartbeatTimeout)
		opts = append(opts, session.WithPresence(presence))
		logger.Info("using redis player presence",
			zap.String("server_id", serverID),
			zap.Duration("timeout", cfg.HeartbeatTimeout))
	} else {
		logger.Info("using local player presence",
			zap.Duration("timeout", cfg.HeartbeatTimeout))
	}
	return session.New(cfg.HeartbeatTimeout, opts...), presence
}

// SessionSweeper 定期关闭心跳超时的会话
type SessionSweeper struct {
	sessions *session.Manager
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	swept int64
}

// NewSessionSweeper 创建会话清理器，interval<=0 时取心跳超时的一半
func NewSessionSweeper(sessions *session.Manager, interval time.Duration, logger *zap.Logger) *SessionSweeper {
	if interval <= 0 {
		interval = sessions.Timeout() / 2
	}
	return &SessionSweeper{sessions: sessions, interval: interval, logger: logger, now: time.Now}
}

// Start 阻塞运行直至 ctx 取消
func (w *SessionSweeper) Start(ctx context.Context) {
	w.logger.Info("session sweeper started", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("session sweeper stopped", zap.Int64("total_swept", w.swept))
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep 执行一轮清理，返回关闭的会话数
func (w *SessionSweeper) Sweep(ctx context.Context) int {
	expired := w.sessions.Expired(w.now())
	for _, s := range expired {
		w.logger.Debug("session heartbeat timeout",
			zap.String("session", s.ID()),
			zap.String("remote_addr", s.RemoteAddr()),
			zap.Time("last_seen", s.LastSeen()))
		_ = s.Close()
		w.sessions.Close(ctx, s)
	}
	if n := len(expired); n > 0 {
		w.swept += int64(n)
		w.logger.Info("expired sessions closed", zap.Int("count", n), zap.Int("remaining", w.sessions.Count()))
	}
	return len(expired)
}
