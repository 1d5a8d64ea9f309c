package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis Key设计
const (
	// presence:player:{playerID} -> Record JSON
	keyPlayerPrefix = "presence:player:"

	// presence:server:{serverID}:players -> Set[playerID]
	keyServerPlayersPrefix = "presence:server:"
)

// RedisPresence Redis版本的在线登记，支持多实例部署时定位玩家
type RedisPresence struct {
	client   *redis.Client
	serverID string
	ttl      time.Duration
}

// NewRedisPresence 创建 Redis 在线登记；记录有效期为心跳超时的2倍
func NewRedisPresence(client *redis.Client, serverID string, heartbeatTimeout time.Duration) *RedisPresence {
	if heartbeatTimeout <= 0 {
		heartbeatTimeout = 90 * time.Second
	}
	if serverID == "" {
		serverID = uuid.New().String()
	}
	return &RedisPresence{client: client, serverID: serverID, ttl: heartbeatTimeout * 2}
}

// ServerID 当前实例ID
func (p *RedisPresence) ServerID() string { return p.serverID }

// Online 实现 Presence
func (p *RedisPresence) Online(ctx context.Context, playerID, sessionID string) error {
	now := time.Now()
	rec := &Record{
		PlayerID:  playerID,
		SessionID: sessionID,
		ServerID:  p.serverID,
		Since:     now,
		LastSeen:  now,
	}
	if err := p.setRecord(ctx, rec); err != nil {
		return err
	}
	return p.client.SAdd(ctx, p.serverPlayersKey(), playerID).Err()
}

// Offline 实现 Presence：记录已被其他会话覆盖时不删除
func (p *RedisPresence) Offline(ctx context.Context, playerID, sessionID string) error {
	rec, ok, err := p.Locate(ctx, playerID)
	if err != nil {
		return err
	}
	if ok && rec.SessionID != sessionID {
		return nil
	}
	pipe := p.client.TxPipeline()
	pipe.Del(ctx, keyPlayerPrefix+playerID)
	pipe.SRem(ctx, p.serverPlayersKey(), playerID)
	_, err = pipe.Exec(ctx)
	return err
}

// Touch 实现 Presence
func (p *RedisPresence) Touch(ctx context.Context, playerID string, t time.Time) error {
	rec, ok, err := p.Locate(ctx, playerID)
	if err != nil || !ok {
		return err
	}
	rec.LastSeen = t
	return p.setRecord(ctx, rec)
}

// Locate 实现 Presence
func (p *RedisPresence) Locate(ctx context.Context, playerID string) (*Record, bool, error) {
	val, err := p.client.Get(ctx, keyPlayerPrefix+playerID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get presence: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, false, fmt.Errorf("decode presence: %w", err)
	}
	return &rec, true, nil
}

// LocalCount 本实例登记的玩家数
func (p *RedisPresence) LocalCount(ctx context.Context) (int64, error) {
	return p.client.SCard(ctx, p.serverPlayersKey()).Result()
}

// Cleanup 清理本实例的所有在线记录（用于优雅关闭）
func (p *RedisPresence) Cleanup(ctx context.Context) error {
	players, err := p.client.SMembers(ctx, p.serverPlayersKey()).Result()
	if err != nil {
		return err
	}
	for _, playerID := range players {
		rec, ok, err := p.Locate(ctx, playerID)
		if err != nil || !ok || rec.ServerID != p.serverID {
			continue
		}
		p.client.Del(ctx, keyPlayerPrefix+playerID)
	}
	return p.client.Del(ctx, p.serverPlayersKey()).Err()
}

func (p *RedisPresence) setRecord(ctx context.Context, rec *Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return p.client.Set(ctx, keyPlayerPrefix+rec.PlayerID, b, p.ttl).Err()
}

func (p *RedisPresence) serverPlayersKey() string {
	return fmt.Sprintf("%s%s:players", keyServerPlayersPrefix, p.serverID)
}
