package session

import (
	"context"
	"time"
)

// Record 玩家在线记录
type Record struct {
	PlayerID  string    `json:"player_id"`
	SessionID string    `json:"session_id"`
	ServerID  string    `json:"server_id"`
	Since     time.Time `json:"since"`
	LastSeen  time.Time `json:"last_seen"`
}

// Presence 跨实例玩家在线登记，支持内存（nop）与 Redis 两种实现
type Presence interface {
	// Online 登记玩家在本实例上线
	Online(ctx context.Context, playerID, sessionID string) error
	// Offline 撤销登记（仅当登记的会话仍为 sessionID 时）
	Offline(ctx context.Context, playerID, sessionID string) error
	// Touch 刷新在线记录有效期
	Touch(ctx context.Context, playerID string, t time.Time) error
	// Locate 查询玩家所在实例
	Locate(ctx context.Context, playerID string) (*Record, bool, error)
}

// NopPresence 单实例部署时使用
type NopPresence struct{}

func (NopPresence) Online(context.Context, string, string) error  { return nil }
func (NopPresence) Offline(context.Context, string, string) error { return nil }
func (NopPresence) Touch(context.Context, string, time.Time) error { return nil }
func (NopPresence) Locate(context.Context, string) (*Record, bool, error) {
	return nil, false, nil
}
