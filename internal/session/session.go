package session

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Conn 会话所依赖的连接能力（由 tcpserver 提供）
type Conn interface {
	Write(p []byte) error
	Close() error
	RemoteAddr() net.Addr
}

// Session 单条连接上的游戏会话
type Session struct {
	id        string
	conn      Conn
	createdAt time.Time
	lastSeen  atomic.Int64 // unix nano

	mu       sync.RWMutex
	playerID string
	attrs    map[string]any
}

func newSession(conn Conn, now time.Time) *Session {
	s := &Session{
		id:        uuid.New().String(),
		conn:      conn,
		createdAt: now,
		attrs:     make(map[string]any),
	}
	s.lastSeen.Store(now.UnixNano())
	return s
}

// ID 会话ID
func (s *Session) ID() string { return s.id }

// RemoteAddr 对端地址
func (s *Session) RemoteAddr() string {
	if s.conn == nil || s.conn.RemoteAddr() == nil {
		return ""
	}
	return s.conn.RemoteAddr().String()
}

// CreatedAt 建立时间
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// PlayerID 已绑定的玩家ID
func (s *Session) PlayerID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playerID, s.playerID != ""
}

// LoggedIn 是否已登录
func (s *Session) LoggedIn() bool {
	_, ok := s.PlayerID()
	return ok
}

func (s *Session) setPlayer(playerID string) {
	s.mu.Lock()
	s.playerID = playerID
	s.mu.Unlock()
}

// Touch 记录活跃时间
func (s *Session) Touch(t time.Time) { s.lastSeen.Store(t.UnixNano()) }

// LastSeen 最近活跃时间
func (s *Session) LastSeen() time.Time { return time.Unix(0, s.lastSeen.Load()) }

// Get 读取会话属性
func (s *Session) Get(key string) (any, bool) {
	s.mu.RLock()
	v, ok := s.attrs[key]
	s.mu.RUnlock()
	return v, ok
}

// Set 写入会话属性
func (s *Session) Set(key string, v any) {
	s.mu.Lock()
	s.attrs[key] = v
	s.mu.Unlock()
}

// LoadOrStore 属性不存在时用 create 创建，返回最终值
func (s *Session) LoadOrStore(key string, create func() any) any {
	s.mu.RLock()
	v, ok := s.attrs[key]
	s.mu.RUnlock()
	if ok {
		return v
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.attrs[key]; ok {
		return v
	}
	v = create()
	s.attrs[key] = v
	return v
}

// Write 向客户端写出已编码的帧
func (s *Session) Write(p []byte) error {
	if s.conn == nil {
		return net.ErrClosed
	}
	return s.conn.Write(p)
}

// Close 关闭底层连接
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
