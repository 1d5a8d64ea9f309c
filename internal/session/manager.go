package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrSessionClosed 会话已关闭
var ErrSessionClosed = errors.New("session closed")

// Manager 会话管理：连接会话表、玩家绑定、心跳超时判断
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session // sessionID -> session
	players  map[string]*Session // playerID -> session
	timeout  time.Duration

	presence Presence
	logger   *zap.Logger
}

// Option Manager 选项
type Option func(*Manager)

// WithPresence 设置跨实例在线登记
func WithPresence(p Presence) Option {
	return func(m *Manager) {
		if p != nil {
			m.presence = p
		}
	}
}

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// New 创建会话管理器，timeout<=0 时默认 90s
func New(timeout time.Duration, opts ...Option) *Manager {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	m := &Manager{
		sessions: make(map[string]*Session),
		players:  make(map[string]*Session),
		timeout:  timeout,
		presence: NopPresence{},
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Timeout 心跳超时
func (m *Manager) Timeout() time.Duration { return m.timeout }

// Open 为新连接创建会话
func (m *Manager) Open(conn Conn, now time.Time) *Session {
	s := newSession(conn, now)
	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	return s
}

// Close 移除会话并撤销玩家绑定，重复调用无副作用
func (m *Manager) Close(ctx context.Context, s *Session) {
	m.mu.Lock()
	if _, ok := m.sessions[s.id]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, s.id)
	playerID, bound := s.PlayerID()
	if bound && m.players[playerID] == s {
		delete(m.players, playerID)
	} else {
		bound = false
	}
	m.mu.Unlock()

	if bound {
		if err := m.presence.Offline(ctx, playerID, s.id); err != nil {
			m.logger.Warn("presence offline failed", zap.String("player", playerID), zap.Error(err))
		}
	}
}

// Get 按会话ID查找
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	return s, ok
}

// BindPlayer 绑定玩家到会话。玩家已在其他会话登录时返回被顶替的旧会话（调用方负责关闭）。
func (m *Manager) BindPlayer(ctx context.Context, s *Session, playerID string) (*Session, error) {
	m.mu.Lock()
	if _, ok := m.sessions[s.id]; !ok {
		m.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if prev, ok := s.PlayerID(); ok && prev != playerID && m.players[prev] == s {
		delete(m.players, prev)
	}
	old := m.players[playerID]
	if old == s {
		old = nil
	}
	if old != nil {
		old.setPlayer("")
	}
	m.players[playerID] = s
	s.setPlayer(playerID)
	m.mu.Unlock()

	if err := m.presence.Online(ctx, playerID, s.id); err != nil {
		m.logger.Warn("presence online failed", zap.String("player", playerID), zap.Error(err))
	}
	return old, nil
}

// ByPlayer 按玩家ID查找本实例上的会话
func (m *Manager) ByPlayer(playerID string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.players[playerID]
	m.mu.RUnlock()
	return s, ok
}

// OnHeartbeat 更新会话活跃时间，已登录时刷新在线登记
func (m *Manager) OnHeartbeat(ctx context.Context, s *Session, t time.Time) {
	s.Touch(t)
	if playerID, ok := s.PlayerID(); ok {
		if err := m.presence.Touch(ctx, playerID, t); err != nil {
			m.logger.Debug("presence touch failed", zap.String("player", playerID), zap.Error(err))
		}
	}
}

// IsOnline 判断会话是否在心跳超时内
func (m *Manager) IsOnline(s *Session, now time.Time) bool {
	return now.Sub(s.LastSeen()) <= m.timeout
}

// Count 会话总数
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// PlayerCount 已登录玩家数
func (m *Manager) PlayerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.players)
}

// OnlineCount 返回心跳未超时的会话数量
func (m *Manager) OnlineCount(now time.Time) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if now.Sub(s.LastSeen()) <= m.timeout {
			count++
		}
	}
	return count
}

// Expired 返回心跳已超时的会话
func (m *Manager) Expired(now time.Time) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Session
	for _, s := range m.sessions {
		if now.Sub(s.LastSeen()) > m.timeout {
			out = append(out, s)
		}
	}
	return out
}
