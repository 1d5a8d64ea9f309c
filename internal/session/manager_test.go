package session

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	writes [][]byte
	closed bool
}

func (c *fakeConn) Write(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return net.ErrClosed
	}
	c.writes = append(c.writes, append([]byte(nil), p...))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9000}
}

// recordingPresence 记录调用的 Presence
type recordingPresence struct {
	NopPresence
	mu      sync.Mutex
	online  []string
	offline []string
	touched []string
	fail    bool
}

func (p *recordingPresence) Online(_ context.Context, playerID, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online = append(p.online, playerID)
	if p.fail {
		return errors.New("presence down")
	}
	return nil
}

func (p *recordingPresence) Offline(_ context.Context, playerID, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offline = append(p.offline, playerID)
	return nil
}

func (p *recordingPresence) Touch(_ context.Context, playerID string, _ time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.touched = append(p.touched, playerID)
	return nil
}

func TestManager_OpenClose(t *testing.T) {
	m := New(time.Minute)
	now := time.Now()
	conn := &fakeConn{}
	s := m.Open(conn, now)

	require.NotEmpty(t, s.ID())
	assert.Equal(t, "127.0.0.1:9000", s.RemoteAddr())
	assert.Equal(t, 1, m.Count())
	got, ok := m.Get(s.ID())
	require.True(t, ok)
	assert.Same(t, s, got)

	require.NoError(t, s.Write([]byte("hi")))
	assert.Equal(t, [][]byte{[]byte("hi")}, conn.writes)

	m.Close(context.Background(), s)
	m.Close(context.Background(), s)
	assert.Zero(t, m.Count())
	_, ok = m.Get(s.ID())
	assert.False(t, ok)
}

func TestManager_BindPlayer(t *testing.T) {
	p := &recordingPresence{}
	m := New(time.Minute, WithPresence(p))
	ctx := context.Background()
	s := m.Open(&fakeConn{}, time.Now())

	assert.False(t, s.LoggedIn())
	old, err := m.BindPlayer(ctx, s, "p1")
	require.NoError(t, err)
	assert.Nil(t, old)
	assert.True(t, s.LoggedIn())

	got, ok := m.ByPlayer("p1")
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Equal(t, 1, m.PlayerCount())
	assert.Equal(t, []string{"p1"}, p.online)

	// 重新绑定为另一玩家，旧绑定撤销
	_, err = m.BindPlayer(ctx, s, "p2")
	require.NoError(t, err)
	_, ok = m.ByPlayer("p1")
	assert.False(t, ok)
	id, _ := s.PlayerID()
	assert.Equal(t, "p2", id)

	m.Close(ctx, s)
	_, ok = m.ByPlayer("p2")
	assert.False(t, ok)
	assert.Equal(t, []string{"p2"}, p.offline)
}

func TestManager_BindPlayer_ReplacesOldSession(t *testing.T) {
	p := &recordingPresence{}
	m := New(time.Minute, WithPresence(p))
	ctx := context.Background()
	first := m.Open(&fakeConn{}, time.Now())
	second := m.Open(&fakeConn{}, time.Now())

	_, err := m.BindPlayer(ctx, first, "p1")
	require.NoError(t, err)
	old, err := m.BindPlayer(ctx, second, "p1")
	require.NoError(t, err)
	assert.Same(t, first, old)
	assert.False(t, first.LoggedIn())

	// 关闭被顶替的会话不影响新会话的绑定
	m.Close(ctx, first)
	got, ok := m.ByPlayer("p1")
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Empty(t, p.offline)
}

func TestManager_BindPlayer_ClosedSession(t *testing.T) {
	m := New(time.Minute)
	s := m.Open(&fakeConn{}, time.Now())
	m.Close(context.Background(), s)

	_, err := m.BindPlayer(context.Background(), s, "p1")
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestManager_PresenceFailureIsNotFatal(t *testing.T) {
	m := New(time.Minute, WithPresence(&recordingPresence{fail: true}))
	s := m.Open(&fakeConn{}, time.Now())
	_, err := m.BindPlayer(context.Background(), s, "p1")
	assert.NoError(t, err)
}

func TestManager_HeartbeatTimeout(t *testing.T) {
	p := &recordingPresence{}
	m := New(500*time.Millisecond, WithPresence(p))
	ts := time.Now()
	a := m.Open(&fakeConn{}, ts)
	b := m.Open(&fakeConn{}, ts)
	_, err := m.BindPlayer(context.Background(), b, "p1")
	require.NoError(t, err)

	m.OnHeartbeat(context.Background(), b, ts.Add(400*time.Millisecond))
	assert.Equal(t, []string{"p1"}, p.touched)

	now := ts.Add(600 * time.Millisecond)
	assert.False(t, m.IsOnline(a, now))
	assert.True(t, m.IsOnline(b, now))
	assert.Equal(t, 1, m.OnlineCount(now))

	expired := m.Expired(now)
	require.Len(t, expired, 1)
	assert.Same(t, a, expired[0])
}

func TestManager_DefaultTimeout(t *testing.T) {
	assert.Equal(t, 90*time.Second, New(0).Timeout())
}

func TestSession_Attributes(t *testing.T) {
	s := newSession(&fakeConn{}, time.Now())

	_, ok := s.Get("k")
	assert.False(t, ok)
	s.Set("k", 1)
	v, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	var wg sync.WaitGroup
	created := 0
	var mu sync.Mutex
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.LoadOrStore("limiter", func() any {
				mu.Lock()
				created++
				mu.Unlock()
				return &struct{}{}
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
}

func TestSession_ClosedConn(t *testing.T) {
	conn := &fakeConn{}
	s := newSession(conn, time.Now())
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Write([]byte("x")), net.ErrClosed)
}
