package app

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cfgpkg "github.com/moyu3390/netty-game-server/internal/config"
	"github.com/moyu3390/netty-game-server/internal/dispatch"
	"github.com/moyu3390/netty-game-server/internal/game"
	"github.com/moyu3390/netty-game-server/internal/session"
)

type stubConn struct{ closed atomic.Bool }

func (c *stubConn) Write([]byte) error { return nil }
func (c *stubConn) Close() error       { c.closed.Store(true); return nil }
func (c *stubConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9000}
}

func TestGenerateServerID(t *testing.T) {
	assert.Equal(t, "node-1", GenerateServerID("node-1"))

	t.Setenv("SERVER_ID", "from-env")
	assert.Equal(t, "from-env", GenerateServerID(""))

	t.Setenv("SERVER_ID", "")
	id := GenerateServerID("")
	assert.Regexp(t, `^game-.+-[0-9a-f]{8}$`, id)
}

func TestNewSessionManager_Local(t *testing.T) {
	mgr, presence := NewSessionManager(cfgpkg.SessionConfig{HeartbeatTimeout: 45 * time.Second}, nil, "s1", zap.NewNop())
	require.NotNil(t, mgr)
	assert.Nil(t, presence)
	assert.Equal(t, 45*time.Second, mgr.Timeout())
}

func TestSessionSweeper_ClosesExpired(t *testing.T) {
	mgr := session.New(time.Minute)
	start := time.Now()
	stale, fresh := &stubConn{}, &stubConn{}
	s1 := mgr.Open(stale, start)
	s2 := mgr.Open(fresh, start)

	w := NewSessionSweeper(mgr, 0, zap.NewNop())
	assert.Equal(t, 30*time.Second, w.interval)

	w.now = func() time.Time { return start.Add(30 * time.Second) }
	assert.Zero(t, w.Sweep(context.Background()))

	s2.Touch(start.Add(90 * time.Second))
	w.now = func() time.Time { return start.Add(2 * time.Minute) }
	assert.Equal(t, 1, w.Sweep(context.Background()))
	assert.True(t, stale.closed.Load())
	assert.False(t, fresh.closed.Load())
	assert.Equal(t, 1, mgr.Count())
	_, ok := mgr.Get(s1.ID())
	assert.False(t, ok)
}

func TestSessionSweeper_StopsOnCancel(t *testing.T) {
	w := NewSessionSweeper(session.New(time.Minute), 10*time.Millisecond, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestNewCatalog(t *testing.T) {
	cat, err := NewCatalog("", zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "login", cat.Name(game.CmdLogin))

	path := filepath.Join(t.TempDir(), "commands.yaml")
	require.NoError(t, os.WriteFile(path, []byte("commands:\n  100: player_login\n  500: shop_buy\n"), 0o644))
	cat, err = NewCatalog(path, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "player_login", cat.Name(game.CmdLogin))
	assert.Equal(t, "shop_buy", cat.Name(500))
	assert.Equal(t, "echo", cat.Name(game.CmdEcho))

	_, err = NewCatalog(filepath.Join(t.TempDir(), "missing.yaml"), zap.NewNop())
	assert.Error(t, err)
}

func TestNewDispatcher(t *testing.T) {
	_, appm := NewMetrics()
	cat, err := NewCatalog("", zap.NewNop())
	require.NoError(t, err)
	mgr := session.New(time.Minute)

	d, err := NewDispatcher(cfgpkg.DispatchConfig{RatePerSec: 100, RateBurst: 100}, mgr, cat, appm, zap.NewNop())
	require.NoError(t, err)

	infos := CommandInfos(d.Registry, cat)
	require.Len(t, infos, 5)
	assert.EqualValues(t, game.CmdHeartbeat, infos[0].Cmd)
	assert.Equal(t, "heartbeat", infos[0].Name)
	assert.EqualValues(t, game.CmdHeartbeatResp, infos[0].ResponseCmd)
	assert.Zero(t, infos[4].ResponseCmd, "notice produces no response")

	s := mgr.Open(&stubConn{}, time.Now())
	ex := dispatch.NewExchange(&dispatch.Request{
		Header:  dispatch.Header{Cmd: game.CmdHeartbeat, Seq: 1},
		Payload: []byte(`{"client_time":1}`),
	}, s)
	ok := false
	d.Router.Dispatch(context.Background(), ex, dispatch.ListenerFuncs{
		Success: func(*dispatch.Exchange) { ok = true },
	})
	require.True(t, ok)
	assert.EqualValues(t, game.CmdHeartbeatResp, ex.Response.Cmd)
	assert.Equal(t, 1.0, testutil.ToFloat64(appm.HeartbeatTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(appm.DispatchTotal.WithLabelValues("heartbeat", string(dispatch.OutcomeOK))))
}
