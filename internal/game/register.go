package game

import (
	"go.uber.org/zap"

	"github.com/moyu3390/netty-game-server/internal/dispatch"
	"github.com/moyu3390/netty-game-server/internal/session"
)

// Deps 游戏模块依赖
type Deps struct {
	Sessions      *session.Manager
	Authenticator Authenticator
	Logger        *zap.Logger
	RatePerSec    int
	RateBurst     int
	OnHeartbeat   func()
}

// Register 注册命令映射、拦截器与异常通知组件
func Register(b *dispatch.Builder, d Deps) *Handlers {
	h := NewHandlers(d.Sessions, d.Authenticator, d.Logger)
	h.OnHeartbeat = d.OnHeartbeat

	b.Handle(CmdHeartbeat, CmdHeartbeatResp, h.Heartbeat).
		Handle(CmdLogin, CmdLoginResp, h.Login).
		Handle(CmdEcho, CmdEchoResp, h.Echo).
		Handle(CmdProfile, CmdProfileResp, h.Profile).
		Handle(CmdNotice, 0, h.Notice).
		Intercept(
			NewRateLimit(d.RatePerSec, d.RateBurst),
			NewLoginRequired(CmdHeartbeat, CmdLogin, CmdEcho),
		).
		Advise(NewAdvice(d.Logger))
	return h
}
