package game

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/moyu3390/netty-game-server/internal/dispatch"
	"github.com/moyu3390/netty-game-server/internal/protocol/frame"
	"github.com/moyu3390/netty-game-server/internal/session"
)

const attrLimiter = "rate_limiter"

// reject 写入错误响应后否决本次调用
func reject(ctx context.Context, req *dispatch.Request, code int32, msg string) bool {
	if ex, ok := dispatch.ExchangeFrom(ctx); ok {
		ex.Response.Set(CmdError, frame.ErrorPayload{Code: code, Message: msg, Cmd: req.Cmd()})
	}
	return true
}

func sessionOf(ctx context.Context) (*session.Session, bool) {
	ex, ok := dispatch.ExchangeFrom(ctx)
	if !ok {
		return nil, false
	}
	s, ok := ex.Session.(*session.Session)
	return s, ok && s != nil
}

// LoginRequired 未登录会话只允许调用公开命令
type LoginRequired struct {
	public map[int32]bool
}

// NewLoginRequired public 为无需登录的命令码
func NewLoginRequired(public ...int32) *LoginRequired {
	l := &LoginRequired{public: make(map[int32]bool, len(public))}
	for _, cmd := range public {
		l.public[cmd] = true
	}
	return l
}

// Intercept 实现 dispatch.Interceptor
func (l *LoginRequired) Intercept(ctx context.Context, req *dispatch.Request, _ *dispatch.HandlerMethod, _ []any) bool {
	if l.public[req.Cmd()] {
		return false
	}
	s, ok := sessionOf(ctx)
	if ok && s.LoggedIn() {
		return false
	}
	return reject(ctx, req, CodeNotLoggedIn, "login required")
}

// RateLimit 单会话请求限速（令牌桶），无会话的请求不受限
type RateLimit struct {
	limit rate.Limit
	burst int
}

// NewRateLimit ratePerSec<=0 时不限速
func NewRateLimit(ratePerSec, burst int) *RateLimit {
	if burst <= 0 {
		burst = ratePerSec * 2
	}
	return &RateLimit{limit: rate.Limit(ratePerSec), burst: burst}
}

// Intercept 实现 dispatch.Interceptor
func (r *RateLimit) Intercept(ctx context.Context, req *dispatch.Request, _ *dispatch.HandlerMethod, _ []any) bool {
	if r.limit <= 0 {
		return false
	}
	s, ok := sessionOf(ctx)
	if !ok {
		return false
	}
	l := s.LoadOrStore(attrLimiter, func() any { return rate.NewLimiter(r.limit, r.burst) }).(*rate.Limiter)
	if l.Allow() {
		return false
	}
	return reject(ctx, req, CodeRateLimited, "too many requests")
}
