package game

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/moyu3390/netty-game-server/internal/protocol/frame"
	"github.com/moyu3390/netty-game-server/internal/session"
)

const (
	attrLoginAt    = "login_at"
	attrLastNotice = "last_notice"
	maxEchoLen     = 1024
)

// Authenticator 校验登录凭证
type Authenticator interface {
	Authenticate(ctx context.Context, playerID, token string) error
}

// AuthenticatorFunc 函数式 Authenticator
type AuthenticatorFunc func(ctx context.Context, playerID, token string) error

func (f AuthenticatorFunc) Authenticate(ctx context.Context, playerID, token string) error {
	return f(ctx, playerID, token)
}

// RequireToken 默认校验：凭证非空
var RequireToken = AuthenticatorFunc(func(_ context.Context, _, token string) error {
	if token == "" {
		return NewError(CodeAuthFailed, "empty token")
	}
	return nil
})

// Handlers 游戏命令处理器集合
type Handlers struct {
	sessions *session.Manager
	auth     Authenticator
	codec    frame.JSONCodec
	logger   *zap.Logger
	now      func() time.Time

	// OnHeartbeat 心跳回调（计数用），可为空
	OnHeartbeat func()
}

// NewHandlers 创建处理器集合，auth 为空时使用 RequireToken
func NewHandlers(sessions *session.Manager, auth Authenticator, logger *zap.Logger) *Handlers {
	if auth == nil {
		auth = RequireToken
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{sessions: sessions, auth: auth, logger: logger, now: time.Now}
}

// Heartbeat 心跳：刷新会话活跃时间
func (h *Handlers) Heartbeat(ctx context.Context, s *session.Session, req *HeartbeatReq) *HeartbeatResp {
	now := h.now()
	h.sessions.OnHeartbeat(ctx, s, now)
	if h.OnHeartbeat != nil {
		h.OnHeartbeat()
	}
	return &HeartbeatResp{ClientTime: req.ClientTime, ServerTime: now.UnixMilli()}
}

// Login 登录：校验凭证并绑定玩家，已在其他连接登录的旧会话被踢下线
func (h *Handlers) Login(ctx context.Context, s *session.Session, req *LoginReq) (*LoginResp, error) {
	playerID := strings.TrimSpace(req.PlayerID)
	if playerID == "" {
		return nil, NewError(CodeInvalidArgument, "player_id is required")
	}
	if err := h.auth.Authenticate(ctx, playerID, req.Token); err != nil {
		var coded CodedError
		if errors.As(err, &coded) {
			return nil, err
		}
		return nil, &busyError{cause: err}
	}

	old, err := h.sessions.BindPlayer(ctx, s, playerID)
	if err != nil {
		return nil, err
	}
	s.Set(attrLoginAt, h.now())
	if old != nil {
		h.kick(old, "logged in elsewhere")
	}
	h.logger.Info("player logged in",
		zap.String("player", playerID),
		zap.String("session", s.ID()),
		zap.Bool("replaced", old != nil))
	return &LoginResp{PlayerID: playerID, SessionID: s.ID(), Replaced: old != nil}, nil
}

// Echo 回显
func (h *Handlers) Echo(req EchoReq) (*EchoResp, error) {
	if len(req.Text) > maxEchoLen {
		return nil, NewError(CodeInvalidArgument, "text too long: %d", len(req.Text))
	}
	return &EchoResp{Text: req.Text}, nil
}

// Profile 返回当前玩家信息（需登录）
func (h *Handlers) Profile(s *session.Session) (*ProfileResp, error) {
	playerID, ok := s.PlayerID()
	if !ok {
		return nil, ErrNotLoggedIn
	}
	resp := &ProfileResp{PlayerID: playerID, SessionID: s.ID(), RemoteAddr: s.RemoteAddr()}
	if v, ok := s.Get(attrLoginAt); ok {
		resp.LoginAt, _ = v.(time.Time)
	}
	return resp, nil
}

// Notice 客户端上报通知，无响应
func (h *Handlers) Notice(s *session.Session, req *NoticeReq) {
	s.Set(attrLastNotice, req.Text)
	h.logger.Debug("client notice", zap.String("session", s.ID()), zap.String("text", req.Text))
}

func (h *Handlers) kick(old *session.Session, reason string) {
	payload, err := h.codec.Marshal(&KickedPush{Reason: reason})
	if err == nil {
		_ = old.Write(frame.Build(CmdKicked, 0, payload))
	}
	_ = old.Close()
}
