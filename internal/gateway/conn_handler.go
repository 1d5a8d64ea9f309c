package gateway

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/moyu3390/netty-game-server/internal/dispatch"
	"github.com/moyu3390/netty-game-server/internal/metrics"
	"github.com/moyu3390/netty-game-server/internal/protocol/catalog"
	"github.com/moyu3390/netty-game-server/internal/protocol/frame"
	"github.com/moyu3390/netty-game-server/internal/session"
	"github.com/moyu3390/netty-game-server/internal/tcpserver"
)

// Conn 网关所需的连接能力，*tcpserver.ConnContext 实现该接口
type Conn interface {
	session.Conn
	SetOnRead(h func(p []byte))
	OnClose(fn func())
}

// PayloadMarshaler 响应载荷编码
type PayloadMarshaler interface {
	Marshal(v any) ([]byte, error)
}

// Options 网关依赖
type Options struct {
	Router   *dispatch.Router
	Sessions *session.Manager
	Codec    PayloadMarshaler
	Catalog  *catalog.Catalog
	Metrics  *metrics.AppMetrics
	Logger   *zap.Logger

	MaxFrameLen int
	// ErrorResponseCmd 未处理错误时下发错误帧的命令码，0 表示不下发
	ErrorResponseCmd int32
}

// Handler 将连接字节流解码为请求帧并交给命令路由，响应编码后写回
type Handler struct {
	opts   Options
	base   context.Context
	logger *zap.Logger
}

// New 创建网关处理器，base 为服务生命周期上下文
func New(base context.Context, opts Options) *Handler {
	if opts.Codec == nil {
		opts.Codec = frame.JSONCodec{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{opts: opts, base: base, logger: logger}
}

// ConnHandler 适配 tcpserver.Server.SetConnHandler
func (h *Handler) ConnHandler() func(*tcpserver.ConnContext) {
	return func(cc *tcpserver.ConnContext) { h.Bind(cc) }
}

// Bind 为连接创建会话并安装读回调，连接关闭时释放会话
func (h *Handler) Bind(c Conn) *session.Session {
	sess := h.opts.Sessions.Open(c, time.Now())
	ctx, cancel := context.WithCancel(h.base)
	dec := frame.NewStreamDecoder(h.opts.MaxFrameLen)
	log := h.logger.With(zap.String("session", sess.ID()), zap.String("remote_addr", sess.RemoteAddr()))
	h.updateGauges()

	c.SetOnRead(func(p []byte) {
		dropped := dec.Dropped()
		frames, _ := dec.Feed(p)
		if h.opts.Metrics != nil {
			if n := dec.Dropped() - dropped; n > 0 {
				h.opts.Metrics.FrameDecodeTotal.WithLabelValues("dropped").Add(float64(n))
			}
			if len(frames) > 0 {
				h.opts.Metrics.FrameDecodeTotal.WithLabelValues("ok").Add(float64(len(frames)))
			}
		}
		for _, fr := range frames {
			h.handleFrame(ctx, sess, fr, log)
		}
	})
	c.OnClose(func() {
		cancel()
		h.opts.Sessions.Close(context.Background(), sess)
		h.updateGauges()
		log.Debug("session closed")
	})
	log.Debug("session opened")
	return sess
}

func (h *Handler) handleFrame(ctx context.Context, sess *session.Session, fr *frame.Frame, log *zap.Logger) {
	sess.Touch(time.Now())
	req := &dispatch.Request{
		Header:  dispatch.Header{Cmd: fr.Cmd, Seq: fr.Seq},
		Payload: fr.Payload,
	}
	ex := dispatch.NewExchange(req, sess)
	h.opts.Router.Dispatch(ctx, ex, &responder{h: h, sess: sess, log: log})
}

func (h *Handler) updateGauges() {
	if h.opts.Metrics == nil {
		return
	}
	h.opts.Metrics.OnlineGauge.Set(float64(h.opts.Sessions.Count()))
	h.opts.Metrics.PlayersGauge.Set(float64(h.opts.Sessions.PlayerCount()))
}

// responder 单次分发的结果回调：写响应帧或错误帧
type responder struct {
	h    *Handler
	sess *session.Session
	log  *zap.Logger
}

func (r *responder) OnSuccess(ex *dispatch.Exchange) {
	if !ex.Response.Written() {
		return
	}
	payload, err := r.h.opts.Codec.Marshal(ex.Response.Payload)
	if err != nil {
		r.log.Error("encode response failed",
			zap.Int32("cmd", ex.Request.Cmd()), zap.Int32("response_cmd", ex.Response.Cmd), zap.Error(err))
		r.writeError(ex, frame.ErrorPayload{Code: frame.CodeInternal, Message: "internal error", Cmd: ex.Request.Cmd()})
		return
	}
	r.write(ex.Response.Cmd, ex.Request.Header.Seq, payload)
}

func (r *responder) OnError(ex *dispatch.Exchange, err error) {
	cmd := ex.Request.Cmd()
	r.log.Warn("dispatch failed",
		zap.Int32("cmd", cmd),
		zap.String("command", r.h.opts.Catalog.Name(cmd)),
		zap.Uint32("seq", ex.Request.Header.Seq),
		zap.Error(err))
	r.writeError(ex, ErrorPayloadFor(cmd, err))
}

func (r *responder) writeError(ex *dispatch.Exchange, body frame.ErrorPayload) {
	if r.h.opts.ErrorResponseCmd == 0 {
		return
	}
	payload, err := r.h.opts.Codec.Marshal(body)
	if err != nil {
		r.log.Error("encode error frame failed", zap.Error(err))
		return
	}
	if r.h.opts.Metrics != nil {
		r.h.opts.Metrics.ErrorFrames.Inc()
	}
	r.write(r.h.opts.ErrorResponseCmd, ex.Request.Header.Seq, payload)
}

func (r *responder) write(cmd int32, seq uint32, payload []byte) {
	if err := r.sess.Write(frame.Build(cmd, seq, payload)); err != nil {
		r.log.Debug("write frame failed", zap.Int32("cmd", cmd), zap.Error(err))
	}
}

// ErrorPayloadFor 将未被处理的分发错误映射为错误帧载荷，内部错误不向客户端暴露细节
func ErrorPayloadFor(cmd int32, err error) frame.ErrorPayload {
	var unknown *dispatch.UnknownCommandError
	var argErr *dispatch.ArgumentError
	switch {
	case errors.As(err, &unknown):
		return frame.ErrorPayload{Code: frame.CodeUnknownCommand, Message: unknown.Error(), Cmd: cmd}
	case errors.As(err, &argErr):
		return frame.ErrorPayload{Code: frame.CodeBadRequest, Message: "bad request payload", Cmd: cmd}
	default:
		return frame.ErrorPayload{Code: frame.CodeInternal, Message: "internal error", Cmd: cmd}
	}
}
