package game

import (
	"go.uber.org/zap"

	"github.com/moyu3390/netty-game-server/internal/dispatch"
	"github.com/moyu3390/netty-game-server/internal/protocol/frame"
)

// Advice 全局异常通知：把处理器错误转换为错误帧响应
type Advice struct {
	logger *zap.Logger
}

// NewAdvice 创建异常通知组件
func NewAdvice(logger *zap.Logger) *Advice {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Advice{logger: logger}
}

// ExceptionHandlers 实现 dispatch.Advice
func (a *Advice) ExceptionHandlers() []dispatch.ExceptionHandler {
	return []dispatch.ExceptionHandler{
		dispatch.On[*GameError](a.onGameError),
		dispatch.On[CodedError](a.onCodedError),
		dispatch.On[*dispatch.ArgumentError](a.onArgumentError),
		dispatch.On[*dispatch.PanicError](a.onPanic),
	}
}

func (a *Advice) onGameError(err *GameError, req *dispatch.Request, resp *dispatch.Response) {
	resp.Set(CmdError, frame.ErrorPayload{Code: err.Code, Message: err.Message, Cmd: req.Cmd()})
}

func (a *Advice) onCodedError(err CodedError, req *dispatch.Request, resp *dispatch.Response) {
	a.logger.Warn("handler failed with coded error", zap.Int32("cmd", req.Cmd()), zap.Error(err))
	resp.Set(CmdError, frame.ErrorPayload{Code: err.ErrorCode(), Message: "service unavailable", Cmd: req.Cmd()})
}

func (a *Advice) onArgumentError(err *dispatch.ArgumentError, resp *dispatch.Response) {
	resp.Set(CmdError, frame.ErrorPayload{Code: CodeInvalidArgument, Message: "invalid request payload", Cmd: err.Cmd})
}

func (a *Advice) onPanic(err *dispatch.PanicError, req *dispatch.Request, resp *dispatch.Response) {
	a.logger.Error("handler panic",
		zap.Int32("cmd", req.Cmd()),
		zap.Any("panic", err.Value),
		zap.ByteString("stack", err.Stack))
	resp.Set(CmdError, frame.ErrorPayload{Code: frame.CodeInternal, Message: "internal error", Cmd: req.Cmd()})
}
