package game

import (
	"errors"
	"fmt"
)

// CodedError 携带业务错误码的错误，由通知组件统一转为错误帧
type CodedError interface {
	error
	ErrorCode() int32
}

// GameError 业务错误
type GameError struct {
	Code    int32
	Message string
}

func (e *GameError) Error() string { return fmt.Sprintf("game error %d: %s", e.Code, e.Message) }

// ErrorCode 实现 CodedError
func (e *GameError) ErrorCode() int32 { return e.Code }

// NewError 创建业务错误
func NewError(code int32, format string, args ...any) *GameError {
	return &GameError{Code: code, Message: fmt.Sprintf(format, args...)}
}

var (
	// ErrNotLoggedIn 会话未登录
	ErrNotLoggedIn = &GameError{Code: CodeNotLoggedIn, Message: "not logged in"}
	// ErrNoSession 请求不是来自游戏会话
	ErrNoSession = errors.New("request has no session")
)

// busyError 下游暂不可用，走 CodedError 分支
type busyError struct{ cause error }

func (e *busyError) Error() string    { return "server busy: " + e.cause.Error() }
func (e *busyError) Unwrap() error    { return e.cause }
func (e *busyError) ErrorCode() int32 { return CodeServerBusy }
