package dispatch

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrMultipleAdvice 注册了多于一个异常通知组件（启动期致命错误）
	ErrMultipleAdvice = errors.New("multiple advice components registered")
	// ErrNilHandler 注册的处理函数为空
	ErrNilHandler = errors.New("nil handler")
	// ErrDuplicateCommand 命令码重复注册
	ErrDuplicateCommand = errors.New("duplicate command mapping")
)

// UnknownCommandError 命令码没有对应的处理器
type UnknownCommandError struct {
	Cmd int32
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command: %d", e.Cmd)
}

// UndefinedResponseCommandError 处理器返回了结果，但没有定义响应命令码
type UndefinedResponseCommandError struct {
	Cmd int32
}

func (e *UndefinedResponseCommandError) Error() string {
	return fmt.Sprintf("command %d returned a value but defines no response command", e.Cmd)
}

// ArgumentError 参数解析失败，按普通调用错误处理（会进入异常通知）
type ArgumentError struct {
	Cmd   int32
	Index int
	Type  reflect.Type
	Err   error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("command %d: resolve argument #%d (%v): %v", e.Cmd, e.Index, e.Type, e.Err)
}

func (e *ArgumentError) Unwrap() error { return e.Err }

// PanicError 处理器 panic 后被恢复的错误
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.Value)
}

// Unwrap 当 panic 的值本身是 error 时，允许异常通知按其类型匹配
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
