package dispatch

import "context"

// Header 请求头
type Header struct {
	Cmd int32
	Seq uint32
}

// Request 上行请求，单次分发期间不可变
type Request struct {
	Header  Header
	Payload []byte
}

// Cmd 返回请求命令码
func (r *Request) Cmd() int32 { return r.Header.Cmd }

// Response 下行响应，由调用方持有，单次分发内最多写入一次
type Response struct {
	Cmd     int32
	Payload any
}

// Set 写入响应命令码与载荷
func (r *Response) Set(cmd int32, payload any) {
	r.Cmd = cmd
	r.Payload = payload
}

// Written 是否已写入响应
func (r *Response) Written() bool { return r.Cmd != 0 }

// Exchange 一次分发的请求/响应对，Session 由传输层填充（可为 nil）
type Exchange struct {
	Request  *Request
	Response *Response
	Session  any
}

// NewExchange 创建交换对象，响应为空
func NewExchange(req *Request, session any) *Exchange {
	return &Exchange{Request: req, Response: &Response{}, Session: session}
}

// Listener 分发结果回调，每次分发恰好回调其中之一
type Listener interface {
	OnSuccess(ex *Exchange)
	OnError(ex *Exchange, err error)
}

// ListenerFuncs 函数式 Listener
type ListenerFuncs struct {
	Success func(ex *Exchange)
	Error   func(ex *Exchange, err error)
}

func (l ListenerFuncs) OnSuccess(ex *Exchange) {
	if l.Success != nil {
		l.Success(ex)
	}
}

func (l ListenerFuncs) OnError(ex *Exchange, err error) {
	if l.Error != nil {
		l.Error(ex, err)
	}
}

type exchangeKey struct{}

// WithExchange 将交换对象放入 ctx，供拦截器等组件直接写响应
func WithExchange(ctx context.Context, ex *Exchange) context.Context {
	return context.WithValue(ctx, exchangeKey{}, ex)
}

// ExchangeFrom 取出 ctx 中的交换对象
func ExchangeFrom(ctx context.Context) (*Exchange, bool) {
	ex, ok := ctx.Value(exchangeKey{}).(*Exchange)
	return ex, ok && ex != nil
}
