package dispatch

import "context"

// Interceptor 调用前的否决谓词，返回 true 表示拦截（不再调用处理器）。
// 需要写响应的拦截器可通过 ExchangeFrom(ctx) 取得交换对象。
type Interceptor interface {
	Intercept(ctx context.Context, req *Request, m *HandlerMethod, args []any) bool
}

// InterceptorFunc 函数式拦截器
type InterceptorFunc func(ctx context.Context, req *Request, m *HandlerMethod, args []any) bool

func (f InterceptorFunc) Intercept(ctx context.Context, req *Request, m *HandlerMethod, args []any) bool {
	return f(ctx, req, m, args)
}

// InterceptorChain 按注册顺序求逻辑或，遇到第一个 true 即停止
type InterceptorChain []Interceptor

// ShouldIntercept 是否拦截本次调用
func (c InterceptorChain) ShouldIntercept(ctx context.Context, req *Request, m *HandlerMethod, args []any) bool {
	for _, ic := range c {
		if ic.Intercept(ctx, req, m, args) {
			return true
		}
	}
	return false
}
