package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Outcome 单次分发结果分类（用于指标）
type Outcome string

const (
	OutcomeOK                Outcome = "ok"
	OutcomeUnknown           Outcome = "unknown"
	OutcomeUndefinedResponse Outcome = "undefined_response"
	OutcomeIntercepted       Outcome = "intercepted"
	OutcomeResolved          Outcome = "resolved"
	OutcomeFailed            Outcome = "failed"
)

// Observer 分发观测回调
type Observer interface {
	ObserveDispatch(cmd int32, outcome Outcome, elapsed time.Duration)
}

// Router 命令路由：查表 -> 参数解析 -> 拦截 -> 调用 -> 响应映射 / 异常通知
type Router struct {
	registry     Registry
	resolver     ArgumentResolver
	interceptors InterceptorChain
	advice       *AdviceResolver
	observer     Observer
	logger       *zap.Logger
}

// Option Router 选项
type Option func(*Router)

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithObserver 设置观测回调
func WithObserver(o Observer) Option {
	return func(r *Router) { r.observer = o }
}

// WithArgumentResolver 替换参数解析器
func WithArgumentResolver(ar ArgumentResolver) Option {
	return func(r *Router) {
		if ar != nil {
			r.resolver = ar
		}
	}
}

// NewRouter 从注册表组装路由；通知组件声明非法时返回错误
func NewRouter(reg Registry, opts ...Option) (*Router, error) {
	r := &Router{
		registry: reg,
		resolver: NewPayloadResolver(nil),
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(r)
	}
	r.interceptors = InterceptorChain(reg.Interceptors())

	advice, err := NewAdviceResolver(reg.Advice(), r.logger)
	if err != nil {
		return nil, err
	}
	r.advice = advice
	return r, nil
}

// Dispatch 分发一次请求，恰好回调 l.OnSuccess 或 l.OnError 之一
func (r *Router) Dispatch(ctx context.Context, ex *Exchange, l Listener) {
	if l == nil {
		l = ListenerFuncs{}
	}
	if ex.Response == nil {
		ex.Response = &Response{}
	}
	start := time.Now()
	cmd := ex.Request.Cmd()

	if !r.registry.ContainsMapping(cmd) {
		r.observe(cmd, OutcomeUnknown, start)
		l.OnError(ex, &UnknownCommandError{Cmd: cmd})
		return
	}

	m := r.registry.Handler(cmd)
	ctx = WithExchange(ctx, ex)

	result, intercepted, err := r.invokeForRequest(ctx, ex, m)
	if err != nil {
		if r.advice.Resolve(ctx, err, ex) {
			r.logger.Debug("handler error resolved by advice",
				zap.Int32("cmd", cmd), zap.String("handler", m.Name), zap.Error(err))
			r.observe(cmd, OutcomeResolved, start)
			l.OnSuccess(ex)
			return
		}
		r.logger.Warn("handler failed",
			zap.Int32("cmd", cmd), zap.String("handler", m.Name), zap.Error(err))
		r.observe(cmd, OutcomeFailed, start)
		l.OnError(ex, err)
		return
	}

	if intercepted {
		r.observe(cmd, OutcomeIntercepted, start)
		l.OnSuccess(ex)
		return
	}

	if result == nil {
		r.observe(cmd, OutcomeOK, start)
		l.OnSuccess(ex)
		return
	}

	if m.ResponseCmd == 0 {
		r.observe(cmd, OutcomeUndefinedResponse, start)
		l.OnError(ex, &UndefinedResponseCommandError{Cmd: cmd})
		return
	}
	ex.Response.Set(m.ResponseCmd, result)
	r.observe(cmd, OutcomeOK, start)
	l.OnSuccess(ex)
}

func (r *Router) invokeForRequest(ctx context.Context, ex *Exchange, m *HandlerMethod) (any, bool, error) {
	args, err := r.resolver.Resolve(ctx, ex, m)
	if err != nil {
		return nil, false, err
	}
	if r.interceptors.ShouldIntercept(ctx, ex.Request, m, args) {
		return nil, true, nil
	}
	result, err := m.Invoke(args)
	if argErr, ok := err.(*ArgumentError); ok && argErr.Cmd == 0 {
		argErr.Cmd = ex.Request.Cmd()
	}
	return result, false, err
}

func (r *Router) observe(cmd int32, o Outcome, start time.Time) {
	if r.observer != nil {
		r.observer.ObserveDispatch(cmd, o, time.Since(start))
	}
}
