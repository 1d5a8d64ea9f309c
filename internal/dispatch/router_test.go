package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type jsonCodec struct{}

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// recorder 记录 Listener 回调
type recorder struct {
	successes int
	errs      []error
}

func (r *recorder) OnSuccess(*Exchange)           { r.successes++ }
func (r *recorder) OnError(_ *Exchange, err error) { r.errs = append(r.errs, err) }

func (r *recorder) calls() int { return r.successes + len(r.errs) }

type echoReq struct {
	Text string `json:"text"`
}

type echoResp struct {
	Text string `json:"text"`
}

type notFoundError struct{ id string }

func (e *notFoundError) Error() string { return "not found: " + e.id }

type timeoutError struct{}

func (timeoutError) Error() string { return "timeout" }
func (timeoutError) Timeout() bool { return true }

type timeout interface {
	error
	Timeout() bool
}

// countingInterceptor 记录调用次数并返回固定结果
type countingInterceptor struct {
	veto  bool
	calls int
}

func (c *countingInterceptor) Intercept(context.Context, *Request, *HandlerMethod, []any) bool {
	c.calls++
	return c.veto
}

// countingResolver 包装解析器，记录调用次数
type countingResolver struct {
	inner ArgumentResolver
	calls int
}

func (c *countingResolver) Resolve(ctx context.Context, ex *Exchange, m *HandlerMethod) ([]any, error) {
	c.calls++
	return c.inner.Resolve(ctx, ex, m)
}

type testAdvice struct {
	handled []error
	fail    bool
}

func (a *testAdvice) ExceptionHandlers() []ExceptionHandler {
	return []ExceptionHandler{
		On[*notFoundError](a.onNotFound),
		On[timeout](a.onTimeout),
	}
}

func (a *testAdvice) onNotFound(err *notFoundError, resp *Response) error {
	a.handled = append(a.handled, err)
	if a.fail {
		return errors.New("advice exploded")
	}
	resp.Set(999, "missing "+err.id)
	return nil
}

func (a *testAdvice) onTimeout(err error, req *Request) {
	a.handled = append(a.handled, err)
}

func newTestRouter(t *testing.T, b *Builder, opts ...Option) *Router {
	t.Helper()
	reg, err := b.Build()
	require.NoError(t, err)
	r, err := NewRouter(reg, append([]Option{WithArgumentResolver(NewPayloadResolver(jsonCodec{}))}, opts...)...)
	require.NoError(t, err)
	return r
}

func newExchange(cmd int32, payload string) *Exchange {
	return NewExchange(&Request{Header: Header{Cmd: cmd}, Payload: []byte(payload)}, nil)
}

func TestRouter_ScenarioA_ResponseMapped(t *testing.T) {
	b := NewBuilder().Handle(100, 200, func(req *echoReq) (*echoResp, error) {
		return &echoResp{Text: req.Text}, nil
	})
	r := newTestRouter(t, b)

	ex := newExchange(100, `{"text":"hi"}`)
	rec := &recorder{}
	r.Dispatch(context.Background(), ex, rec)

	assert.Equal(t, 1, rec.successes)
	assert.Empty(t, rec.errs)
	assert.Equal(t, int32(200), ex.Response.Cmd)
	assert.Equal(t, &echoResp{Text: "hi"}, ex.Response.Payload)
}

func TestRouter_ScenarioB_UndefinedResponseCommand(t *testing.T) {
	b := NewBuilder().Handle(101, 0, func() string { return "V" })
	r := newTestRouter(t, b)

	ex := newExchange(101, "")
	before := *ex.Response
	rec := &recorder{}
	r.Dispatch(context.Background(), ex, rec)

	require.Len(t, rec.errs, 1)
	assert.Zero(t, rec.successes)
	var undefined *UndefinedResponseCommandError
	require.ErrorAs(t, rec.errs[0], &undefined)
	assert.Equal(t, int32(101), undefined.Cmd)
	assert.Equal(t, before, *ex.Response)
}

func TestRouter_ScenarioC_MultipleAdvice(t *testing.T) {
	reg, err := NewBuilder().
		Handle(1, 2, func() {}).
		Advise(&testAdvice{}).
		Advise(&testAdvice{}).
		Build()

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMultipleAdvice)
	assert.Nil(t, reg)
}

func TestRouter_UnknownCommand(t *testing.T) {
	resolver := &countingResolver{inner: NewPayloadResolver(jsonCodec{})}
	ic := &countingInterceptor{}
	reg, err := NewBuilder().Handle(1, 2, func() {}).Intercept(ic).Build()
	require.NoError(t, err)
	r, err := NewRouter(reg, WithArgumentResolver(resolver))
	require.NoError(t, err)

	for _, cmd := range []int32{0, 3, 404, -7} {
		ex := newExchange(cmd, "")
		rec := &recorder{}
		r.Dispatch(context.Background(), ex, rec)

		require.Len(t, rec.errs, 1)
		var unknown *UnknownCommandError
		require.ErrorAs(t, rec.errs[0], &unknown)
		assert.Equal(t, cmd, unknown.Cmd)
		assert.False(t, ex.Response.Written())
	}
	assert.Zero(t, resolver.calls, "argument resolution must not run")
	assert.Zero(t, ic.calls, "interceptors must not run")
}

func TestRouter_InterceptorVeto(t *testing.T) {
	invoked := false
	first := &countingInterceptor{}
	veto := &countingInterceptor{veto: true}
	after := &countingInterceptor{}
	b := NewBuilder().
		Handle(5, 6, func() string { invoked = true; return "x" }).
		Intercept(first, veto, after)
	r := newTestRouter(t, b)

	ex := newExchange(5, "")
	rec := &recorder{}
	r.Dispatch(context.Background(), ex, rec)

	assert.False(t, invoked)
	assert.Equal(t, 1, rec.successes)
	assert.Empty(t, rec.errs)
	assert.False(t, ex.Response.Written())
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, veto.calls)
	assert.Zero(t, after.calls, "chain stops at the first veto")
}

func TestRouter_InterceptorSeesArgsAndExchange(t *testing.T) {
	var seen []any
	var seenEx *Exchange
	ic := InterceptorFunc(func(ctx context.Context, req *Request, m *HandlerMethod, args []any) bool {
		seen = args
		seenEx, _ = ExchangeFrom(ctx)
		return false
	})
	b := NewBuilder().
		Handle(7, 8, func(req *echoReq) *echoResp { return &echoResp{Text: req.Text} }).
		Intercept(ic)
	r := newTestRouter(t, b)

	ex := newExchange(7, `{"text":"a"}`)
	r.Dispatch(context.Background(), ex, &recorder{})

	require.Len(t, seen, 1)
	assert.Equal(t, &echoReq{Text: "a"}, seen[0])
	assert.Same(t, ex, seenEx)
}

func TestRouter_NilResultLeavesResponse(t *testing.T) {
	tests := []struct {
		name        string
		responseCmd int32
		fn          any
	}{
		{"no results", 10, func() {}},
		{"nil error", 10, func() error { return nil }},
		{"nil pointer", 10, func() (*echoResp, error) { return nil, nil }},
		{"nil pointer without response cmd", 0, func() *echoResp { return nil }},
		{"nil slice", 0, func() []int { return nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t, NewBuilder().Handle(9, tt.responseCmd, tt.fn))
			ex := newExchange(9, "")
			rec := &recorder{}
			r.Dispatch(context.Background(), ex, rec)

			assert.Equal(t, 1, rec.successes)
			assert.Empty(t, rec.errs)
			assert.Equal(t, Response{}, *ex.Response)
		})
	}
}

func TestRouter_AdviceResolvesError(t *testing.T) {
	advice := &testAdvice{}
	b := NewBuilder().
		Handle(20, 21, func() (*echoResp, error) { return nil, &notFoundError{id: "p1"} }).
		Advise(advice)
	r := newTestRouter(t, b)

	ex := newExchange(20, "")
	rec := &recorder{}
	r.Dispatch(context.Background(), ex, rec)

	assert.Equal(t, 1, rec.successes)
	assert.Empty(t, rec.errs)
	require.Len(t, advice.handled, 1)
	assert.Equal(t, int32(999), ex.Response.Cmd)
	assert.Equal(t, "missing p1", ex.Response.Payload)
}

func TestRouter_AdviceMatchesWrappedCause(t *testing.T) {
	advice := &testAdvice{}
	cause := &notFoundError{id: "p2"}
	b := NewBuilder().
		Handle(20, 21, func() error { return fmt.Errorf("load player: %w", cause) }).
		Advise(advice)
	r := newTestRouter(t, b)

	ex := newExchange(20, "")
	rec := &recorder{}
	r.Dispatch(context.Background(), ex, rec)

	assert.Equal(t, 1, rec.successes)
	require.Len(t, advice.handled, 1)
	assert.Same(t, cause, advice.handled[0], "typed parameter receives the matched cause")
}

// 通知方法自身失败时仍报告成功：这是当前约定的行为
func TestRouter_AdviceFailureStillReportsSuccess(t *testing.T) {
	advice := &testAdvice{fail: true}
	b := NewBuilder().
		Handle(20, 21, func() error { return &notFoundError{id: "p3"} }).
		Advise(advice)
	r := newTestRouter(t, b)

	ex := newExchange(20, "")
	rec := &recorder{}
	r.Dispatch(context.Background(), ex, rec)

	assert.Equal(t, 1, rec.successes)
	assert.Empty(t, rec.errs)
	assert.Len(t, advice.handled, 1)
}

func TestRouter_AdvicePanicStillReportsSuccess(t *testing.T) {
	b := NewBuilder().
		Handle(20, 21, func() error { return &notFoundError{id: "p4"} }).
		Advise(adviceFunc(func() []ExceptionHandler {
			return []ExceptionHandler{On[*notFoundError](func(error) { panic("boom") })}
		}))
	r := newTestRouter(t, b)

	rec := &recorder{}
	r.Dispatch(context.Background(), newExchange(20, ""), rec)

	assert.Equal(t, 1, rec.successes)
	assert.Empty(t, rec.errs)
}

func TestRouter_UnresolvedErrorSurfacesUnchanged(t *testing.T) {
	boom := errors.New("boom")
	b := NewBuilder().
		Handle(30, 31, func() (string, error) { return "", boom }).
		Advise(&testAdvice{})
	r := newTestRouter(t, b)

	ex := newExchange(30, "")
	rec := &recorder{}
	r.Dispatch(context.Background(), ex, rec)

	require.Len(t, rec.errs, 1)
	assert.Same(t, boom, rec.errs[0])
	assert.Zero(t, rec.successes)
	assert.False(t, ex.Response.Written())
}

func TestRouter_NoAdviceSurfacesError(t *testing.T) {
	boom := &notFoundError{id: "x"}
	r := newTestRouter(t, NewBuilder().Handle(30, 31, func() error { return boom }))

	rec := &recorder{}
	r.Dispatch(context.Background(), newExchange(30, ""), rec)

	require.Len(t, rec.errs, 1)
	assert.Same(t, boom, rec.errs[0])
}

func TestRouter_ArgumentFailureGoesThroughAdvice(t *testing.T) {
	var got *ArgumentError
	b := NewBuilder().
		Handle(40, 41, func(req *echoReq) *echoResp { return &echoResp{} }).
		Advise(adviceFunc(func() []ExceptionHandler {
			return []ExceptionHandler{On[*ArgumentError](func(err *ArgumentError) { got = err })}
		}))
	r := newTestRouter(t, b)

	rec := &recorder{}
	r.Dispatch(context.Background(), newExchange(40, `{not json`), rec)

	assert.Equal(t, 1, rec.successes)
	require.NotNil(t, got)
	assert.Equal(t, int32(40), got.Cmd)
}

func TestRouter_ArgumentFailureWithoutAdvice(t *testing.T) {
	invoked := false
	r := newTestRouter(t, NewBuilder().Handle(40, 41, func(req *echoReq) { invoked = true }))

	rec := &recorder{}
	r.Dispatch(context.Background(), newExchange(40, `[1,2`), rec)

	require.Len(t, rec.errs, 1)
	var argErr *ArgumentError
	assert.ErrorAs(t, rec.errs[0], &argErr)
	assert.False(t, invoked)
}

// wrongTypeResolver 为每个形参给出字符串，触发调用期的类型不匹配
type wrongTypeResolver struct{}

func (wrongTypeResolver) Resolve(_ context.Context, _ *Exchange, m *HandlerMethod) ([]any, error) {
	args := make([]any, m.NumParams())
	for i := range args {
		args[i] = "not a request"
	}
	return args, nil
}

func TestRouter_InvokeArgumentErrorCarriesCmd(t *testing.T) {
	var got *ArgumentError
	reg, err := NewBuilder().
		Handle(42, 43, func(req *echoReq) *echoResp { return &echoResp{} }).
		Advise(adviceFunc(func() []ExceptionHandler {
			return []ExceptionHandler{On[*ArgumentError](func(err *ArgumentError) { got = err })}
		})).
		Build()
	require.NoError(t, err)
	r, err := NewRouter(reg, WithArgumentResolver(wrongTypeResolver{}))
	require.NoError(t, err)

	rec := &recorder{}
	r.Dispatch(context.Background(), newExchange(42, ""), rec)

	assert.Equal(t, 1, rec.successes)
	require.NotNil(t, got)
	assert.Equal(t, int32(42), got.Cmd)
	assert.Contains(t, got.Error(), "command 42")
}

func TestRouter_HandlerPanicBecomesError(t *testing.T) {
	r := newTestRouter(t, NewBuilder().Handle(50, 51, func() string { panic("bad state") }))

	rec := &recorder{}
	r.Dispatch(context.Background(), newExchange(50, ""), rec)

	require.Len(t, rec.errs, 1)
	var pe *PanicError
	require.ErrorAs(t, rec.errs[0], &pe)
	assert.Equal(t, "bad state", pe.Value)
	assert.NotEmpty(t, pe.Stack)
}

func TestRouter_ExactlyOneCallback(t *testing.T) {
	b := NewBuilder().
		Handle(1, 2, func() string { return "ok" }).
		Handle(3, 0, func() string { return "no resp" }).
		Handle(4, 5, func() error { return errors.New("x") }).
		Handle(6, 7, func() error { return &notFoundError{} }).
		Advise(&testAdvice{})
	r := newTestRouter(t, b)

	for _, cmd := range []int32{1, 3, 4, 6, 8} {
		rec := &recorder{}
		r.Dispatch(context.Background(), newExchange(cmd, ""), rec)
		assert.Equal(t, 1, rec.calls(), "cmd %d", cmd)
	}
}

type outcomeRecorder struct {
	outcomes map[int32]Outcome
}

func (o *outcomeRecorder) ObserveDispatch(cmd int32, outcome Outcome, _ time.Duration) {
	o.outcomes[cmd] = outcome
}

func TestRouter_Observer(t *testing.T) {
	obs := &outcomeRecorder{outcomes: map[int32]Outcome{}}
	b := NewBuilder().
		Handle(1, 2, func() string { return "ok" }).
		Handle(3, 0, func() string { return "no resp" }).
		Handle(4, 5, func() error { return errors.New("x") }).
		Handle(6, 7, func() error { return &notFoundError{} }).
		Handle(9, 10, func() {}).
		Intercept(InterceptorFunc(func(_ context.Context, req *Request, _ *HandlerMethod, _ []any) bool {
			return req.Cmd() == 9
		})).
		Advise(&testAdvice{})
	r := newTestRouter(t, b, WithObserver(obs))

	for _, cmd := range []int32{1, 3, 4, 6, 8, 9} {
		r.Dispatch(context.Background(), newExchange(cmd, ""), nil)
	}
	assert.Equal(t, map[int32]Outcome{
		1: OutcomeOK,
		3: OutcomeUndefinedResponse,
		4: OutcomeFailed,
		6: OutcomeResolved,
		8: OutcomeUnknown,
		9: OutcomeIntercepted,
	}, obs.outcomes)
}

func TestNewRouter_InvalidAdvice(t *testing.T) {
	reg, err := NewBuilder().
		Advise(adviceFunc(func() []ExceptionHandler {
			return []ExceptionHandler{On[*notFoundError](func() string { return "" })}
		})).
		Build()
	require.NoError(t, err)

	_, err = NewRouter(reg)
	assert.Error(t, err)
}
