package dispatch

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"
)

// maxUnwrapDepth 错误链遍历深度上限，防止环形 Unwrap
const maxUnwrapDepth = 32

// Advice 集中式异常通知组件，全局至多一个
type Advice interface {
	ExceptionHandlers() []ExceptionHandler
}

// ExceptionHandler 声明：错误类型 -> 通知方法。
// 通知方法形参从 {error, *Request, *Response} 中按顺序取第一个可赋值者绑定，
// context.Context 形参绑定分发上下文；返回 () 或 (error)。
type ExceptionHandler struct {
	ErrType reflect.Type
	Fn      any
}

// On 为错误类型 E 声明通知方法。E 可以是具体类型，也可以是接口类型。
func On[E error](fn any) ExceptionHandler {
	return ExceptionHandler{ErrType: reflect.TypeFor[E](), Fn: fn}
}

// OnType 以运行期类型声明通知方法
func OnType(errType reflect.Type, fn any) ExceptionHandler {
	return ExceptionHandler{ErrType: errType, Fn: fn}
}

// adviceEntry 通知表项，其指针即通知方法的规范标识
type adviceEntry struct {
	errType reflect.Type
	fn      any
}

// AdviceTable 错误类型 -> 通知方法，启动时构建，之后只读。
// 查找规则：沿错误链逐层（Unwrap）查找，层数最小者优先；同层内具体类型精确匹配
// 优先于接口匹配，接口之间更具体者优先，无法比较时按声明顺序。
type AdviceTable struct {
	exact      map[reflect.Type]*adviceEntry
	interfaces []*adviceEntry
	entries    []*adviceEntry
}

// NewAdviceTable 从通知组件构建通知表，声明非法时快速失败
func NewAdviceTable(advice Advice) (*AdviceTable, error) {
	t := &AdviceTable{exact: make(map[reflect.Type]*adviceEntry)}
	if advice == nil {
		return t, nil
	}
	seen := make(map[reflect.Type]bool)
	for i, h := range advice.ExceptionHandlers() {
		if h.ErrType == nil {
			return nil, fmt.Errorf("advice handler #%d: nil error type", i)
		}
		if !h.ErrType.Implements(errorType) {
			return nil, fmt.Errorf("advice handler #%d: %v does not implement error", i, h.ErrType)
		}
		if seen[h.ErrType] {
			return nil, fmt.Errorf("advice handler #%d: duplicate error type %v", i, h.ErrType)
		}
		seen[h.ErrType] = true

		e := &adviceEntry{errType: h.ErrType, fn: h.Fn}
		t.entries = append(t.entries, e)
		if h.ErrType.Kind() == reflect.Interface {
			t.interfaces = append(t.interfaces, e)
		} else {
			t.exact[h.ErrType] = e
		}
	}
	return t, nil
}

// Len 通知方法数
func (t *AdviceTable) Len() int { return len(t.entries) }

// Match 返回与 err 最匹配的声明错误类型
func (t *AdviceTable) Match(err error) (reflect.Type, bool) {
	ent, _ := t.lookup(err)
	if ent == nil {
		return nil, false
	}
	return ent.errType, true
}

// lookup 返回与 err 最匹配的表项以及错误链上命中的节点
func (t *AdviceTable) lookup(err error) (*adviceEntry, error) {
	if err == nil || len(t.entries) == 0 {
		return nil, nil
	}
	level := []error{err}
	for depth := 0; len(level) > 0 && depth < maxUnwrapDepth; depth++ {
		for _, e := range level {
			if ent, ok := t.exact[reflect.TypeOf(e)]; ok {
				return ent, e
			}
		}
		if ent, e := t.matchInterface(level); ent != nil {
			return ent, e
		}
		level = unwrapAll(level)
	}
	return nil, nil
}

// matchInterface 在同一层内选出最具体的接口表项：A 的方法集包含 B 时 A 优先，
// 互不包含的接口按声明顺序。
func (t *AdviceTable) matchInterface(level []error) (*adviceEntry, error) {
	var (
		best  *adviceEntry
		bestE error
	)
	for _, ent := range t.interfaces {
		for _, e := range level {
			if !reflect.TypeOf(e).Implements(ent.errType) {
				continue
			}
			if best == nil || (ent.errType.Implements(best.errType) && !best.errType.Implements(ent.errType)) {
				best, bestE = ent, e
			}
			break
		}
	}
	return best, bestE
}

func unwrapAll(errs []error) []error {
	var next []error
	for _, e := range errs {
		switch u := e.(type) {
		case interface{ Unwrap() error }:
			if c := u.Unwrap(); c != nil {
				next = append(next, c)
			}
		case interface{ Unwrap() []error }:
			for _, c := range u.Unwrap() {
				if c != nil {
					next = append(next, c)
				}
			}
		}
	}
	return next
}

// canonical 返回通知方法的规范标识。Go 泛型无桥接方法，表项本身即为规范标识。
func canonical(e *adviceEntry) *adviceEntry { return e }

// AdviceCache 规范通知方法 -> 描述符，按需创建，永不淘汰。
// 并发创建同一项时允许重复构造，只保留先写入者。
type AdviceCache struct {
	m sync.Map
}

// GetOrCreate 取已有描述符，不存在时创建并插入
func (c *AdviceCache) GetOrCreate(key any, create func() (*HandlerMethod, error)) (*HandlerMethod, error) {
	if v, ok := c.m.Load(key); ok {
		return v.(*HandlerMethod), nil
	}
	m, err := create()
	if err != nil {
		return nil, err
	}
	v, _ := c.m.LoadOrStore(key, m)
	return v.(*HandlerMethod), nil
}

// Len 缓存项数量
func (c *AdviceCache) Len() int {
	n := 0
	c.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// AdviceResolver 将调用错误交给通知组件处理，报告是否已处理
type AdviceResolver struct {
	table  *AdviceTable
	cache  *AdviceCache
	logger *zap.Logger
}

// NewAdviceResolver 构建通知表并预热缓存；advice 为 nil 时得到一个从不处理的解析器
func NewAdviceResolver(advice Advice, logger *zap.Logger) (*AdviceResolver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	table, err := NewAdviceTable(advice)
	if err != nil {
		return nil, err
	}
	r := &AdviceResolver{table: table, cache: &AdviceCache{}, logger: logger}
	for _, e := range table.entries {
		if _, err := r.handlerFor(e); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Resolve 查找并调用匹配的通知方法。
// 通知方法自身失败（返回错误或 panic）时仅记录日志，仍视为已处理。
func (r *AdviceResolver) Resolve(ctx context.Context, err error, ex *Exchange) bool {
	if r == nil || err == nil {
		return false
	}
	ent, cause := r.table.lookup(err)
	if ent == nil {
		return false
	}
	m, herr := r.handlerFor(canonical(ent))
	if herr != nil {
		r.logger.Error("advice handler unavailable", zap.Error(herr))
		return false
	}

	args := bindAdviceArgs(ctx, m, err, cause, ex)
	if _, aerr := m.Invoke(args); aerr != nil {
		r.logger.Error("advice handler failed",
			zap.String("advice", m.Name),
			zap.Int32("cmd", ex.Request.Cmd()),
			zap.NamedError("original", err),
			zap.Error(aerr),
		)
	}
	return true
}

func (r *AdviceResolver) handlerFor(e *adviceEntry) (*HandlerMethod, error) {
	return r.cache.GetOrCreate(e, func() (*HandlerMethod, error) {
		m, err := NewHandlerMethod(0, e.fn)
		if err != nil {
			return nil, fmt.Errorf("advice for %v: %w", e.errType, err)
		}
		if m.ReturnsValue() {
			return nil, fmt.Errorf("advice %s for %v: must return nothing or error", m.Name, e.errType)
		}
		return m, nil
	})
}

// bindAdviceArgs 每个形参绑定 {error, request, response} 中第一个可赋值者；
// error 候选在外层不可赋值时使用链上命中的节点。都不匹配时为零值。
func bindAdviceArgs(ctx context.Context, m *HandlerMethod, err, cause error, ex *Exchange) []any {
	args := make([]any, m.NumParams())
	for i, pt := range m.params {
		if pt == contextType {
			args[i] = ctx
			continue
		}
		args[i] = providedArg(pt, err, cause, ex)
	}
	return args
}

func providedArg(pt reflect.Type, err, cause error, ex *Exchange) any {
	if reflect.TypeOf(err).AssignableTo(pt) {
		return err
	}
	if cause != nil && reflect.TypeOf(cause).AssignableTo(pt) {
		return cause
	}
	if ex.Request != nil && requestType.AssignableTo(pt) {
		return ex.Request
	}
	if ex.Response != nil && responseType.AssignableTo(pt) {
		return ex.Response
	}
	return nil
}
