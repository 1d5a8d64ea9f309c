package dispatch

import (
	"errors"
	"fmt"
	"sort"
)

// Registry 组件注册表：命令映射、拦截器、异常通知组件。启动时构建，运行期只读。
type Registry interface {
	ContainsMapping(cmd int32) bool
	Handler(cmd int32) *HandlerMethod
	Interceptors() []Interceptor
	Advice() Advice
}

// StaticRegistry 静态构建的注册表
type StaticRegistry struct {
	handlers     map[int32]*HandlerMethod
	interceptors []Interceptor
	advice       Advice
}

func (r *StaticRegistry) ContainsMapping(cmd int32) bool {
	_, ok := r.handlers[cmd]
	return ok
}

func (r *StaticRegistry) Handler(cmd int32) *HandlerMethod { return r.handlers[cmd] }

func (r *StaticRegistry) Interceptors() []Interceptor { return r.interceptors }

func (r *StaticRegistry) Advice() Advice { return r.advice }

// Commands 已注册命令码（升序）
func (r *StaticRegistry) Commands() []int32 {
	return sortedKeys(r.handlers)
}

// Builder 注册表构建器，错误累积到 Build 时统一返回
type Builder struct {
	handlers     map[int32]*HandlerMethod
	interceptors []Interceptor
	advices      []Advice
	validator    HandlerValidator
	errs         []error
}

// NewBuilder 创建构建器
func NewBuilder() *Builder {
	return &Builder{handlers: make(map[int32]*HandlerMethod)}
}

// Validate 设置处理器形参校验器（通常为参数解析器）
func (b *Builder) Validate(v HandlerValidator) *Builder {
	b.validator = v
	return b
}

// Handle 注册 cmd -> fn，responseCmd 为 0 表示不产生响应
func (b *Builder) Handle(cmd, responseCmd int32, fn any) *Builder {
	if _, ok := b.handlers[cmd]; ok {
		b.errs = append(b.errs, fmt.Errorf("command %d: %w", cmd, ErrDuplicateCommand))
		return b
	}
	m, err := NewHandlerMethod(responseCmd, fn)
	if err != nil {
		b.errs = append(b.errs, fmt.Errorf("command %d: %w", cmd, err))
		return b
	}
	b.handlers[cmd] = m
	return b
}

// Intercept 追加拦截器，按追加顺序求值
func (b *Builder) Intercept(ics ...Interceptor) *Builder {
	for _, ic := range ics {
		if ic != nil {
			b.interceptors = append(b.interceptors, ic)
		}
	}
	return b
}

// Advise 注册异常通知组件
func (b *Builder) Advise(a Advice) *Builder {
	if a != nil {
		b.advices = append(b.advices, a)
	}
	return b
}

// Build 校验并生成只读注册表；多于一个通知组件时返回 ErrMultipleAdvice
func (b *Builder) Build() (*StaticRegistry, error) {
	errs := append([]error(nil), b.errs...)
	if len(b.advices) > 1 {
		errs = append(errs, fmt.Errorf("%w: %d found", ErrMultipleAdvice, len(b.advices)))
	}
	if b.validator != nil {
		for _, cmd := range sortedKeys(b.handlers) {
			if err := b.validator.Validate(b.handlers[cmd]); err != nil {
				errs = append(errs, fmt.Errorf("command %d: %w", cmd, err))
			}
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	reg := &StaticRegistry{
		handlers:     make(map[int32]*HandlerMethod, len(b.handlers)),
		interceptors: append([]Interceptor(nil), b.interceptors...),
	}
	for cmd, m := range b.handlers {
		reg.handlers[cmd] = m
	}
	if len(b.advices) == 1 {
		reg.advice = b.advices[0]
	}
	return reg, nil
}

func sortedKeys(m map[int32]*HandlerMethod) []int32 {
	keys := make([]int32, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
