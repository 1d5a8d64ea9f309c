package dispatch

import (
	"context"
	"fmt"
	"reflect"
)

// ArgumentResolver 为处理器生成按位置排列的实参
type ArgumentResolver interface {
	Resolve(ctx context.Context, ex *Exchange, m *HandlerMethod) ([]any, error)
}

// HandlerValidator 可选接口：注册期校验处理器形参是否可解析
type HandlerValidator interface {
	Validate(m *HandlerMethod) error
}

// PayloadCodec 载荷解码
type PayloadCodec interface {
	Unmarshal(data []byte, v any) error
}

// PayloadResolver 默认参数解析器，按形参类型绑定：
//   - context.Context -> 分发上下文
//   - *Request / *Response / *Exchange -> 交换对象各部分
//   - 会话类型 -> Exchange.Session
//   - []byte -> 原始载荷
//   - 其余（至多一个）-> 由 codec 从载荷解码
type PayloadResolver struct {
	codec       PayloadCodec
	sessionType reflect.Type
}

// ResolverOption PayloadResolver 选项
type ResolverOption func(*PayloadResolver)

// WithSessionType 声明传输层会话类型，该类型形参绑定 Exchange.Session（为空时绑定零值）
func WithSessionType(t reflect.Type) ResolverOption {
	return func(r *PayloadResolver) { r.sessionType = t }
}

// NewPayloadResolver 创建默认参数解析器
func NewPayloadResolver(codec PayloadCodec, opts ...ResolverOption) *PayloadResolver {
	r := &PayloadResolver{codec: codec}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve 实现 ArgumentResolver
func (r *PayloadResolver) Resolve(ctx context.Context, ex *Exchange, m *HandlerMethod) ([]any, error) {
	args := make([]any, m.NumParams())
	for i, pt := range m.params {
		switch {
		case pt == contextType:
			args[i] = ctx
		case pt == requestType:
			args[i] = ex.Request
		case pt == responseType:
			args[i] = ex.Response
		case pt == exchangeType:
			args[i] = ex
		case pt == bytesType:
			args[i] = ex.Request.Payload
		case r.isSession(pt, ex.Session):
			args[i] = ex.Session
		default:
			v, err := r.decode(ex.Request.Payload, pt)
			if err != nil {
				return nil, &ArgumentError{Cmd: ex.Request.Cmd(), Index: i, Type: pt, Err: err}
			}
			args[i] = v
		}
	}
	return args, nil
}

// Validate 实现 HandlerValidator：解码参数至多一个，且必须是结构体/结构体指针/map/切片
func (r *PayloadResolver) Validate(m *HandlerMethod) error {
	decoded := 0
	for i, pt := range m.params {
		switch {
		case pt == contextType, pt == requestType, pt == responseType, pt == exchangeType, pt == bytesType:
			continue
		case r.sessionType != nil && pt == r.sessionType:
			continue
		}
		if !decodable(pt) {
			return fmt.Errorf("handler %s: parameter #%d (%v) cannot be resolved", m.Name, i, pt)
		}
		decoded++
	}
	if decoded > 1 {
		return fmt.Errorf("handler %s: %d payload parameters, at most one allowed", m.Name, decoded)
	}
	if decoded == 1 && r.codec == nil {
		return fmt.Errorf("handler %s: payload parameter requires a codec", m.Name)
	}
	return nil
}

func (r *PayloadResolver) isSession(pt reflect.Type, session any) bool {
	if r.sessionType != nil && pt == r.sessionType {
		return true
	}
	return session != nil && pt.Kind() != reflect.Interface && reflect.TypeOf(session).AssignableTo(pt)
}

func (r *PayloadResolver) decode(data []byte, t reflect.Type) (any, error) {
	target := t
	if t.Kind() == reflect.Pointer {
		target = t.Elem()
	}
	v := reflect.New(target)
	if len(data) > 0 {
		if r.codec == nil {
			return nil, fmt.Errorf("no payload codec")
		}
		if err := r.codec.Unmarshal(data, v.Interface()); err != nil {
			return nil, err
		}
	}
	if t.Kind() == reflect.Pointer {
		return v.Interface(), nil
	}
	return v.Elem().Interface(), nil
}

func decodable(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Struct, reflect.Map, reflect.Slice:
		return true
	}
	return false
}
