package dispatch

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"runtime/debug"
	"strings"
)

var (
	errorType    = reflect.TypeOf((*error)(nil)).Elem()
	contextType  = reflect.TypeOf((*context.Context)(nil)).Elem()
	requestType  = reflect.TypeOf((*Request)(nil))
	responseType = reflect.TypeOf((*Response)(nil))
	exchangeType = reflect.TypeOf((*Exchange)(nil))
	bytesType    = reflect.TypeOf([]byte(nil))
)

// HandlerMethod 可调用单元：绑定好接收者的函数 + 形参类型 + 响应命令码。
// ResponseCmd 为 0 表示该处理器不产生响应。构建后不可变。
type HandlerMethod struct {
	Name        string
	ResponseCmd int32

	fn       reflect.Value
	params   []reflect.Type
	hasValue bool // 第一个返回值为业务结果
	hasErr   bool // 最后一个返回值为 error
}

// NewHandlerMethod 校验函数签名并创建描述符。
// 支持的返回形式：()、(error)、(R)、(R, error)。
func NewHandlerMethod(responseCmd int32, fn any) (*HandlerMethod, error) {
	if fn == nil {
		return nil, ErrNilHandler
	}
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return nil, fmt.Errorf("handler must be a func, got %T", fn)
	}
	if v.IsNil() {
		return nil, ErrNilHandler
	}
	t := v.Type()
	if t.IsVariadic() {
		return nil, fmt.Errorf("handler %s: variadic functions are not supported", funcName(v))
	}

	m := &HandlerMethod{
		Name:        funcName(v),
		ResponseCmd: responseCmd,
		fn:          v,
		params:      make([]reflect.Type, t.NumIn()),
	}
	for i := 0; i < t.NumIn(); i++ {
		m.params[i] = t.In(i)
	}

	switch t.NumOut() {
	case 0:
	case 1:
		if t.Out(0) == errorType {
			m.hasErr = true
		} else {
			m.hasValue = true
		}
	case 2:
		if t.Out(1) != errorType {
			return nil, fmt.Errorf("handler %s: second result must be error, got %v", m.Name, t.Out(1))
		}
		m.hasValue, m.hasErr = true, true
	default:
		return nil, fmt.Errorf("handler %s: too many results (%d)", m.Name, t.NumOut())
	}
	return m, nil
}

// NumParams 形参个数
func (m *HandlerMethod) NumParams() int { return len(m.params) }

// Param 第 i 个形参类型
func (m *HandlerMethod) Param(i int) reflect.Type { return m.params[i] }

// Params 形参类型列表（副本）
func (m *HandlerMethod) Params() []reflect.Type {
	out := make([]reflect.Type, len(m.params))
	copy(out, m.params)
	return out
}

// ReturnsValue 是否声明了业务返回值
func (m *HandlerMethod) ReturnsValue() bool { return m.hasValue }

// Invoke 以给定实参执行处理器。错误原样返回，不做包装；panic 转为 *PanicError。
// nil 的指针/切片/map/接口结果视为无结果。
func (m *HandlerMethod) Invoke(args []any) (result any, err error) {
	if len(args) != len(m.params) {
		return nil, fmt.Errorf("handler %s: want %d arguments, got %d", m.Name, len(m.params), len(args))
	}
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		if a == nil {
			in[i] = reflect.Zero(m.params[i])
			continue
		}
		av := reflect.ValueOf(a)
		if !av.Type().AssignableTo(m.params[i]) {
			return nil, &ArgumentError{Index: i, Type: m.params[i], Err: fmt.Errorf("%T is not assignable", a)}
		}
		in[i] = av
	}

	defer func() {
		if r := recover(); r != nil {
			result, err = nil, &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	out := m.fn.Call(in)
	if m.hasErr {
		if e, ok := out[len(out)-1].Interface().(error); ok && e != nil {
			return nil, e
		}
	}
	if !m.hasValue || isNilValue(out[0]) {
		return nil, nil
	}
	return out[0].Interface(), nil
}

func isNilValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return v.IsNil()
	}
	return false
}

// funcName 可读函数名，去掉方法值的 -fm 后缀
func funcName(v reflect.Value) string {
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return v.Type().String()
	}
	name := strings.TrimSuffix(f.Name(), "-fm")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}
