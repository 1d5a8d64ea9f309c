package frame

import (
	"github.com/goccy/go-json"
)

// JSONCodec 载荷编解码（goccy/go-json）。
// []byte 与 json.RawMessage 载荷原样透传，nil 编码为空载荷。
type JSONCodec struct{}

// Marshal 编码响应载荷
func (JSONCodec) Marshal(v any) ([]byte, error) {
	switch p := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return p, nil
	case json.RawMessage:
		return p, nil
	}
	return json.Marshal(v)
}

// Unmarshal 解码请求载荷
func (JSONCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// 错误帧载荷通用错误码
const (
	CodeBadRequest     int32 = 400
	CodeUnknownCommand int32 = 404
	CodeInternal       int32 = 500
)

// ErrorPayload 错误帧载荷
type ErrorPayload struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
	Cmd     int32  `json:"cmd,omitempty"` // 出错的请求命令码
}
