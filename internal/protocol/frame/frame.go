package frame

// Frame 游戏协议帧
// 布局（小端）：
// magic[2] 'G''S' | totalLen[4] | cmd[4] | seq[4] | payload[..] | sum[2]
// totalLen 为整帧长度（含 magic 与 sum），sum 为之前所有字节累加和的低 16 位。
type Frame struct {
	Cmd     int32
	Seq     uint32
	Payload []byte
}

var magic = []byte{0x47, 0x53} // 'G''S'

const (
	headerLen = 2 + 4 + 4 + 4
	sumLen    = 2
	// MinFrameLen 空载荷帧长度
	MinFrameLen = headerLen + sumLen
	// DefaultMaxFrameLen 流式解码默认单帧上限
	DefaultMaxFrameLen = 64 * 1024
)
