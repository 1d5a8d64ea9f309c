package frame

import (
	"encoding/binary"
	"errors"
)

var (
	ErrInvalidMagic = errors.New("invalid magic")
	ErrShortPacket  = errors.New("short packet")
	ErrBadLength    = errors.New("bad length")
	ErrBadChecksum  = errors.New("bad checksum")
)

// checksum16 累加校验（低16位），不包含最终的校验字段本身
func checksum16(b []byte) uint16 {
	var sum uint32
	for i := 0; i < len(b); i++ {
		sum += uint32(b[i])
	}
	return uint16(sum & 0xFFFF)
}

// Parse 解析一帧（严格校验：magic、长度、checksum）。
// 返回的 Payload 与 raw 共享底层数组。
func Parse(raw []byte) (*Frame, error) {
	if len(raw) < MinFrameLen {
		return nil, ErrShortPacket
	}
	if raw[0] != magic[0] || raw[1] != magic[1] {
		return nil, ErrInvalidMagic
	}
	totalLen := int(binary.LittleEndian.Uint32(raw[2:6]))
	if totalLen != len(raw) {
		return nil, ErrBadLength
	}
	got := binary.LittleEndian.Uint16(raw[len(raw)-sumLen:])
	if got != checksum16(raw[:len(raw)-sumLen]) {
		return nil, ErrBadChecksum
	}
	return &Frame{
		Cmd:     int32(binary.LittleEndian.Uint32(raw[6:10])),
		Seq:     binary.LittleEndian.Uint32(raw[10:14]),
		Payload: raw[headerLen : len(raw)-sumLen],
	}, nil
}

// StreamDecoder 处理半包/粘包的流式解码器，非并发安全（每连接一个）
type StreamDecoder struct {
	buf         []byte
	maxFrameLen int
	dropped     int
}

// NewStreamDecoder 创建流式解码器，maxFrameLen<=0 时使用默认上限
func NewStreamDecoder(maxFrameLen int) *StreamDecoder {
	if maxFrameLen <= 0 {
		maxFrameLen = DefaultMaxFrameLen
	}
	return &StreamDecoder{maxFrameLen: maxFrameLen}
}

// Feed 追加数据并尽可能解出多帧。返回的帧不引用内部缓冲区。
func (d *StreamDecoder) Feed(p []byte) ([]*Frame, error) {
	if len(p) == 0 {
		return nil, nil
	}
	d.buf = append(d.buf, p...)
	var frames []*Frame

	for {
		start := indexMagic(d.buf)
		if start < 0 {
			// 保留最后1字节以应对跨边界 magic
			if len(d.buf) > 1 {
				d.dropped += len(d.buf) - 1
				d.buf = d.buf[len(d.buf)-1:]
			}
			return frames, nil
		}
		if start > 0 {
			d.dropped += start
			d.buf = d.buf[start:]
		}
		if len(d.buf) < 6 {
			return frames, nil
		}
		totalLen := int(binary.LittleEndian.Uint32(d.buf[2:6]))
		if totalLen < MinFrameLen || totalLen > d.maxFrameLen {
			// 长度异常，滑动1字节重新同步
			d.skip(1)
			continue
		}
		if len(d.buf) < totalLen {
			return frames, nil
		}

		candidate := d.buf[:totalLen]
		fr, err := Parse(candidate)
		if err != nil {
			d.skip(1)
			continue
		}
		// 拷贝载荷，缓冲区后续会被复用
		fr.Payload = append([]byte(nil), fr.Payload...)
		frames = append(frames, fr)
		d.buf = d.buf[totalLen:]
		if len(d.buf) == 0 {
			d.buf = nil
			return frames, nil
		}
	}
}

// Buffered 尚未解出的缓冲字节数
func (d *StreamDecoder) Buffered() int { return len(d.buf) }

// Dropped 重新同步时累计丢弃的字节数
func (d *StreamDecoder) Dropped() int { return d.dropped }

func (d *StreamDecoder) skip(n int) {
	d.dropped += n
	d.buf = d.buf[n:]
}

// indexMagic 返回缓冲区中下一个 magic 开始位置
func indexMagic(b []byte) int {
	for i := 0; i+1 < len(b); i++ {
		if b[i] == magic[0] && b[i+1] == magic[1] {
			return i
		}
	}
	return -1
}
