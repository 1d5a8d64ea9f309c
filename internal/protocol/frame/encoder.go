package frame

import "encoding/binary"

// Build 构造一帧下行数据（与 Parse 对应）
func Build(cmd int32, seq uint32, payload []byte) []byte {
	total := MinFrameLen + len(payload)
	buf := make([]byte, headerLen, total)
	copy(buf, magic)
	binary.LittleEndian.PutUint32(buf[2:6], uint32(total))
	binary.LittleEndian.PutUint32(buf[6:10], uint32(cmd))
	binary.LittleEndian.PutUint32(buf[10:14], seq)
	buf = append(buf, payload...)
	return binary.LittleEndian.AppendUint16(buf, checksum16(buf))
}

// Encode 按帧结构编码
func (f *Frame) Encode() []byte {
	return Build(f.Cmd, f.Seq, f.Payload)
}
