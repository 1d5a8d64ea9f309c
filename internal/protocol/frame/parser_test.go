package frame

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildParse_RoundTrip(t *testing.T) {
	raw := Build(100, 7, []byte(`{"name":"bob"}`))
	require.Len(t, raw, MinFrameLen+14)
	assert.Equal(t, uint32(len(raw)), binary.LittleEndian.Uint32(raw[2:6]))

	fr, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, int32(100), fr.Cmd)
	assert.Equal(t, uint32(7), fr.Seq)
	assert.Equal(t, []byte(`{"name":"bob"}`), fr.Payload)
	assert.Equal(t, raw, fr.Encode())
}

func TestBuild_NegativeCommand(t *testing.T) {
	fr, err := Parse(Build(-5, 0, nil))
	require.NoError(t, err)
	assert.Equal(t, int32(-5), fr.Cmd)
	assert.Empty(t, fr.Payload)
}

func TestParse_Errors(t *testing.T) {
	good := Build(1, 1, []byte{1, 2, 3})

	tests := []struct {
		name    string
		mutate  func([]byte) []byte
		wantErr error
	}{
		{"short", func(b []byte) []byte { return b[:MinFrameLen-1] }, ErrShortPacket},
		{"magic", func(b []byte) []byte { b[0] = 'X'; return b }, ErrInvalidMagic},
		{"length", func(b []byte) []byte { return append(b, 0) }, ErrBadLength},
		{"checksum", func(b []byte) []byte { b[len(b)-3] ^= 0xFF; return b }, ErrBadChecksum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := tt.mutate(append([]byte(nil), good...))
			_, err := Parse(raw)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestStreamDecoder_HalfAndStickyPackets(t *testing.T) {
	a := Build(1, 1, []byte("first"))
	b := Build(2, 2, []byte("second"))
	c := Build(3, 3, nil)
	stream := append(append(append([]byte(nil), a...), b...), c...)

	d := NewStreamDecoder(0)
	var got []*Frame
	// 逐字节喂入
	for i := range stream {
		frames, err := d.Feed(stream[i : i+1])
		require.NoError(t, err)
		got = append(got, frames...)
	}
	require.Len(t, got, 3)
	assert.Equal(t, []byte("first"), got[0].Payload)
	assert.Equal(t, []byte("second"), got[1].Payload)
	assert.Equal(t, int32(3), got[2].Cmd)
	assert.Zero(t, d.Buffered())

	// 一次喂入多帧
	frames, err := d.Feed(stream)
	require.NoError(t, err)
	assert.Len(t, frames, 3)
}

func TestStreamDecoder_ResyncOnGarbage(t *testing.T) {
	fr := Build(9, 1, []byte("ok"))
	corrupt := Build(8, 1, []byte("bad"))
	corrupt[len(corrupt)-1] ^= 0xFF

	stream := append([]byte("noise-G"), corrupt...)
	stream = append(stream, fr...)

	d := NewStreamDecoder(0)
	frames, err := d.Feed(stream)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, int32(9), frames[0].Cmd)
	assert.Positive(t, d.Dropped())
}

func TestStreamDecoder_MaxFrameLen(t *testing.T) {
	big := Build(1, 1, make([]byte, 100))
	small := Build(2, 2, nil)

	d := NewStreamDecoder(64)
	frames, err := d.Feed(append(big, small...))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, int32(2), frames[0].Cmd)
}

func TestStreamDecoder_PayloadNotAliased(t *testing.T) {
	raw := Build(1, 1, []byte("abc"))
	d := NewStreamDecoder(0)
	frames, err := d.Feed(raw)
	require.NoError(t, err)
	require.Len(t, frames, 1)

	raw[headerLen] = 'z'
	assert.Equal(t, []byte("abc"), frames[0].Payload)
}

func TestStreamDecoder_EmptyInput(t *testing.T) {
	frames, err := NewStreamDecoder(0).Feed(nil)
	assert.NoError(t, err)
	assert.Nil(t, frames)
}
