package protocol

import (
	"encoding/binary"
	"math"

	"github.com/google/uuid"
)

// Wire format: [VarInt length][VarInt packet id][payload]
// length counts the packet id and payload bytes.

// MaxFrameLength is the largest frame body a client may declare (3-byte VarInt limit).
const MaxFrameLength = 1<<21 - 1

// AppendVarInt appends v using the base-128 VarInt encoding.
// Negative values are encoded as their 32-bit two's complement.
func AppendVarInt(b []byte, v int32) []byte {
	u := uint32(v)
	for u&^0x7F != 0 {
		b = append(b, byte(u&0x7F)|0x80)
		u >>= 7
	}
	return append(b, byte(u))
}

// VarIntSize returns the encoded size of v in bytes.
func VarIntSize(v int32) int {
	u := uint32(v)
	n := 1
	for u&^0x7F != 0 {
		u >>= 7
		n++
	}
	return n
}

// PackPosition packs block coordinates as x:26 | z:26 | y:12 bits.
func PackPosition(x, y, z int32) int64 {
	return int64(uint64(uint32(x)&0x3FFFFFF)<<38 | uint64(uint32(z)&0x3FFFFFF)<<12 | uint64(uint32(y)&0xFFF))
}

// UnpackPosition reverses PackPosition, sign-extending every field.
func UnpackPosition(v int64) (x, y, z int32) {
	x = int32(v >> 38)
	y = int32(v << 52 >> 52)
	z = int32(v << 26 >> 38)
	return x, y, z
}

// Writer builds a packet payload.
type Writer struct {
	buf []byte
}

func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

// Bytes returns the written bytes. The slice aliases the writer's buffer.
func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) Reset() { w.buf = w.buf[:0] }

func (w *Writer) WriteVarInt(v int32) { w.buf = AppendVarInt(w.buf, v) }

func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

func (w *Writer) WriteByte(v byte) error {
	w.buf = append(w.buf, v)
	return nil
}

func (w *Writer) WriteUint16(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }

func (w *Writer) WriteInt32(v int32) { w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v)) }

func (w *Writer) WriteInt64(v int64) { w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(v)) }

func (w *Writer) WriteFloat32(v float32) { w.WriteInt32(int32(math.Float32bits(v))) }

func (w *Writer) WriteFloat64(v float64) { w.WriteInt64(int64(math.Float64bits(v))) }

// WriteString writes a VarInt length-prefixed UTF-8 string.
func (w *Writer) WriteString(s string) {
	w.WriteVarInt(int32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *Writer) WriteUUID(id uuid.UUID) { w.buf = append(w.buf, id[:]...) }

func (w *Writer) WritePosition(x, y, z int32) { w.WriteInt64(PackPosition(x, y, z)) }

// Write appends raw bytes. It never fails.
func (w *Writer) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// Frame encodes a complete frame for packetID and payload into a new slice.
func Frame(packetID int32, payload []byte) []byte {
	bodyLen := VarIntSize(packetID) + len(payload)
	out := make([]byte, 0, VarIntSize(int32(bodyLen))+bodyLen)
	out = AppendVarInt(out, int32(bodyLen))
	out = AppendVarInt(out, packetID)
	return append(out, payload...)
}

// NextFrame looks for one complete frame at the head of buf. On Complete it
// returns the frame body (packet id and payload) and the total number of bytes
// the frame occupies. Nothing is consumed otherwise.
func NextFrame(buf []byte) (body []byte, n int, res ProbeResult) {
	r := NewReader(buf)
	length, res := r.ProbeVarInt()
	if res != Complete {
		return nil, 0, res
	}
	if length < 0 || length > MaxFrameLength {
		return nil, 0, Malformed
	}
	if r.Remaining() < int(length) {
		return nil, 0, Incomplete
	}
	start := r.Pos()
	return buf[start : start+int(length)], start + int(length), Complete
}
