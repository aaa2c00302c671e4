package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// MaxVarIntLen is the maximum number of 7-bit groups in a VarInt.
const MaxVarIntLen = 5

var (
	ErrVarIntTooBig  = errors.New("VarInt too big")
	ErrShortBuffer   = errors.New("not enough bytes")
	ErrStringLength  = errors.New("invalid string length")
	ErrNegativeCount = errors.New("negative length")
)

// ProbeResult is the outcome of a non-consuming decode attempt.
type ProbeResult uint8

const (
	// Complete means the value was decoded and the cursor advanced past it.
	Complete ProbeResult = iota
	// Incomplete means more bytes are needed; the cursor is unchanged.
	Incomplete
	// Malformed means the bytes can never form a valid value; the cursor is unchanged.
	Malformed
)

func (p ProbeResult) String() string {
	switch p {
	case Complete:
		return "complete"
	case Incomplete:
		return "incomplete"
	case Malformed:
		return "malformed"
	default:
		return fmt.Sprintf("ProbeResult(%d)", uint8(p))
	}
}

// Reader is a cursor over a byte slice. It never reads past the slice and
// returns ErrShortBuffer instead of panicking.
type Reader struct {
	buf []byte
	pos int
}

// Mark is a saved cursor position.
type Mark int

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Mark saves the current position.
func (r *Reader) Mark() Mark { return Mark(r.pos) }

// Reset restores a position saved with Mark.
func (r *Reader) Reset(m Mark) { r.pos = int(m) }

// Pos returns the number of bytes consumed so far.
func (r *Reader) Pos() int { return r.pos }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// ProbeVarInt attempts to decode a VarInt without committing to it.
// On anything but Complete the cursor is restored.
func (r *Reader) ProbeVarInt() (int32, ProbeResult) {
	start := r.Mark()
	var value uint32
	for i := 0; i < MaxVarIntLen; i++ {
		if r.pos >= len(r.buf) {
			r.Reset(start)
			return 0, Incomplete
		}
		b := r.buf[r.pos]
		r.pos++
		value |= uint32(b&0x7F) << (7 * i)
		if b&0x80 == 0 {
			return int32(value), Complete
		}
	}
	r.Reset(start)
	return 0, Malformed
}

func (r *Reader) ReadVarInt() (int32, error) {
	v, res := r.ProbeVarInt()
	switch res {
	case Complete:
		return v, nil
	case Malformed:
		return 0, ErrVarIntTooBig
	default:
		return 0, fmt.Errorf("read VarInt: %w", ErrShortBuffer)
	}
}

func (r *Reader) next(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrNegativeCount
	}
	if r.Remaining() < n {
		return nil, fmt.Errorf("need %d bytes, have %d: %w", n, r.Remaining(), ErrShortBuffer)
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadBytes returns the next n bytes. The slice aliases the underlying buffer.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	return r.next(n)
}

// Rest returns every unread byte and moves the cursor to the end.
func (r *Reader) Rest() []byte {
	b := r.buf[r.pos:]
	r.pos = len(r.buf)
	return b
}

// ReadString reads a VarInt length-prefixed UTF-8 string.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadVarInt()
	if err != nil {
		return "", fmt.Errorf("read string length: %w", err)
	}
	if n < 0 || int(n) > r.Remaining() {
		return "", fmt.Errorf("%w: %d with %d bytes left", ErrStringLength, n, r.Remaining())
	}
	b, _ := r.next(int(n))
	return string(b), nil
}

func (r *Reader) ReadByte() (byte, error) {
	b, err := r.next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadByte()
	return b != 0, err
}

func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.next(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *Reader) ReadInt32() (int32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

func (r *Reader) ReadInt64() (int64, error) {
	b, err := r.next(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadInt32()
	return math.Float32frombits(uint32(v)), err
}

func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadInt64()
	return math.Float64frombits(uint64(v)), err
}

// ReadUUID reads a 128-bit identifier stored as two big-endian 64-bit halves.
func (r *Reader) ReadUUID() (uuid.UUID, error) {
	var id uuid.UUID
	b, err := r.next(len(id))
	if err != nil {
		return uuid.Nil, fmt.Errorf("read uuid: %w", err)
	}
	copy(id[:], b)
	return id, nil
}

// ReadPosition reads a packed block position.
func (r *Reader) ReadPosition() (x, y, z int32, err error) {
	v, err := r.ReadInt64()
	if err != nil {
		return 0, 0, 0, err
	}
	x, y, z = UnpackPosition(v)
	return x, y, z, nil
}
