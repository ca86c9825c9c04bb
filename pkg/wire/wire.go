// Package wire holds small binary-decoding helpers shared by the payload
// depacketizers (gaze, imu, eyeevent) and by pkg/control. Multi-byte
// numeric fields in the eye-event and IMU payloads are little-endian except
// where a field is inherited directly from the RTP/RTCP layer (which stays
// network byte order, consistent with RTP itself); gaze payload fields are
// big-endian. See DESIGN.md for the eye-event/IMU byte-order decision.
package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ErrShortBuffer is returned by the reader helpers when the payload is
// shorter than the field being decoded requires.
type ErrShortBuffer struct {
	Want int
	Have int
}

func (e *ErrShortBuffer) Error() string {
	return fmt.Sprintf("wire: short buffer: want %d bytes, have %d", e.Want, e.Have)
}

// Reader walks a byte slice left to right, decoding fixed-width fields.
// It never panics: once a short read happens, every subsequent read is a
// no-op that returns a zero value, and Err() reports the first failure.
type Reader struct {
	buf []byte
	off int
	err error
}

// NewReader wraps buf for sequential decoding.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Err returns the first decode error encountered, if any.
func (r *Reader) Err() error {
	return r.err
}

// Remaining reports how many bytes are left undecoded.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.Remaining() < n {
		r.err = &ErrShortBuffer{Want: n, Have: r.Remaining()}
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

// U8 reads one byte.
func (r *Reader) U8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// F32LE reads a little-endian IEEE-754 float32 (the device's native
// byte order for custom payload fields).
func (r *Reader) F32LE() float32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

// F32BE reads a big-endian (network byte order) IEEE-754 float32, used for
// the gaze payload fields, which are network byte order.
func (r *Reader) F32BE() float32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return math.Float32frombits(binary.BigEndian.Uint32(b))
}

// F64BE reads a big-endian IEEE-754 float64.
func (r *Reader) F64BE() float64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b))
}

// U64LE reads a little-endian uint64, used for IMU/eye-event timestamps
// that are not inherited from the RTP layer.
func (r *Reader) U64LE() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// I64LE reads a little-endian int64.
func (r *Reader) I64LE() int64 {
	return int64(r.U64LE())
}

// PutF32BE appends a big-endian float32, used by encoders/tests that build
// gaze payload fixtures.
func PutF32BE(dst []byte, v float32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], math.Float32bits(v))
	return append(dst, b[:]...)
}

// PutF64BE appends a big-endian float64.
func PutF64BE(dst []byte, v float64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	return append(dst, b[:]...)
}

// PutF32LE appends a little-endian float32.
func PutF32LE(dst []byte, v float32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
	return append(dst, b[:]...)
}

// PutU64LE appends a little-endian uint64.
func PutU64LE(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}
