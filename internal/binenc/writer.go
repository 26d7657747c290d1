// Package binenc writes the fixed little-endian layout shared with the game server.
//
// Layout rules:
//   - integers are little-endian with no padding
//   - strings are a u32 byte count followed by the UTF-8 bytes
//   - UUIDs are 16 bytes with the first three groups byte-swapped (Microsoft GUID order)
//   - raw byte slices (keys) are written as-is with no prefix
package binenc

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// Writer accumulates encoded values. The zero value is ready to use.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with capacity preallocated for size bytes.
func NewWriter(size int) *Writer {
	return &Writer{buf: make([]byte, 0, size)}
}

// PutUint32 appends v as 4 little-endian bytes.
func (w *Writer) PutUint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// PutUint64 appends v as 8 little-endian bytes.
func (w *Writer) PutUint64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// PutBytes appends b without a length prefix.
func (w *Writer) PutBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// PutString appends the byte length of s as a u32 followed by its bytes.
func (w *Writer) PutString(s string) {
	w.PutUint32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// PutUUID appends id in little-endian field order.
func (w *Writer) PutUUID(id uuid.UUID) {
	w.buf = append(w.buf, UUIDBytesLE(id)...)
}

// Bytes returns the encoded buffer. The slice aliases the writer's storage.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}

// UUIDBytesLE returns the 16 bytes of id with the time_low, time_mid and
// time_hi_and_version fields reversed. The clock sequence and node bytes keep
// their network order.
func UUIDBytesLE(id uuid.UUID) []byte {
	out := make([]byte, 16)
	copy(out, id[:])
	out[0], out[1], out[2], out[3] = id[3], id[2], id[1], id[0]
	out[4], out[5] = id[5], id[4]
	out[6], out[7] = id[7], id[6]
	return out
}
