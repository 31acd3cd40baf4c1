package ros

import (
	"bufio"
	"encoding/binary"
	"io"
)

// Reader wraps an io.Reader with the little-endian scalar and
// length-prefixed string helpers spec.md §6 promises to generated
// message codecs ("the middleware provides helpers to send/recv raw
// little-endian scalars and length-prefixed strings and length-prefixed
// arrays"). A Message's Deserialize method is hand-written per type but
// always built from these primitives.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps r; if r is already a *bufio.Reader it is used directly.
func NewReader(r io.Reader) *Reader {
	if br, ok := r.(*bufio.Reader); ok {
		return &Reader{r: br}
	}
	return &Reader{r: bufio.NewReader(r)}
}

func (r *Reader) ReadUint8() (uint8, error) {
	return r.r.ReadByte()
}

func (r *Reader) ReadBool() (bool, error) {
	b, err := r.r.ReadByte()
	return b != 0, err
}

func (r *Reader) ReadUint32() (uint32, error) {
	var v uint32
	err := binary.Read(r.r, binary.LittleEndian, &v)
	return v, err
}

func (r *Reader) ReadInt32() (int32, error) {
	var v int32
	err := binary.Read(r.r, binary.LittleEndian, &v)
	return v, err
}

func (r *Reader) ReadUint64() (uint64, error) {
	var v uint64
	err := binary.Read(r.r, binary.LittleEndian, &v)
	return v, err
}

func (r *Reader) ReadFloat64() (float64, error) {
	var v float64
	err := binary.Read(r.r, binary.LittleEndian, &v)
	return v, err
}

// ReadString reads a u32-LE length followed by that many bytes, the String
// shape spec.md §3 defines for every wire-level string.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// ReadBytes reads n raw bytes with no length prefix of their own.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	_, err := io.ReadFull(r.r, buf)
	return buf, err
}
