package ros

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestReaderScalars(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(1)                                              // bool true
	binary.Write(&buf, binary.LittleEndian, uint32(42))           // uint32
	binary.Write(&buf, binary.LittleEndian, int32(-7))            // int32
	binary.Write(&buf, binary.LittleEndian, float64(3.25))        // float64

	r := NewReader(&buf)

	b, err := r.ReadBool()
	if err != nil || !b {
		t.Fatalf("ReadBool = %v, %v", b, err)
	}
	u, err := r.ReadUint32()
	if err != nil || u != 42 {
		t.Fatalf("ReadUint32 = %v, %v", u, err)
	}
	i, err := r.ReadInt32()
	if err != nil || i != -7 {
		t.Fatalf("ReadInt32 = %v, %v", i, err)
	}
	f, err := r.ReadFloat64()
	if err != nil || f != 3.25 {
		t.Fatalf("ReadFloat64 = %v, %v", f, err)
	}
}

func TestReaderString(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(5))
	buf.WriteString("hello")

	r := NewReader(&buf)
	s, err := r.ReadString()
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if s != "hello" {
		t.Fatalf("ReadString = %q, want %q", s, "hello")
	}
}

func TestReaderBytes(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{1, 2, 3, 4}))
	b, err := r.ReadBytes(3)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if !bytes.Equal(b, []byte{1, 2, 3}) {
		t.Fatalf("ReadBytes = %v", b)
	}
}
