package tcpros

import (
	"bytes"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestHeaderRoundTrip(t *testing.T) {
	in := []Header{
		{"callerid", "/sub1"},
		{"topic", "/chatter"},
		{"type", "std_msgs/String"},
		{"md5sum", "992ce8a1687cec8c8bd883ec73ca41d1"},
	}
	var buf bytes.Buffer
	if err := WriteHeader(&buf, in); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	out, err := ReadHeader(&buf)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	for _, h := range in {
		if out[h.Key] != h.Value {
			t.Fatalf("header %q = %q, want %q", h.Key, out[h.Key], h.Value)
		}
	}
}

func TestHeaderLaterDuplicateWins(t *testing.T) {
	var buf bytes.Buffer
	WriteHeader(&buf, []Header{{"md5sum", "first"}, {"md5sum", "second"}})
	out, err := ReadHeader(&buf)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if out["md5sum"] != "second" {
		t.Fatalf("md5sum = %q, want %q", out["md5sum"], "second")
	}
}

func TestHeaderRejectsEntryWithoutEquals(t *testing.T) {
	var body bytes.Buffer
	entry := "noequalshere"
	writeUint32(&body, uint32(len(entry)))
	body.WriteString(entry)

	var framed bytes.Buffer
	writeUint32(&framed, uint32(body.Len()))
	framed.Write(body.Bytes())

	if _, err := ReadHeader(&framed); err == nil {
		t.Fatal("expected error for header entry missing '='")
	}
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	buf.WriteByte(byte(v))
	buf.WriteByte(byte(v >> 8))
	buf.WriteByte(byte(v >> 16))
	buf.WriteByte(byte(v >> 24))
}

func TestFrameConsumesExactlyDeclaredLength(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, []byte("Hello")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	buf.WriteString("EXTRA")
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if string(got) != "Hello" {
		t.Fatalf("ReadFrame = %q", got)
	}
	rest := buf.Bytes()
	if string(rest) != "EXTRA" {
		t.Fatalf("leftover = %q, want %q", rest, "EXTRA")
	}
}

func TestServiceCallSuccess(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ServeServiceTurn(c2, func(request []byte) ([]byte, string) {
			return []byte{7, 0, 0, 0, 0, 0, 0, 0}, ""
		})
	}()

	resp, err := CallService(c1, []byte{3, 0, 0, 0, 4, 0, 0, 0})
	if err != nil {
		t.Fatalf("CallService: %v", err)
	}
	if len(resp) != 8 || resp[0] != 7 {
		t.Fatalf("resp = %v", resp)
	}
	wg.Wait()
}

func TestServiceCallFailureSurfacesErrstr(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	go ServeServiceTurn(c2, func(request []byte) ([]byte, string) {
		return nil, "a and b negative"
	})

	_, err := CallService(c1, []byte{1})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "a and b negative") {
		t.Fatalf("error = %q, want it to carry the provider's errstr", err.Error())
	}
}

func TestPublisherHandshakeProbe(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		WriteHeader(c1, []Header{
			{"callerid", "/sub1"},
			{"topic", "/chatter"},
			{"type", "std_msgs/String"},
			{"md5sum", "992ce8a1687cec8c8bd883ec73ca41d1"},
			{"probe", "1"},
		})
		ReadHeader(c1)
	}()

	_, probeOnly, err := PublisherHandshake(c2, "/talker", "/chatter", "std_msgs/String", "992ce8a1687cec8c8bd883ec73ca41d1", "", false)
	if err != nil {
		t.Fatalf("PublisherHandshake: %v", err)
	}
	if !probeOnly {
		t.Fatal("expected probeOnly=true")
	}
	<-done
}

func TestRunSubscribeLoopSurvivesReadTimeout(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	sess := NewSession(context.Background(), c2)
	delivered := make(chan []byte, 1)
	done := make(chan error, 1)
	go func() {
		done <- sess.RunSubscribeLoop(20*time.Millisecond, func(body []byte) error {
			delivered <- body
			return nil
		})
	}()

	// No frame arrives for longer than recvTimeout: the read deadline set by
	// RunSubscribeLoop expires at least once before c1 ever writes. The loop
	// must classify that as roserr.TIMEOUT and keep waiting rather than
	// surfacing it as a connection failure.
	time.Sleep(60 * time.Millisecond)
	if err := WriteFrame(c1, []byte("hello")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	select {
	case body := <-delivered:
		if string(body) != "hello" {
			t.Fatalf("delivered = %q, want %q", body, "hello")
		}
	case err := <-done:
		t.Fatalf("RunSubscribeLoop returned before delivering a frame: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("RunSubscribeLoop never delivered the frame sent after the timeout")
	}

	sess.RequestExit()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunSubscribeLoop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunSubscribeLoop did not observe RequestExit")
	}
}

func TestSessionExitFlagStopsSubscribeLoop(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	sess := NewSession(context.Background(), c2)
	done := make(chan error, 1)
	go func() {
		done <- sess.RunSubscribeLoop(100*time.Millisecond, func(body []byte) error { return nil })
	}()

	sess.RequestExit()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunSubscribeLoop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunSubscribeLoop did not observe RequestExit")
	}
}
