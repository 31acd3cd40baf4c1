package urosconn

import (
	"testing"
	"time"

	"github.com/openrobots-dev/urosnode/roserr"
)

func isTimeout(err error) bool { return roserr.Is(err, roserr.TIMEOUT) }

func TestListenAcceptConnectSendRecv(t *testing.T) {
	ln, err := Listen(Addr{IP: "127.0.0.1", Port: 0}, 8)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan *Endpoint, 1)
	acceptErr := make(chan error, 1)
	go func() {
		ep, err := ln.Accept(time.Second, time.Second)
		if err != nil {
			acceptErr <- err
			return
		}
		accepted <- ep
	}()

	client, err := Connect(ln.Addr().String(), time.Second, time.Second)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	var server *Endpoint
	select {
	case server = <-accepted:
	case err := <-acceptErr:
		t.Fatalf("Accept: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for accept")
	}
	defer server.Close()

	if err := client.Send([]byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	buf := make([]byte, 5)
	n, err := server.Recv(buf)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("Recv = %q, want %q", buf[:n], "hello")
	}
}

func TestRecvTimeout(t *testing.T) {
	ln, err := Listen(Addr{IP: "127.0.0.1", Port: 0}, 8)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan *Endpoint, 1)
	go func() {
		ep, err := ln.Accept(50*time.Millisecond, time.Second)
		if err == nil {
			accepted <- ep
		}
	}()

	client, err := Connect(ln.Addr().String(), time.Second, time.Second)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	server := <-accepted
	defer server.Close()

	buf := make([]byte, 16)
	_, err = server.Recv(buf)
	if !isTimeout(err) {
		t.Fatalf("Recv error = %v, want timeout", err)
	}
}
