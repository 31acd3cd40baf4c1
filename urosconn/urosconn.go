// Package urosconn implements the uniform TCP/UDP connection abstraction of
// spec.md component B: create/bind/listen/accept/connect/recv/send/shutdown/
// close with per-direction timeouts and TCP_NODELAY, on top of Go's net
// package the way the rosgo lineage already does (net.Dial/net.Listen), but
// factored out so the timeout and TCP_NODELAY policy lives in one place
// instead of being repeated at every call site.
package urosconn

import (
	"net"
	"strconv"
	"time"

	"github.com/openrobots-dev/urosnode/internal/rlog"
	"github.com/openrobots-dev/urosnode/roserr"
)

var log = rlog.For("urosconn")

// Proto selects the transport a new Endpoint is created over.
type Proto int

const (
	TCP Proto = iota
	UDP
)

// Addr is the {ip, port} pair of spec.md §3. The zero value ("0.0.0.0", 0)
// means "any", matching net.Listen's own convention for an empty host/port.
type Addr struct {
	IP   string
	Port uint16
}

func (a Addr) String() string {
	return net.JoinHostPort(a.IP, strconv.Itoa(int(a.Port)))
}

// Endpoint wraps a net.Conn (TCP) or net.PacketConn (UDP) with the
// recv/send-timeout and TCP_NODELAY policy spec.md §4.B specifies. Created
// via Connect (client) or via Listener.Accept (server).
type Endpoint struct {
	proto       Proto
	conn        net.Conn
	recvTimeout time.Duration
	sendTimeout time.Duration
}

// Listener accepts inbound TCP connections and yields Endpoints. UDP has no
// listen/accept phase in this abstraction — spec.md §1 treats UDPROS as a
// first-class socket citizen but out of scope for the protocol core, so only
// TCP gets a Listener here.
type Listener struct {
	ln net.Listener
}

// Listen binds local and starts listening with the given backlog hint. Go's
// net package does not expose backlog directly; it is accepted for
// config-surface parity with spec.md §6 (tcpros.listener.backlog,
// xmlrpc.listener.backlog) and is otherwise advisory.
func Listen(local Addr, backlog int) (*Listener, error) {
	ln, err := net.Listen("tcp", local.String())
	if err != nil {
		return nil, roserr.Wrap(roserr.NOCONN, "urosconn.Listen", err)
	}
	return &Listener{ln: ln}, nil
}

// Addr reports the bound local address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Accept blocks until a peer connects, returning a fresh Endpoint with the
// given default timeouts applied. The accept loop owner is expected to call
// Accept in a tight loop per spec.md §4.E ("Listener threads: accept in a
// tight loop"); closing the Listener unblocks a pending Accept with an error
// the caller should treat as a cancellation, not a fault.
func (l *Listener) Accept(recvTimeout, sendTimeout time.Duration) (*Endpoint, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, roserr.Wrap(roserr.NOCONN, "urosconn.Accept", err)
	}
	return &Endpoint{proto: TCP, conn: conn, recvTimeout: recvTimeout, sendTimeout: sendTimeout}, nil
}

// Close releases the listening socket, unblocking any pending Accept.
func (l *Listener) Close() error { return l.ln.Close() }

// Connect establishes an outbound TCP connection to remote. A refused or
// timed-out connection surfaces as roserr.NOCONN, per spec.md §4.B.
func Connect(remote string, recvTimeout, sendTimeout time.Duration) (*Endpoint, error) {
	conn, err := net.DialTimeout("tcp", remote, sendTimeout)
	if err != nil {
		return nil, roserr.Wrap(roserr.NOCONN, "urosconn.Connect("+remote+")", err)
	}
	return &Endpoint{proto: TCP, conn: conn, recvTimeout: recvTimeout, sendTimeout: sendTimeout}, nil
}

// SetTCPNoDelay toggles Nagle's algorithm on the underlying socket, honored
// by a publisher when the subscriber's handshake set tcp_nodelay=1.
func (e *Endpoint) SetTCPNoDelay(noDelay bool) error {
	if tc, ok := e.conn.(*net.TCPConn); ok {
		return tc.SetNoDelay(noDelay)
	}
	return nil
}

// SetRecvTimeout / SetSendTimeout override the per-direction timeouts
// established at construction.
func (e *Endpoint) SetRecvTimeout(d time.Duration) { e.recvTimeout = d }
func (e *Endpoint) SetSendTimeout(d time.Duration) { e.sendTimeout = d }

// Recv reads up to len(buf) bytes, applying the endpoint's recv timeout.
// Returns roserr.EOF if the peer closed the connection and roserr.TIMEOUT if
// the deadline elapsed with no data, matching spec.md §4.B's recv contract.
func (e *Endpoint) Recv(buf []byte) (int, error) {
	if e.recvTimeout > 0 {
		e.conn.SetReadDeadline(time.Now().Add(e.recvTimeout))
	} else {
		e.conn.SetReadDeadline(time.Time{})
	}
	n, err := e.conn.Read(buf)
	if err != nil {
		return n, classifyIOErr(err)
	}
	return n, nil
}

// Send writes all of buf, looping internally until every byte is
// transmitted or an error occurs, per spec.md §4.B's "Guarantees all bytes
// are transmitted on success" contract.
func (e *Endpoint) Send(buf []byte) error {
	if e.sendTimeout > 0 {
		e.conn.SetWriteDeadline(time.Now().Add(e.sendTimeout))
	} else {
		e.conn.SetWriteDeadline(time.Time{})
	}
	total := 0
	for total < len(buf) {
		n, err := e.conn.Write(buf[total:])
		total += n
		if err != nil {
			return classifyIOErr(err)
		}
	}
	return nil
}

// Shutdown half-closes the connection in the requested directions without
// releasing the underlying socket; Close must still be called afterwards.
func (e *Endpoint) Shutdown(rx, tx bool) error {
	if tc, ok := e.conn.(*net.TCPConn); ok {
		if rx {
			if err := tc.CloseRead(); err != nil {
				return err
			}
		}
		if tx {
			if err := tc.CloseWrite(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close releases the connection. Subsequent Recv/Send calls fail.
func (e *Endpoint) Close() error {
	log.Debug("closing endpoint")
	return e.conn.Close()
}

// Conn exposes the underlying net.Conn for layers (tcpros, xmlrpc) that need
// direct access to encoding/binary or bufio helpers without re-threading
// every primitive through this package.
func (e *Endpoint) Conn() net.Conn { return e.conn }

func classifyIOErr(err error) error {
	if err == nil {
		return nil
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return roserr.Wrap(roserr.TIMEOUT, "urosconn", err)
	}
	return roserr.Wrap(roserr.EOF, "urosconn", err)
}
