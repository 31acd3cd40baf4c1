package tcpros

import (
	"context"
	"net"
	"time"

	"github.com/openrobots-dev/urosnode/internal/rlog"
	"github.com/openrobots-dev/urosnode/roserr"
	"github.com/sirupsen/logrus"
)

var log = rlog.For("tcpros")

// Session is the {conn, topic/service ref, err, errstr, exit-flag,
// received-headers} state of spec.md §3. exitCtx is the cooperative
// cancellation signal the Node sets at shutdown (spec.md §5): handlers
// check it between frames, never mid-frame, so a length+body pair is never
// left half-read on the wire.
type Session struct {
	Conn    net.Conn
	Headers HeaderMap
	exitCtx context.Context
	cancel  context.CancelFunc
}

// NewSession wraps conn with a fresh cancellation context derived from
// parent (typically the Node's own shutdown context).
func NewSession(parent context.Context, conn net.Conn) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{Conn: conn, exitCtx: ctx, cancel: cancel}
}

// RequestExit trips the cooperative cancellation signal. Safe to call more
// than once and from any goroutine.
func (s *Session) RequestExit() { s.cancel() }

// ExitRequested reports whether RequestExit (or the parent context) has
// fired. Handler loops check this between frames per spec.md §5.
func (s *Session) ExitRequested() bool {
	select {
	case <-s.exitCtx.Done():
		return true
	default:
		return false
	}
}

// Done returns the channel that closes when RequestExit fires, for
// handlers built around select rather than polling.
func (s *Session) Done() <-chan struct{} { return s.exitCtx.Done() }

// PublisherHandshake implements spec.md §4.D "Peer-initiated topic session
// (we are publisher)" steps 1-3: read the subscriber's headers, validate
// topic/type/md5sum, and write our own headers (including tcp_nodelay=1 if
// the subscriber requested it, in which case TCP no-delay is also set on the
// socket). With probe=1 the headers are still written and probeOnly is
// true, so the caller closes the connection without sending a body.
func PublisherHandshake(conn net.Conn, callerID, topic, msgType, md5sum, messageDefinition string, latching bool) (headers HeaderMap, probeOnly bool, err error) {
	peerHeaders, err := ReadHeader(conn)
	if err != nil {
		return nil, false, err
	}
	if err := peerHeaders.Validate("topic", topic, msgType, md5sum); err != nil {
		return nil, false, err
	}

	ours := []Header{
		{"callerid", callerID},
		{"topic", topic},
		{"type", msgType},
		{"md5sum", md5sum},
	}
	if messageDefinition != "" {
		ours = append(ours, Header{"message_definition", messageDefinition})
	}
	if latching {
		ours = append(ours, Header{"latching", "1"})
	}
	if peerHeaders.IsTrue("tcp_nodelay") {
		ours = append(ours, Header{"tcp_nodelay", "1"})
	}
	if err := WriteHeader(conn, ours); err != nil {
		return nil, false, err
	}

	if peerHeaders.IsTrue("probe") {
		return peerHeaders, true, nil
	}
	if peerHeaders.IsTrue("tcp_nodelay") {
		if tc, ok := conn.(*net.TCPConn); ok {
			tc.SetNoDelay(true)
		}
	}
	return peerHeaders, false, nil
}

// SubscriberHandshake implements spec.md §4.D "Locally-initiated topic
// session (we are subscriber)" step 2: write our headers, read and validate
// the publisher's response.
func SubscriberHandshake(conn net.Conn, callerID, topic, msgType, md5sum string) (HeaderMap, error) {
	ours := []Header{
		{"callerid", callerID},
		{"topic", topic},
		{"type", msgType},
		{"md5sum", md5sum},
	}
	if err := WriteHeader(conn, ours); err != nil {
		return nil, err
	}
	peerHeaders, err := ReadHeader(conn)
	if err != nil {
		return nil, err
	}
	if got := peerHeaders["type"]; got != msgType {
		return peerHeaders, roserr.New(roserr.BADCONN, "tcpros: publisher type mismatch: got "+got+", want "+msgType)
	}
	if got := peerHeaders["md5sum"]; got != md5sum && got != "*" {
		return peerHeaders, roserr.New(roserr.BADCONN, "tcpros: publisher md5sum mismatch: got "+got+", want "+md5sum)
	}
	return peerHeaders, nil
}

// ServiceHandshake implements spec.md §4.D "Peer-initiated service session"
// step 1: read and validate the caller's headers, reply with ours.
func ServiceHandshake(conn net.Conn, callerID, service, reqType, resType, md5sum string) (HeaderMap, error) {
	peerHeaders, err := ReadHeader(conn)
	if err != nil {
		return nil, err
	}
	if got := peerHeaders["service"]; got != service {
		return nil, roserr.New(roserr.BADCONN, "tcpros: service mismatch: got "+got+", want "+service)
	}
	if got := peerHeaders["md5sum"]; got != md5sum && got != "*" {
		return nil, roserr.New(roserr.BADCONN, "tcpros: service md5sum mismatch: got "+got+", want "+md5sum)
	}
	ours := []Header{
		{"callerid", callerID},
		{"type", reqType},
		{"md5sum", md5sum},
	}
	if resType != "" {
		ours = append(ours, Header{"response_type", resType})
	}
	if err := WriteHeader(conn, ours); err != nil {
		return nil, err
	}
	return peerHeaders, nil
}

// ServiceCallHandshake implements spec.md §4.D "Locally-initiated service
// call" handshake: write our headers naming the service, read the
// provider's response headers.
func ServiceCallHandshake(conn net.Conn, callerID, service, reqType, resType, md5sum string, persistent bool) (HeaderMap, error) {
	ours := []Header{
		{"callerid", callerID},
		{"service", service},
		{"md5sum", md5sum},
	}
	if reqType != "" {
		ours = append(ours, Header{"type", reqType})
	}
	if persistent {
		ours = append(ours, Header{"persistent", "1"})
	}
	if err := WriteHeader(conn, ours); err != nil {
		return nil, err
	}
	return ReadHeader(conn)
}

// RunSubscribeLoop reads length-prefixed message frames from conn and
// delivers each to deliver, until the session's exit flag trips, deliver
// returns an error, or a non-timeout I/O error occurs. recvTimeout bounds
// each individual frame read so the loop can observe ExitRequested promptly
// instead of blocking forever in a single conn.Read; a read that times out
// is retried, so an idle connection is never dropped for inactivity alone.
func (s *Session) RunSubscribeLoop(recvTimeout time.Duration, deliver func(body []byte) error) error {
	logger := *log
	for {
		if s.ExitRequested() {
			return nil
		}
		if recvTimeout > 0 {
			s.Conn.SetReadDeadline(time.Now().Add(recvTimeout))
		}
		body, err := ReadFrame(s.Conn)
		if err != nil {
			if roserr.Is(err, roserr.TIMEOUT) {
				continue
			}
			return err
		}
		if err := deliver(body); err != nil {
			logger.WithFields(logrus.Fields{"error": err}).Warn("subscriber deliver callback failed")
			return err
		}
	}
}

// RunPublishLoop writes frames produced by produce to conn until the
// session's exit flag trips or a write fails. produce should block (e.g. on
// a channel) but must also observe ctx.Done so a shutdown doesn't leave it
// parked forever; RunPublishLoop passes the session's own context for
// exactly that purpose.
func (s *Session) RunPublishLoop(produce func(ctx context.Context) ([]byte, bool)) error {
	for {
		if s.ExitRequested() {
			return nil
		}
		body, ok := produce(s.exitCtx)
		if !ok {
			return nil
		}
		if err := WriteFrame(s.Conn, body); err != nil {
			return err
		}
	}
}
