// Package tcpros implements the TCPROS wire protocol of spec.md component D:
// the key=value connection header handshake, length-prefixed message
// framing, and request/response service-call framing, plus the session
// state and handler delegation both publisher and subscriber/service roles
// share.
package tcpros

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"strings"

	"github.com/openrobots-dev/urosnode/roserr"
)

// Header is one key=value entry of a TCPROS connection header block.
type Header struct {
	Key   string
	Value string
}

// HeaderMap is the decoded connection header, keyed the way spec.md §3's
// table enumerates: callerid, topic, service, type, md5sum,
// message_definition, request_type, response_type, error, latching,
// tcp_nodelay, persistent, probe. Unknown keys are kept too (round-trip
// invariant 4 in spec.md §8) but otherwise ignored by every validator here.
type HeaderMap map[string]string

// WriteHeader encodes headers as spec.md §3/§6 specify: a 4-byte
// little-endian total length followed by each entry as a 4-byte
// little-endian entry length and "key=value" bytes.
func WriteHeader(w io.Writer, headers []Header) error {
	var body bytes.Buffer
	for _, h := range headers {
		entry := h.Key + "=" + h.Value
		if err := binary.Write(&body, binary.LittleEndian, uint32(len(entry))); err != nil {
			return roserr.Wrap(roserr.BADCONN, "tcpros.WriteHeader", err)
		}
		body.WriteString(entry)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(body.Len())); err != nil {
		return roserr.Wrap(roserr.BADCONN, "tcpros.WriteHeader", err)
	}
	if _, err := w.Write(body.Bytes()); err != nil {
		return roserr.Wrap(roserr.BADCONN, "tcpros.WriteHeader", err)
	}
	return nil
}

// WriteHeaderMap is a convenience wrapper that preserves no particular key
// order (map iteration order); callers needing deterministic wire output
// for tests should use WriteHeader directly with an explicit slice.
func WriteHeaderMap(w io.Writer, m HeaderMap) error {
	headers := make([]Header, 0, len(m))
	for k, v := range m {
		headers = append(headers, Header{Key: k, Value: v})
	}
	return WriteHeader(w, headers)
}

// ReadHeader decodes a header block per the wire format described above.
// Per spec.md §4.D: every entry must contain at least one '='; if a known
// key repeats, the later value wins (map assignment already gives us that);
// unknown keys are kept in the returned map but otherwise ignored.
func ReadHeader(r io.Reader) (HeaderMap, error) {
	var totalLen uint32
	if err := binary.Read(r, binary.LittleEndian, &totalLen); err != nil {
		return nil, classifyReadErr(err)
	}
	body := make([]byte, totalLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, classifyReadErr(err)
	}

	headers := make(HeaderMap)
	pos := 0
	for pos < len(body) {
		if pos+4 > len(body) {
			return nil, roserr.New(roserr.PARSE, "tcpros: truncated header entry length")
		}
		entryLen := binary.LittleEndian.Uint32(body[pos : pos+4])
		pos += 4
		if pos+int(entryLen) > len(body) {
			return nil, roserr.New(roserr.PARSE, "tcpros: truncated header entry")
		}
		entry := string(body[pos : pos+int(entryLen)])
		pos += int(entryLen)

		idx := strings.IndexByte(entry, '=')
		if idx < 0 {
			return nil, roserr.New(roserr.PARSE, "tcpros: header entry missing '=': "+entry)
		}
		headers[entry[:idx]] = entry[idx+1:]
	}
	return headers, nil
}

func classifyReadErr(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return roserr.Wrap(roserr.EOF, "tcpros.ReadHeader", err)
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return roserr.Wrap(roserr.TIMEOUT, "tcpros.ReadHeader", err)
	}
	return roserr.Wrap(roserr.BADCONN, "tcpros.ReadHeader", err)
}

// Validate checks the received headers against expectations spec.md §3's
// table names: topic/service name must match, type must match exactly,
// md5sum must match or be "*". It returns a BADCONN roserr on any
// mismatch; callers abort the handshake without partial acceptance,
// per spec.md §7.
func (h HeaderMap) Validate(wantNameKey, wantName, wantType, wantMD5 string) error {
	if got := h[wantNameKey]; got != wantName {
		return roserr.New(roserr.BADCONN, "tcpros: "+wantNameKey+" mismatch: got "+got+", want "+wantName)
	}
	if got := h["type"]; got != wantType {
		return roserr.New(roserr.BADCONN, "tcpros: type mismatch: got "+got+", want "+wantType)
	}
	if got := h["md5sum"]; got != wantMD5 && got != "*" {
		return roserr.New(roserr.BADCONN, "tcpros: md5sum mismatch: got "+got+", want "+wantMD5)
	}
	return nil
}

// IsTrue reports whether a boolean-flag header ("1") is set.
func (h HeaderMap) IsTrue(key string) bool { return h[key] == "1" }
