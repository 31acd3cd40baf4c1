package tcpros

import (
	"encoding/binary"
	"io"

	"github.com/openrobots-dev/urosnode/roserr"
)

// MaxReasonableFrame bounds a single message/request/response frame. A
// length above this is treated as a desynchronized stream rather than a
// legitimate huge message, mirroring the original's MTU-aware sanity check
// (spec.md's Supplemented Features, SPEC_FULL.md §3) and the rosgo-family
// subscription's readOutOfSync handling of an implausible size.
const MaxReasonableFrame = 256 * 1000 * 1000

// WriteFrame writes a u32-LE length followed by body, the framing invariant
// every message/request/response uses (spec.md §4.D, §6, §8 invariant 5).
func WriteFrame(w io.Writer, body []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(body))); err != nil {
		return roserr.Wrap(roserr.BADCONN, "tcpros.WriteFrame", err)
	}
	if len(body) == 0 {
		return nil
	}
	if _, err := w.Write(body); err != nil {
		return roserr.Wrap(roserr.BADCONN, "tcpros.WriteFrame", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame, consuming exactly the number
// of bytes its own length prefix names (spec.md §8 invariant 5). A length
// past MaxReasonableFrame is reported as roserr.PARSE (out-of-sync stream)
// rather than attempting a huge allocation.
func ReadFrame(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, classifyReadErr(err)
	}
	if n > MaxReasonableFrame {
		return nil, roserr.New(roserr.PARSE, "tcpros: frame length implausible, stream likely out of sync")
	}
	body := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, classifyReadErr(err)
		}
	}
	return body, nil
}

// WriteString writes a length-prefixed UTF-8 string, the shape every
// wire-level String in spec.md §3 uses.
func WriteString(w io.Writer, s string) error {
	return WriteFrame(w, []byte(s))
}

// ReadString reads a length-prefixed UTF-8 string.
func ReadString(r io.Reader) (string, error) {
	b, err := ReadFrame(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
