package tcpros

import (
	"io"

	"github.com/openrobots-dev/urosnode/roserr"
)

// CallService performs one request/response turn of spec.md §6's "TCPROS
// service call" wire shape: write the request frame, read one ok byte, then
// either a response frame (ok=1) or an error string (ok=0).
func CallService(rw io.ReadWriter, request []byte) (response []byte, err error) {
	if err := WriteFrame(rw, request); err != nil {
		return nil, err
	}
	var okByte [1]byte
	if _, err := io.ReadFull(rw, okByte[:]); err != nil {
		return nil, classifyReadErr(err)
	}
	if okByte[0] == 1 {
		return ReadFrame(rw)
	}
	errStr, rerr := ReadString(rw)
	if rerr != nil {
		// Per spec.md S4: surface what was actually read, or the I/O error,
		// never a crash or a silently empty error string.
		return nil, roserr.Wrap(roserr.BADCONN, "tcpros.CallService: provider reported failure but error string was unreadable", rerr)
	}
	return nil, roserr.New(roserr.BADCONN, "tcpros.CallService: "+errStr)
}

// ServeServiceTurn runs one turn of the provider side: read a request
// frame, invoke handle, and write ok=1+response or ok=0+error string per
// spec.md §4.D step 2. handle returns (response bytes, "" ) on success or
// (nil, errstr) on failure — the middleware, not the handler, serializes
// the ok byte and whichever body follows.
func ServeServiceTurn(rw io.ReadWriter, handle func(request []byte) (response []byte, errstr string)) error {
	request, err := ReadFrame(rw)
	if err != nil {
		return err
	}
	response, errstr := handle(request)
	if errstr == "" {
		if _, err := rw.Write([]byte{1}); err != nil {
			return roserr.Wrap(roserr.BADCONN, "tcpros.ServeServiceTurn", err)
		}
		return WriteFrame(rw, response)
	}
	if _, err := rw.Write([]byte{0}); err != nil {
		return roserr.Wrap(roserr.BADCONN, "tcpros.ServeServiceTurn", err)
	}
	return WriteString(rw, errstr)
}
