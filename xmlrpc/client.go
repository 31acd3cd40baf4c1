package xmlrpc

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/openrobots-dev/urosnode/roserr"
)

// Client issues outbound XMLRPC calls: open TCP to the peer, POST an HTTP
// request with an XML body, parse the response, close — the pattern
// spec.md §4.C describes for every Master call and for slave-to-slave calls
// like requestTopic. It is used both by the Master client (ros package) and
// directly for peer-to-peer Slave API calls (publisherUpdate's reciprocal
// requestTopic).
type Client struct {
	http    *http.Client
	cfg     StreamerConfig
	timeout time.Duration
}

// NewClient builds a Client with the given per-call timeout (spec.md §6:
// xmlrpc.{recv,send}_timeout_ms, default 3000ms).
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 3000 * time.Millisecond
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		cfg:     DefaultStreamerConfig,
		timeout: timeout,
	}
}

// Call performs one XMLRPC methodCall against uri and decodes the response
// as a (code, statusMsg, value) triple per spec.md §3. A non-2xx HTTP status
// or a malformed body surfaces as roserr.BADCONN/roserr.PARSE; a connection
// refusal or timeout surfaces as roserr.NOCONN.
func (c *Client) Call(uri, method string, args ...Value) (Response, error) {
	body := PadOrTruncate(EncodeMethodCall(method, args...), c.cfg)

	req, err := http.NewRequest(http.MethodPost, uri, bytes.NewReader(body))
	if err != nil {
		return Response{}, roserr.Wrap(roserr.BADPARAM, "xmlrpc.Client: bad uri "+uri, err)
	}
	req.Header.Set("Content-Type", "text/xml")

	httpResp, err := c.http.Do(req)
	if err != nil {
		entry := *log
		entry.WithFields(logrus.Fields{"uri": uri, "method": method, "error": err}).Debug("XMLRPC call failed")
		return Response{}, roserr.Wrap(roserr.NOCONN, "xmlrpc.Client.Call("+method+")", err)
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode/100 != 2 {
		return Response{}, roserr.New(roserr.BADCONN, fmt.Sprintf("xmlrpc.Client.Call(%s): HTTP status %d", method, httpResp.StatusCode))
	}

	resp, err := ParseMethodResponse(httpResp.Body, DefaultReadBufferLen)
	if err != nil {
		return Response{}, roserr.Wrap(roserr.PARSE, "xmlrpc.Client.Call("+method+")", err)
	}
	if resp.IsFault {
		return Response{}, errors.Wrapf(
			roserr.New(roserr.BADCONN, fmt.Sprintf("xmlrpc fault %d", resp.FaultCode)),
			"%s", resp.FaultMsg,
		)
	}

	triple, ok := resp.Value.(Array)
	if !ok || len(triple) != 3 {
		return Response{}, roserr.New(roserr.PARSE, "xmlrpc.Client.Call: response is not a (code, status, value) triple")
	}
	code := toInt32(triple[0])
	statusMsg, _ := triple[1].(string)
	return Response{HTTPCode: httpResp.StatusCode, Code: code, StatusMsg: statusMsg, Value: triple[2]}, nil
}
