package ros

import (
	"github.com/openrobots-dev/urosnode/roserr"
	"github.com/openrobots-dev/urosnode/xmlrpc"
)

// masterClient is shared by every callRosAPI invocation; the timeout matches
// spec.md §6's xmlrpc.recv_timeout_ms/xmlrpc.send_timeout_ms default.
var masterClient = xmlrpc.NewClient(0)

// callRosAPI issues one Master (or peer Slave) XMLRPC call and unwraps the
// (code, statusMsg, value) triple spec.md §3 defines: a non-success code
// becomes a roserr.BADCONN carrying statusMsg, otherwise the decoded value is
// returned as-is.
func callRosAPI(uri, method string, args ...interface{}) (interface{}, error) {
	resp, err := masterClient.Call(uri, method, args...)
	if err != nil {
		return nil, err
	}
	if resp.Code != xmlrpc.StatusSuccess {
		return nil, roserr.New(roserr.BADCONN, "callRosAPI("+method+"): "+resp.StatusMsg)
	}
	return resp.Value, nil
}

// buildRosAPIResult packages a Slave API method's return value as the
// (code, statusMsg, value) triple every XMLRPC handler in this package must
// answer with.
func buildRosAPIResult(code int32, statusMsg string, value interface{}) xmlrpc.Response {
	return xmlrpc.NewResponse(code, statusMsg, value)
}
