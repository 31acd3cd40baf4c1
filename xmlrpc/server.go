package xmlrpc

import (
	"fmt"
	"net/http"
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/openrobots-dev/urosnode/internal/rlog"
	"github.com/openrobots-dev/urosnode/roserr"
)

var log = rlog.For("xmlrpc")

// Method is a Slave API handler. Any function whose first parameter is a
// string (the caller's node name) and whose remaining parameters accept the
// decoded XML-RPC argument types (string, bool, int32, float64, Array,
// Struct, Base64) is a valid Method; Handler dispatches by reflection, the
// way the rosgo-family xmlrpc.Handler already does (its callers register a
// map[string]xmlrpc.Method of differently-shaped closures).
type Method interface{}

// Handler is the inbound XMLRPC Slave server of spec.md §4.C: it accepts
// HTTP POST requests carrying a <methodCall>, dispatches by methodName to a
// registered Method, and writes back a well-formed <methodResponse>.
type Handler struct {
	methods map[string]Method
	cfg     StreamerConfig

	wg       sync.WaitGroup
	inflight sync.WaitGroup
}

// NewHandler builds a Handler dispatching to the given method table.
func NewHandler(methods map[string]Method) *Handler {
	return &Handler{methods: methods, cfg: DefaultStreamerConfig}
}

// WithStreamerConfig overrides the fixed-Content-Length fallback policy.
func (h *Handler) WithStreamerConfig(cfg StreamerConfig) *Handler {
	h.cfg = cfg
	return h
}

// WaitForShutdown blocks until every in-flight ServeHTTP call has returned.
// Paired with closing the listener that fed http.Serve, this gives the Node
// a deterministic point after which no Slave-call goroutine is still
// running, per spec.md §4.E step 5 ("join all pools").
func (h *Handler) WaitForShutdown() {
	h.inflight.Wait()
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.inflight.Add(1)
	defer h.inflight.Done()

	call, err := ParseMethodCall(r.Body, DefaultReadBufferLen)
	if err != nil {
		logger := *log
		logger.WithFields(logrus.Fields{"error": err}).Warn("malformed XMLRPC methodCall")
		writeFault(w, h.cfg, -1, "parse error: "+err.Error())
		return
	}

	method, ok := h.methods[call.Name]
	if !ok {
		writeTriple(w, h.cfg, NewResponse(StatusError, "no such method", 0))
		return
	}

	result, err := invoke(method, call.Params)
	if err != nil {
		logger := *log
		logger.WithFields(logrus.Fields{"error": err, "method": call.Name}).Warn("method handler returned error")
		writeFault(w, h.cfg, -1, err.Error())
		return
	}
	resp, ok := result.(Response)
	if !ok {
		resp = NewResponse(StatusSuccess, "", result)
	}
	writeTriple(w, h.cfg, resp)
}

func writeTriple(w http.ResponseWriter, cfg StreamerConfig, resp Response) {
	body := EncodeMethodResponse(Array{resp.Code, resp.StatusMsg, resp.Value})
	body = PadOrTruncate(body, cfg)
	writeHTTPResponse(w, body)
}

func writeFault(w http.ResponseWriter, cfg StreamerConfig, code int32, msg string) {
	body := PadOrTruncate(EncodeFault(code, msg), cfg)
	writeHTTPResponse(w, body)
}

func writeHTTPResponse(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "text/xml")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(body)))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// invoke calls method (any func whose first argument is the caller ID
// string) with params decoded from the XML-RPC call, converting each
// parameter to the target function's declared parameter type where
// possible. It returns whatever the method returns as (interface{}, error).
func invoke(method Method, params []Value) (interface{}, error) {
	fv := reflect.ValueOf(method)
	ft := fv.Type()
	if ft.Kind() != reflect.Func {
		return nil, roserr.New(roserr.NOTIMPL, "xmlrpc: registered method is not a function")
	}
	numIn := ft.NumIn()
	args := make([]reflect.Value, 0, numIn)
	for i := 0; i < numIn; i++ {
		var raw Value
		if i < len(params) {
			raw = params[i]
		}
		args = append(args, convertArg(raw, ft.In(i)))
	}
	out := fv.Call(args)
	var result interface{}
	var err error
	if len(out) > 0 {
		result = out[0].Interface()
	}
	if len(out) > 1 && !out[1].IsNil() {
		err, _ = out[1].Interface().(error)
	}
	return result, err
}

func convertArg(raw Value, target reflect.Type) reflect.Value {
	if raw == nil {
		return reflect.Zero(target)
	}
	rv := reflect.ValueOf(raw)
	if rv.Type().AssignableTo(target) {
		return rv
	}
	if target.Kind() == reflect.Slice && target.Elem().Kind() == reflect.Interface {
		if arr, ok := raw.(Array); ok {
			out := make([]interface{}, len(arr))
			for i, v := range arr {
				out[i] = v
			}
			return reflect.ValueOf(out)
		}
	}
	if target.Kind() == reflect.Interface {
		return rv
	}
	if rv.Type().ConvertibleTo(target) {
		return rv.Convert(target)
	}
	return reflect.Zero(target)
}
