package ros

import (
	"bytes"
	"context"
	"net"
	"reflect"
	"sync"
	"time"

	"github.com/openrobots-dev/urosnode/internal/workerpool"
	"github.com/openrobots-dev/urosnode/roserr"
	"github.com/openrobots-dev/urosnode/tcpros"
	"github.com/openrobots-dev/urosnode/typereg"
	"github.com/openrobots-dev/urosnode/urosconn"
)

// defaultServiceClient implements spec.md §4.D's "locally-initiated service
// call": resolve the provider's URI via the Master's lookupService, dial,
// handshake, exchange one request/response turn. A persistent client (set
// via ServiceClientTCPTimeout's sibling option, see NewServiceClient) keeps
// its connection across calls instead of reconnecting every time.
type defaultServiceClient struct {
	logger     Logger
	nodeID     string
	masterURI  string
	service    string
	srvType    ServiceType
	tcpTimeout time.Duration
	persistent bool

	// desc is this service's process-wide type descriptor (spec.md
	// §3/§4.E): Call acquires it for the duration of each request/response
	// turn, and Shutdown marks it dead.
	desc *typereg.Descriptor

	mu   sync.Mutex
	conn net.Conn
}

func newDefaultServiceClient(logger Logger, nodeID, masterURI, service string, srvType ServiceType, opts ...ServiceClientOption) *defaultServiceClient {
	registerServiceType(srvType)
	c := &defaultServiceClient{
		logger:     logger,
		nodeID:     nodeID,
		masterURI:  masterURI,
		service:    service,
		srvType:    srvType,
		tcpTimeout: 10 * time.Millisecond,
		desc: typereg.NewDescriptor(service, typereg.TypeDescriptor{
			Name:   srvType.Name(),
			MD5Sum: srvType.MD5Sum(),
		}, nil, typereg.Flags{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.desc.Flags.PersistentService = c.persistent
	return c
}

// ServiceClientPersistent marks the client's connection to the provider as
// persistent (spec.md §9's "persistent vs non-persistent service sessions"):
// the TCPROS connection is kept open and reused by subsequent Call
// invocations instead of being re-dialed and re-handshaken every time.
func ServiceClientPersistent() ServiceClientOption {
	return func(c *defaultServiceClient) { c.persistent = true }
}

func (c *defaultServiceClient) Call(srv Service) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.desc.Acquire()
	defer c.desc.Release()

	conn, err := c.connection()
	if err != nil {
		return err
	}

	var reqBuf bytes.Buffer
	if err := srv.ReqMessage().Serialize(&reqBuf); err != nil {
		return roserr.Wrap(roserr.BADPARAM, "ros.ServiceClient.Call: serialize request", err)
	}

	respBytes, err := tcpros.CallService(conn, reqBuf.Bytes())
	if err != nil {
		c.closeLocked()
		return err
	}

	reader := NewReader(bytes.NewReader(respBytes))
	if err := srv.ResMessage().Deserialize(reader); err != nil {
		return roserr.Wrap(roserr.PARSE, "ros.ServiceClient.Call: deserialize response", err)
	}

	if !c.persistent {
		c.closeLocked()
	}
	return nil
}

func (c *defaultServiceClient) connection() (net.Conn, error) {
	if c.conn != nil {
		return c.conn, nil
	}

	result, err := callRosAPI(c.masterURI, "lookupService", c.nodeID, c.service)
	if err != nil {
		return nil, err
	}
	uri, _ := result.(string)
	host, port, err := parseROSTCPURI(uri)
	if err != nil {
		return nil, roserr.Wrap(roserr.BADCONN, "ros.ServiceClient: lookupService returned "+uri, err)
	}

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, port), c.tcpTimeout)
	if err != nil {
		return nil, roserr.Wrap(roserr.NOCONN, "ros.ServiceClient.Call("+c.service+")", err)
	}

	_, err = tcpros.ServiceCallHandshake(conn, c.nodeID, c.service, c.srvType.RequestType().Name(), c.srvType.ResponseType().Name(), c.srvType.MD5Sum(), c.persistent)
	if err != nil {
		conn.Close()
		return nil, err
	}

	c.conn = conn
	return conn, nil
}

func (c *defaultServiceClient) closeLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *defaultServiceClient) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	c.desc.MarkDead()
}

// defaultServiceServer owns one TCPROS listener for one service, mirroring
// defaultPublisher's structure: every accepted connection runs the
// handshake then loops ServeServiceTurn while the caller keeps the
// connection open (a persistent client per spec.md §9), invoking handler by
// reflection exactly the way xmlrpc.Handler's invoke() dispatches Slave API
// methods.
type defaultServiceServer struct {
	node       *defaultNode
	service    string
	srvType    ServiceType
	handler    interface{}
	tcpTimeout time.Duration

	listener *urosconn.Listener
	pool     *workerpool.Pool
	logger   Logger

	// desc is this service's process-wide type descriptor (spec.md
	// §3/§4.E): every accepted connection acquires it for the life of its
	// serve loop, and Shutdown marks it dead once unregistered.
	desc *typereg.Descriptor

	shutdownChan chan struct{}
}

func newDefaultServiceServer(node *defaultNode, service string, srvType ServiceType, handler interface{}, opts ...ServiceServerOption) *defaultServiceServer {
	listener, err := urosconn.Listen(urosconn.Addr{IP: node.listenIP, Port: 0}, node.cfg.TCPROSListenerBacklog)
	if err != nil {
		node.logger.Errorf("NewServiceServer(%s): %v", service, err)
		return nil
	}

	registerServiceType(srvType)
	srv := &defaultServiceServer{
		node:       node,
		service:    service,
		srvType:    srvType,
		handler:    handler,
		tcpTimeout: 10 * time.Millisecond,
		listener:   listener,
		pool:       node.tcprosServerPool,
		logger:     node.logger,
		desc: typereg.NewDescriptor(service, typereg.TypeDescriptor{
			Name:   srvType.Name(),
			MD5Sum: srvType.MD5Sum(),
		}, handler, typereg.Flags{}),
		shutdownChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(srv)
	}

	host, port, err := net.SplitHostPort(listener.Addr().String())
	if err != nil {
		panic(err)
	}
	uri := "rosrpc://" + net.JoinHostPort(host, port)
	if _, err := callRosAPI(node.masterURI, "registerService", node.qualifiedName, service, uri, node.xmlrpcURI); err != nil {
		srv.logger.Errorf("registerService(%s) failed: %v", service, err)
		listener.Close()
		return nil
	}

	go srv.acceptLoop()
	return srv
}

func (srv *defaultServiceServer) acceptLoop() {
	for {
		ep, err := srv.listener.Accept(srv.node.cfg.TCPROSRecvTimeout, srv.node.cfg.TCPROSSendTimeout)
		if err != nil {
			srv.logger.Debugf("%s: listener closed: %v", srv.service, err)
			return
		}
		conn := ep.Conn()
		srv.desc.Acquire()
		srv.pool.Start(context.Background(), func() {
			defer srv.desc.Release()
			srv.serve(conn)
		})
	}
}

func (srv *defaultServiceServer) serve(conn net.Conn) {
	defer conn.Close()

	_, err := tcpros.ServiceHandshake(conn, srv.node.qualifiedName, srv.service,
		srv.srvType.RequestType().Name(), srv.srvType.ResponseType().Name(), srv.srvType.MD5Sum())
	if err != nil {
		srv.logger.Debugf("%s: handshake failed: %v", srv.service, err)
		return
	}

	for {
		err := tcpros.ServeServiceTurn(conn, func(request []byte) ([]byte, string) {
			return srv.invoke(request)
		})
		if err != nil {
			return
		}
	}
}

// invoke decodes one request frame into the service's request message,
// calls the user's handler, and serializes the response, surfacing a
// handler error as the TCPROS error string rather than a protocol failure.
func (srv *defaultServiceServer) invoke(request []byte) ([]byte, string) {
	instance := srv.srvType.NewService()

	reader := NewReader(bytes.NewReader(request))
	if err := instance.ReqMessage().Deserialize(reader); err != nil {
		return nil, "failed to deserialize request: " + err.Error()
	}

	fv := reflect.ValueOf(srv.handler)
	out := fv.Call([]reflect.Value{reflect.ValueOf(instance)})
	if len(out) > 0 && !out[0].IsNil() {
		err, _ := out[0].Interface().(error)
		if err != nil {
			return nil, err.Error()
		}
	}

	var respBuf bytes.Buffer
	if err := instance.ResMessage().Serialize(&respBuf); err != nil {
		return nil, "failed to serialize response: " + err.Error()
	}
	return respBuf.Bytes(), ""
}

func (srv *defaultServiceServer) Shutdown() {
	srv.listener.Close()
	callRosAPI(srv.node.masterURI, "unregisterService", srv.node.qualifiedName, srv.service, "rosrpc://"+srv.listener.Addr().String())
	srv.desc.MarkDead()
}

// parseROSTCPURI splits a "rosrpc://host:port" or bare "host:port" URI, the
// two shapes the Master's lookupService/requestTopic replies use depending
// on implementation vintage.
func parseROSTCPURI(uri string) (host, port string, err error) {
	const scheme = "rosrpc://"
	if len(uri) > len(scheme) && uri[:len(scheme)] == scheme {
		uri = uri[len(scheme):]
	}
	return net.SplitHostPort(uri)
}
