package ros

import (
	"time"
)

// Node defines interface for a ros node
type Node interface {

	// NewPublisher creates a publisher for specified topic and message type.
	NewPublisher(topic string, msgType MessageType) Publisher

	// NewPublisherWithCallbacks creates a publisher which gives you callbacks when subscribers
	// connect and disconnect.  The callbacks are called in their own
	// goroutines, so they don't need to return immediately to let the
	// connection proceed.
	NewPublisherWithCallbacks(topic string, msgType MessageType, connectCallback, disconnectCallback func(SingleSubscriberPublisher)) Publisher

	// NewSubscriber creates a subscriber to specified topic, where
	// the messages are of a given type. callback should be a function
	// which takes 0, 1, or 2 arguments.If it takes 0 arguments, it will
	// simply be called without the message.  1-argument functions are
	// the normal case, and the argument should be of the generated message type.
	// If the function takes 2 arguments, the first argument should be of the
	// generated message type and the second argument should be of type MessageEvent.
	NewSubscriber(topic string, msgType MessageType, callback interface{}) Subscriber
	NewServiceClient(service string, srvType ServiceType, options ...ServiceClientOption) ServiceClient
	NewServiceServer(service string, srvType ServiceType, callback interface{}, options ...ServiceServerOption) ServiceServer

	OK() bool
	SpinOnce()
	Spin()
	Shutdown()

	GetParam(name string) (interface{}, error)
	SetParam(name string, value interface{}) error
	HasParam(name string) (bool, error)
	SearchParam(name string) (string, error)
	DeleteParam(name string) error

	// SubscribeParam registers callback to be invoked whenever the Master
	// pushes a paramUpdate for name (spec.md's Parameter subscription
	// entry). The initial cached value is not fetched automatically; call
	// GetParam first if the current value is needed before the first
	// update arrives.
	SubscribeParam(name string, callback func(key string, value interface{})) error

	// UnsubscribeParam reverses a prior SubscribeParam.
	UnsubscribeParam(name string) error

	Logger() Logger

	NonRosArgs() []string
	Name() string
}

// NodeOption allows to customize created nodes.
type NodeOption func(n *defaultNode)

// NodeServiceClientOptions specifies default options applied to the service clients created in this node.
func NodeServiceClientOptions(opts ...ServiceClientOption) NodeOption {
	return func(n *defaultNode) {
		n.srvClientOpts = opts
	}
}

// NodeServiceServerOptions specifies default options applied to the service servers created in this node.
func NodeServiceServerOptions(opts ...ServiceServerOption) NodeOption {
	return func(n *defaultNode) {
		n.srvServerOpts = opts
	}
}

// NewNode constructs and registers a node named name, processing args for
// ROS remapping (`from:=to`), private parameter (`_name:=value`) and special
// (`__name:=value`) assignments the way the original rosrun argument
// convention works.
func NewNode(name string, args []string, opts ...NodeOption) (Node, error) {
	return newDefaultNode(name, args, opts...)
}

type Publisher interface {
	Publish(msg Message)
	GetNumSubscribers() int
	Shutdown()
}

// SingleSubscriberPublisher is a publisher which only sends to one specific subscriber.
// This is sent as an argument to the connect and disconnect callback
// functions passed to Node.NewPublisherWithCallbacks().
type SingleSubscriberPublisher interface {
	Publish(msg Message)
	GetSubscriberName() string
	GetTopic() string
}

type Subscriber interface {
	GetNumPublishers() int
	Shutdown()
}

// MessageEvent is an optional second argument to a Subscriber callback.
type MessageEvent struct {
	PublisherName    string
	ReceiptTime      time.Time
	ConnectionHeader map[string]string
}

// ServiceType identifies a registered ROS service type: wire name, request
// and response type names, and the shared md5sum the TCPROS handshake
// validates, plus factories for zero-value request/response instances.
// Mirrors MessageType's shape one level up, per spec.md §3's note that
// "service type descriptors use the same shape in a separate registry."
type ServiceType interface {
	MD5Sum() string
	Name() string
	RequestType() MessageType
	ResponseType() MessageType
	NewService() Service
}

// Service is implemented by every generated ROS service type; a concrete
// Service owns both the request and response message values exchanged over
// one TCPROS service-call turn.
type Service interface {
	ReqMessage() Message
	ResMessage() Message
}

type ServiceServer interface {
	Shutdown()
}

type ServiceClient interface {
	Call(srv Service) error
	Shutdown()
}
