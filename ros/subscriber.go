package ros

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/openrobots-dev/urosnode/internal/config"
	"github.com/openrobots-dev/urosnode/internal/workerpool"
	"github.com/openrobots-dev/urosnode/tcpros"
	"github.com/openrobots-dev/urosnode/typereg"
)

type messageEvent struct {
	bytes []byte
	event MessageEvent
}

// defaultSubscriber runs in its own goroutine (start), fanning the
// publisher list the Master hands it (directly at registerSubscriber time,
// and later through every publisherUpdate) out into one defaultSubscription
// per publisher URI.
type defaultSubscriber struct {
	topic       string
	msgType     MessageType
	pubList     []string
	pubListChan chan []string
	msgChan     chan messageEvent
	callbacks   []interface{}
	shutdownChan chan struct{}

	subscriptions map[string]*defaultSubscription
	disconnected  chan string

	pool *workerpool.Pool
	cfg  config.Config

	// desc is this topic's process-wide type descriptor (spec.md §3/§4.E):
	// every defaultSubscription acquires it for the life of its subscribe
	// loop, and Shutdown marks it dead once unregistered from the Master.
	desc *typereg.Descriptor
}

func newDefaultSubscriber(topic string, msgType MessageType, callback interface{}, pool *workerpool.Pool, cfg config.Config) *defaultSubscriber {
	registerMessageType(msgType)
	sub := new(defaultSubscriber)
	sub.topic = topic
	sub.msgType = msgType
	sub.msgChan = make(chan messageEvent, 10)
	sub.pubListChan = make(chan []string, 10)
	sub.shutdownChan = make(chan struct{})
	sub.subscriptions = make(map[string]*defaultSubscription)
	sub.disconnected = make(chan string, 10)
	sub.callbacks = []interface{}{callback}
	sub.pool = pool
	sub.cfg = cfg
	sub.desc = typereg.NewDescriptor(topic, typereg.TypeDescriptor{
		Name:        msgType.Name(),
		Description: msgType.Text(),
		MD5Sum:      msgType.MD5Sum(),
	}, nil, typereg.Flags{})
	return sub
}

func (sub *defaultSubscriber) start(wg *sync.WaitGroup, nodeID, nodeAPIURI, masterURI string, jobChan chan func(), logger Logger) {
	logger.Debugf("Subscriber goroutine for %s started.", sub.topic)
	wg.Add(1)
	defer wg.Done()
	defer logger.Debug(sub.topic, " : defaultSubscriber.start exit")

	for {
		select {
		case list := <-sub.pubListChan:
			logger.Debug(sub.topic, " : Receive pubListChan")
			sort.Slice(list, func(i, j int) bool { return typereg.StringCompare(list[i], list[j]) < 0 })
			deadPubs := setDifference(sub.pubList, list)
			newPubs := setDifference(list, sub.pubList)
			sub.pubList = list

			for _, pub := range deadPubs {
				if s, ok := sub.subscriptions[pub]; ok {
					s.requestStop()
					delete(sub.subscriptions, pub)
				}
			}

			for _, pubURI := range newPubs {
				protocols := []interface{}{[]interface{}{"TCPROS"}}
				result, err := callRosAPI(pubURI, "requestTopic", nodeID, sub.topic, protocols)
				if err != nil {
					logger.Error(sub.topic, " : ", err)
					continue
				}
				protocolParams, ok := result.([]interface{})
				if !ok || len(protocolParams) < 3 {
					logger.Warn(sub.topic, " : requestTopic returned no usable protocol")
					continue
				}
				name, _ := protocolParams[0].(string)
				if name != "TCPROS" {
					logger.Warn(sub.topic, " : unsupported protocol: ", name)
					continue
				}
				addr, _ := protocolParams[1].(string)
				port := toInt(protocolParams[2])
				uri := fmt.Sprintf("%s:%d", addr, port)

				subscription := newDefaultSubscription(uri, pubURI, sub.topic, sub.msgType, nodeID, sub.msgChan, sub.disconnected, sub.cfg, sub.desc)
				sub.subscriptions[pubURI] = subscription
				sub.pool.Start(context.Background(), func() { subscription.run(logger) })
			}

		case msgEvent := <-sub.msgChan:
			logger.Debug(sub.topic, " : Receive msgChan")
			callbacks := make([]interface{}, len(sub.callbacks))
			copy(callbacks, sub.callbacks)
			select {
			case jobChan <- func() {
				m := sub.msgType.NewMessage()
				reader := NewReader(bytes.NewReader(msgEvent.bytes))
				if err := m.Deserialize(reader); err != nil {
					logger.Error(sub.topic, " : ", err)
					return
				}
				args := []reflect.Value{reflect.ValueOf(m), reflect.ValueOf(msgEvent.event)}
				for _, callback := range callbacks {
					fun := reflect.ValueOf(callback)
					numArgsNeeded := fun.Type().NumIn()
					if numArgsNeeded <= 2 {
						fun.Call(args[0:numArgsNeeded])
					}
				}
			}:
			case <-time.After(3 * time.Second):
				logger.Debug(sub.topic, " : Callback job timed out.")
			}

		case pubURI := <-sub.disconnected:
			logger.Debugf("Subscription to %s was disconnected.", pubURI)
			delete(sub.subscriptions, pubURI)

		case <-sub.shutdownChan:
			logger.Debug(sub.topic, " : Receive shutdownChan")
			for _, s := range sub.subscriptions {
				s.requestStop()
			}
			callRosAPI(masterURI, "unregisterSubscriber", nodeID, sub.topic, nodeAPIURI)
			sub.desc.MarkDead()
			sub.shutdownChan <- struct{}{}
			return
		}
	}
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func setDifference(lhs []string, rhs []string) []string {
	seen := map[string]bool{}
	for _, item := range rhs {
		seen[item] = true
	}
	var result []string
	for _, item := range lhs {
		if !seen[item] {
			seen[item] = true
			result = append(result, item)
		}
	}
	return result
}

func (sub *defaultSubscriber) Shutdown() {
	sub.shutdownChan <- struct{}{}
	<-sub.shutdownChan
}

func (sub *defaultSubscriber) GetNumPublishers() int {
	return len(sub.pubList)
}

// defaultSubscription maintains a TCPROS connection to one publisher,
// reconnecting through the recovery loop in run() until a stop is requested
// or the publisher disconnects for good.
type defaultSubscription struct {
	uri         string
	pubURI      string
	topic       string
	msgType     MessageType
	nodeID      string
	messageChan chan messageEvent
	disconnected chan string
	cfg         config.Config
	desc        *typereg.Descriptor

	ctx    context.Context
	cancel context.CancelFunc
}

func newDefaultSubscription(uri, pubURI, topic string, msgType MessageType, nodeID string, messageChan chan messageEvent, disconnected chan string, cfg config.Config, desc *typereg.Descriptor) *defaultSubscription {
	ctx, cancel := context.WithCancel(context.Background())
	return &defaultSubscription{
		uri: uri, pubURI: pubURI, topic: topic, msgType: msgType, nodeID: nodeID,
		messageChan: messageChan, disconnected: disconnected, cfg: cfg, desc: desc,
		ctx: ctx, cancel: cancel,
	}
}

func (s *defaultSubscription) requestStop() { s.cancel() }

func (s *defaultSubscription) run(logger Logger) {
	logger.Debugf("%s: subscription to %s starting", s.topic, s.uri)
	defer logger.Debugf("%s: subscription to %s exited", s.topic, s.uri)

	for {
		if s.ctx.Err() != nil {
			return
		}
		conn, err := net.DialTimeout("tcp", s.uri, s.cfg.TCPROSSendTimeout)
		if err != nil {
			logger.Debugf("%s: failed to connect to %s: %v", s.topic, s.uri, err)
			s.disconnected <- s.pubURI
			return
		}

		event, err := s.handshake(conn)
		if err != nil {
			logger.Errorf("%s: handshake with %s failed: %v", s.topic, s.uri, err)
			conn.Close()
			s.disconnected <- s.pubURI
			return
		}

		s.desc.Acquire()
		sess := tcpros.NewSession(s.ctx, conn)
		err = sess.RunSubscribeLoop(s.cfg.TCPROSRecvTimeout, func(body []byte) error {
			event.ReceiptTime = time.Now()
			select {
			case s.messageChan <- messageEvent{bytes: body, event: event}:
			case <-time.After(30 * time.Millisecond):
			}
			return nil
		})
		s.desc.Release()
		conn.Close()

		if s.ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Debugf("%s: connection to %s lost: %v", s.topic, s.uri, err)
		}
		s.disconnected <- s.pubURI
		return
	}
}

func (s *defaultSubscription) handshake(conn net.Conn) (MessageEvent, error) {
	headers, err := tcpros.SubscriberHandshake(conn, s.nodeID, s.topic, s.msgType.Name(), s.msgType.MD5Sum())
	if err != nil {
		return MessageEvent{}, err
	}
	return MessageEvent{PublisherName: headers["callerid"], ConnectionHeader: headers}, nil
}
