package ros

import (
	"bytes"
	"context"
	"net"
	"sync"

	"github.com/openrobots-dev/urosnode/internal/workerpool"
	"github.com/openrobots-dev/urosnode/tcpros"
	"github.com/openrobots-dev/urosnode/typereg"
	"github.com/openrobots-dev/urosnode/urosconn"
)

// defaultPublisher owns one TCPROS listener for one topic (spec.md §4.D's
// "peer-initiated topic session, we are publisher"): requestTopic hands
// subscribers this publisher's own host/port, and every accepted connection
// becomes one remoteSubscriberSession fed from the same broadcast channel.
type defaultPublisher struct {
	node              *defaultNode
	topic             string
	msgType           MessageType
	connectCallback   func(SingleSubscriberPublisher)
	disconnectCallback func(SingleSubscriberPublisher)

	msgChan      chan []byte
	shutdownChan chan struct{}
	listener     *urosconn.Listener
	pool         *workerpool.Pool

	sessionsMu sync.Mutex
	sessions   map[*remoteSubscriberSession]struct{}

	// desc is this topic's process-wide type descriptor (spec.md §3/§4.E):
	// every remoteSubscriberSession acquires it for the life of its publish
	// loop, and Shutdown marks it dead once unregistered from the Master.
	desc *typereg.Descriptor

	logger Logger
}

func newDefaultPublisher(node *defaultNode, topic string, msgType MessageType, connectCallback, disconnectCallback func(SingleSubscriberPublisher)) (*defaultPublisher, error) {
	listener, err := urosconn.Listen(urosconn.Addr{IP: node.listenIP, Port: 0}, node.cfg.TCPROSListenerBacklog)
	if err != nil {
		return nil, err
	}
	registerMessageType(msgType)
	desc := typereg.NewDescriptor(topic, typereg.TypeDescriptor{
		Name:        msgType.Name(),
		Description: msgType.Text(),
		MD5Sum:      msgType.MD5Sum(),
	}, nil, typereg.Flags{})
	return &defaultPublisher{
		node:               node,
		topic:              topic,
		msgType:            msgType,
		connectCallback:    connectCallback,
		disconnectCallback: disconnectCallback,
		msgChan:            make(chan []byte, 10),
		shutdownChan:       make(chan struct{}),
		listener:           listener,
		pool:               node.tcprosServerPool,
		sessions:           make(map[*remoteSubscriberSession]struct{}),
		desc:               desc,
		logger:             node.logger,
	}, nil
}

func (pub *defaultPublisher) start(wg *sync.WaitGroup) {
	logger := pub.logger
	logger.Debugf("Publisher goroutine for %s started.", pub.topic)
	wg.Add(1)
	defer wg.Done()

	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		pub.acceptLoop()
	}()

	for {
		select {
		case msg := <-pub.msgChan:
			pub.sessionsMu.Lock()
			for session := range pub.sessions {
				select {
				case session.msgChan <- msg:
				default:
					logger.Debugf("%s: dropping message, subscriber session backlogged", pub.topic)
				}
			}
			pub.sessionsMu.Unlock()

		case <-acceptDone:
			return

		case <-pub.shutdownChan:
			logger.Debug("Shutdown publisher ", pub.topic)
			pub.listener.Close()
			callRosAPI(pub.node.masterURI, "unregisterPublisher", pub.node.qualifiedName, pub.topic, pub.node.xmlrpcURI)
			pub.desc.MarkDead()
			pub.sessionsMu.Lock()
			for session := range pub.sessions {
				session.requestStop()
			}
			pub.sessions = make(map[*remoteSubscriberSession]struct{})
			pub.sessionsMu.Unlock()
			<-acceptDone
			return
		}
	}
}

// acceptLoop implements spec.md §4.E's "listener threads: accept in a tight
// loop", dispatching each accepted connection through the node's bounded
// TCPROS server pool.
func (pub *defaultPublisher) acceptLoop() {
	logger := pub.logger
	logger.Debugf("Start listen %s.", pub.listener.Addr().String())
	for {
		ep, err := pub.listener.Accept(pub.node.cfg.TCPROSRecvTimeout, pub.node.cfg.TCPROSSendTimeout)
		if err != nil {
			logger.Debugf("%s: listener closed: %v", pub.topic, err)
			return
		}
		session := newRemoteSubscriberSession(pub, ep.Conn())
		pub.sessionsMu.Lock()
		pub.sessions[session] = struct{}{}
		pub.sessionsMu.Unlock()

		pub.pool.Start(context.Background(), func() {
			session.run()
			pub.sessionsMu.Lock()
			delete(pub.sessions, session)
			pub.sessionsMu.Unlock()
			if pub.disconnectCallback != nil {
				go pub.disconnectCallback(session)
			}
		})
	}
}

func (pub *defaultPublisher) Publish(msg Message) {
	var buf bytes.Buffer
	if err := msg.Serialize(&buf); err != nil {
		pub.logger.Errorf("%s: Serialize failed: %v", pub.topic, err)
		return
	}
	pub.msgChan <- buf.Bytes()
}

func (pub *defaultPublisher) GetNumSubscribers() int {
	pub.sessionsMu.Lock()
	defer pub.sessionsMu.Unlock()
	return len(pub.sessions)
}

func (pub *defaultPublisher) Shutdown() {
	pub.shutdownChan <- struct{}{}
}

func (pub *defaultPublisher) hostAndPort() (string, string) {
	addr, port, err := net.SplitHostPort(pub.listener.Addr().String())
	if err != nil {
		// Not reached: urosconn.Listener always binds to a host:port pair.
		panic(err)
	}
	return addr, port
}

// remoteSubscriberSession is one accepted TCPROS connection from a
// subscriber: after the handshake it relays whatever Publish broadcasts
// (plus anything sent directly via SingleSubscriberPublisher) until the
// peer disconnects or the publisher shuts it down.
type remoteSubscriberSession struct {
	conn     net.Conn
	session  *tcpros.Session
	pub      *defaultPublisher
	callerID string
	msgChan  chan []byte
}

func newRemoteSubscriberSession(pub *defaultPublisher, conn net.Conn) *remoteSubscriberSession {
	return &remoteSubscriberSession{
		conn:    conn,
		session: tcpros.NewSession(context.Background(), conn),
		pub:     pub,
		msgChan: make(chan []byte, 10),
	}
}

func (s *remoteSubscriberSession) run() {
	logger := s.pub.logger
	headers, probeOnly, err := tcpros.PublisherHandshake(
		s.conn,
		s.pub.node.qualifiedName,
		s.pub.topic,
		s.pub.msgType.Name(),
		s.pub.msgType.MD5Sum(),
		s.pub.msgType.Text(),
		false,
	)
	if err != nil {
		logger.Debugf("%s: handshake failed: %v", s.pub.topic, err)
		s.conn.Close()
		return
	}
	s.callerID = headers["callerid"]
	if probeOnly {
		s.conn.Close()
		return
	}
	if s.pub.connectCallback != nil {
		go s.pub.connectCallback(s)
	}

	s.pub.desc.Acquire()
	defer s.pub.desc.Release()

	err = s.session.RunPublishLoop(func(ctx context.Context) ([]byte, bool) {
		select {
		case msg := <-s.msgChan:
			return msg, true
		case <-ctx.Done():
			return nil, false
		}
	})
	if err != nil {
		logger.Debugf("%s: session to %s ended: %v", s.pub.topic, s.callerID, err)
	}
	s.conn.Close()
}

func (s *remoteSubscriberSession) requestStop() {
	s.session.RequestExit()
}

// Publish implements SingleSubscriberPublisher: send msg to this one
// subscriber only, bypassing the publisher's broadcast channel.
func (s *remoteSubscriberSession) Publish(msg Message) {
	var buf bytes.Buffer
	if err := msg.Serialize(&buf); err != nil {
		s.pub.logger.Errorf("%s: Serialize failed: %v", s.pub.topic, err)
		return
	}
	select {
	case s.msgChan <- buf.Bytes():
	default:
	}
}

func (s *remoteSubscriberSession) GetSubscriberName() string { return s.callerID }
func (s *remoteSubscriberSession) GetTopic() string          { return s.pub.topic }
