package transport

import (
	"bufio"
	"errors"
	"net"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/op/go-logging.v1"

	"github.com/dothash/huddle/internal/protocol"
	"github.com/dothash/huddle/internal/worker"
)

// sendQueueDepth is the per-connection outbound buffer. When it fills the
// frame is dropped rather than blocking unrelated connections.
const sendQueueDepth = 64

// ErrUnknownHandle is returned when emitting to a connection that is no
// longer (or never was) tracked.
var ErrUnknownHandle = errors.New("transport: unknown connection handle")

// Handler receives connection lifecycle notifications and decoded events.
// Callbacks for one connection run sequentially on that connection's read
// goroutine; callbacks for different connections run concurrently.
type Handler interface {
	OnConnect(handle string)
	OnDisconnect(handle string)
	OnEvent(handle string, env *protocol.Envelope)
}

// Server accepts connections and tracks them by opaque handle.
type Server struct {
	worker.Group

	log     *logging.Logger
	handler Handler

	listener net.Listener

	mu    sync.Mutex
	conns map[string]*serverConn
}

type serverConn struct {
	worker.Group

	handle string
	conn   net.Conn
	sendCh chan *protocol.Envelope
}

// NewServer creates a server that reports activity to handler.
func NewServer(handler Handler, log *logging.Logger) *Server {
	return &Server{
		log:     log,
		handler: handler,
		conns:   make(map[string]*serverConn),
	}
}

// Start begins accepting connections on listener. It returns immediately;
// use Halt to stop.
func (s *Server) Start(listener net.Listener) {
	s.listener = listener
	s.Go(s.acceptLoop)
}

// Halt stops the accept loop and closes every tracked connection.
func (s *Server) Halt() {
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	conns := make([]*serverConn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.conn.Close()
	}
	s.Group.Halt()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.HaltCh():
			default:
				s.log.Warningf("accept failed: %v", err)
			}
			return
		}
		s.Go(func() { s.handleConn(conn) })
	}
}

func (s *Server) handleConn(conn net.Conn) {
	c := &serverConn{
		handle: uuid.New().String(),
		conn:   conn,
		sendCh: make(chan *protocol.Envelope, sendQueueDepth),
	}

	s.mu.Lock()
	s.conns[c.handle] = c
	s.mu.Unlock()

	c.Go(func() { c.writer() })
	s.log.Debugf("connection %s accepted from %s", c.handle, conn.RemoteAddr())
	s.handler.OnConnect(c.handle)

	reader := bufio.NewReader(conn)
	for {
		env, err := ReadEnvelope(reader)
		if err != nil {
			break
		}
		s.handler.OnEvent(c.handle, env)
	}

	s.mu.Lock()
	delete(s.conns, c.handle)
	s.mu.Unlock()

	conn.Close()
	c.Group.Halt()
	s.log.Debugf("connection %s closed", c.handle)
	s.handler.OnDisconnect(c.handle)
}

// writer drains the send queue so that emission never blocks the caller.
func (c *serverConn) writer() {
	for {
		select {
		case <-c.HaltCh():
			return
		case env := <-c.sendCh:
			if err := WriteEnvelope(c.conn, env); err != nil {
				// The read loop will notice the dead connection; just
				// stop writing.
				return
			}
		}
	}
}

// Emit queues an envelope for one connection. A full queue drops the
// frame: delivery is fire-and-forget.
func (s *Server) Emit(handle string, env *protocol.Envelope) error {
	s.mu.Lock()
	c, ok := s.conns[handle]
	s.mu.Unlock()
	if !ok {
		return ErrUnknownHandle
	}
	s.send(c, env)
	return nil
}

// Broadcast queues an envelope for every connection.
func (s *Server) Broadcast(env *protocol.Envelope) {
	s.BroadcastExcept("", env)
}

// BroadcastExcept queues an envelope for every connection but the named
// one.
func (s *Server) BroadcastExcept(handle string, env *protocol.Envelope) {
	s.mu.Lock()
	targets := make([]*serverConn, 0, len(s.conns))
	for h, c := range s.conns {
		if h != handle {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	for _, c := range targets {
		s.send(c, env)
	}
}

func (s *Server) send(c *serverConn, env *protocol.Envelope) {
	select {
	case c.sendCh <- env:
	default:
		s.log.Warningf("connection %s send queue full, dropping %s", c.handle, env.Event)
	}
}
