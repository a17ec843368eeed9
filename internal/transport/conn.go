package transport

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/dothash/huddle/internal/protocol"
)

// Conn is the client side of the event channel.
type Conn struct {
	conn net.Conn

	// Emit may be called from any goroutine; frames must not interleave.
	writeMu sync.Mutex
}

// Dial connects to a relay server.
func Dial(addr string) (*Conn, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay server: %w", err)
	}
	return &Conn{conn: conn}, nil
}

// Emit encodes and sends one event.
func (c *Conn) Emit(event string, payload interface{}) error {
	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteEnvelope(c.conn, env)
}

// Listen reads envelopes until the connection fails, invoking onEvent for
// each. It returns nil on a clean peer close.
func (c *Conn) Listen(onEvent func(*protocol.Envelope)) error {
	reader := bufio.NewReader(c.conn)
	for {
		env, err := ReadEnvelope(reader)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		onEvent(env)
	}
}

// Close tears down the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}
