package hazel

import (
	"github.com/cyyynthia/hazelgo/internal/util"
	"github.com/cyyynthia/hazelgo/protocol"
)

// CloseEvent describes why a connection closed. Reason and Message are only
// present on graceful disconnects that carried a reason record.
type CloseEvent struct {
	Forced    bool
	HasReason bool
	Reason    byte
	Message   string
}

// Event registration. Callbacks run on the connection's inbound path, so a
// handler must not block on an operation that itself waits for inbound
// traffic (use a goroutine for SendReliable, see its doc).
//
// Register handlers before the first datagram is processed; for server
// connections that means inside the OnConnection callback.

// OnMessage registers fn for every decoded message record.
func (c *Conn) OnMessage(fn func(protocol.Message)) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
}

// OnHello registers fn for the handshake payload. Server role only.
func (c *Conn) OnHello(fn func(payload []byte)) {
	c.mu.Lock()
	c.onHello = fn
	c.mu.Unlock()
}

// OnConnected registers fn to run when the HELLO ack returns. Client role only.
func (c *Conn) OnConnected(fn func()) {
	c.mu.Lock()
	c.onConnected = fn
	c.mu.Unlock()
}

// OnClose registers fn for the terminal close event. It fires at most once.
func (c *Conn) OnClose(fn func(CloseEvent)) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

// OnError registers fn for non-fatal and fatal connection errors.
func (c *Conn) OnError(fn func(error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

func (c *Conn) emitMessages(msgs []protocol.Message) {
	c.mu.Lock()
	fn := c.onMessage
	c.mu.Unlock()
	if fn == nil {
		return
	}
	for _, m := range msgs {
		fn(m)
	}
}

func (c *Conn) emitError(err error) {
	c.mu.Lock()
	fn := c.onError
	c.mu.Unlock()
	if fn != nil {
		fn(err)
		return
	}
	util.LogWarning("[%s] %v", c.id, err)
}
