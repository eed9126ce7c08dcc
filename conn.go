package hazel

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cyyynthia/hazelgo/internal/util"
	"github.com/cyyynthia/hazelgo/protocol"
)

// Wire-fixed timing and thresholds. The two intervals are copied onto each
// Conn (retryEvery, pingEvery) only so tests can compress the schedule; the
// on-wire behaviour never varies.
const (
	retransmitInterval = 300 * time.Millisecond
	maxSendAttempts    = 10
	pingInterval       = 1500 * time.Millisecond
	maxPendingPings    = 10

	rttWindow  = 5
	seenWindow = 64 // inbound nonce history depth; the ack mask needs the last 8
)

type role int

const (
	roleServer role = iota
	roleClient
)

// Conn is a single Hazel connection to one remote endpoint. Server
// connections are handed out by Server.OnConnection once the remote's HELLO
// arrives; client connections come from Dial and are established by Connect.
//
// All exported methods are safe for concurrent use. Inbound datagrams are
// processed one at a time on the owning read loop; event callbacks run on
// that path.
type Conn struct {
	id      string
	remote  *net.UDPAddr
	role    role
	version byte

	write  func([]byte) (int, error)
	closer io.Closer        // client-owned socket, nil on server connections
	clock  func() time.Time // injectable for RTT tests

	retryEvery time.Duration
	pingEvery  time.Duration

	mu        sync.Mutex
	nonce     uint16
	pending   map[uint16]*pendingSend
	seen      map[uint16]struct{} // inbound nonces, for the selective-ack mask
	seenQueue []uint16

	seenHello  bool // server: HELLO consumed
	helloSent  bool // client: Connect issued
	helloNonce uint16
	connected  bool // client: HELLO acked

	pendingPings int
	rtt          [rttWindow]time.Duration
	rttIdx       int

	pingTicker *time.Ticker
	closed     bool
	done       chan struct{} // closed exactly once, with c.closed

	onMessage   func(protocol.Message)
	onHello     func([]byte)
	onConnected func()
	onClose     func(CloseEvent)
	onError     func(error)
	onClosed    func(*Conn) // demultiplexer eviction hook
}

func newConn(remote *net.UDPAddr, r role, version byte, write func([]byte) (int, error)) *Conn {
	return &Conn{
		id:         uuid.NewString()[:8],
		remote:     remote,
		role:       r,
		version:    version,
		write:      write,
		clock:      time.Now,
		retryEvery: retransmitInterval,
		pingEvery:  pingInterval,
		pending:    make(map[uint16]*pendingSend),
		seen:       make(map[uint16]struct{}),
		done:       make(chan struct{}),
	}
}

// ID returns the connection's log correlation identifier.
func (c *Conn) ID() string { return c.id }

// RemoteAddr returns the remote UDP endpoint.
func (c *Conn) RemoteAddr() net.Addr { return c.remote }

// Done returns a channel that is closed when the connection closes.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Connected reports whether a client connection's handshake completed.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// nextNonce increments the outbound counter before use. The modulus is
// 65535, not 65536: the value 65535 never occurs on the wire. Inherited
// from the upstream protocol; peers depend on it. mu must be held.
func (c *Conn) nextNonce() uint16 {
	c.nonce = (c.nonce + 1) % 65535
	return c.nonce
}

// writePacket is the single outbound path; write is the (serialized) socket
// send provided by the demultiplexer or the client dialer.
func (c *Conn) writePacket(data []byte) (int, error) {
	n, err := c.write(data)
	if err == nil {
		metricDatagramsOut.Inc()
		metricBytesOut.Add(float64(n))
	}
	return n, err
}

// ---------------------------------------------------------------------------
// Inbound path
// ---------------------------------------------------------------------------

// handleDatagram ingests one raw datagram. data must be a private copy; the
// message slices emitted to handlers reference it.
func (c *Conn) handleDatagram(data []byte) {
	metricDatagramsIn.Inc()
	metricBytesIn.Add(float64(len(data)))

	pkt, err := protocol.Decode(data)
	if err != nil {
		c.fatal(fmt.Errorf("decode from %s: %w", c.remote, err))
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	// A server connection's first packet must be the handshake.
	firstMustHello := c.role == roleServer && !c.seenHello
	c.mu.Unlock()

	if firstMustHello && pkt.Type != protocol.TypeHello {
		c.fatal(fmt.Errorf("expected HELLO, got packet type 0x%02x", pkt.Type))
		return
	}

	switch pkt.Type {
	case protocol.TypeHello:
		c.handleHello(pkt)
	case protocol.TypeNormal:
		c.emitMessages(pkt.Messages)
	case protocol.TypeReliable:
		c.acknowledge(pkt.Nonce)
		c.emitMessages(pkt.Messages)
	case protocol.TypePing:
		c.acknowledge(pkt.Nonce)
	case protocol.TypeAck:
		c.handleAck(pkt.Nonce)
	case protocol.TypeDisconnect:
		// The peer is gone; a disconnect is never answered.
		c.close(CloseEvent{
			Forced:    pkt.Forced,
			HasReason: pkt.HasReason,
			Reason:    pkt.Reason,
			Message:   pkt.ReasonText,
		}, nil)
	default:
		// FRAGMENT is reserved upstream; unknown types are dropped too.
		util.LogDebug("[%s] ignoring packet type 0x%02x", c.id, pkt.Type)
	}
}

func (c *Conn) handleHello(pkt *protocol.Packet) {
	if c.role != roleServer {
		c.fatal(errors.New("unexpected HELLO"))
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.seenHello {
		c.mu.Unlock()
		c.fatal(errors.New("second HELLO on established connection"))
		return
	}
	if pkt.Version != c.version {
		c.mu.Unlock()
		c.fatal(fmt.Errorf("protocol version mismatch: got %d, want %d", pkt.Version, c.version))
		return
	}
	c.seenHello = true
	onHello := c.onHello
	c.mu.Unlock()

	c.acknowledge(pkt.Nonce)
	c.startPinger()
	if onHello != nil {
		onHello(pkt.Payload)
	}
}

// acknowledge records an inbound nonce and answers it with a selective ack.
// Bit i-1 of the mask is set iff nonce-i is absent from the recently-seen
// set, a "still missing" hint the peer may use to detect prior loss.
// Subtraction wraps in uint16 space, matching the nonce counter.
func (c *Conn) acknowledge(nonce uint16) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if _, ok := c.seen[nonce]; !ok {
		c.seen[nonce] = struct{}{}
		c.seenQueue = append(c.seenQueue, nonce)
		if len(c.seenQueue) > seenWindow {
			delete(c.seen, c.seenQueue[0])
			c.seenQueue = c.seenQueue[1:]
		}
	}
	var mask byte
	for i := uint16(1); i <= 8; i++ {
		if _, ok := c.seen[nonce-i]; !ok {
			mask |= 1 << (i - 1)
		}
	}
	c.mu.Unlock()

	if _, err := c.writePacket(protocol.EncodeAck(nonce, mask)); err != nil {
		c.emitError(fmt.Errorf("send ack %d: %w", nonce, err))
	}
}

// ---------------------------------------------------------------------------
// Outbound path
// ---------------------------------------------------------------------------

// SendNormal sends msgs unreliably in a single datagram and returns the
// byte count put on the wire. Delivery and ordering are best-effort.
func (c *Conn) SendNormal(msgs ...protocol.Message) (int, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrClosed
	}
	c.mu.Unlock()
	return c.writePacket(protocol.EncodeNormal(msgs...))
}

// SendReliable sends msgs reliably in a single datagram. It blocks until
// the peer acknowledges the packet and returns the byte count of the first
// send. The identical datagram is retransmitted every 300ms; after 10
// attempts without an ack the connection is force-closed and
// ErrNotAcknowledged is returned.
//
// Successive calls acquire increasing nonces but may complete in any order;
// no FIFO guarantee is offered across reliable sends. Do not call this
// synchronously from an event handler: the handler runs on the inbound
// path that must stay free to process the ack.
func (c *Conn) SendReliable(msgs ...protocol.Message) (int, error) {
	p, err := c.queueReliable(func(nonce uint16) []byte {
		return protocol.EncodeReliable(nonce, msgs...)
	}, false)
	if err != nil {
		return 0, err
	}
	res := <-p.result
	return res.n, res.err
}

// Disconnect closes the connection, notifying the peer. A graceful
// disconnect (forced=false) carries reason and an optional message; a
// forced one sends the minimal two-byte form and ignores both. The local
// close event always fires. Returns the byte count put on the wire.
func (c *Conn) Disconnect(forced bool, reason byte, message string) (int, error) {
	var packet []byte
	ev := CloseEvent{Forced: forced}
	if forced {
		packet = protocol.EncodeDisconnect()
	} else {
		packet = protocol.EncodeDisconnectReason(reason, message)
		ev.HasReason = true
		ev.Reason = reason
		ev.Message = message
	}
	n, ok := c.close(ev, packet)
	if !ok {
		return 0, ErrAlreadyDisconnected
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Termination
// ---------------------------------------------------------------------------

// fatal force-closes after a protocol violation, notifying the peer.
func (c *Conn) fatal(err error) {
	c.emitError(err)
	c.close(CloseEvent{Forced: true}, protocol.EncodeDisconnect())
}

// close performs the terminal transition exactly once: stop the ping
// ticker, fail every outstanding send with ErrClosed, optionally notify the
// peer with packet, emit the close event, evict from the demultiplexer and
// release the socket (client role). The bool result reports whether this
// call won the transition.
func (c *Conn) close(ev CloseEvent, packet []byte) (int, bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, false
	}
	c.closed = true
	pend := c.pending
	c.pending = make(map[uint16]*pendingSend)
	if c.pingTicker != nil {
		c.pingTicker.Stop()
	}
	close(c.done)
	onClose := c.onClose
	onClosed := c.onClosed
	c.mu.Unlock()

	n := 0
	if packet != nil {
		n, _ = c.writePacket(packet)
	}
	for _, p := range pend {
		p.result <- sendResult{err: ErrClosed}
	}
	if onClose != nil {
		onClose(ev)
	}
	if onClosed != nil {
		onClosed(c)
	}
	if c.closer != nil {
		c.closer.Close()
	}
	metricConnectionsClosed.Inc()
	util.LogDebug("[%s] closed (forced=%v)", c.id, ev.Forced)
	return n, true
}
