package hazel

import (
	"errors"
	"fmt"
	"net"

	"github.com/cyyynthia/hazelgo/protocol"
)

// Dial creates a client connection to a Hazel server at addr ("host:port",
// IPv4 or IPv6). No traffic flows until Connect is called; register event
// handlers in between.
func Dial(addr string, cfg Config) (*Conn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	pc, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, err
	}

	c := newConn(udpAddr, roleClient, cfg.Version, func(b []byte) (int, error) {
		return pc.Write(b)
	})
	c.closer = pc
	metricConnections.Inc()
	go c.readLoop(pc)
	return c, nil
}

// Connect performs the handshake. The HELLO carries payload opaquely to the
// server's hello event and is sent reliably; Connect blocks until its ack
// returns, and fails with ErrConnectTimeout when the retransmit attempts
// run out (the connection is force-closed in that case).
func (c *Conn) Connect(payload []byte) error {
	c.mu.Lock()
	if c.role != roleClient {
		c.mu.Unlock()
		return errors.New("hazel: Connect on a server connection")
	}
	if c.connected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	if c.helloSent {
		c.mu.Unlock()
		return errors.New("hazel: connection attempt already in progress")
	}
	c.helloSent = true
	c.mu.Unlock()

	p, err := c.queueReliable(func(nonce uint16) []byte {
		c.helloNonce = nonce
		return protocol.EncodeHello(nonce, c.version, payload)
	}, false)
	if err != nil {
		c.mu.Lock()
		c.helloSent = false
		c.mu.Unlock()
		return err
	}

	res := <-p.result
	if res.err != nil {
		if errors.Is(res.err, ErrNotAcknowledged) {
			return ErrConnectTimeout
		}
		return res.err
	}
	return nil
}

// readLoop pumps datagrams from the client socket into the state machine.
// Each datagram is copied once; slices handed to event handlers reference
// that copy and stay valid only for the duration of the callback.
func (c *Conn) readLoop(pc *net.UDPConn) {
	buf := make([]byte, 65535)
	for {
		n, err := pc.Read(buf)
		if err != nil {
			select {
			case <-c.done:
			default:
				c.emitError(fmt.Errorf("read: %w", err))
				c.close(CloseEvent{Forced: true}, nil)
			}
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		c.handleDatagram(data)
	}
}
