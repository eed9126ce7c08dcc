package hazel

import (
	"fmt"
	"time"

	"github.com/cyyynthia/hazelgo/internal/util"
	"github.com/cyyynthia/hazelgo/protocol"
)

type sendResult struct {
	n   int
	err error
}

// pendingSend is one reliable packet awaiting acknowledgement. The owning
// retransmit goroutine re-sends data until acked closes, the connection
// dies, or the attempt cap is reached. result is buffered and resolved
// exactly once by whichever of {ack, exhaustion, close} removes the map
// entry under the connection lock.
type pendingSend struct {
	nonce  uint16
	data   []byte
	ping   bool
	sentAt time.Time
	firstN int

	acked  chan struct{}
	result chan sendResult
}

// queueReliable allocates a nonce, registers the retransmit entry, performs
// the first send and starts the retransmit task. encode runs under the
// connection lock so the packet is framed with the nonce it was queued
// under.
func (c *Conn) queueReliable(encode func(nonce uint16) []byte, ping bool) (*pendingSend, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	p := &pendingSend{
		nonce:  c.nextNonce(),
		ping:   ping,
		sentAt: c.clock(),
		acked:  make(chan struct{}),
		result: make(chan sendResult, 1),
	}
	p.data = encode(p.nonce)
	c.pending[p.nonce] = p
	tooManyPings := false
	if ping {
		c.pendingPings++
		tooManyPings = c.pendingPings >= maxPendingPings
	}
	c.mu.Unlock()

	if tooManyPings {
		c.fatal(fmt.Errorf("%d outstanding pings", maxPendingPings))
		return nil, ErrClosed
	}

	n, err := c.writePacket(p.data)
	if err != nil {
		// Transport errors go to the caller; they do not close the
		// connection by themselves.
		c.mu.Lock()
		delete(c.pending, p.nonce)
		if ping {
			c.pendingPings--
		}
		c.mu.Unlock()
		return nil, err
	}
	p.firstN = n

	go c.retransmit(p)
	return p, nil
}

// retransmit re-sends p.data at a fixed interval until the packet is acked
// or the connection closes. The attempt count includes the initial send, so
// the wire sees at most maxSendAttempts identical datagrams.
func (c *Conn) retransmit(p *pendingSend) {
	t := time.NewTimer(c.retryEvery)
	defer t.Stop()

	for attempts := 1; ; {
		select {
		case <-p.acked:
			return
		case <-c.done:
			return
		case <-t.C:
			if attempts >= maxSendAttempts {
				c.exhaust(p)
				return
			}
			if _, err := c.writePacket(p.data); err != nil {
				util.LogDebug("[%s] retransmit nonce %d: %v", c.id, p.nonce, err)
			}
			attempts++
			metricRetransmits.Inc()
			t.Reset(c.retryEvery)
		}
	}
}

// exhaust fails p after the attempt cap and force-closes the connection.
func (c *Conn) exhaust(p *pendingSend) {
	c.mu.Lock()
	if _, ok := c.pending[p.nonce]; !ok {
		// Acked or closed in the meantime.
		c.mu.Unlock()
		return
	}
	delete(c.pending, p.nonce)
	c.mu.Unlock()

	p.result <- sendResult{err: ErrNotAcknowledged}
	c.emitError(fmt.Errorf("nonce %d not acknowledged after %d attempts", p.nonce, maxSendAttempts))
	c.close(CloseEvent{Forced: true}, protocol.EncodeDisconnect())
}

// handleAck cancels the retransmit entry for nonce and releases its waiter
// with the byte count of the first send. Acks for unknown nonces, including
// duplicates, are no-ops. Ping acks additionally feed the RTT window, and
// the HELLO ack completes a client handshake.
func (c *Conn) handleAck(nonce uint16) {
	c.mu.Lock()
	p, ok := c.pending[nonce]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.pending, nonce)
	if p.ping {
		c.pendingPings--
		c.pushRTT(c.clock().Sub(p.sentAt))
	}
	helloAcked := false
	if c.role == roleClient && c.helloSent && !c.connected && nonce == c.helloNonce {
		c.connected = true
		helloAcked = true
	}
	onConnected := c.onConnected
	c.mu.Unlock()

	close(p.acked)
	p.result <- sendResult{n: p.firstN}

	if helloAcked {
		c.startPinger()
		if onConnected != nil {
			onConnected()
		}
	}
}
