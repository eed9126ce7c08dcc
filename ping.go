package hazel

import (
	"errors"
	"fmt"
	"time"

	"github.com/cyyynthia/hazelgo/protocol"
)

// startPinger begins the liveness schedule once the connection is
// established (HELLO accepted on the server, HELLO acked on the client).
// Each ping is a full retransmit entry; its ack feeds the RTT window. Ten
// outstanding pings force-close the connection.
func (c *Conn) startPinger() {
	c.mu.Lock()
	if c.closed || c.pingTicker != nil {
		c.mu.Unlock()
		return
	}
	t := time.NewTicker(c.pingEvery)
	c.pingTicker = t
	c.mu.Unlock()

	go func() {
		for {
			select {
			case <-t.C:
				c.sendPing()
			case <-c.done:
				return
			}
		}
	}()
}

// sendPing issues one liveness probe.
func (c *Conn) sendPing() {
	_, err := c.queueReliable(func(nonce uint16) []byte {
		return protocol.EncodePing(nonce)
	}, true)
	if err != nil && !errors.Is(err, ErrClosed) {
		c.emitError(fmt.Errorf("send ping: %w", err))
	}
}

// pushRTT records one round-trip sample, displacing the oldest slot.
// mu must be held.
func (c *Conn) pushRTT(d time.Duration) {
	c.rtt[c.rttIdx] = d
	c.rttIdx = (c.rttIdx + 1) % rttWindow
}

// Ping reports the arithmetic mean of the last five round-trip samples in
// milliseconds. Slots not yet filled count as zero.
func (c *Conn) Ping() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sum time.Duration
	for _, d := range c.rtt {
		sum += d
	}
	return float64(sum) / float64(time.Millisecond) / rttWindow
}
