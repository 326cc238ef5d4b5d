package ws

import (
	"log"
	"time"

	"github.com/gobwas/ws"
)

// Heartbeat defaults. A connection counts as stale when no read succeeded
// within pingInterval + pongGrace.
const (
	defaultPingInterval = 30 * time.Second
	defaultPongGrace    = 10 * time.Second
)

// HeartbeatConfig tunes the liveness probe loop.
type HeartbeatConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// DefaultHeartbeatConfig returns the standard probe timings.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Interval: defaultPingInterval,
		Timeout:  defaultPongGrace,
	}
}

// StartHeartbeat launches the liveness loop. Every Interval it pings all
// connections and drops the ones with no recent read activity. The goroutine
// exits when the server shuts down.
func StartHeartbeat(server *Server, config HeartbeatConfig) {
	go func() {
		ticker := time.NewTicker(config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-server.done:
				return
			case <-ticker.C:
				sweepStale(server, config)
			}
		}
	}()
}

// sweepStale drops connections whose last successful read is older than
// Interval + Timeout, then pings the survivors. Browsers answer the
// protocol-level ping (opcode 0x9) with a pong automatically, which refreshes
// LastPing on the next read.
func sweepStale(server *Server, config HeartbeatConfig) {
	cutoff := time.Now().Add(-(config.Interval + config.Timeout))

	for _, c := range server.Connections().All() {
		if c.LastPing.Before(cutoff) {
			log.Printf("ws: heartbeat timeout conn=%s idle=%s",
				c.ID, time.Since(c.LastPing).Round(time.Second))
			server.RemoveConnection(c)
			continue
		}

		if err := c.WritePing(); err != nil {
			log.Printf("ws: heartbeat ping failed conn=%s: %v", c.ID, err)
			server.RemoveConnection(c)
		}
	}
}

// WritePing sends a protocol-level ping frame, serialized against other
// outbound frames by the connection's write mutex.
func (c *Connection) WritePing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteFrame(c.Conn, ws.NewPingFrame(nil))
}
