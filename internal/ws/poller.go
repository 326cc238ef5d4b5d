//go:build linux

package ws

import (
	"net"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// pollerBatchSize bounds how many ready descriptors a single Wait call
// collects from the kernel.
const pollerBatchSize = 128

// Poller multiplexes reads over many WebSocket connections with Linux epoll.
// Registering every socket with the kernel and waking only on readable data
// keeps the goroutine count independent of the connection count.
type Poller struct {
	epfd  int
	mu    sync.RWMutex
	conns map[int]net.Conn
	ready []unix.EpollEvent
}

// NewPoller opens an epoll instance via epoll_create1.
func NewPoller() (*Poller, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &Poller{
		epfd:  epfd,
		conns: make(map[int]net.Conn),
		ready: make([]unix.EpollEvent, pollerBatchSize),
	}, nil
}

// Add puts the connection's socket on the epoll interest list, watching for
// readable data and peer hangup.
func (p *Poller) Add(conn net.Conn) error {
	fd := socketFD(conn)
	ev := &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLHUP,
		Fd:     int32(fd),
	}
	if err := unix.EpollCtl(p.epfd, syscall.EPOLL_CTL_ADD, fd, ev); err != nil {
		return err
	}

	p.mu.Lock()
	p.conns[fd] = conn
	p.mu.Unlock()
	return nil
}

// Remove takes the connection's socket off the interest list and forgets it.
func (p *Poller) Remove(conn net.Conn) error {
	fd := socketFD(conn)
	if err := unix.EpollCtl(p.epfd, syscall.EPOLL_CTL_DEL, fd, nil); err != nil {
		return err
	}

	p.mu.Lock()
	delete(p.conns, fd)
	p.mu.Unlock()
	return nil
}

// Wait blocks until at least one registered socket is readable and returns
// the matching connections. A descriptor that was removed between the kernel
// wakeup and the map lookup is skipped.
func (p *Poller) Wait() ([]net.Conn, error) {
	n, err := unix.EpollWait(p.epfd, p.ready, -1)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	out := make([]net.Conn, 0, n)
	for i := 0; i < n; i++ {
		if conn, ok := p.conns[int(p.ready[i].Fd)]; ok {
			out = append(out, conn)
		}
	}
	p.mu.RUnlock()
	return out, nil
}

// Close releases the epoll descriptor.
func (p *Poller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conns = nil
	return unix.Close(p.epfd)
}

// socketFD digs the raw file descriptor out of a net.Conn through
// SyscallConn. File() would dup the descriptor, which leaves the copy
// registered with epoll after the original closes.
func socketFD(conn net.Conn) int {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return -1
	}

	raw, err := sc.SyscallConn()
	if err != nil {
		return -1
	}

	fd := -1
	_ = raw.Control(func(sfd uintptr) {
		fd = int(sfd)
	})
	return fd
}
