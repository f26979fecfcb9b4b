package client

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var ErrPoolClosed = errors.New("connection pool has been drained, client is dead")

type poolConn struct {
	net.Conn
	r *bufio.Reader
}

// connectionPool hands out at most size connections at once, idle ones are
// reused
type connectionPool struct {
	addr        string
	waitTimeout time.Duration
	dialer      net.Dialer
	slots       chan struct{}
	lock        sync.Mutex
	idle        []*poolConn
	closed      bool
}

func newConnectionPool(addr string, size int, waitTimeout time.Duration) *connectionPool {
	if size < 1 {
		size = 1
	}
	return &connectionPool{
		addr:        addr,
		waitTimeout: waitTimeout,
		slots:       make(chan struct{}, size),
	}
}

func (p *connectionPool) get(ctx context.Context) (*poolConn, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}

	timer := time.NewTimer(p.waitTimeout)
	defer timer.Stop()
	select {
	case p.slots <- struct{}{}:
	case <-timer.C:
		return nil, errors.Errorf("timed out after %s waiting for a connection", p.waitTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.lock.Lock()
	if n := len(p.idle); n > 0 {
		conn := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.lock.Unlock()
		return conn, nil
	}
	p.lock.Unlock()

	conn, err := p.dialer.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		<-p.slots
		return nil, errors.Wrap(err, "could not get a connection")
	}
	return &poolConn{Conn: conn, r: bufio.NewReader(conn)}, nil
}

// put returns conn to the pool, broken connections are closed
func (p *connectionPool) put(conn *poolConn, err error) {
	defer func() { <-p.slots }()

	p.lock.Lock()
	defer p.lock.Unlock()
	if err != nil || p.closed {
		_ = conn.Close()
		return
	}
	_ = conn.SetDeadline(time.Time{})
	p.idle = append(p.idle, conn)
}

func (p *connectionPool) isClosed() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.closed
}

func (p *connectionPool) close() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.closed = true
	for _, conn := range p.idle {
		_ = conn.Close()
	}
	p.idle = nil
}
