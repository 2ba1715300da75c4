package transport

import (
	"sync"
	"time"
)

// Pipe is an in-process datagram queue. Sends are never dropped.
type Pipe struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  [][]byte
	closed bool
}

// NewPipe returns an empty pipe. The same value is used as the sending and
// the receiving end.
func NewPipe() *Pipe {
	p := &Pipe{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *Pipe) Send(b []byte) (int, error) {
	if len(b) > MaxDatagramBytes {
		return 0, ErrDatagramTooLarge
	}
	buf := make([]byte, len(b))
	copy(buf, b)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrClosed
	}
	p.queue = append(p.queue, buf)
	p.cond.Broadcast()
	return len(b), nil
}

func (p *Pipe) Receive(wait time.Duration) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.queue) == 0 && wait > 0 && !p.closed {
		timer := time.AfterFunc(wait, func() {
			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
		})
		defer timer.Stop()
		deadline := time.Now().Add(wait)
		for len(p.queue) == 0 && !p.closed && time.Now().Before(deadline) {
			p.cond.Wait()
		}
	}

	if len(p.queue) == 0 {
		if p.closed {
			return nil, false, ErrClosed
		}
		return nil, false, nil
	}
	b := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	return b, true, nil
}

// Pending returns the number of queued datagrams.
func (p *Pipe) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
	return nil
}
