package queue

import (
	"context"
	"sync"
)

// Channel is the unbounded FIFO control channel of one queue.
// Send never blocks; any number of goroutines may send, one receives.
type Channel struct {
	mu     sync.Mutex
	buf    []Control
	closed bool
	notify chan struct{}
}

func NewChannel() *Channel {
	return &Channel{notify: make(chan struct{}, 1)}
}

// Send enqueues m. It fails with ErrChannelClosed once the receiver is gone.
func (c *Channel) Send(m Control) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	c.buf = append(c.buf, m)
	c.mu.Unlock()
	c.wake()
	return nil
}

func (c *Channel) wake() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// TryRecv pops the oldest pending message, if any.
func (c *Channel) TryRecv() (Control, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buf) == 0 {
		return Control{}, false
	}
	m := c.buf[0]
	c.buf[0] = Control{}
	c.buf = c.buf[1:]
	return m, true
}

// Recv blocks until a message is available, ctx is done, or the channel is closed.
func (c *Channel) Recv(ctx context.Context) (Control, error) {
	for {
		if m, ok := c.TryRecv(); ok {
			return m, nil
		}
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return Control{}, ErrChannelClosed
		}
		select {
		case <-ctx.Done():
			return Control{}, ctx.Err()
		case <-c.notify:
		}
	}
}

// Ready fires after a Send. It may fire spuriously; always follow with TryRecv.
func (c *Channel) Ready() <-chan struct{} { return c.notify }

// Close drops pending messages and rejects later sends.
func (c *Channel) Close() {
	c.mu.Lock()
	c.closed = true
	c.buf = nil
	c.mu.Unlock()
	c.wake()
}

func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}
