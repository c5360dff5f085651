package broker

import (
	"context"
	"io"
	"sync"
)

// pipe is an unbounded FIFO of messages with close and failure states.
type pipe struct {
	mu     sync.Mutex
	queue  [][]byte
	closed bool
	err    error
	notify chan struct{}
}

func newPipe() *pipe {
	return &pipe{notify: make(chan struct{}, 1)}
}

func (p *pipe) push(data []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrChannelClosed
	}
	msg := make([]byte, len(data))
	copy(msg, data)
	p.queue = append(p.queue, msg)
	p.mu.Unlock()
	p.wake()
	return nil
}

func (p *pipe) pop(ctx context.Context) ([]byte, error) {
	for {
		p.mu.Lock()
		if len(p.queue) > 0 {
			msg := p.queue[0]
			p.queue[0] = nil
			p.queue = p.queue[1:]
			p.mu.Unlock()
			return msg, nil
		}
		if p.closed {
			err := p.err
			p.mu.Unlock()
			if err == nil {
				err = io.EOF
			}
			return nil, err
		}
		p.mu.Unlock()

		select {
		case <-p.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// fail closes the pipe; readers get err after draining queued messages.
func (p *pipe) fail(err error) {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		p.err = err
	}
	p.mu.Unlock()
	p.wake()
}

func (p *pipe) close() { p.fail(nil) }

func (p *pipe) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *pipe) wake() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}
