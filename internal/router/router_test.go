package router

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

func newTestRouter() *Router {
	return New(zerolog.Nop())
}

// fakeConn is a minimal Deliverer for tests: it records every frame handed
// to it and can simulate a broken write path.
type fakeConn struct {
	id uint64

	mu     sync.Mutex
	frames [][]byte
	broken bool
}

func newFakeConn(id uint64) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() uint64 { return c.id }

func (c *fakeConn) Deliver(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken {
		return errors.New("connection closed")
	}
	c.frames = append(c.frames, frame)
	return nil
}

func (c *fakeConn) received() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.frames))
	copy(out, c.frames)
	return out
}
