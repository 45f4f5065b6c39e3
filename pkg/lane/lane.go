// Package lane implements the outer per-connection request lanes: the local
// lane (procedures this connection initiates) and the remote lane
// (procedures the peer initiates), each a FIFO of procedure contexts driven
// one head-of-line entry at a time.
package lane

import "github.com/bleradio/llcp/pkg/pool"

// State is the outer lane FSM's state alphabet, shared by both lanes.
type State uint8

const (
	Disconnected State = iota
	Idle
	Active
)

// fifo is the bounded-by-pool-capacity queue of procedure-context handles
// shared by both lane flavors. It never grows past what the context pool
// itself allows, since every enqueue is paired with a pool Acquire.
type fifo struct {
	handles []pool.Handle
}

func (f *fifo) push(h pool.Handle) {
	f.handles = append(f.handles, h)
}

func (f *fifo) head() (pool.Handle, bool) {
	if len(f.handles) == 0 {
		return pool.Invalid, false
	}
	return f.handles[0], true
}

func (f *fifo) pop() {
	if len(f.handles) == 0 {
		return
	}
	f.handles = f.handles[1:]
}

func (f *fifo) len() int {
	return len(f.handles)
}

func (f *fifo) drain() []pool.Handle {
	h := f.handles
	f.handles = nil
	return h
}
