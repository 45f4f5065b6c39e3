package lane

import (
	"github.com/bleradio/llcp/pkg/pool"
	"github.com/bleradio/llcp/pkg/proc"
)

// Remote is the remote request lane: procedures the peer initiates, queued
// FIFO and driven one at a time from the head.
type Remote struct {
	state State
	q     fifo
}

// NewRemote returns a remote lane in the Disconnected state.
func NewRemote() *Remote {
	return &Remote{state: Disconnected}
}

// State reports the lane's current outer state.
func (r *Remote) State() State { return r.state }

// Len reports the number of queued procedures, including the running head.
func (r *Remote) Len() int { return r.q.len() }

// Connect moves a freshly established connection's lane to Idle.
func (r *Remote) Connect() {
	r.state = Idle
}

// Disconnect drains the queue, releasing every procedure context back to
// ctxPool, and resets the lane to Disconnected.
func (r *Remote) Disconnect(ctxPool *pool.Pool[proc.Context]) {
	for _, h := range r.q.drain() {
		ctxPool.Release(h)
	}
	r.state = Disconnected
}

// Spawn enqueues a new remote procedure of the given kind, in response to
// an incoming opcode that matched neither lane's head. The caller must
// still synthesize a Run tick before delivering the triggering PDU: Spawn
// only places the context in RemoteIdle, it does not drive it.
func (r *Remote) Spawn(ctxPool *pool.Pool[proc.Context], kind proc.Kind) (pool.Handle, bool) {
	if r.state == Disconnected {
		return pool.Invalid, false
	}
	h, block, ok := ctxPool.Acquire()
	if !ok {
		return pool.Invalid, false
	}
	block.Kind = kind
	block.State = uint8(proc.RemoteIdle)
	r.q.push(h)
	if r.state == Idle {
		r.state = Active
	}
	return h, true
}

// Run drives the head-of-line procedure with one RemoteRun tick, mirroring
// Local.Run's forwarding of every tick to the head context regardless of
// the outer lane's own state transition.
func (r *Remote) Run(ctxPool *pool.Pool[proc.Context], deps proc.Deps) error {
	if r.state == Disconnected {
		return nil
	}
	h, ok := r.q.head()
	if !ok {
		r.state = Idle
		return nil
	}
	r.state = Active
	return r.driveHead(ctxPool, deps, h, proc.EvtRemoteRun, nil)
}

// HeadKind reports the procedure kind of the head-of-line context, used by
// the connection dispatcher to decide whether an incoming opcode matches
// the already-running remote procedure or must spawn a new one.
func (r *Remote) HeadKind(ctxPool *pool.Pool[proc.Context]) (proc.Kind, bool) {
	h, ok := r.q.head()
	if !ok {
		return proc.KindUnknown, false
	}
	return ctxPool.At(h).Kind, true
}

// Deliver routes an incoming request PDU to the head-of-line procedure.
// Unlike the local lane, a remote-lane head is always the intended
// recipient of the next inbound PDU for its kind: there is no opcode-match
// gate here, since the opcode match already happened when the dispatcher
// decided to route to this lane (existing head) or spawn a new one.
func (r *Remote) Deliver(ctxPool *pool.Pool[proc.Context], deps proc.Deps, raw []byte) (matched bool, err error) {
	h, ok := r.q.head()
	if !ok {
		return false, nil
	}
	return true, r.driveHead(ctxPool, deps, h, proc.EvtRequest, raw)
}

func (r *Remote) driveHead(ctxPool *pool.Pool[proc.Context], deps proc.Deps, h pool.Handle, evt proc.RemoteEvent, raw []byte) error {
	block := ctxPool.At(h)
	complete, err := proc.StepRemote(block, evt, raw, deps)
	if err != nil {
		return err
	}
	if complete {
		r.q.pop()
		ctxPool.Release(h)
		deps.Metrics.ProcedureCompleted("remote")
		if r.q.len() == 0 {
			r.state = Idle
		}
	}
	return nil
}
