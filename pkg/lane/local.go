package lane

import (
	"github.com/bleradio/llcp/pkg/pool"
	"github.com/bleradio/llcp/pkg/proc"
)

// Local is the local request lane: procedures this connection initiates,
// queued FIFO and driven one at a time from the head.
type Local struct {
	state State
	q     fifo
}

// NewLocal returns a local lane in the Disconnected state.
func NewLocal() *Local {
	return &Local{state: Disconnected}
}

// State reports the lane's current outer state.
func (l *Local) State() State { return l.state }

// Len reports the number of queued procedures, including the running head.
func (l *Local) Len() int { return l.q.len() }

// Connect moves a freshly established connection's lane to Idle.
func (l *Local) Connect() {
	l.state = Idle
}

// Disconnect drains the queue, releasing every procedure context back to
// ctxPool, and resets the lane to Disconnected.
func (l *Local) Disconnect(ctxPool *pool.Pool[proc.Context]) {
	for _, h := range l.q.drain() {
		ctxPool.Release(h)
	}
	l.state = Disconnected
}

// Submit enqueues a new local procedure of the given kind. It fails if the
// lane is disconnected or the context pool is exhausted. The lane moves to
// Active if it was Idle; Run still must be ticked to actually drive it.
func (l *Local) Submit(ctxPool *pool.Pool[proc.Context], kind proc.Kind) (pool.Handle, bool) {
	if l.state == Disconnected {
		return pool.Invalid, false
	}
	h, block, ok := ctxPool.Acquire()
	if !ok {
		return pool.Invalid, false
	}
	block.Kind = kind
	block.State = uint8(proc.LocalIdle)
	l.q.push(h)
	if l.state == Idle {
		l.state = Active
	}
	return h, true
}

// Run drives the head-of-line procedure with one Run tick. The outer lane
// state transition table treats Active+Run as a self-loop at the lane
// level, but the tick must still reach the head context's inner FSM every
// time: Idle/WaitTx/WaitNtf only make forward progress by being re-driven
// on a later Run.
func (l *Local) Run(ctxPool *pool.Pool[proc.Context], deps proc.Deps) error {
	if l.state == Disconnected {
		return nil
	}
	h, ok := l.q.head()
	if !ok {
		l.state = Idle
		return nil
	}
	l.state = Active
	return l.driveHead(ctxPool, deps, h, proc.EvtRun, nil)
}

// HeadKind reports the procedure kind of the head-of-line context.
func (l *Local) HeadKind(ctxPool *pool.Pool[proc.Context]) (proc.Kind, bool) {
	h, ok := l.q.head()
	if !ok {
		return proc.KindUnknown, false
	}
	return ctxPool.At(h).Kind, true
}

// Deliver routes an incoming PDU to the head-of-line procedure if its
// awaited opcode matches. It reports matched=false without error if the
// lane is empty or the head isn't waiting on this opcode, letting the
// connection dispatcher fall through to the remote lane.
func (l *Local) Deliver(ctxPool *pool.Pool[proc.Context], deps proc.Deps, opcode uint8, raw []byte) (matched bool, err error) {
	h, ok := l.q.head()
	if !ok {
		return false, nil
	}
	block := ctxPool.At(h)
	if !block.HasAwaitedOpcode || block.AwaitedOpcode != opcode {
		return false, nil
	}
	return true, l.driveHead(ctxPool, deps, h, proc.EvtResponse, raw)
}

func (l *Local) driveHead(ctxPool *pool.Pool[proc.Context], deps proc.Deps, h pool.Handle, evt proc.LocalEvent, raw []byte) error {
	block := ctxPool.At(h)
	complete, err := proc.StepLocal(block, evt, raw, deps)
	if err != nil {
		return err
	}
	if complete {
		l.q.pop()
		ctxPool.Release(h)
		deps.Metrics.ProcedureCompleted("local")
		if l.q.len() == 0 {
			l.state = Idle
		}
	}
	return nil
}
