package proc

import (
	"errors"
	"fmt"

	"github.com/bleradio/llcp/pkg/pdu"
)

// LocalState is the local-procedure FSM's state alphabet.
type LocalState uint8

const (
	LocalIdle LocalState = iota
	LocalWaitTx
	LocalWaitRx
	LocalWaitNtf
)

// LocalEvent is the local-procedure FSM's event alphabet.
type LocalEvent uint8

const (
	EvtRun LocalEvent = iota
	EvtResponse
	EvtReject
	EvtUnknown
	EvtCollision
)

// ErrProtocolViolation marks a fatal-in-current-scope LLCP protocol error:
// the peer did something the engine, in its current scope, cannot recover
// from (re-requesting an already-completed version exchange). An
// unrecognized opcode is reported by pkg/conn with its own ErrUnknownOpcode
// instead. Callers should wrap it with contextual detail.
var ErrProtocolViolation = errors.New("proc: protocol violation")

// StepLocal drives ctx's local-procedure FSM with one event and returns
// whether the procedure reached its completion point (signal the owning
// lane's Complete event) and/or an error.
func StepLocal(ctx *Context, evt LocalEvent, raw []byte, d Deps) (complete bool, err error) {
	switch LocalState(ctx.State) {
	case LocalIdle:
		return stepLocalIdle(ctx, evt, d)
	case LocalWaitTx:
		return stepLocalWaitTx(ctx, evt, d)
	case LocalWaitRx:
		return stepLocalWaitRx(ctx, evt, raw, d)
	case LocalWaitNtf:
		return stepLocalWaitNtf(ctx, evt, d)
	default:
		panic(fmt.Sprintf("proc: unreachable local state %d", ctx.State))
	}
}

func stepLocalIdle(ctx *Context, evt LocalEvent, d Deps) (bool, error) {
	if evt != EvtRun {
		// Reject, Unknown, and Collision are declared for future
		// procedures but are not wired for version-exchange.
		return false, nil
	}
	if ctx.Pause {
		ctx.State = uint8(LocalWaitTx)
		return false, nil
	}
	return localSendRequest(ctx, d)
}

func stepLocalWaitTx(ctx *Context, evt LocalEvent, d Deps) (bool, error) {
	if evt != EvtRun {
		return false, nil
	}
	if ctx.Pause {
		return false, nil
	}
	return localSendRequest(ctx, d)
}

func stepLocalWaitRx(ctx *Context, evt LocalEvent, raw []byte, d Deps) (bool, error) {
	if evt != EvtResponse {
		return false, nil
	}
	if err := decodeIncoming(ctx.Kind, raw, d); err != nil {
		return false, err
	}
	return localCompleteAttempt(ctx, d)
}

func stepLocalWaitNtf(ctx *Context, evt LocalEvent, d Deps) (bool, error) {
	if evt != EvtRun {
		return false, nil
	}
	return localCompleteAttempt(ctx, d)
}

// localSendRequest implements the "Idle/WaitTx + Run" transmit gate: the
// Link Layer shall only queue one VERSION_IND per connection, so a
// connection that has already sent one skips straight to the completion
// attempt instead of transmitting again.
func localSendRequest(ctx *Context, d Deps) (bool, error) {
	switch ctx.Kind {
	case KindVersionExchange:
		if d.VEX.Sent {
			return localCompleteAttempt(ctx, d)
		}
		if ctx.Pause || !d.TxPool.Peek() {
			d.Metrics.PoolExhausted("tx")
			ctx.State = uint8(LocalWaitTx)
			return false, nil
		}
		h, node, ok := d.TxPool.Acquire()
		if !ok {
			ctx.State = uint8(LocalWaitTx)
			return false, nil
		}
		p := pdu.EncodeVersionIndRequest(d.Identity)
		bytes, _ := p.MarshalBinary()
		node.PDU = bytes
		d.TxQueue.EnqueueCtrl(h, bytes)
		d.VEX.Sent = true
		ctx.AwaitedOpcode = pdu.OpcodeVersionInd
		ctx.HasAwaitedOpcode = true
		ctx.State = uint8(LocalWaitRx)
		return false, nil
	default:
		panic(fmt.Sprintf("proc: unknown kind %d", ctx.Kind))
	}
}

// localCompleteAttempt implements the shared completion gate: enqueue a
// host notification if a notification block is free, otherwise park in
// WaitNtf for a retry on the next Run.
func localCompleteAttempt(ctx *Context, d Deps) (bool, error) {
	switch ctx.Kind {
	case KindVersionExchange:
		if !d.NtfPool.Peek() {
			d.Metrics.PoolExhausted("ntf")
			ctx.State = uint8(LocalWaitNtf)
			return false, nil
		}
		h, node, ok := d.NtfPool.Acquire()
		if !ok {
			ctx.State = uint8(LocalWaitNtf)
			return false, nil
		}
		p := pdu.EncodeVersionIndNotification(d.VEX.Cached)
		bytes, _ := p.MarshalBinary()
		node.PDU = bytes
		d.HostQueue.Enqueue(h, bytes)
		ctx.State = uint8(LocalIdle)
		return true, nil
	default:
		panic(fmt.Sprintf("proc: unknown kind %d", ctx.Kind))
	}
}

// decodeIncoming parses raw wire bytes for the procedure kind and updates
// the per-connection cached peer state.
func decodeIncoming(kind Kind, raw []byte, d Deps) error {
	switch kind {
	case KindVersionExchange:
		p, err := pdu.UnmarshalControlPDU(raw)
		if err != nil {
			return err
		}
		rec, err := pdu.DecodeVersionInd(p)
		if err != nil {
			return err
		}
		d.VEX.Valid = true
		d.VEX.Cached = rec
		return nil
	default:
		panic(fmt.Sprintf("proc: unknown kind %d", kind))
	}
}
