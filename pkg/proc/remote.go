package proc

import (
	"fmt"

	"github.com/bleradio/llcp/pkg/pdu"
)

// RemoteState is the remote-procedure FSM's state alphabet.
type RemoteState uint8

const (
	RemoteIdle RemoteState = iota
	RemoteWaitRx
	RemoteWaitTx
	RemoteWaitNtf
)

// RemoteEvent is the remote-procedure FSM's event alphabet.
type RemoteEvent uint8

const (
	EvtRemoteRun RemoteEvent = iota
	EvtRequest
)

// StepRemote drives ctx's remote-procedure FSM with one event and returns
// whether the procedure reached its completion point and/or an error. A
// non-nil error wrapping ErrProtocolViolation means the peer re-sent a
// request for a procedure this connection already completed.
func StepRemote(ctx *Context, evt RemoteEvent, raw []byte, d Deps) (complete bool, err error) {
	switch RemoteState(ctx.State) {
	case RemoteIdle:
		return stepRemoteIdle(ctx, evt)
	case RemoteWaitRx:
		return stepRemoteWaitRx(ctx, evt, raw, d)
	case RemoteWaitTx:
		return stepRemoteWaitTx(ctx, evt, d)
	case RemoteWaitNtf:
		// Version-exchange never parks the remote side on a notification;
		// this state exists only for the shared shape future procedures
		// may need.
		return false, nil
	default:
		panic(fmt.Sprintf("proc: unreachable remote state %d", ctx.State))
	}
}

func stepRemoteIdle(ctx *Context, evt RemoteEvent) (bool, error) {
	if evt != EvtRemoteRun {
		return false, nil
	}
	ctx.State = uint8(RemoteWaitRx)
	return false, nil
}

func stepRemoteWaitRx(ctx *Context, evt RemoteEvent, raw []byte, d Deps) (bool, error) {
	if evt != EvtRequest {
		return false, nil
	}
	if err := decodeIncoming(ctx.Kind, raw, d); err != nil {
		return false, err
	}
	if ctx.Pause {
		ctx.State = uint8(RemoteWaitTx)
		return false, nil
	}
	return remoteSendResponse(ctx, d)
}

func stepRemoteWaitTx(ctx *Context, evt RemoteEvent, d Deps) (bool, error) {
	if evt != EvtRemoteRun {
		return false, nil
	}
	if ctx.Pause {
		return false, nil
	}
	return remoteSendResponse(ctx, d)
}

// remoteSendResponse implements the "WaitRx/WaitTx + send response" gate.
// A peer that re-requests version-exchange after this connection already
// completed one is a protocol error: the Link Layer shall only queue one
// VERSION_IND per connection, so there is no valid response left to send.
func remoteSendResponse(ctx *Context, d Deps) (bool, error) {
	switch ctx.Kind {
	case KindVersionExchange:
		if d.VEX.Sent {
			return false, fmt.Errorf("%w: peer re-sent VERSION_IND after version exchange already completed", ErrProtocolViolation)
		}
		if ctx.Pause || !d.TxPool.Peek() {
			d.Metrics.PoolExhausted("tx")
			ctx.State = uint8(RemoteWaitTx)
			return false, nil
		}
		h, node, ok := d.TxPool.Acquire()
		if !ok {
			ctx.State = uint8(RemoteWaitTx)
			return false, nil
		}
		p := pdu.EncodeVersionIndResponse(d.Identity)
		bytes, _ := p.MarshalBinary()
		node.PDU = bytes
		d.TxQueue.EnqueueCtrl(h, bytes)
		d.VEX.Sent = true
		ctx.State = uint8(RemoteIdle)
		return true, nil
	default:
		panic(fmt.Sprintf("proc: unknown kind %d", ctx.Kind))
	}
}
