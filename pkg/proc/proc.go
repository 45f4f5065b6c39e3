// Package proc implements the per-procedure finite state machines that run
// inside a connection's local and remote request lanes. Version exchange
// is the only registered procedure kind; the dispatch shape here is shared
// by every future procedure that joins the registry.
package proc

import "github.com/bleradio/llcp/pkg/pdu"

// Kind identifies a control procedure.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindVersionExchange
)

// kindInfo binds a procedure Kind to the control-PDU opcode that both
// identifies it on the wire and spawns a new remote instance of it.
type kindInfo struct {
	kind   Kind
	opcode uint8
}

var registry = []kindInfo{
	{KindVersionExchange, pdu.OpcodeVersionInd},
}

// KindForOpcode maps a received control-PDU opcode to the procedure kind
// it spawns, consulting the registry rather than a hardcoded switch so
// future procedures register themselves in one place.
func KindForOpcode(opcode uint8) (Kind, bool) {
	for _, e := range registry {
		if e.opcode == opcode {
			return e.kind, true
		}
	}
	return KindUnknown, false
}

// Context is one in-flight control procedure. It runs exactly one of the
// local or remote FSMs, depending on which lane queued it; State is
// interpreted through LocalState or RemoteState accordingly.
type Context struct {
	Kind  Kind
	State uint8

	// AwaitedOpcode is the control-PDU opcode the dispatcher uses to route
	// an incoming PDU to this context.
	AwaitedOpcode    uint8
	HasAwaitedOpcode bool

	// Collision is set when an instant-based procedure's instant clashes
	// with the peer's. Unused by version-exchange; carried for future
	// procedures that share this shape.
	Collision bool

	// Pause, when set, forces the procedure to park on its next Run
	// instead of transmitting.
	Pause bool

	// DeadlineHook is an unused extension seam for a future per-procedure
	// response-timeout timer (see spec's open question on procedure
	// timeouts). It is never invoked by this package.
	DeadlineHook func()
}

// TxNode is the payload carried by a transmit-pool block: the encoded
// bytes of one outgoing control PDU, handed to the external TxQueue.
type TxNode struct {
	PDU []byte
}

// NtfNode is the payload carried by a notification-pool block: the
// encoded bytes of one host notification, handed to the external
// HostQueue.
type NtfNode struct {
	PDU []byte
}
