package proc

import (
	"github.com/bleradio/llcp/pkg/metrics"
	"github.com/bleradio/llcp/pkg/pdu"
	"github.com/bleradio/llcp/pkg/pool"
)

// TxQueue is the external collaborator interface the radio layer
// implements: enqueue a filled control PDU for transmission. h identifies
// the transmit-pool block backing data, so a consumer that eventually
// frees the underlying radio buffer can signal that back by releasing h
// from the engine's transmit pool.
type TxQueue interface {
	EnqueueCtrl(h pool.Handle, data []byte)
}

// HostQueue is the external collaborator interface the host/HCI layer
// implements: receive a notification PDU. h identifies the
// notification-pool block backing data.
type HostQueue interface {
	Enqueue(h pool.Handle, data []byte)
}

// VersionExchange is the per-connection cached state for the
// version-exchange procedure.
type VersionExchange struct {
	// Valid reports whether the peer's version has been received.
	Valid bool
	// Sent reports whether our VERSION_IND has been transmitted on this
	// connection. Monotone for the connection's lifetime; only Reset
	// clears it.
	Sent bool
	// Cached holds the peer's version record, populated on first decode.
	Cached pdu.VersionRecord
}

// Reset clears the cached state, as conn_init does for a freshly
// (re)initialized connection.
func (v *VersionExchange) Reset() {
	*v = VersionExchange{}
}

// Deps bundles everything a procedure FSM step needs beyond the Context
// itself and the event being delivered: our own identity, the
// per-connection cached peer state, the shared pools, the connection's
// external queues, and the metrics sink.
type Deps struct {
	Identity  pdu.VersionRecord
	VEX       *VersionExchange
	TxPool    *pool.Pool[TxNode]
	TxQueue   TxQueue
	NtfPool   *pool.Pool[NtfNode]
	HostQueue HostQueue
	Metrics   metrics.Recorder
}
