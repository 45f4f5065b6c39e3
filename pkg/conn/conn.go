// Package conn ties the procedure FSMs and request lanes together into a
// per-connection engine: it owns the three shared pools, routes inbound
// PDUs to the right lane, and exposes the tick and submit API the owning
// link-layer scheduler calls.
package conn

import (
	"errors"
	"fmt"

	"github.com/bleradio/llcp/pkg/lane"
	"github.com/bleradio/llcp/pkg/llcplog"
	"github.com/bleradio/llcp/pkg/metrics"
	"github.com/bleradio/llcp/pkg/pdu"
	"github.com/bleradio/llcp/pkg/pool"
	"github.com/bleradio/llcp/pkg/proc"
)

// ErrDisconnected is returned by operations attempted against a connection
// that has not been Connect-ed (or has since been Disconnect-ed).
var ErrDisconnected = errors.New("conn: connection is disconnected")

// ErrUnknownOpcode is returned by RX when an inbound control PDU's opcode
// matches no registered procedure and no lane head awaits it.
var ErrUnknownOpcode = errors.New("conn: unrecognized control opcode")

// ProtocolError reports a fatal-in-current-scope LLCP protocol violation
// surfaced while processing an inbound PDU. The connection that raised it
// is still usable; handling a ProtocolError (terminate the link, or not)
// is the owning scheduler's decision, not this package's.
type ProtocolError struct {
	Opcode uint8
	Err    error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("conn: protocol error on opcode 0x%02X: %v", e.Opcode, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Config bounds the three pools an Engine shares across every connection
// it owns, plus this host's own identity advertised in version exchange.
type Config struct {
	ContextPoolSize int
	TxPoolSize      int
	NtfPoolSize     int
	Identity        pdu.VersionRecord
}

// Engine owns the pools shared by every connection it manages, plus the
// optional metrics and logging sinks threaded through to each one.
type Engine struct {
	cfg     Config
	ctxPool *pool.Pool[proc.Context]
	txPool  *pool.Pool[proc.TxNode]
	ntfPool *pool.Pool[proc.NtfNode]
	metrics metrics.Recorder
	log     *llcplog.Logger
}

// NewEngine builds an Engine with freshly allocated, fixed-capacity pools
// sized by cfg. rec may be nil, in which case metrics are discarded; log
// may be nil, in which case a default stderr logger is used.
func NewEngine(cfg Config, rec metrics.Recorder, log *llcplog.Logger) *Engine {
	if rec == nil {
		rec = metrics.Noop{}
	}
	if log == nil {
		log = llcplog.Default()
	}
	return &Engine{
		cfg:     cfg,
		ctxPool: pool.New[proc.Context](cfg.ContextPoolSize),
		txPool:  pool.New[proc.TxNode](cfg.TxPoolSize),
		ntfPool: pool.New[proc.NtfNode](cfg.NtfPoolSize),
		metrics: rec,
		log:     log,
	}
}

// ReleaseTx returns a transmit-pool block to the shared pool, for an
// external radio layer to call once it has finished with the buffer
// backing a PDU it was handed through TxQueue.EnqueueCtrl.
func (e *Engine) ReleaseTx(h pool.Handle) {
	e.txPool.Release(h)
}

// ReleaseNtf returns a notification-pool block to the shared pool, for an
// external host layer to call once it has finished with the buffer
// backing a PDU it was handed through HostQueue.Enqueue.
func (e *Engine) ReleaseNtf(h pool.Handle) {
	e.ntfPool.Release(h)
}

// ContextFreeCount reports the number of free procedure-context blocks
// left in the shared pool, for diagnostics and tests that need to observe
// whether a dispatch routed to an existing head rather than acquiring a
// new context.
func (e *Engine) ContextFreeCount() int {
	return e.ctxPool.FreeCount()
}

// InitConn allocates a fresh, disconnected Connection bound to this
// engine's shared pools. It mirrors conn_init: the connection is not yet
// usable until Connect is called.
func (e *Engine) InitConn(tx proc.TxQueue, host proc.HostQueue) *Connection {
	return &Connection{
		engine: e,
		local:  lane.NewLocal(),
		remote: lane.NewRemote(),
		vex:    &proc.VersionExchange{},
		tx:     tx,
		host:   host,
	}
}

// Connection is one link-layer connection's pair of request lanes plus its
// per-procedure cached state. It holds no pools of its own; all pool
// capacity is shared through the owning Engine.
type Connection struct {
	engine *Engine
	local  *lane.Local
	remote *lane.Remote
	vex    *proc.VersionExchange
	tx     proc.TxQueue
	host   proc.HostQueue
}

// Connect moves both lanes from Disconnected to Idle, as conn_state_set
// does on link establishment.
func (c *Connection) Connect() {
	c.local.Connect()
	c.remote.Connect()
}

// Disconnect drains both lanes back to the engine's shared context pool
// and resets the cached version-exchange state, as conn_init does when a
// connection handle is recycled.
func (c *Connection) Disconnect() {
	c.local.Disconnect(c.engine.ctxPool)
	c.remote.Disconnect(c.engine.ctxPool)
	c.vex.Reset()
}

func (c *Connection) deps() proc.Deps {
	return proc.Deps{
		Identity:  c.engine.cfg.Identity,
		VEX:       c.vex,
		TxPool:    c.engine.txPool,
		TxQueue:   c.tx,
		NtfPool:   c.engine.ntfPool,
		HostQueue: c.host,
		Metrics:   c.engine.metrics,
	}
}

// SubmitVersionExchange enqueues a local version-exchange request on this
// connection. It returns false if the connection is disconnected or the
// shared context pool is exhausted; the caller may retry on a later tick.
func (c *Connection) SubmitVersionExchange() bool {
	_, ok := c.local.Submit(c.engine.ctxPool, proc.KindVersionExchange)
	if !ok && c.local.State() != lane.Disconnected {
		c.engine.metrics.PoolExhausted("ctx")
	}
	return ok
}

// Run advances both lanes by one tick. The remote lane runs first,
// matching the responder-priority convention of the source this protocol
// is drawn from: a connection event should let the peer's in-flight
// request make progress before this side retries its own.
func (c *Connection) Run() error {
	if err := c.remote.Run(c.engine.ctxPool, c.deps()); err != nil {
		return c.wrapRunError(err)
	}
	if err := c.local.Run(c.engine.ctxPool, c.deps()); err != nil {
		return c.wrapRunError(err)
	}
	return nil
}

func (c *Connection) wrapRunError(err error) error {
	if errors.Is(err, proc.ErrProtocolViolation) {
		c.engine.metrics.ProtocolViolation()
		c.engine.log.Warnf("protocol violation during Run: %v", err)
	}
	return err
}

// RX delivers one inbound control PDU to this connection. Routing follows
// a fixed priority: the local lane's head (a response to our own
// in-flight request), then the remote lane's head (a continuation of a
// peer request already in progress), then — only if neither head claims
// it — a brand new remote procedure is spawned for the opcode. Spawning
// enqueues the context, synthesizes one RemoteRun tick to move it off
// RemoteIdle, and only then delivers the triggering PDU; skipping the
// synthesized tick would hand a Request event to a context not yet primed
// to receive it.
func (c *Connection) RX(raw []byte) error {
	if c.local.State() == lane.Disconnected {
		return ErrDisconnected
	}
	p, err := pdu.UnmarshalControlPDU(raw)
	if err != nil {
		return err
	}
	deps := c.deps()

	if matched, err := c.local.Deliver(c.engine.ctxPool, deps, p.Opcode, raw); err != nil {
		return c.wrapRXError(p.Opcode, err)
	} else if matched {
		return nil
	}

	if kind, ok := c.remote.HeadKind(c.engine.ctxPool); ok {
		if wantKind, known := proc.KindForOpcode(p.Opcode); known && wantKind == kind {
			if matched, err := c.remote.Deliver(c.engine.ctxPool, deps, raw); err != nil {
				return c.wrapRXError(p.Opcode, err)
			} else if matched {
				return nil
			}
		}
	}

	kind, ok := proc.KindForOpcode(p.Opcode)
	if !ok {
		c.engine.metrics.ProtocolViolation()
		c.engine.log.Warnf("protocol violation on opcode 0x%02X: %v", p.Opcode, ErrUnknownOpcode)
		return &ProtocolError{Opcode: p.Opcode, Err: ErrUnknownOpcode}
	}
	if _, ok := c.remote.Spawn(c.engine.ctxPool, kind); !ok {
		c.engine.metrics.PoolExhausted("ctx")
		return nil
	}
	if err := c.remote.Run(c.engine.ctxPool, deps); err != nil {
		return c.wrapRXError(p.Opcode, err)
	}
	if _, err := c.remote.Deliver(c.engine.ctxPool, deps, raw); err != nil {
		return c.wrapRXError(p.Opcode, err)
	}
	return nil
}

func (c *Connection) wrapRXError(opcode uint8, err error) error {
	if errors.Is(err, proc.ErrProtocolViolation) {
		c.engine.metrics.ProtocolViolation()
		c.engine.log.Warnf("protocol violation on opcode 0x%02X: %v", opcode, err)
		return &ProtocolError{Opcode: opcode, Err: err}
	}
	return err
}
