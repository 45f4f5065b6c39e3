//go:build integration

// Package integration drives the LLCP engine end to end through its
// public conn API, covering the version-exchange scenarios a real
// link-layer scheduler would exercise across a connection's lifetime.
package integration

import (
	"errors"
	"testing"

	"go.uber.org/goleak"

	"github.com/bleradio/llcp/pkg/conn"
	"github.com/bleradio/llcp/pkg/pdu"
	"github.com/bleradio/llcp/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newEngine() *conn.Engine {
	return conn.NewEngine(conn.Config{
		ContextPoolSize: 2,
		TxPoolSize:      2,
		NtfPoolSize:     2,
		Identity:        pdu.VersionRecord{VersionNumber: 0x08, CompanyID: 0x00D2, SubVersion: 0x0001},
	}, nil, nil)
}

// TestLocalInitiatedVersionExchange covers scenario 1: this side submits a
// version-exchange request, the peer responds, and the host is notified
// with the peer's decoded identity.
func TestLocalInitiatedVersionExchange(t *testing.T) {
	e := newEngine()
	radio, host := testutil.NewFakeRadio(), testutil.NewFakeHost()
	c := e.InitConn(radio, host)
	c.Connect()

	if !c.SubmitVersionExchange() {
		t.Fatal("submit failed")
	}
	if err := c.Run(); err != nil {
		t.Fatal(err)
	}
	if radio.Count() != 1 {
		t.Fatalf("radio count = %d, want 1", radio.Count())
	}

	peer := pdu.VersionRecord{VersionNumber: 0x0A, CompanyID: 0x1234, SubVersion: 0x0002}
	raw, err := pdu.EncodeVersionIndResponse(peer).MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if err := c.RX(raw); err != nil {
		t.Fatal(err)
	}
	if host.Count() != 1 {
		t.Fatalf("host count = %d, want 1", host.Count())
	}
	decoded, err := pdu.UnmarshalControlPDU(host.Notifications()[0].PDU)
	if err != nil {
		t.Fatal(err)
	}
	rec, err := pdu.DecodeVersionInd(decoded)
	if err != nil {
		t.Fatal(err)
	}
	if rec != peer {
		t.Fatalf("notified record = %+v, want %+v", rec, peer)
	}
}

// TestRemoteInitiatedVersionExchange covers scenario 2: the peer sends a
// request first; this side responds without any host notification.
func TestRemoteInitiatedVersionExchange(t *testing.T) {
	e := newEngine()
	radio, host := testutil.NewFakeRadio(), testutil.NewFakeHost()
	c := e.InitConn(radio, host)
	c.Connect()

	peer := pdu.VersionRecord{VersionNumber: 0x0A, CompanyID: 0x1234, SubVersion: 0x0002}
	raw, err := pdu.EncodeVersionIndRequest(peer).MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if err := c.RX(raw); err != nil {
		t.Fatal(err)
	}
	if radio.Count() != 1 {
		t.Fatalf("radio count = %d, want 1", radio.Count())
	}
	if host.Count() != 0 {
		t.Fatal("remote-initiated exchange must not notify the host")
	}
}

// TestLocalRequestSkipsRetransmitWhenAlreadySent covers scenario 3: a
// local submit issued after this side already sent its VERSION_IND (as a
// response to an earlier peer request) completes without a second
// transmission.
func TestLocalRequestSkipsRetransmitWhenAlreadySent(t *testing.T) {
	e := newEngine()
	radio, host := testutil.NewFakeRadio(), testutil.NewFakeHost()
	c := e.InitConn(radio, host)
	c.Connect()

	peer := pdu.VersionRecord{VersionNumber: 0x0A, CompanyID: 0x1234, SubVersion: 0x0002}
	raw, err := pdu.EncodeVersionIndRequest(peer).MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if err := c.RX(raw); err != nil {
		t.Fatal(err)
	}

	if !c.SubmitVersionExchange() {
		t.Fatal("submit failed")
	}
	if err := c.Run(); err != nil {
		t.Fatal(err)
	}
	if radio.Count() != 1 {
		t.Fatalf("radio count = %d, want still 1", radio.Count())
	}
	if host.Count() != 1 {
		t.Fatalf("host count = %d, want 1", host.Count())
	}
}

// TestExhaustionBackpressure covers scenario 4: with the transmit pool's
// only block held by another connection, a submitted request parks instead
// of transmitting; after that block is released externally, a later tick
// emits the PDU.
func TestExhaustionBackpressure(t *testing.T) {
	e := conn.NewEngine(conn.Config{
		ContextPoolSize: 2,
		TxPoolSize:      1,
		NtfPoolSize:     2,
		Identity:        pdu.VersionRecord{VersionNumber: 0x08, CompanyID: 0x00D2, SubVersion: 0x0001},
	}, nil, nil)
	radio, host := testutil.NewFakeRadio(), testutil.NewFakeHost()

	// c1 consumes the single transmit-pool block.
	c1 := e.InitConn(radio, host)
	c1.Connect()
	if !c1.SubmitVersionExchange() {
		t.Fatal("submit failed")
	}
	if err := c1.Run(); err != nil {
		t.Fatal(err)
	}
	if radio.Count() != 1 {
		t.Fatalf("radio count = %d, want 1", radio.Count())
	}

	// c2 shares the same exhausted pool and must park.
	c2 := e.InitConn(radio, host)
	c2.Connect()
	if !c2.SubmitVersionExchange() {
		t.Fatal("submit failed")
	}
	if err := c2.Run(); err != nil {
		t.Fatal(err)
	}
	if radio.Count() != 1 {
		t.Fatal("transmit pool is exhausted, c2 should not have sent yet")
	}

	// The radio finishes with c1's buffer and releases it back to the
	// engine; c2's next tick can now proceed.
	for _, d := range radio.Sent() {
		e.ReleaseTx(d.Handle)
	}
	if err := c2.Run(); err != nil {
		t.Fatal(err)
	}
	if radio.Count() != 2 {
		t.Fatalf("radio count after release = %d, want 2", radio.Count())
	}
}

// TestDispatcherRoutesToExistingHeadBeforeSpawning covers scenario 5: once
// a remote procedure is in flight (parked waiting on a resource, not yet
// complete), a second inbound PDU for the same opcode routes to that head
// rather than spawning a sibling context.
func TestDispatcherRoutesToExistingHeadBeforeSpawning(t *testing.T) {
	// A zero-capacity transmit pool makes the first delivery park its
	// spawned remote head in RemoteWaitTx instead of completing it, so the
	// head is still in flight when the second PDU for the same exchange
	// arrives.
	e := conn.NewEngine(conn.Config{
		ContextPoolSize: 2,
		TxPoolSize:      0,
		NtfPoolSize:     2,
		Identity:        pdu.VersionRecord{VersionNumber: 0x08, CompanyID: 0x00D2, SubVersion: 0x0001},
	}, nil, nil)
	radio, host := testutil.NewFakeRadio(), testutil.NewFakeHost()
	c := e.InitConn(radio, host)
	c.Connect()

	peer := pdu.VersionRecord{VersionNumber: 0x0A, CompanyID: 0x1234, SubVersion: 0x0002}
	raw, err := pdu.EncodeVersionIndRequest(peer).MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	// First delivery spawns the remote procedure, which parks in
	// RemoteWaitTx because the transmit pool has no capacity to send the
	// response: still in flight, not complete.
	if err := c.RX(raw); err != nil {
		t.Fatal(err)
	}
	if radio.Count() != 0 {
		t.Fatalf("radio count = %d, want 0 (response gated on tx pool)", radio.Count())
	}
	freeAfterFirst := e.ContextFreeCount()

	// A second, interleaved delivery of the same request must route to
	// the still-in-flight head rather than spawning a sibling context: no
	// error, no second context acquired, no response yet (still gated).
	if err := c.RX(raw); err != nil {
		t.Fatalf("second delivery to existing head returned error: %v", err)
	}
	if got := e.ContextFreeCount(); got != freeAfterFirst {
		t.Fatalf("context free count = %d after second delivery, want unchanged %d (no sibling spawned)", got, freeAfterFirst)
	}
	if host.Count() != 0 {
		t.Fatal("remote-initiated exchange must not notify the host")
	}
	if radio.Count() != 0 {
		t.Fatalf("radio count = %d, want still 0", radio.Count())
	}
}

// TestDisconnectDrainsInFlightProcedures covers scenario 6: disconnecting
// mid-exchange releases the in-flight context and leaves the connection
// rejecting further RX until reconnected.
func TestDisconnectDrainsInFlightProcedures(t *testing.T) {
	e := newEngine()
	radio, host := testutil.NewFakeRadio(), testutil.NewFakeHost()
	c := e.InitConn(radio, host)
	c.Connect()

	if !c.SubmitVersionExchange() {
		t.Fatal("submit failed")
	}
	if err := c.Run(); err != nil {
		t.Fatal(err)
	}

	c.Disconnect()

	raw := []byte{pdu.LLIDControl, 6, pdu.OpcodeVersionInd, 8, 0, 0, 0, 0}
	if err := c.RX(raw); !errors.Is(err, conn.ErrDisconnected) {
		t.Fatalf("err = %v, want ErrDisconnected", err)
	}

	c.Connect()
	if !c.SubmitVersionExchange() {
		t.Fatal("reconnect should allow a fresh submit")
	}
}
