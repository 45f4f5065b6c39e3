// Package testutil provides recording fakes of the transmit and host
// queues, shared by the LLCP engine's test suites.
package testutil

import (
	"sync"

	"github.com/bleradio/llcp/pkg/pool"
)

// Delivery records one PDU handed to a fake queue, along with the pool
// handle that backed it so a test can simulate the external consumer
// eventually freeing that block.
type Delivery struct {
	Handle pool.Handle
	PDU    []byte
}

// FakeRadio is a mock transmit queue, recording every control PDU handed
// to it for transmission instead of actually putting it on the air.
type FakeRadio struct {
	mu  sync.Mutex
	out []Delivery
}

// NewFakeRadio creates an empty FakeRadio.
func NewFakeRadio() *FakeRadio {
	return &FakeRadio{}
}

// EnqueueCtrl implements proc.TxQueue.
func (r *FakeRadio) EnqueueCtrl(h pool.Handle, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	r.out = append(r.out, Delivery{Handle: h, PDU: cp})
}

// Sent returns a snapshot of every PDU enqueued so far, in order.
func (r *FakeRadio) Sent() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Delivery, len(r.out))
	copy(out, r.out)
	return out
}

// Count returns the number of PDUs enqueued so far.
func (r *FakeRadio) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.out)
}

// Last returns the most recently enqueued PDU's bytes, or nil if none.
func (r *FakeRadio) Last() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.out) == 0 {
		return nil
	}
	return r.out[len(r.out)-1].PDU
}

// FakeHost is a mock host-notification queue, recording every
// notification PDU delivered to it instead of actually crossing HCI.
type FakeHost struct {
	mu  sync.Mutex
	out []Delivery
}

// NewFakeHost creates an empty FakeHost.
func NewFakeHost() *FakeHost {
	return &FakeHost{}
}

// Enqueue implements proc.HostQueue.
func (h *FakeHost) Enqueue(handle pool.Handle, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	h.out = append(h.out, Delivery{Handle: handle, PDU: cp})
}

// Notifications returns a snapshot of every notification delivered so
// far, in order.
func (h *FakeHost) Notifications() []Delivery {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Delivery, len(h.out))
	copy(out, h.out)
	return out
}

// Count returns the number of notifications delivered so far.
func (h *FakeHost) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.out)
}
