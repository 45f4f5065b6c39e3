// Package metrics instruments the LLCP engine with Prometheus counters.
// It is an optional concern: Recorder is a no-op when no registerer is
// supplied, so the core engine carries no hard runtime dependency on a
// running Prometheus server.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Recorder is the instrumentation surface the engine writes to.
type Recorder interface {
	// PoolExhausted records that an action was parked because the named
	// pool ("ctx", "tx", "ntf") reported no free blocks.
	PoolExhausted(pool string)
	// ProcedureCompleted records a procedure reaching its completion point
	// on the named lane ("local" or "remote").
	ProcedureCompleted(lane string)
	// ProtocolViolation records a fatal-in-current-scope protocol error
	// surfaced to the caller of RX.
	ProtocolViolation()
}

type promRecorder struct {
	exhausted  *prometheus.CounterVec
	completed  *prometheus.CounterVec
	violations prometheus.Counter
}

// New returns a Recorder backed by Prometheus counters registered against
// reg. If reg is nil, a Noop recorder is returned instead.
func New(reg prometheus.Registerer) Recorder {
	if reg == nil {
		return Noop{}
	}
	r := &promRecorder{
		exhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "llcp",
			Name:      "pool_exhausted_total",
			Help:      "Number of times an LLCP action was parked due to pool exhaustion.",
		}, []string{"pool"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "llcp",
			Name:      "procedures_completed_total",
			Help:      "Number of LLCP procedures that reached completion.",
		}, []string{"lane"}),
		violations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "llcp",
			Name:      "protocol_violations_total",
			Help:      "Number of fatal LLCP protocol violations observed on RX.",
		}),
	}
	reg.MustRegister(r.exhausted, r.completed, r.violations)
	return r
}

func (r *promRecorder) PoolExhausted(pool string)     { r.exhausted.WithLabelValues(pool).Inc() }
func (r *promRecorder) ProcedureCompleted(lane string) { r.completed.WithLabelValues(lane).Inc() }
func (r *promRecorder) ProtocolViolation()             { r.violations.Inc() }

// Noop is a Recorder that discards everything, used when no Prometheus
// registerer is configured.
type Noop struct{}

func (Noop) PoolExhausted(string)     {}
func (Noop) ProcedureCompleted(string) {}
func (Noop) ProtocolViolation()        {}
