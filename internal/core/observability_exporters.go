package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var expvarSeq atomic.Uint64

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// ExpvarMetricsRecorder publishes call counts per operation and outcome, and
// the accumulated milliseconds per operation, as one expvar map:
//
//	{"calls": {"save": {"success": 2}}, "duration_ms": {"save": 3.5}}
type ExpvarMetricsRecorder struct {
	name   string
	mu     sync.Mutex
	calls  *expvar.Map
	millis *expvar.Map
}

// ExpvarMetricsSnapshot is the decoded form of the published map.
type ExpvarMetricsSnapshot struct {
	Calls       map[string]map[string]int64 `json:"calls"`
	DurationsMS map[string]float64          `json:"duration_ms"`
}

// NewExpvarMetricsRecorder publishes a recorder under name, or under a
// generated mousedb_session_metrics_N name when name is empty. expvar
// panics on duplicate names.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("mousedb_session_metrics_%d", expvarSeq.Add(1))
	}
	rec := &ExpvarMetricsRecorder{
		name:   name,
		calls:  new(expvar.Map).Init(),
		millis: new(expvar.Map).Init(),
	}
	root := new(expvar.Map).Init()
	root.Set("calls", rec.calls)
	root.Set("duration_ms", rec.millis)
	expvar.Publish(name, root)
	return rec
}

// Name returns the expvar export name.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Observe implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.mu.Lock()
	byStatus, ok := r.calls.Get(operation).(*expvar.Map)
	if !ok {
		byStatus = new(expvar.Map).Init()
		r.calls.Set(operation, byStatus)
	}
	r.mu.Unlock()
	byStatus.Add(outcome(success), 1)
	r.millis.AddFloat(operation, float64(duration)/float64(time.Millisecond))
}

// Snapshot copies the current totals.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	snap := ExpvarMetricsSnapshot{
		Calls:       make(map[string]map[string]int64),
		DurationsMS: make(map[string]float64),
	}
	r.calls.Do(func(op expvar.KeyValue) {
		counts := make(map[string]int64)
		if m, ok := op.Value.(*expvar.Map); ok {
			m.Do(func(kv expvar.KeyValue) {
				if n, ok := kv.Value.(*expvar.Int); ok {
					counts[kv.Key] = n.Value()
				}
			})
		}
		snap.Calls[op.Key] = counts
	})
	r.millis.Do(func(kv expvar.KeyValue) {
		if f, ok := kv.Value.(*expvar.Float); ok {
			snap.DurationsMS[kv.Key] = f.Value()
		}
	})
	return snap
}

// JSONTraceEntry is one finished span as written by JSONTraceTracer.
type JSONTraceEntry struct {
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

// JSONTraceTracer writes each finished span as a JSON line and keeps a copy
// for Entries. A nil writer only retains.
type JSONTraceTracer struct {
	clock   Clock
	mu      sync.Mutex
	enc     *json.Encoder
	entries []JSONTraceEntry
}

// NewJSONTracer builds a tracer on w using the wall clock.
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	t := &JSONTraceTracer{clock: ClockFunc(time.Now)}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Entries returns the spans finished so far.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]JSONTraceEntry(nil), t.entries...)
}

// Start implements Tracer.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonTraceSpan{tracer: t, operation: operation, started: t.clock.Now().UTC()}
}

func (t *JSONTraceTracer) finish(entry JSONTraceEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, entry)
	if t.enc != nil {
		_ = t.enc.Encode(entry)
	}
}

type jsonTraceSpan struct {
	tracer    *JSONTraceTracer
	operation string
	started   time.Time
}

func (s *jsonTraceSpan) End(err error) {
	entry := JSONTraceEntry{
		Operation:  s.operation,
		Status:     outcome(err == nil),
		DurationMS: float64(s.tracer.clock.Now().Sub(s.started)) / float64(time.Millisecond),
		StartedAt:  s.started,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	s.tracer.finish(entry)
}

// PrometheusMetricsRecorder exports session operation counters and latency
// histograms through a Prometheus registerer.
type PrometheusMetricsRecorder struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder registers the session collectors on reg under
// namespace. A nil reg uses the default registerer.
func NewPrometheusMetricsRecorder(namespace string, reg prometheus.Registerer) *PrometheusMetricsRecorder {
	if namespace == "" {
		namespace = "mousedb"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &PrometheusMetricsRecorder{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "operations_total",
			Help:      "Session operations by outcome",
		}, []string{"operation", "status"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "operation_duration_seconds",
			Help:      "Session operation latency in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"operation"}),
	}
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.operations.WithLabelValues(operation, outcome(success)).Inc()
	r.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// MultiMetricsRecorder fans observations out to several recorders.
type MultiMetricsRecorder []MetricsRecorder

// Observe implements MetricsRecorder.
func (m MultiMetricsRecorder) Observe(ctx context.Context, operation string, success bool, duration time.Duration) {
	for _, r := range m {
		if r != nil {
			r.Observe(ctx, operation, success, duration)
		}
	}
}
