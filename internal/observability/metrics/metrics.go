package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "clinic"

// StoreMetrics tracks record-store round trips.
type StoreMetrics struct {
	latency *prometheus.HistogramVec
}

// NewStoreMetrics registers record-store collectors on reg.
func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	m := &StoreMetrics{
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "records",
			Name:      "request_duration_seconds",
			Help:      "Latency of record-store requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"table", "op", "outcome"}),
	}
	register(reg, m.latency)
	return m
}

func (m *StoreMetrics) ObserveRequest(table, op, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(table, op, outcome).Observe(seconds)
}

// InvoiceMetrics counts invoice status transitions and optimistic reverts.
type InvoiceMetrics struct {
	transitions *prometheus.CounterVec
	reverts     *prometheus.CounterVec
}

func NewInvoiceMetrics(reg prometheus.Registerer) *InvoiceMetrics {
	m := &InvoiceMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "invoices",
			Name:      "status_transitions_total",
			Help:      "Committed invoice status transitions",
		}, []string{"from", "to"}),
		reverts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "invoices",
			Name:      "optimistic_reverts_total",
			Help:      "Local edits reverted after a failed remote write",
		}, []string{"entity", "op"}),
	}
	register(reg, m.transitions, m.reverts)
	return m
}

func (m *InvoiceMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *InvoiceMetrics) ObserveRevert(entity, op string) {
	if m == nil {
		return
	}
	m.reverts.WithLabelValues(entity, op).Inc()
}

// SweepMetrics tracks the overdue sweep.
type SweepMetrics struct {
	runs     *prometheus.CounterVec
	invoices *prometheus.CounterVec
	duration prometheus.Histogram
}

func NewSweepMetrics(reg prometheus.Registerer) *SweepMetrics {
	m := &SweepMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "runs_total",
			Help:      "Overdue sweep runs by outcome",
		}, []string{"outcome"}),
		invoices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "invoices_total",
			Help:      "Invoices processed by the overdue sweep",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Wall time of overdue sweep runs",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),
	}
	register(reg, m.runs, m.invoices, m.duration)
	return m
}

func (m *SweepMetrics) ObserveRun(outcome string, succeeded, failed int, seconds float64) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.invoices.WithLabelValues("succeeded").Add(float64(succeeded))
	m.invoices.WithLabelValues("failed").Add(float64(failed))
	m.duration.Observe(seconds)
}

// DepositMetrics counts check deposit updates.
type DepositMetrics struct {
	updates *prometheus.CounterVec
}

func NewDepositMetrics(reg prometheus.Registerer) *DepositMetrics {
	m := &DepositMetrics{
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deposits",
			Name:      "updates_total",
			Help:      "Per-invoice deposit updates by action and result",
		}, []string{"action", "result"}),
	}
	register(reg, m.updates)
	return m
}

func (m *DepositMetrics) ObserveUpdate(action, result string) {
	if m == nil {
		return
	}
	m.updates.WithLabelValues(action, result).Inc()
}

// TaskMetrics counts best-effort background tasks.
type TaskMetrics struct {
	outcomes *prometheus.CounterVec
}

func NewTaskMetrics(reg prometheus.Registerer) *TaskMetrics {
	m := &TaskMetrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "best_effort_total",
			Help:      "Best-effort side effects by task and outcome",
		}, []string{"task", "outcome"}),
	}
	register(reg, m.outcomes)
	return m
}

func (m *TaskMetrics) ObserveOutcome(task, outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(task, outcome).Inc()
}

func register(reg prometheus.Registerer, cs ...prometheus.Collector) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(cs...)
}
