package sim

import "github.com/prometheus/client_golang/prometheus"

// Metrics aggregates the engine's operational counters on a dedicated
// registry, exposed by the API layer at /metrics.
type Metrics struct {
	Registry *prometheus.Registry

	TasksDispatched *prometheus.CounterVec
	TasksCompleted  *prometheus.CounterVec
	TasksFailed     *prometheus.CounterVec

	OrdersSubmitted       prometheus.Counter
	OrdersFulfilled       prometheus.Counter
	OrdersPartiallyFailed prometheus.Counter
	OrdersCancelled       prometheus.Counter

	ItemsPicked       prometheus.Counter
	ItemsRestocked    prometheus.Counter
	RestocksTriggered prometheus.Counter

	OracleCalls     prometheus.Counter
	OracleFallbacks prometheus.Counter

	QueueDepth prometheus.Gauge
	IdleAGVs   prometheus.Gauge
	Tick       prometheus.Gauge
}

// NewMetrics creates and registers all engine metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		TasksDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warehouse_tasks_dispatched_total",
			Help: "Tasks assigned to an AGV, by task kind.",
		}, []string{"kind"}),
		TasksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warehouse_tasks_completed_total",
			Help: "Tasks completed successfully, by task kind.",
		}, []string{"kind"}),
		TasksFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warehouse_tasks_failed_total",
			Help: "Tasks that went terminal Failed, by task kind.",
		}, []string{"kind"}),
		OrdersSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warehouse_orders_submitted_total",
			Help: "Orders accepted at submission (including partial acceptance).",
		}),
		OrdersFulfilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warehouse_orders_fulfilled_total",
			Help: "Orders that reached Fulfilled.",
		}),
		OrdersPartiallyFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warehouse_orders_partially_failed_total",
			Help: "Orders that reached PartiallyFailed.",
		}),
		OrdersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warehouse_orders_cancelled_total",
			Help: "Orders cancelled by operator request.",
		}),
		ItemsPicked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warehouse_items_picked_total",
			Help: "Units picked by completed pick tasks.",
		}),
		ItemsRestocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warehouse_items_restocked_total",
			Help: "Units shelved by completed restock tasks.",
		}),
		RestocksTriggered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warehouse_restocks_triggered_total",
			Help: "Restock tasks raised by the inventory monitor.",
		}),
		OracleCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warehouse_oracle_calls_total",
			Help: "Escalations sent to the decision oracle.",
		}),
		OracleFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warehouse_oracle_fallbacks_total",
			Help: "Escalations resolved by the deterministic fallback policy.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "warehouse_task_queue_depth",
			Help: "Pending tasks awaiting AGV assignment.",
		}),
		IdleAGVs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "warehouse_idle_agvs",
			Help: "AGVs currently Idle.",
		}),
		Tick: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "warehouse_tick",
			Help: "Current simulation tick.",
		}),
	}
	reg.MustRegister(
		m.TasksDispatched, m.TasksCompleted, m.TasksFailed,
		m.OrdersSubmitted, m.OrdersFulfilled, m.OrdersPartiallyFailed, m.OrdersCancelled,
		m.ItemsPicked, m.ItemsRestocked, m.RestocksTriggered,
		m.OracleCalls, m.OracleFallbacks,
		m.QueueDepth, m.IdleAGVs, m.Tick,
	)
	return m
}
