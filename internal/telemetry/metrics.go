package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "beeflow"

// Метрики Task Manager'а.
var (
	// DispatchCycles — число завершённых циклов dispatch.
	DispatchCycles = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "cycles_total",
		Help:      "Completed dispatch cycles.",
	})

	// DispatchCycleDuration — длительность цикла dispatch.
	DispatchCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of a dispatch cycle.",
		Buckets:   prometheus.DefBuckets,
	})

	// QueueLength — длина очередей submit/job/update.
	QueueLength = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "queue_length",
		Help:      "Rows in the durable dispatch queues.",
	}, []string{"queue"})

	// JobEvents — события jobs: submitted, submit_fail, build_fail, resubmitted, query_error.
	JobEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "job_events_total",
		Help:      "Job lifecycle events observed by the dispatcher.",
	}, []string{"event"})

	// UpdateDeliveries — попытки доставки пачек updates по результату.
	UpdateDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "update_deliveries_total",
		Help:      "Update batch delivery attempts.",
	}, []string{"result"})
)

// Метрики Workflow Manager'а.
var (
	// TaskUpdates — применённые updates по статусу.
	TaskUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "wfm",
		Name:      "task_updates_total",
		Help:      "Task state updates applied by the reconciler.",
	}, []string{"state"})

	// WorkflowsArchived — заархивированные workflows по итоговому статусу.
	WorkflowsArchived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "wfm",
		Name:      "workflows_archived_total",
		Help:      "Archived workflows by final state.",
	}, []string{"state"})

	// ActiveWorkflows — workflows, загруженные в память.
	ActiveWorkflows = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "wfm",
		Name:      "active_workflows",
		Help:      "Workflows currently loaded in memory.",
	})
)

// Метрики HTTP API обоих процессов.
var (
	// HTTPRequests — запросы по шаблону маршрута и статусу.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route pattern and status code.",
	}, []string{"route", "status"})

	// HTTPRequestDuration — длительность обработки запроса.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request handling duration.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
)

// Значения label event для JobEvents.
const (
	EventSubmitted   = "submitted"
	EventSubmitFail  = "submit_fail"
	EventBuildFail   = "build_fail"
	EventResubmitted = "resubmitted"
	EventQueryError  = "query_error"
	EventCheckpoint  = "checkpoint"
	EventZombie      = "zombie"
)
