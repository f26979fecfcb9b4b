package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "restoreserver"

	metricLabelHandler   = "handler"
	metricLabelStatus    = "status"
	metricLabelSource    = "source"
	metricLabelRemote    = "remote"
	metricLabelNamespace = "namespace"
)

var (
	// UnknownNamespaceRequests counts requests for namespaces without any restores
	UnknownNamespaceRequests = newCounterVec(
		"unknown_namespace_request_count",
		"Counts the number of requests for namespaces that are not indexed",
	)
	// ServiceRequestCounter count the number of requests for each service function
	ServiceRequestCounter = newCounterVec(
		"service_request_count",
		"Count of requests for each handler",
		metricLabelHandler, metricLabelStatus, metricLabelSource,
	)
	// ServiceRequestDuration observe the duration of requests for each service function
	ServiceRequestDuration = newSummaryVec(
		"service_request_duration_seconds",
		"Seconds to unmarshal requests, execute a service function and marshal its responses",
		metricLabelHandler, metricLabelStatus, metricLabelSource,
	)
	// UpdatesCompletedCounter count the number of successful updates
	UpdatesCompletedCounter = newCounterVec(
		"updates_completed_count",
		"Number of updates that were successfully completed",
	)
	// UpdatesFailedCounter count the number of updates that had an error
	UpdatesFailedCounter = newCounterVec(
		"updates_failed_count",
		"Number of updates that failed due to an error",
	)
	// UpdatesSkippedCounter count the updates that found the same collection again
	UpdatesSkippedCounter = newCounterVec(
		"updates_skipped_count",
		"Number of updates that did not rebuild the index because the collection was unchanged",
	)
	// UpdateDuration observe the duration of each repo.update() call
	UpdateDuration = newSummaryVec(
		"update_duration_seconds",
		"Duration in seconds for each repo.update() call",
	)
	// IndexedRestoresGauge number of restores per namespace in the current index
	IndexedRestoresGauge = newGaugeVec(
		"indexed_restores",
		"Number of restores in the current index",
		metricLabelNamespace,
	)
	// RequestCounter count the total number of requests
	RequestCounter = newCounterVec(
		"request_count",
		"Number of requests for restores",
		metricLabelSource,
	)
	// NumSocketsGauge keep track of the total number of open sockets
	NumSocketsGauge = newGaugeVec(
		"num_sockets_total",
		"Total number of currently open socket connections",
		metricLabelRemote,
	)
	// HistoryPersistFailedCounter count the number of failed attempts to persist the restore history
	HistoryPersistFailedCounter = newCounterVec(
		"history_persist_failed_count",
		"Number of failures to store the restore history",
	)
)

func newSummaryVec(name, help string, labels ...string) *prometheus.SummaryVec {
	vec := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	prometheus.MustRegister(vec)
	return vec
}

func newCounterVec(name, help string, labels ...string) *prometheus.CounterVec {
	vec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	prometheus.MustRegister(vec)
	return vec
}

func newGaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	vec := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	prometheus.MustRegister(vec)
	return vec
}
