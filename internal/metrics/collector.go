package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/opsforge/tenantcore/internal/queue"
)

type Collector struct {
	jobsProcessed *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	jobRetries    *prometheus.CounterVec
	queueDepth    *prometheus.GaugeVec

	tenantsProvisioned prometheus.Counter
	tenantsDeleted     *prometheus.CounterVec
	webhookEvents      *prometheus.CounterVec
}

// NewCollector registers the metric families on reg. Pass
// prometheus.DefaultRegisterer in main; tests use a private registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		jobsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantcore_jobs_processed_total",
			Help: "Jobs that reached a terminal outcome, by queue, type and outcome",
		}, []string{"queue", "type", "outcome"}),

		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tenantcore_job_duration_seconds",
			Help:    "Wall time of a single job attempt",
			Buckets: prometheus.DefBuckets,
		}, []string{"queue", "type"}),

		jobRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantcore_job_retries_total",
			Help: "Retry attempts scheduled, by queue and type",
		}, []string{"queue", "type"}),

		queueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tenantcore_queue_depth",
			Help: "Jobs per queue and state",
		}, []string{"queue", "state"}),

		tenantsProvisioned: factory.NewCounter(prometheus.CounterOpts{
			Name: "tenantcore_tenants_provisioned_total",
			Help: "Tenant partitions provisioned",
		}),

		tenantsDeleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantcore_tenants_deleted_total",
			Help: "Tenant deletions by mode (soft or hard)",
		}, []string{"mode"}),

		webhookEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantcore_webhook_events_total",
			Help: "Inbound organization-lifecycle events by type and result",
		}, []string{"event", "result"}),
	}
}

func (c *Collector) RecordJob(queueName, jobType, outcome string, duration time.Duration) {
	c.jobsProcessed.WithLabelValues(queueName, jobType, outcome).Inc()
	c.jobDuration.WithLabelValues(queueName, jobType).Observe(duration.Seconds())
}

func (c *Collector) RecordRetry(queueName, jobType string) {
	c.jobRetries.WithLabelValues(queueName, jobType).Inc()
}

func (c *Collector) SetQueueDepth(queueName string, s *queue.Stats) {
	c.queueDepth.WithLabelValues(queueName, "waiting").Set(float64(s.Waiting))
	c.queueDepth.WithLabelValues(queueName, "active").Set(float64(s.Active))
	c.queueDepth.WithLabelValues(queueName, "delayed").Set(float64(s.Delayed))
	c.queueDepth.WithLabelValues(queueName, "completed").Set(float64(s.Completed))
	c.queueDepth.WithLabelValues(queueName, "failed").Set(float64(s.Failed))
}

func (c *Collector) RecordTenantProvisioned() {
	c.tenantsProvisioned.Inc()
}

func (c *Collector) RecordTenantDeleted(mode string) {
	c.tenantsDeleted.WithLabelValues(mode).Inc()
}

func (c *Collector) RecordWebhookEvent(event, result string) {
	c.webhookEvents.WithLabelValues(event, result).Inc()
}
