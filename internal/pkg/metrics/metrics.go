package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal HTTP 请求计数。
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration HTTP 请求耗时。
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// AuthEventsTotal 认证流程事件（register/login/verify/...）。
	AuthEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_events_total",
		Help: "Auth workflow events by name.",
	}, []string{"event"})

	// BlogEventsTotal 博客写操作（create/like/unlike/save/unsave/archive/publish/delete）。
	BlogEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "blog_events_total",
		Help: "Blog write events by name.",
	}, []string{"event"})

	MailEnqueuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mail_enqueued_total",
		Help: "Outbound mail messages published to the stream.",
	}, []string{"kind"})

	MailEnqueueFailedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mail_enqueue_failed_total",
		Help: "Outbound mail messages that could not be published.",
	}, []string{"kind"})

	MailSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mail_sent_total",
		Help: "Mails delivered to the SMTP server.",
	}, []string{"kind"})

	// MailFailedTotal 发送失败，action 为 retry 或 dlq。
	MailFailedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mail_failed_total",
		Help: "Mail send failures by kind and follow-up action.",
	}, []string{"kind", "action"})

	MailDuplicateSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mail_duplicate_skipped_total",
		Help: "Redelivered mail messages skipped because they were already sent.",
	})

	MailAutoClaimTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mail_autoclaim_total",
		Help: "Pending mail messages reclaimed via XAUTOCLAIM.",
	})

	MailDLQTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mail_dlq_total",
		Help: "Mail messages moved to the dead letter stream.",
	})

	RateLimitRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ratelimit_rejected_total",
		Help: "Requests rejected by the rate limiter.",
	}, []string{"scope"})

	RateLimitWaitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ratelimit_wait_seconds",
		Help:    "Time spent waiting for a rate limit token.",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	RateLimitTimeoutTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ratelimit_timeout_total",
		Help: "Rate limit waits aborted by context.",
	})

	WorkerPoolSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "worker_pool_size",
		Help: "Configured number of mail workers.",
	})

	WorkerPoolActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "worker_pool_active",
		Help: "Mail jobs currently executing.",
	})

	WorkerPoolQueueLength = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "worker_pool_queue_length",
		Help: "Mail jobs buffered in the worker pool.",
	})
)

var once sync.Once

// InitMetrics 注册所有指标，可重复调用。
func InitMetrics(workers int) {
	once.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			AuthEventsTotal,
			BlogEventsTotal,
			MailEnqueuedTotal,
			MailEnqueueFailedTotal,
			MailSentTotal,
			MailFailedTotal,
			MailDuplicateSkippedTotal,
			MailAutoClaimTotal,
			MailDLQTotal,
			RateLimitRejectedTotal,
			RateLimitWaitDuration,
			RateLimitTimeoutTotal,
			WorkerPoolSize,
			WorkerPoolActive,
			WorkerPoolQueueLength,
		)
	})
	WorkerPoolSize.Set(float64(workers))
}
