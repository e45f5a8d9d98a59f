// Package metrics 定义 Prometheus 指标。
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// MockAPIRequestsTotal Mock API 调用次数，按操作与结果区分。
	MockAPIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "todoapp_mockapi_requests_total",
			Help: "Mock API calls by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	// MockAPILatency Mock API 调用耗时（包含模拟延迟）。
	MockAPILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "todoapp_mockapi_latency_seconds",
			Help:    "Mock API call duration including the simulated delay.",
			Buckets: []float64{0.05, 0.1, 0.2, 0.4, 0.8, 1.6, 3.2},
		},
		[]string{"op"},
	)

	// StoreRollbackTotal 乐观更新回滚次数。
	StoreRollbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "todoapp_store_rollback_total",
			Help: "Optimistic store mutations reverted after a failed request.",
		},
		[]string{"action"},
	)

	// SessionLoginTotal 登录尝试次数。
	SessionLoginTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "todoapp_session_login_total",
			Help: "Login attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// LoginThrottledTotal 被限流拒绝的登录请求。
	LoginThrottledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "todoapp_login_throttled_total",
		Help: "Login requests rejected by the rate limiter.",
	})

	// SubscribersGauge 当前的 store 订阅者数量。
	SubscribersGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "todoapp_store_subscribers",
			Help: "Active store subscribers.",
		},
		[]string{"store"},
	)
)

var initOnce sync.Once

// InitMetrics 注册所有指标到默认 Registry，可重复调用。
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			MockAPIRequestsTotal,
			MockAPILatency,
			StoreRollbackTotal,
			SessionLoginTotal,
			LoginThrottledTotal,
			SubscribersGauge,
		)
	})
}
