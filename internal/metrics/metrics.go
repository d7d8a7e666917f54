// Package metrics는 원장 엔진의 Prometheus 지표를 정의합니다.
// 모든 메서드는 nil 수신자에서도 안전합니다.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "paycrypt"

// Metrics는 지표 모음입니다
type Metrics struct {
	transitions    *prometheus.CounterVec
	fraudLevels    *prometheus.CounterVec
	syncTotal      *prometheus.CounterVec
	syncDuration   *prometheus.HistogramVec
	providerHealth *prometheus.GaugeVec
	balanceGauge   *prometheus.GaugeVec
}

// New는 reg에 지표를 등록합니다
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "withdrawal",
			Name:      "transitions_total",
			Help:      "출금 요청 상태 전이 시도 횟수",
		}, []string{"action", "outcome"}),

		fraudLevels: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fraud",
			Name:      "assessments_total",
			Help:      "위험 등급별 평가 횟수",
		}, []string{"level"}),

		syncTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "sync_total",
			Help:      "공급자 잔고 동기화 횟수",
		}, []string{"provider", "outcome"}),

		syncDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "sync_duration_seconds",
			Help:      "공급자 잔고 동기화 소요 시간",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"provider"}),

		providerHealth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "healthy",
			Help:      "공급자 상태 (1=정상, 0=오류)",
		}, []string{"provider"}),

		balanceGauge: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "balance_total",
			Help:      "마지막 동기화된 공급자 잔고",
		}, []string{"provider", "currency"}),
	}
}

// ObserveTransition은 상태 전이 결과를 기록합니다
func (m *Metrics) ObserveTransition(action, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action, outcome).Inc()
}

// ObserveFraudLevel은 위험 평가 등급을 기록합니다
func (m *Metrics) ObserveFraudLevel(level string) {
	if m == nil {
		return
	}
	m.fraudLevels.WithLabelValues(level).Inc()
}

// ObserveSync는 동기화 결과와 소요 시간을 기록합니다
func (m *Metrics) ObserveSync(provider string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome, healthy := "success", 1.0
	if err != nil {
		outcome, healthy = "error", 0
	}
	m.syncTotal.WithLabelValues(provider, outcome).Inc()
	m.syncDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
	m.providerHealth.WithLabelValues(provider).Set(healthy)
}

// SetBalance는 공급자 통화 잔고 게이지를 갱신합니다
func (m *Metrics) SetBalance(provider, currency string, total float64) {
	if m == nil {
		return
	}
	m.balanceGauge.WithLabelValues(provider, currency).Set(total)
}
