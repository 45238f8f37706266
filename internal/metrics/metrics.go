package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "zone_console"

var registry = prometheus.NewRegistry()

var (
	// StreamFrames - кадры из processing/ws по результату обработки
	StreamFrames = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_frames_total",
		Help:      "Frames received from the backend stream",
	}, []string{"result"}) // accepted, dropped

	// ConfigPatches - отправки конфигурации на устройство
	ConfigPatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "configuration_patches_total",
		Help:      "Configuration PATCH requests sent to the backend",
	}, []string{"result"}) // ok, error

	// BackendRequests - запросы к бэкенду консоли
	BackendRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backend_requests_total",
		Help:      "Requests sent to the console backend",
	}, []string{"method", "status"})

	// AverageSeriesLength - текущая длина усредненной серии телеметрии
	AverageSeriesLength = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "telemetry_average_series_length",
		Help:      "Entries in the averaged detection series",
	})

	// Viewers - подключенные клиенты /ws
	Viewers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "viewers",
		Help:      "Connected viewer websocket clients",
	})

	// StageTransitions - переходы экрана по событию
	StageTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stage_transitions_total",
		Help:      "Session stage transitions",
	}, []string{"event", "result"})
)

func init() {
	registry.MustRegister(
		StreamFrames,
		ConfigPatches,
		BackendRequests,
		AverageSeriesLength,
		Viewers,
		StageTransitions,
		collectors.NewGoCollector(),
	)
}

// Handler отдает метрики в формате Prometheus
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}
