// Package prom exposes Prometheus metrics for the ingestion server and the
// control plane: a registry, an HTTP handler, and typed observer
// registration for this domain's events — frames decoded, MIC failures,
// and register/deregister outcomes.
package prom

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry returns a fresh Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// Handler returns an HTTP handler serving metrics from reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// IngestionObserver exports TCP ingestion metrics.
type IngestionObserver struct {
	connGauge     prometheus.Gauge
	framesTotal   *prometheus.CounterVec
	garbageTotal  prometheus.Counter
	unknownSensor prometheus.Counter
}

// NewIngestionObserver registers ingestion metrics on reg.
func NewIngestionObserver(reg *prometheus.Registry) *IngestionObserver {
	o := &IngestionObserver{
		connGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "telemetry_ingestion_connections",
			Help: "Current TCP ingestion connection count.",
		}),
		framesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_ingestion_frames_total",
			Help: "Frames processed by the ingestion decoder, by result.",
		}, []string{"result"}),
		garbageTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_ingestion_garbage_bytes_total",
			Help: "Bytes discarded while resynchronizing to the next frame.",
		}),
		unknownSensor: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_ingestion_unknown_sensor_total",
			Help: "Frames referencing a sensor name absent from the registry.",
		}),
	}
	reg.MustRegister(o.connGauge, o.framesTotal, o.garbageTotal, o.unknownSensor)
	return o
}

// Connections sets the current connection gauge.
func (o *IngestionObserver) Connections(n int) { o.connGauge.Set(float64(n)) }

// FrameDecoded records a successfully decrypted frame.
func (o *IngestionObserver) FrameDecoded() { o.framesTotal.WithLabelValues("decoded").Inc() }

// MICFailure records a frame that failed authentication; the connection
// stays open and the stream continues.
func (o *IngestionObserver) MICFailure() { o.framesTotal.WithLabelValues("mic_failure").Inc() }

// UnknownSensor records a frame naming a sensor absent from the registry.
func (o *IngestionObserver) UnknownSensor() { o.unknownSensor.Inc() }

// GarbageBytes records bytes discarded while resynchronizing to the next
// frame boundary.
func (o *IngestionObserver) GarbageBytes(n int) { o.garbageTotal.Add(float64(n)) }

// ControlPlaneObserver exports HTTP control-plane metrics.
type ControlPlaneObserver struct {
	registerTotal   *prometheus.CounterVec
	deregisterTotal *prometheus.CounterVec
	authFailures    *prometheus.CounterVec
	sensorGauge     prometheus.GaugeFunc
}

// NewControlPlaneObserver registers control-plane metrics on reg. sensors is
// polled on each scrape to report the current registry size.
func NewControlPlaneObserver(reg *prometheus.Registry, sensors func() int) *ControlPlaneObserver {
	o := &ControlPlaneObserver{
		registerTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_controlplane_register_total",
			Help: "register_sensor outcomes.",
		}, []string{"result"}),
		deregisterTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_controlplane_deregister_total",
			Help: "deregister_sensor outcomes.",
		}, []string{"result"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_controlplane_auth_failures_total",
			Help: "Authentication pipeline failures, by error code.",
		}, []string{"code"}),
	}
	o.sensorGauge = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "telemetry_controlplane_sensors",
		Help: "Current number of registered sensors.",
	}, func() float64 { return float64(sensors()) })
	reg.MustRegister(o.registerTotal, o.deregisterTotal, o.authFailures, o.sensorGauge)
	return o
}

// Register records the outcome of a register_sensor call.
func (o *ControlPlaneObserver) Register(result string) { o.registerTotal.WithLabelValues(result).Inc() }

// Deregister records the outcome of a deregister_sensor call.
func (o *ControlPlaneObserver) Deregister(result string) {
	o.deregisterTotal.WithLabelValues(result).Inc()
}

// AuthFailure records an authentication pipeline rejection by its fserrors
// code.
func (o *ControlPlaneObserver) AuthFailure(code string) { o.authFailures.WithLabelValues(code).Inc() }
