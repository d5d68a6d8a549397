package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"glucolog/internal/engine/admission"
	"glucolog/internal/engine/usage"
)

// MetricsHandler exports admission and usage counters for Prometheus. The
// values are read from the controller and recorder at scrape time.
type MetricsHandler struct {
	handler http.Handler
}

func NewMetricsHandler(controller *admission.Controller, recorder *usage.Recorder) *MetricsHandler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "glucolog_up",
			Help: "Is the server up",
		}, func() float64 { return 1 }),
	)

	decisions := func(outcome string, value func(admission.Stats) int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "glucolog_admission_decisions_total",
			Help:        "Admission decisions by outcome",
			ConstLabels: prometheus.Labels{"outcome": outcome},
		}, func() float64 { return float64(value(controller.Stats())) })
	}
	reg.MustRegister(
		decisions("admitted", func(s admission.Stats) int64 { return s.Admitted }),
		decisions("unauthorized", func(s admission.Stats) int64 { return s.Unauthorized }),
		decisions("rate_limited", func(s admission.Stats) int64 { return s.RateLimited }),
	)

	if recorder != nil {
		records := func(result string, value func(usage.Stats) int64) prometheus.Collector {
			return prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name:        "glucolog_usage_records_total",
				Help:        "Usage records by fate",
				ConstLabels: prometheus.Labels{"result": result},
			}, func() float64 { return float64(value(recorder.Stats())) })
		}
		reg.MustRegister(
			records("written", func(s usage.Stats) int64 { return s.Written }),
			records("failed", func(s usage.Stats) int64 { return s.Failed }),
			records("dropped", func(s usage.Stats) int64 { return s.Dropped }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "glucolog_usage_queue_depth",
				Help: "Usage records waiting to be written",
			}, func() float64 { return float64(recorder.Stats().Queued) }),
		)
	}

	return &MetricsHandler{handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})}
}

func (h *MetricsHandler) Export(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}
