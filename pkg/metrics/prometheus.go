package metrics

import (
	"fmt"
	"io"
	"time"
)

// PrometheusExporter renders a Collector's counters in Prometheus text
// exposition format.
type PrometheusExporter struct {
	collector *Collector
	namespace string
}

// NewPrometheusExporter returns an exporter for collector, namespaced
// "diodb_".
func NewPrometheusExporter(collector *Collector) *PrometheusExporter {
	return &PrometheusExporter{collector: collector, namespace: "diodb"}
}

// SetNamespace overrides the metric name prefix.
func (pe *PrometheusExporter) SetNamespace(namespace string) {
	pe.namespace = namespace
}

// WriteMetrics writes every counter to w in Prometheus text format.
func (pe *PrometheusExporter) WriteMetrics(w io.Writer) error {
	uptime := time.Since(pe.collector.startTime).Seconds()
	if err := pe.writeGauge(w, "uptime_seconds", "Engine uptime in seconds", uptime); err != nil {
		return err
	}

	if err := pe.writeCounter(w, "puts_total", "Total number of put operations", pe.collector.putsTotal.Load()); err != nil {
		return err
	}
	if err := pe.writeCounter(w, "erases_total", "Total number of erase operations", pe.collector.erasesTotal.Load()); err != nil {
		return err
	}
	if err := pe.writeCounter(w, "gets_total", "Total number of get operations", pe.collector.getsTotal.Load()); err != nil {
		return err
	}
	if err := pe.writeCounter(w, "gets_hit_total", "Total number of gets that found a live value", pe.collector.getsHit.Load()); err != nil {
		return err
	}
	if err := pe.writeCounter(w, "gets_miss_total", "Total number of gets that found nothing", pe.collector.getsMiss.Load()); err != nil {
		return err
	}
	if err := pe.writeCounter(w, "rolls_total", "Total number of roll (compaction) cycles", pe.collector.rollsTotal.Load()); err != nil {
		return err
	}
	if err := pe.writeCounter(w, "rolls_failed_total", "Total number of roll cycles that failed", pe.collector.rollsFailed.Load()); err != nil {
		return err
	}

	return nil
}

func (pe *PrometheusExporter) writeCounter(w io.Writer, name, help string, value uint64) error {
	metricName := pe.namespace + "_" + name
	_, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n",
		metricName, help, metricName, metricName, value)
	return err
}

func (pe *PrometheusExporter) writeGauge(w io.Writer, name, help string, value float64) error {
	metricName := pe.namespace + "_" + name
	_, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %g\n",
		metricName, help, metricName, metricName, value)
	return err
}
