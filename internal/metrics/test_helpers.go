package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// getMetricValue reads the gauge of metric selected by labels.
func getMetricValue(metric *prometheus.GaugeVec, labels prometheus.Labels) (float64, error) {
	g, err := metric.GetMetricWith(labels)
	if err != nil {
		return 0, err
	}

	pb := &dto.Metric{}
	if err := g.Write(pb); err != nil {
		return 0, err
	}
	return pb.GetGauge().GetValue(), nil
}
