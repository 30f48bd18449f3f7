package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestSyncMetricsExportsPipelineSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewSyncMetrics(reg)

	metrics.ObserveJobDuration("square", "push", 120*time.Millisecond)
	metrics.IncJobOutcome("square", "done")
	metrics.IncDeadLetter("ebay")
	metrics.IncDrainRun("queue_idle")
	metrics.SetQueueDepth("queued", 12)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "sync_job_outcomes", "outcome", "done"); err != nil {
		t.Fatalf("fetch outcomes: %v", err)
	} else if got != 1 {
		t.Fatalf("expected outcomes=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "sync_dead_letters", "marketplace", "ebay"); err != nil {
		t.Fatalf("fetch dead letters: %v", err)
	} else if got != 1 {
		t.Fatalf("expected dead letters=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "sync_drain_runs", "reason", "queue_idle"); err != nil {
		t.Fatalf("fetch drain runs: %v", err)
	} else if got != 1 {
		t.Fatalf("expected drain runs=1, got %f", got)
	}

	if got, err := fetchGaugeValue(mfs, "sync_queue_depth", "status", "queued"); err != nil {
		t.Fatalf("fetch queue depth: %v", err)
	} else if got != 12 {
		t.Fatalf("expected queue depth=12, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "sync_job_duration_seconds", "marketplace", "square"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestSyncMetricsNilSafe(t *testing.T) {
	var metrics *SyncMetrics
	metrics.ObserveJobDuration("square", "push", time.Second)
	metrics.IncJobOutcome("square", "done")
	metrics.SetQueueDepth("queued", 1)
	metrics.IncDeadLetter("square")
	metrics.IncDrainRun("cap")
}

func fetchGaugeValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetGauge().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("gauge %q missing label %s=%s", name, label, value)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("counter %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(pairs []*dto.LabelPair, label, value string) bool {
	for _, pair := range pairs {
		if pair.GetName() == label && pair.GetValue() == value {
			return true
		}
	}
	return false
}
