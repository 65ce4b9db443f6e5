package app

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// counterValue reads one labelled counter back from the registry.
func counterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			matched := 0
			for _, pair := range metric.GetLabel() {
				if labels[pair.GetName()] == pair.GetValue() {
					matched++
				}
			}
			if matched == len(labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

type resyncStub struct {
	calls int
	err   error
}

func (r *resyncStub) Resync(ctx context.Context) error {
	r.calls++
	return r.err
}

func TestSchedulerResyncRecordsOutcome(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	feed := &resyncStub{}
	s := NewScheduler(feed, "@every 5m", metrics, nil)

	s.Resync()
	feed.err = errors.New("db down")
	s.Resync()

	if feed.calls != 2 {
		t.Fatalf("expected 2 resyncs, got %d", feed.calls)
	}
	if got := counterValue(t, registry, "admin_resyncs_total", map[string]string{"trigger": "schedule", "result": "ok"}); got != 1 {
		t.Fatalf("expected one ok resync, got %v", got)
	}
	if got := counterValue(t, registry, "admin_resyncs_total", map[string]string{"trigger": "schedule", "result": "error"}); got != 1 {
		t.Fatalf("expected one failed resync, got %v", got)
	}
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(&resyncStub{}, "every now and then", nil, nil)
	if err := s.Start(); err == nil {
		s.Stop()
		t.Fatal("expected invalid schedule to be refused")
	}
}

func TestSchedulerStartStop(t *testing.T) {
	s := NewScheduler(&resyncStub{}, "@every 1h", nil, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-s.Stop().Done()
}
