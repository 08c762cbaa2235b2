package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecordByLabel(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := New(registry)
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}

	m.ObserveMessageCounted()
	m.ObserveMessageCounted()
	m.ObserveMessageIgnored("bot")
	m.ObserveRoleChange("grant", true)
	m.ObserveRoleChange("grant", false)
	m.ObserveRoleChange("revoke", true)
	m.ObserveEvaluation("completed")
	m.SetScheduleGroups(3)

	if got := testutil.ToFloat64(m.messagesCounted); got != 2 {
		t.Fatalf("expected 2 counted messages, got %v", got)
	}
	if got := testutil.ToFloat64(m.messagesIgnored.WithLabelValues("bot")); got != 1 {
		t.Fatalf("expected 1 ignored bot message, got %v", got)
	}
	if got := testutil.ToFloat64(m.roleChanges.WithLabelValues("grant", "error")); got != 1 {
		t.Fatalf("expected 1 failed grant, got %v", got)
	}
	if got := testutil.ToFloat64(m.scheduleGroups); got != 3 {
		t.Fatalf("expected 3 schedule groups, got %v", got)
	}
}

func TestMetricsRejectDuplicateRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	if _, err := New(registry); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	if _, err := New(registry); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveMessageCounted()
	m.ObserveMessageIgnored("")
	m.ObserveIngestFailure()
	m.ObserveEvaluation("failed")
	m.ObserveRoleChange("revoke", false)
	m.SetScheduleGroups(1)
	m.ObserveEventDropped()
}
