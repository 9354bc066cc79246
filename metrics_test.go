package goOTP

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/goOTP/mockapi"
)

func TestMetricsCountersAndHistogram(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Inc(MetricLogout)
	m.Inc(MetricLogout)
	m.Observe(MetricVerifyLatency, 20*time.Millisecond)
	m.Observe(MetricVerifyLatency, time.Second)
	m.Observe(MetricVerifyLatency, time.Minute)
	m.Observe(MetricLogout, time.Second)

	snap := m.Snapshot()
	if snap.Counters[MetricLogout] != 2 {
		t.Fatalf("expected 2 logouts, got %d", snap.Counters[MetricLogout])
	}
	buckets := snap.Histograms[MetricVerifyLatency]
	if buckets[0] != 1 || buckets[4] != 1 || buckets[7] != 1 {
		t.Fatalf("unexpected buckets %v", buckets)
	}
	if got, want := snap.Sums[MetricVerifyLatency], time.Minute+time.Second+20*time.Millisecond; got != want {
		t.Fatalf("expected latency sum %v, got %v", want, got)
	}
	if _, ok := snap.Counters[MetricVerifyLatency]; ok {
		t.Fatal("histogram id must not appear as a counter")
	}
}

func TestMetricsDisabled(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false, EnableLatencyHistograms: true})
	m.Inc(MetricLogout)
	if m.Value(MetricLogout) != 0 || m.LatencyEnabled() {
		t.Fatal("expected disabled metrics to record nothing")
	}
	var nilMetrics *Metrics
	nilMetrics.Inc(MetricLogout)
	if len(nilMetrics.Snapshot().Counters) != 0 {
		t.Fatal("expected empty snapshot from nil metrics")
	}
}

func TestAuditEventsEmitted(t *testing.T) {
	sink := NewChannelSink(16)
	h := newHarness(t, func(cfg *Config, b *Builder, _ *mockapi.Server) {
		cfg.Audit.Enabled = true
		b.WithAuditSink(sink)
	})
	f := h.open(t, "client-1")
	h.signIn(t, f, "a@b.com")
	if err := f.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := h.engine.FlushAudit(context.Background()); err != nil {
		t.Fatalf("flush audit: %v", err)
	}

	var types []string
	for {
		select {
		case ev := <-sink.Events():
			types = append(types, ev.EventType)
			if ev.EventType == AuditChallengeVerify && (ev.UserID == "" || ev.SessionID == "") {
				t.Fatalf("expected identity on verify event, got %+v", ev)
			}
			continue
		default:
		}
		break
	}
	want := []string{AuditChallengeRequest, AuditChallengeVerify, AuditLogout}
	if len(types) != len(want) {
		t.Fatalf("expected %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, types)
		}
	}
}
