package otel

import (
	"context"
	"errors"
	"fmt"

	goOTP "github.com/MrEthical07/goOTP"
	"github.com/MrEthical07/goOTP/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() goOTP.MetricsSnapshot
	AuditDropped() uint64
}

type counterInstrument struct {
	id  goOTP.MetricID
	obs metric.Int64ObservableCounter
}

type latencyInstruments struct {
	id      goOTP.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableCounter
	sum     metric.Float64ObservableCounter
}

// Exporter observes engine metrics once per collection cycle.
type Exporter struct {
	source   metricsSource
	reg      metric.Registration
	counters []counterInstrument
	latency  []latencyInstruments
	dropped  metric.Int64ObservableCounter
	bounds   []attribute.Set
}

// NewExporter registers instruments on meter that read engine.
func NewExporter(meter metric.Meter, engine *goOTP.Engine) (*Exporter, error) {
	return NewExporterFromSource(meter, engine)
}

// NewExporterFromSource registers instruments on meter that read source.
func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source}
	var observables []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		obs, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, counterInstrument{id: def.ID, obs: obs})
		observables = append(observables, obs)
	}

	for _, suffix := range internaldefs.HistogramBoundSuffix {
		e.bounds = append(e.bounds, attribute.NewSet(attribute.String("le", suffix)))
	}
	for _, def := range internaldefs.HistogramDefs {
		li, err := newLatencyInstruments(meter, def)
		if err != nil {
			return nil, err
		}
		e.latency = append(e.latency, li)
		observables = append(observables, li.buckets, li.count, li.sum)
	}

	dropped, err := meter.Int64ObservableCounter("otp_audit_dropped_total",
		metric.WithDescription("Audit events dropped due to dispatcher backpressure."))
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	e.dropped = dropped
	observables = append(observables, dropped)

	reg, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.reg = reg
	return e, nil
}

func newLatencyInstruments(meter metric.Meter, def internaldefs.HistogramDef) (latencyInstruments, error) {
	li := latencyInstruments{id: def.ID}
	var err error
	if li.buckets, err = meter.Int64ObservableGauge(def.Name+"_bucket",
		metric.WithDescription(def.Help+" Cumulative count per upper bound.")); err != nil {
		return li, fmt.Errorf("create %s_bucket: %w", def.Name, err)
	}
	if li.count, err = meter.Int64ObservableCounter(def.Name+"_count",
		metric.WithDescription(def.Help+" Sample count.")); err != nil {
		return li, fmt.Errorf("create %s_count: %w", def.Name, err)
	}
	if li.sum, err = meter.Float64ObservableCounter(def.Name+"_sum",
		metric.WithDescription(def.Help+" Sum of observed seconds."), metric.WithUnit("s")); err != nil {
		return li, fmt.Errorf("create %s_sum: %w", def.Name, err)
	}
	return li, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for _, c := range e.counters {
		o.ObserveInt64(c.obs, int64(snap.Counters[c.id]))
	}
	for _, li := range e.latency {
		raw, ok := snap.Histograms[li.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(raw)
		for i, set := range e.bounds {
			o.ObserveInt64(li.buckets, int64(cumulative[i]), metric.WithAttributeSet(set))
		}
		o.ObserveInt64(li.count, int64(cumulative[len(cumulative)-1]))
		o.ObserveFloat64(li.sum, snap.Sums[li.id].Seconds())
	}
	o.ObserveInt64(e.dropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.reg == nil {
		return nil
	}
	return e.reg.Unregister()
}
