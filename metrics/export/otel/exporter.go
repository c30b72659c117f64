package otel

import (
	"context"
	"errors"
	"fmt"

	goNoPass "github.com/MrEthical07/goNoPass"
	"github.com/MrEthical07/goNoPass/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Instrument names.
const (
	CallsName        = "gonopass.calls"
	ErrorsName       = "gonopass.errors"
	LatencyBucket    = "gonopass.round_trip.bucket"
	LatencyCount     = "gonopass.round_trip.count"
	LatencySum       = "gonopass.round_trip.sum"
	AuditDroppedName = "gonopass.audit.dropped"
)

// Attribute keys.
const (
	OperationKey = attribute.Key("operation")
	OutcomeKey   = attribute.Key("outcome")
	KindKey      = attribute.Key("kind")
	BoundKey     = attribute.Key("le")
)

type metricsSource interface {
	MetricsSnapshot() goNoPass.MetricsSnapshot
	AuditDropped() uint64
}

// series is one counter read from the snapshot and its fixed attributes.
type series struct {
	id   goNoPass.MetricID
	opts []metric.ObserveOption
}

func newSeries(id goNoPass.MetricID, attrs ...attribute.KeyValue) series {
	return series{id: id, opts: []metric.ObserveOption{metric.WithAttributeSet(attribute.NewSet(attrs...))}}
}

// OTelExporter publishes client metrics as OTel observable instruments:
// calls by operation and outcome, failures by error kind, and the
// round-trip latency buckets with their count and sum.
// Values are read from the source on every collection cycle.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration

	calls   metric.Int64ObservableCounter
	errors  metric.Int64ObservableCounter
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableCounter
	sum     metric.Float64ObservableCounter
	dropped metric.Int64ObservableCounter

	callSeries  []series
	errorSeries []series
	bucketOpts  [][]metric.ObserveOption
}

// NewOTelExporter registers instruments on meter that read from client.
func NewOTelExporter(meter metric.Meter, client *goNoPass.Client) (*OTelExporter, error) {
	if client == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, client)
}

// NewOTelExporterFromSource is NewOTelExporter over any source with the same
// snapshot methods as *goNoPass.Client.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	for _, def := range internaldefs.CallDefs {
		e.callSeries = append(e.callSeries, newSeries(def.ID, OperationKey.String(def.Operation), OutcomeKey.String(def.Outcome)))
	}
	for _, def := range internaldefs.ErrorKindDefs {
		e.errorSeries = append(e.errorSeries, newSeries(def.ID, KindKey.String(def.Kind)))
	}
	for i := 0; i <= len(internaldefs.HistogramBounds); i++ {
		set := attribute.NewSet(BoundKey.String(internaldefs.BoundLabel(i)))
		e.bucketOpts = append(e.bucketOpts, []metric.ObserveOption{metric.WithAttributeSet(set)})
	}

	var err error
	if e.calls, err = meter.Int64ObservableCounter(CallsName,
		metric.WithDescription("SendAuth and SendValidation calls by outcome."),
		metric.WithUnit("{call}")); err != nil {
		return nil, fmt.Errorf("create %s: %w", CallsName, err)
	}
	if e.errors, err = meter.Int64ObservableCounter(ErrorsName,
		metric.WithDescription("Failed calls by error kind."),
		metric.WithUnit("{call}")); err != nil {
		return nil, fmt.Errorf("create %s: %w", ErrorsName, err)
	}
	if e.buckets, err = meter.Int64ObservableGauge(LatencyBucket,
		metric.WithDescription("Cumulative round trips at or below the le bound in seconds.")); err != nil {
		return nil, fmt.Errorf("create %s: %w", LatencyBucket, err)
	}
	if e.count, err = meter.Int64ObservableCounter(LatencyCount,
		metric.WithDescription("Observed HTTP round trips."),
		metric.WithUnit("{request}")); err != nil {
		return nil, fmt.Errorf("create %s: %w", LatencyCount, err)
	}
	if e.sum, err = meter.Float64ObservableCounter(LatencySum,
		metric.WithDescription("Total HTTP round-trip time."),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create %s: %w", LatencySum, err)
	}
	if e.dropped, err = meter.Int64ObservableCounter(AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp),
		metric.WithUnit("{event}")); err != nil {
		return nil, fmt.Errorf("create %s: %w", AuditDroppedName, err)
	}

	e.registration, err = meter.RegisterCallback(e.observe, e.calls, e.errors, e.buckets, e.count, e.sum, e.dropped)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, s := range e.callSeries {
		o.ObserveInt64(e.calls, int64(snapshot.Counters[s.id]), s.opts...)
	}
	for _, s := range e.errorSeries {
		o.ObserveInt64(e.errors, int64(snapshot.Counters[s.id]), s.opts...)
	}

	if raw, ok := snapshot.Histograms[goNoPass.MetricRoundTripLatency]; ok {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i, opts := range e.bucketOpts {
			o.ObserveInt64(e.buckets, int64(cumulative[i]), opts...)
		}
		o.ObserveInt64(e.count, int64(cumulative[len(cumulative)-1]))
		o.ObserveFloat64(e.sum, snapshot.HistogramSums[goNoPass.MetricRoundTripLatency].Seconds())
	}

	o.ObserveInt64(e.dropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
