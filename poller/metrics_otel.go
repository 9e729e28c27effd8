package poller

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetricsOptions configures NewOTelMetrics.
type OTelMetricsOptions struct {
	MeterProvider          metric.MeterProvider
	Meter                  metric.Meter
	InstrumentationName    string
	InstrumentationVersion string
}

var _ MetricHook = (*OTelMetrics)(nil)

// OTelMetrics implements MetricHook using OpenTelemetry counters.
type OTelMetrics struct {
	meter            metric.Meter
	pollerStarted    metric.Int64Counter
	pollerStopped    metric.Int64Counter
	pollerCQError    metric.Int64Counter
	sendCompleted    metric.Int64Counter
	sendFailed       metric.Int64Counter
	receiveCompleted metric.Int64Counter
	receiveFailed    metric.Int64Counter
}

// NewOTelMetrics constructs a MetricHook that emits OpenTelemetry counter measurements.
func NewOTelMetrics(opts OTelMetricsOptions) (*OTelMetrics, error) {
	meter := opts.Meter
	if meter == nil {
		provider := opts.MeterProvider
		if provider == nil {
			provider = otel.GetMeterProvider()
		}
		name := opts.InstrumentationName
		if name == "" {
			name = "github.com/rocketbitz/efadirect-go/poller"
		}
		meter = provider.Meter(name, metric.WithInstrumentationVersion(opts.InstrumentationVersion))
	}

	pollerStarted, err := meter.Int64Counter("efadirect.poller.started")
	if err != nil {
		return nil, err
	}
	pollerStopped, err := meter.Int64Counter("efadirect.poller.stopped")
	if err != nil {
		return nil, err
	}
	pollerCQError, err := meter.Int64Counter("efadirect.poller.cq_errors")
	if err != nil {
		return nil, err
	}
	sendCompleted, err := meter.Int64Counter("efadirect.poller.send.completed")
	if err != nil {
		return nil, err
	}
	sendFailed, err := meter.Int64Counter("efadirect.poller.send.failed")
	if err != nil {
		return nil, err
	}
	receiveCompleted, err := meter.Int64Counter("efadirect.poller.receive.completed")
	if err != nil {
		return nil, err
	}
	receiveFailed, err := meter.Int64Counter("efadirect.poller.receive.failed")
	if err != nil {
		return nil, err
	}

	return &OTelMetrics{
		meter:            meter,
		pollerStarted:    pollerStarted,
		pollerStopped:    pollerStopped,
		pollerCQError:    pollerCQError,
		sendCompleted:    sendCompleted,
		sendFailed:       sendFailed,
		receiveCompleted: receiveCompleted,
		receiveFailed:    receiveFailed,
	}, nil
}

// PollerStarted records that the poll loop has started executing.
func (o *OTelMetrics) PollerStarted(attrs map[string]string) {
	o.pollerStarted.Add(context.Background(), 1, metric.WithAttributes(otelAttrs(attrs)...))
}

// PollerStopped records that the poll loop has exited.
func (o *OTelMetrics) PollerStopped(attrs map[string]string) {
	o.pollerStopped.Add(context.Background(), 1, metric.WithAttributes(otelAttrs(attrs)...))
}

// PollerCQError counts completion queue errors observed by the poll loop.
func (o *OTelMetrics) PollerCQError(kind string, _ error, attrs map[string]string) {
	attributes := append(otelAttrs(attrs), attribute.String(labelKind, kind))
	o.pollerCQError.Add(context.Background(), 1, metric.WithAttributes(attributes...))
}

// SendCompleted records a successful send completion.
func (o *OTelMetrics) SendCompleted(attrs map[string]string) {
	o.sendCompleted.Add(context.Background(), 1, metric.WithAttributes(otelAttrsWithOperation(attrs)...))
}

// SendFailed records a failed send completion.
func (o *OTelMetrics) SendFailed(_ error, attrs map[string]string) {
	o.sendFailed.Add(context.Background(), 1, metric.WithAttributes(otelAttrsWithOperation(attrs)...))
}

// ReceiveCompleted records a successful receive completion.
func (o *OTelMetrics) ReceiveCompleted(attrs map[string]string) {
	o.receiveCompleted.Add(context.Background(), 1, metric.WithAttributes(otelAttrsWithOperation(attrs)...))
}

// ReceiveFailed records a failed receive completion.
func (o *OTelMetrics) ReceiveFailed(_ error, attrs map[string]string) {
	o.receiveFailed.Add(context.Background(), 1, metric.WithAttributes(otelAttrsWithOperation(attrs)...))
}

func otelAttrs(attrs map[string]string) []attribute.KeyValue {
	kvs := []attribute.KeyValue{
		attribute.String(labelFormat, attrs[labelFormat]),
	}
	if v := attrs[labelQueue]; v != "" {
		kvs = append(kvs, attribute.String(labelQueue, v))
	}
	return kvs
}

func otelAttrsWithOperation(attrs map[string]string) []attribute.KeyValue {
	kvs := otelAttrs(attrs)
	if v := attrs[labelOperation]; v != "" {
		kvs = append(kvs, attribute.String(labelOperation, v))
	}
	if v := attrs[labelStatus]; v != "" {
		kvs = append(kvs, attribute.String(labelStatus, v))
	}
	return kvs
}
