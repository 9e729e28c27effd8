package poller

import "github.com/prometheus/client_golang/prometheus"

// Telemetry label keys shared by the metric hooks.
const (
	labelQueue     = "queue"
	labelFormat    = "format"
	labelOperation = "operation"
	labelStatus    = "status"
	labelKind      = "kind"
)

// PrometheusMetricsOptions configures NewPrometheusMetrics.
type PrometheusMetricsOptions struct {
	Registerer  prometheus.Registerer
	Namespace   string
	Subsystem   string
	ConstLabels prometheus.Labels
}

var _ MetricHook = (*PrometheusMetrics)(nil)

// PrometheusMetrics implements MetricHook using Prometheus counters.
type PrometheusMetrics struct {
	pollerStarted    *prometheus.CounterVec
	pollerStopped    *prometheus.CounterVec
	pollerCQError    *prometheus.CounterVec
	sendCompleted    *prometheus.CounterVec
	sendFailed       *prometheus.CounterVec
	receiveCompleted *prometheus.CounterVec
	receiveFailed    *prometheus.CounterVec
}

// NewPrometheusMetrics constructs a MetricHook backed by Prometheus counters.
func NewPrometheusMetrics(opts PrometheusMetricsOptions) (*PrometheusMetrics, error) {
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	p := &PrometheusMetrics{
		pollerStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "efadirect_poller_started_total",
			Help:        "Number of times the poll loop started",
			ConstLabels: opts.ConstLabels,
		}, pollerLabelKeys),
		pollerStopped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "efadirect_poller_stopped_total",
			Help:        "Number of times the poll loop stopped",
			ConstLabels: opts.ConstLabels,
		}, pollerLabelKeys),
		pollerCQError: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "efadirect_poller_cq_errors_total",
			Help:        "Number of completion queue read errors surfaced by the poll loop",
			ConstLabels: opts.ConstLabels,
		}, cqErrorLabelKeys),
		sendCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "efadirect_poller_send_completed_total",
			Help:        "Number of successful send completions",
			ConstLabels: opts.ConstLabels,
		}, completionLabelKeys),
		sendFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "efadirect_poller_send_failed_total",
			Help:        "Number of errored send completions",
			ConstLabels: opts.ConstLabels,
		}, failureLabelKeys),
		receiveCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "efadirect_poller_receive_completed_total",
			Help:        "Number of successful receive completions",
			ConstLabels: opts.ConstLabels,
		}, completionLabelKeys),
		receiveFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "efadirect_poller_receive_failed_total",
			Help:        "Number of errored receive completions",
			ConstLabels: opts.ConstLabels,
		}, failureLabelKeys),
	}

	var err error
	if p.pollerStarted, err = registerCounterVec(reg, p.pollerStarted); err != nil {
		return nil, err
	}
	if p.pollerStopped, err = registerCounterVec(reg, p.pollerStopped); err != nil {
		return nil, err
	}
	if p.pollerCQError, err = registerCounterVec(reg, p.pollerCQError); err != nil {
		return nil, err
	}
	if p.sendCompleted, err = registerCounterVec(reg, p.sendCompleted); err != nil {
		return nil, err
	}
	if p.sendFailed, err = registerCounterVec(reg, p.sendFailed); err != nil {
		return nil, err
	}
	if p.receiveCompleted, err = registerCounterVec(reg, p.receiveCompleted); err != nil {
		return nil, err
	}
	if p.receiveFailed, err = registerCounterVec(reg, p.receiveFailed); err != nil {
		return nil, err
	}

	return p, nil
}

var (
	pollerLabelKeys     = []string{labelQueue, labelFormat}
	cqErrorLabelKeys    = []string{labelQueue, labelFormat, labelKind}
	completionLabelKeys = []string{labelQueue, labelFormat, labelOperation, labelStatus}
	failureLabelKeys    = []string{labelQueue, labelFormat, labelOperation}
)

func (p *PrometheusMetrics) PollerStarted(attrs map[string]string) {
	p.pollerStarted.With(labels(attrs, pollerLabelKeys...)).Inc()
}

func (p *PrometheusMetrics) PollerStopped(attrs map[string]string) {
	p.pollerStopped.With(labels(attrs, pollerLabelKeys...)).Inc()
}

func (p *PrometheusMetrics) PollerCQError(kind string, _ error, attrs map[string]string) {
	labs := labels(attrs, cqErrorLabelKeys...)
	labs[labelKind] = kind
	p.pollerCQError.With(labs).Inc()
}

func (p *PrometheusMetrics) SendCompleted(attrs map[string]string) {
	p.sendCompleted.With(labels(attrs, completionLabelKeys...)).Inc()
}

func (p *PrometheusMetrics) SendFailed(_ error, attrs map[string]string) {
	p.sendFailed.With(labels(attrs, failureLabelKeys...)).Inc()
}

func (p *PrometheusMetrics) ReceiveCompleted(attrs map[string]string) {
	p.receiveCompleted.With(labels(attrs, completionLabelKeys...)).Inc()
}

func (p *PrometheusMetrics) ReceiveFailed(_ error, attrs map[string]string) {
	p.receiveFailed.With(labels(attrs, failureLabelKeys...)).Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return vec, nil
}

func labels(attrs map[string]string, keys ...string) prometheus.Labels {
	labs := make(prometheus.Labels, len(keys))
	for _, key := range keys {
		labs[key] = attrs[key]
	}
	return labs
}
