// Package poller drains a completion queue on a background goroutine and
// dispatches the resulting completions to registered handlers, with pluggable
// logging, tracing, and metric hooks.
package poller

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	fi "github.com/rocketbitz/efadirect-go/fi"
)

// ErrStopped indicates the poller has already been stopped.
var ErrStopped = errors.New("efadirect poller: stopped")

// Config controls poller construction.
type Config struct {
	// Queue is the completion queue to drain. Required; its layout must
	// carry operation flags (msg or data).
	Queue *fi.CompletionQueue
	// Name labels telemetry emitted by this poller.
	Name string
	// Batch caps the entries drained per poll. Defaults to 16.
	Batch int
	// WithSource resolves peer source addresses for each completion.
	WithSource bool

	Logger           Logger
	StructuredLogger StructuredLogger
	Tracer           Tracer
	Metrics          MetricHook
}

// Completion is delivered to handlers for every successful entry.
type Completion struct {
	Context uint64
	Flags   uint64
	Len     uint64
	Data    uint64
	Source  fi.Address
}

// IsSend reports whether the completion belongs to a transmit operation.
func (c Completion) IsSend() bool {
	return c.Flags&fi.FlagSend != 0
}

// CompletionHandler is invoked for every successful completion.
type CompletionHandler func(Completion)

// ErrorHandler is invoked for every completion that finished in error state.
type ErrorHandler func(fi.ErrorEntry)

// Logger provides printf-style debug logging hooks for the poller.
type Logger interface {
	Debugf(format string, args ...any)
}

// StructuredLogger emits key/value pairs for structured logging backends.
type StructuredLogger interface {
	Debugw(msg string, keyvals ...any)
}

// TraceAttribute represents a tracing attribute attached to poller spans or events.
type TraceAttribute struct {
	Key   string
	Value any
}

// Tracer starts spans that wrap poller activity.
type Tracer interface {
	StartSpan(name string, attrs ...TraceAttribute) Span
}

// Span records poller lifecycle, events, and errors for tracing systems.
type Span interface {
	End(err error)
	AddEvent(name string, attrs ...TraceAttribute)
	RecordError(err error)
}

// MetricHook captures poller telemetry events.
type MetricHook interface {
	PollerStarted(attrs map[string]string)
	PollerStopped(attrs map[string]string)
	PollerCQError(kind string, err error, attrs map[string]string)
	SendCompleted(attrs map[string]string)
	SendFailed(err error, attrs map[string]string)
	ReceiveCompleted(attrs map[string]string)
	ReceiveFailed(err error, attrs map[string]string)
}

// Stats contains counters for poller activity.
type Stats struct {
	Polled         uint64
	SendCompleted  uint64
	SendErrored    uint64
	ReceiveMatched uint64
	ReceiveErrored uint64
	PollErrors     uint64
}

type pollerStats struct {
	polled        atomic.Uint64
	sendCompleted atomic.Uint64
	sendErrored   atomic.Uint64
	recvMatched   atomic.Uint64
	recvErrored   atomic.Uint64
	pollErrors    atomic.Uint64
}

type errorHolder struct {
	err error
}

// Poller owns the background loop draining a completion queue.
type Poller struct {
	cfg Config
	cq  *fi.CompletionQueue

	stopCh  chan struct{}
	wg      sync.WaitGroup
	started atomic.Bool
	stopped atomic.Bool
	pollErr atomic.Pointer[errorHolder]

	handlersMu         sync.RWMutex
	completionHandlers map[uint64]CompletionHandler
	errorHandlers      map[uint64]ErrorHandler
	handlerSeq         atomic.Uint64

	logger           Logger
	structuredLogger StructuredLogger
	tracer           Tracer
	metrics          MetricHook
	stats            pollerStats

	msgBuf  fi.MsgEntries
	dataBuf fi.DataEntries
	srcBuf  []fi.Address
}

// New constructs a poller for the supplied queue. The queue's layout must be
// msg or data; the context-only layout carries no operation flags to route
// completions by.
func New(cfg Config) (*Poller, error) {
	if cfg.Queue == nil {
		return nil, errors.New("efadirect poller: completion queue required")
	}
	switch cfg.Queue.Format() {
	case fi.CQFormatMsg, fi.CQFormatData:
	default:
		return nil, fmt.Errorf("efadirect poller: unsupported queue layout %s", cfg.Queue.Format())
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 16
	}

	structured := cfg.StructuredLogger
	if structured == nil {
		if logger, ok := cfg.Logger.(StructuredLogger); ok {
			structured = logger
		}
	}

	p := &Poller{
		cfg:              cfg,
		cq:               cfg.Queue,
		stopCh:           make(chan struct{}),
		logger:           cfg.Logger,
		structuredLogger: structured,
		tracer:           cfg.Tracer,
		metrics:          cfg.Metrics,
	}
	switch cfg.Queue.Format() {
	case fi.CQFormatMsg:
		p.msgBuf = make(fi.MsgEntries, cfg.Batch)
	case fi.CQFormatData:
		p.dataBuf = make(fi.DataEntries, cfg.Batch)
	}
	if cfg.WithSource {
		p.srcBuf = make([]fi.Address, cfg.Batch)
	}
	return p, nil
}

// Start launches the background loop. Starting twice or after Stop fails.
func (p *Poller) Start() error {
	if p == nil {
		return errors.New("efadirect poller: nil poller")
	}
	if p.stopped.Load() {
		return ErrStopped
	}
	if !p.started.CompareAndSwap(false, true) {
		return errors.New("efadirect poller: already started")
	}
	p.wg.Add(1)
	go p.loop()
	return nil
}

// Stop terminates the loop and waits for it to exit. Idempotent.
func (p *Poller) Stop() {
	if p == nil || !p.stopped.CompareAndSwap(false, true) {
		return
	}
	close(p.stopCh)
	if p.started.Load() {
		p.wg.Wait()
	}

	p.handlersMu.Lock()
	p.completionHandlers = nil
	p.errorHandlers = nil
	p.handlersMu.Unlock()
}

// Err reports the first poll failure observed by the loop, if any.
func (p *Poller) Err() error {
	if p == nil {
		return nil
	}
	if holder := p.pollErr.Load(); holder != nil {
		return holder.err
	}
	return nil
}

// Stats returns a snapshot of the poller counters.
func (p *Poller) Stats() Stats {
	if p == nil {
		return Stats{}
	}
	return Stats{
		Polled:         p.stats.polled.Load(),
		SendCompleted:  p.stats.sendCompleted.Load(),
		SendErrored:    p.stats.sendErrored.Load(),
		ReceiveMatched: p.stats.recvMatched.Load(),
		ReceiveErrored: p.stats.recvErrored.Load(),
		PollErrors:     p.stats.pollErrors.Load(),
	}
}

// RegisterCompletionHandler installs a callback invoked for every successful
// completion. The returned function unregisters the handler when invoked.
// Passing a nil handler is a no-op.
func (p *Poller) RegisterCompletionHandler(handler CompletionHandler) func() {
	if p == nil || handler == nil {
		return func() {}
	}
	id := p.handlerSeq.Add(1)
	p.handlersMu.Lock()
	if p.completionHandlers == nil {
		p.completionHandlers = make(map[uint64]CompletionHandler)
	}
	p.completionHandlers[id] = handler
	p.handlersMu.Unlock()
	return func() {
		p.handlersMu.Lock()
		delete(p.completionHandlers, id)
		p.handlersMu.Unlock()
	}
}

// RegisterErrorHandler installs a callback invoked for every errored
// completion. The returned function unregisters the handler when invoked.
func (p *Poller) RegisterErrorHandler(handler ErrorHandler) func() {
	if p == nil || handler == nil {
		return func() {}
	}
	id := p.handlerSeq.Add(1)
	p.handlersMu.Lock()
	if p.errorHandlers == nil {
		p.errorHandlers = make(map[uint64]ErrorHandler)
	}
	p.errorHandlers[id] = handler
	p.handlersMu.Unlock()
	return func() {
		p.handlersMu.Lock()
		delete(p.errorHandlers, id)
		p.handlersMu.Unlock()
	}
}

func (p *Poller) loop() {
	defer p.wg.Done()

	span := p.startSpan()
	startFields := []logField{
		logKV("format", p.cq.Format().String()),
	}
	if p.cfg.Name != "" {
		startFields = append(startFields, logKV("queue", p.cfg.Name))
	}
	p.logEvent("start", startFields...)
	spanAddEvent(span, "start", startFields...)
	p.metricStarted(startFields...)

	defer func() {
		err := p.Err()
		fields := []logField{logKV("status", "ok")}
		if err != nil {
			fields[0] = logKV("status", "error")
			fields = append(fields, logKV("error", err))
			spanRecordError(span, err)
		}
		p.logEvent("stop", fields...)
		spanAddEvent(span, "stop", fields...)
		p.metricStopped(fields...)
		if span != nil {
			span.End(err)
		}
	}()

	backoff := time.Millisecond
	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		n, err := p.poll()
		if n > 0 {
			backoff = time.Millisecond
			continue
		}

		switch {
		case err == nil, errors.Is(err, fi.ErrNoCompletion):
		case errors.Is(err, fi.ErrErrorAvailable):
			p.drainError(span)
			backoff = time.Millisecond
			continue
		default:
			p.recordFailure(span, "cq_read_error", fmt.Errorf("cq read: %w", err))
		}

		select {
		case <-p.stopCh:
			return
		case <-time.After(backoff):
		}

		if backoff < 10*time.Millisecond {
			backoff *= 2
		}
	}
}

func (p *Poller) poll() (int, error) {
	var (
		n   int
		err error
	)
	switch p.cq.Format() {
	case fi.CQFormatMsg:
		if p.srcBuf != nil {
			n, err = p.cq.ReadFrom(p.msgBuf, p.srcBuf)
		} else {
			n, err = p.cq.Read(p.msgBuf)
		}
		for i := 0; i < n; i++ {
			entry := p.msgBuf[i]
			p.deliver(Completion{
				Context: entry.Context,
				Flags:   entry.Flags,
				Len:     entry.Len,
				Source:  p.sourceAt(i),
			})
		}
	case fi.CQFormatData:
		if p.srcBuf != nil {
			n, err = p.cq.ReadFrom(p.dataBuf, p.srcBuf)
		} else {
			n, err = p.cq.Read(p.dataBuf)
		}
		for i := 0; i < n; i++ {
			entry := p.dataBuf[i]
			p.deliver(Completion{
				Context: entry.Context,
				Flags:   entry.Flags,
				Len:     entry.Len,
				Data:    entry.Data,
				Source:  p.sourceAt(i),
			})
		}
	}
	if n > 0 {
		p.stats.polled.Add(uint64(n))
	}
	return n, err
}

func (p *Poller) sourceAt(i int) fi.Address {
	if p.srcBuf == nil {
		return fi.AddressUnspecified
	}
	return p.srcBuf[i]
}

func (p *Poller) deliver(completion Completion) {
	operation := "receive"
	if completion.IsSend() {
		operation = "send"
		p.stats.sendCompleted.Add(1)
		p.metricSendCompleted(logKV(labelOperation, operation), logKV(labelStatus, "ok"))
	} else {
		p.stats.recvMatched.Add(1)
		p.metricReceiveCompleted(logKV(labelOperation, operation), logKV(labelStatus, "ok"))
	}
	p.logEvent("completion",
		logKV("operation", operation),
		logKV("context", completion.Context),
		logKV("length", completion.Len),
		logKV("source", completion.Source),
	)

	p.handlersMu.RLock()
	handlers := make([]CompletionHandler, 0, len(p.completionHandlers))
	for _, h := range p.completionHandlers {
		handlers = append(handlers, h)
	}
	p.handlersMu.RUnlock()
	for _, handler := range handlers {
		h := handler
		go h(completion)
	}
}

// drainError surfaces the pending sticky fault through a pooled record and
// fans it out to error handlers.
func (p *Poller) drainError(span Span) {
	entry, err := p.cq.NextError()
	if err != nil {
		if !errors.Is(err, fi.ErrNoCompletion) {
			p.recordFailure(span, "cq_readerr_error", fmt.Errorf("cq readerr: %w", err))
		}
		return
	}
	detail := *entry
	p.cq.ReleaseError(entry)

	operation := "receive"
	if detail.Flags&fi.FlagSend != 0 {
		operation = "send"
	}
	opErr := fmt.Errorf("efadirect poller: %s completion error: %w (provider=%d)", operation, detail.Err, detail.ProviderErr)
	if operation == "send" {
		p.stats.sendErrored.Add(1)
		p.metricSendFailed(opErr, logKV(labelOperation, operation))
	} else {
		p.stats.recvErrored.Add(1)
		p.metricReceiveFailed(opErr, logKV(labelOperation, operation))
	}
	p.logEvent("completion_error",
		logKV("operation", operation),
		logKV("context", detail.Context),
		logKV("errno", detail.Err),
		logKV("provider_err", detail.ProviderErr),
	)
	spanAddEvent(span, "completion_error", logKV("operation", operation))

	p.handlersMu.RLock()
	handlers := make([]ErrorHandler, 0, len(p.errorHandlers))
	for _, h := range p.errorHandlers {
		handlers = append(handlers, h)
	}
	p.handlersMu.RUnlock()
	for _, handler := range handlers {
		h := handler
		go h(detail)
	}
}

func (p *Poller) recordFailure(span Span, kind string, err error) {
	if err == nil {
		return
	}
	p.stats.pollErrors.Add(1)
	p.pollErr.CompareAndSwap(nil, &errorHolder{err: err})
	fields := []logField{logKV("error", err)}
	p.logEvent(kind, fields...)
	spanAddEvent(span, kind, fields...)
	spanRecordError(span, err)
	if p.metrics != nil {
		p.metrics.PollerCQError(kind, err, p.metricAttrs(fields...))
	}
}

type logField struct {
	key   string
	value any
}

func logKV(key string, value any) logField {
	return logField{key: key, value: value}
}

func (p *Poller) metricAttrs(fields ...logField) map[string]string {
	attrs := make(map[string]string, len(fields)+2)
	attrs[labelFormat] = p.cq.Format().String()
	if p.cfg.Name != "" {
		attrs[labelQueue] = p.cfg.Name
	}
	for _, field := range fields {
		if field.key == "" {
			continue
		}
		attrs[field.key] = fmt.Sprint(field.value)
	}
	return attrs
}

func (p *Poller) logEvent(event string, fields ...logField) {
	if p == nil {
		return
	}
	if p.structuredLogger != nil {
		kv := make([]any, 0, len(fields)*2+2)
		kv = append(kv, "event", event)
		for _, field := range fields {
			if field.key == "" {
				continue
			}
			kv = append(kv, field.key, field.value)
		}
		p.structuredLogger.Debugw("efadirect poller", kv...)
		return
	}
	if p.logger == nil {
		return
	}
	var b strings.Builder
	b.WriteString(event)
	for _, field := range fields {
		if field.key == "" {
			continue
		}
		b.WriteString(" ")
		b.WriteString(field.key)
		b.WriteString("=")
		b.WriteString(fmt.Sprint(field.value))
	}
	p.logger.Debugf("poller %s", b.String())
}

func (p *Poller) metricStarted(fields ...logField) {
	if p.metrics == nil {
		return
	}
	p.metrics.PollerStarted(p.metricAttrs(fields...))
}

func (p *Poller) metricStopped(fields ...logField) {
	if p.metrics == nil {
		return
	}
	p.metrics.PollerStopped(p.metricAttrs(fields...))
}

func (p *Poller) metricSendCompleted(fields ...logField) {
	if p.metrics == nil {
		return
	}
	p.metrics.SendCompleted(p.metricAttrs(fields...))
}

func (p *Poller) metricSendFailed(err error, fields ...logField) {
	if p.metrics == nil {
		return
	}
	p.metrics.SendFailed(err, p.metricAttrs(fields...))
}

func (p *Poller) metricReceiveCompleted(fields ...logField) {
	if p.metrics == nil {
		return
	}
	p.metrics.ReceiveCompleted(p.metricAttrs(fields...))
}

func (p *Poller) metricReceiveFailed(err error, fields ...logField) {
	if p.metrics == nil {
		return
	}
	p.metrics.ReceiveFailed(err, p.metricAttrs(fields...))
}

func (p *Poller) startSpan() Span {
	if p == nil || p.tracer == nil {
		return nil
	}
	attrs := []TraceAttribute{
		{Key: "component", Value: "efadirect-poller"},
		{Key: "format", Value: p.cq.Format().String()},
	}
	if p.cfg.Name != "" {
		attrs = append(attrs, TraceAttribute{Key: "queue", Value: p.cfg.Name})
	}
	return p.tracer.StartSpan("efadirect-poller", attrs...)
}

func spanAddEvent(span Span, name string, fields ...logField) {
	if span == nil {
		return
	}
	span.AddEvent(name, attributesFromFields(fields...)...)
}

func spanRecordError(span Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
}

func attributesFromFields(fields ...logField) []TraceAttribute {
	if len(fields) == 0 {
		return nil
	}
	attrs := make([]TraceAttribute, 0, len(fields))
	for _, field := range fields {
		if field.key == "" {
			continue
		}
		attrs = append(attrs, TraceAttribute{Key: field.key, Value: field.value})
	}
	return attrs
}
