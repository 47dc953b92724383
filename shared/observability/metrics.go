package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Recorder receives chat room events worth counting
type Recorder interface {
	ViewOpened()
	ViewClosed()
	ViewFaulted()
	AuthSubmitted(mode string, err error)
	MessageSent(err error)
}

// Nop discards every event
type Nop struct{}

func (Nop) ViewOpened()                 {}
func (Nop) ViewClosed()                 {}
func (Nop) ViewFaulted()                {}
func (Nop) AuthSubmitted(string, error) {}
func (Nop) MessageSent(error)           {}

// Metrics records chat room events as OpenTelemetry instruments
type Metrics struct {
	activeViews otelmetric.Int64UpDownCounter
	viewFaults  otelmetric.Int64Counter
	authSubmits otelmetric.Int64Counter
	messages    otelmetric.Int64Counter
}

// NewMetrics creates the instruments on provider
func NewMetrics(provider otelmetric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(TracerName)

	activeViews, err := meter.Int64UpDownCounter("chat_views_active",
		otelmetric.WithDescription("Connected views"))
	if err != nil {
		return nil, err
	}
	viewFaults, err := meter.Int64Counter("chat_view_faults",
		otelmetric.WithDescription("Views that switched to the recovery screen"))
	if err != nil {
		return nil, err
	}
	authSubmits, err := meter.Int64Counter("chat_auth_submissions",
		otelmetric.WithDescription("Credential form submissions by mode and outcome"))
	if err != nil {
		return nil, err
	}
	messages, err := meter.Int64Counter("chat_messages_sent",
		otelmetric.WithDescription("Message creates by outcome"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		activeViews: activeViews,
		viewFaults:  viewFaults,
		authSubmits: authSubmits,
		messages:    messages,
	}, nil
}

func outcome(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String("outcome", "error")
	}
	return attribute.String("outcome", "ok")
}

func (m *Metrics) ViewOpened() {
	m.activeViews.Add(context.Background(), 1)
}

func (m *Metrics) ViewClosed() {
	m.activeViews.Add(context.Background(), -1)
}

func (m *Metrics) ViewFaulted() {
	m.viewFaults.Add(context.Background(), 1)
}

func (m *Metrics) AuthSubmitted(mode string, err error) {
	m.authSubmits.Add(context.Background(), 1,
		otelmetric.WithAttributes(attribute.String("mode", mode), outcome(err)))
}

func (m *Metrics) MessageSent(err error) {
	m.messages.Add(context.Background(), 1, otelmetric.WithAttributes(outcome(err)))
}
