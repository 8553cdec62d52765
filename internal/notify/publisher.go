package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/example/fieldserve/internal/dispatch/domain"
)

// Publisher writes dispatch and tracking events to a NATS subject. It also
// implements domain.Notifier by publishing customer/worker messages for the
// delivery gateway to pick up.
type Publisher struct {
	conn          *nats.Conn
	eventSubject  string
	notifySubject string
	logger        *zap.Logger
}

// NewPublisher builds a Publisher on the provided NATS connection.
func NewPublisher(conn *nats.Conn, eventSubject, notifySubject string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{conn: conn, eventSubject: eventSubject, notifySubject: notifySubject, logger: logger}
}

// Publish satisfies domain.EventPublisher.
func (p *Publisher) Publish(ctx context.Context, event domain.Event) error {
	if p == nil || p.conn == nil {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	return p.conn.PublishMsg(&nats.Msg{Subject: p.eventSubject, Data: payload, Header: map[string][]string{
		"x-trace-id":   {traceIDFromContext(ctx)},
		"x-event-type": {string(event.Type)},
	}})
}

type notification struct {
	Target  string `json:"target"`
	Message string `json:"message"`
}

// Notify publishes a delivery request. Best effort: a broker hiccup must not
// fail the booking flow, so errors are logged and swallowed.
func (p *Publisher) Notify(ctx context.Context, target, message string) {
	if p == nil || p.conn == nil {
		return
	}
	payload, err := json.Marshal(notification{Target: target, Message: message})
	if err != nil {
		p.logger.Warn("marshal notification", zap.Error(err))
		return
	}
	err = p.conn.PublishMsg(&nats.Msg{Subject: p.notifySubject, Data: payload, Header: map[string][]string{
		"x-trace-id": {traceIDFromContext(ctx)},
	}})
	if err != nil {
		p.logger.Warn("publish notification", zap.Error(err), zap.String("target", target))
	}
}

func traceIDFromContext(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span == nil {
		return ""
	}
	sc := span.SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
