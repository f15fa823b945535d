// Package notify delivers operator alerts for settlement and gateway events.
// Notifications fan out to all registered senders (Telegram, Discord) and can
// be filtered by event type.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/uuzor/predictx/internal/domain"
)

// Sender is the interface each notification channel implements.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender.
	Name() string
}

// EventSource is the subscription side of the signal bus.
type EventSource interface {
	Subscribe(ctx context.Context, eventPattern string) (<-chan []byte, error)
}

// Notifier dispatches rendered events to one or more Senders. When an allowed
// event list is configured, only those events are forwarded; an empty list
// allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// Watch subscribes to settlement and gateway events on the bus and dispatches
// a rendered notification for each. It blocks until ctx is cancelled.
func (n *Notifier) Watch(ctx context.Context, src EventSource) error {
	msgCh, err := src.Subscribe(ctx, "*")
	if err != nil {
		return fmt.Errorf("notify: subscribe: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-msgCh:
			if !ok {
				return nil
			}
			n.handle(ctx, raw)
		}
	}
}

// busEnvelope mirrors the signal-bus wire form.
type busEnvelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func (n *Notifier) handle(ctx context.Context, raw []byte) {
	var env busEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		n.logger.WarnContext(ctx, "unparseable bus event", slog.String("error", err.Error()))
		return
	}
	if len(n.events) > 0 && !n.events[env.Event] {
		return
	}

	title, message, ok := render(env)
	if !ok {
		return
	}
	if err := n.dispatch(ctx, title, message); err != nil {
		n.logger.ErrorContext(ctx, "notification delivery failed",
			slog.String("event", env.Event),
			slog.String("error", err.Error()),
		)
	}
}

// render turns a bus event into a human-readable notification. Events without
// a rendering are skipped.
func render(env busEnvelope) (title, message string, ok bool) {
	switch env.Event {
	case domain.EventContractSettled:
		var ev domain.SettledEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return "", "", false
		}
		outcome := "incorrect"
		if ev.IsCorrect {
			outcome = "correct"
		}
		return "Contract settled",
			fmt.Sprintf("%s on %s settled %s at %.4f", ev.ContractID, ev.AssetID, outcome, ev.ActualPrice),
			true

	case domain.EventGatewayStatus:
		var ev domain.GatewayStatusEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return "", "", false
		}
		if ev.Connected && ev.SessionReady {
			return "Gateway ready", "connection and session established", true
		}
		if ev.Connected {
			return "Gateway connected", "session handshake in progress", true
		}
		return "Gateway disconnected", "reconnect in progress", true

	default:
		return "", "", false
	}
}

// dispatch sends to every sender; one sender failing does not stop delivery
// to the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	return errors.Join(errs...)
}
