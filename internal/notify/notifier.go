// Package notify delivers scanner alerts to chat channels. Alerts are
// dispatched to every registered Sender and filtered by event type.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// Event types understood by the notifier.
const (
	EventSignalAccepted = "signal_accepted"
	EventSignalRejected = "signal_rejected"
	EventCycleFailed    = "cycle_failed"
)

// maxListed caps how many signals one alert spells out.
const maxListed = 10

// Sender is the interface that each notification channel must implement.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches notifications to one or more Senders. Notify only
// forwards events in the allowed set; an empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders.
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

// Notify sends a notification to all senders if event is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.allowed(event) {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// Name implements domain.SignalSink.
func (n *Notifier) Name() string { return "notify" }

// PublishSignals implements domain.SignalSink. Accepted and rejected signals
// are summarized in at most one alert each.
func (n *Notifier) PublishSignals(ctx context.Context, signals []domain.Signal) error {
	var accepted, rejected []domain.Signal
	for _, s := range signals {
		if s.Status == domain.SignalAccepted {
			accepted = append(accepted, s)
		} else {
			rejected = append(rejected, s)
		}
	}

	var errs []error
	if len(accepted) > 0 {
		title := fmt.Sprintf("%d arbitrage signal(s)", len(accepted))
		errs = append(errs, n.Notify(ctx, EventSignalAccepted, title, formatSignals(accepted)))
	}
	if len(rejected) > 0 {
		title := fmt.Sprintf("%d opportunity(ies) rejected", len(rejected))
		errs = append(errs, n.Notify(ctx, EventSignalRejected, title, formatSignals(rejected)))
	}
	return errors.Join(errs...)
}

func (n *Notifier) allowed(event string) bool {
	return len(n.events) == 0 || n.events[event]
}

// dispatch sends to every sender; one failing sender does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

func formatSignals(signals []domain.Signal) string {
	var b strings.Builder
	for i, s := range signals {
		if i == maxListed {
			fmt.Fprintf(&b, "... and %d more\n", len(signals)-maxListed)
			break
		}
		o := s.Opportunity
		fmt.Fprintf(&b, "%s: buy %s @ %.6g, sell %s @ %.6g %s, net %.2f%%",
			o.Symbol, o.BuySource, o.BuyPrice, o.SellSource, o.SellPrice, o.Currency, o.NetPercent)
		if len(s.Reasons) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(s.Reasons, "; "))
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// Compile-time interface check.
var _ domain.SignalSink = (*Notifier)(nil)
