// Package notify delivers session lifecycle alerts (kill switch, halt,
// winddown) to operator channels. Events can be filtered so operators
// receive only the alerts they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Sender is one notification channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name identifies the sender, e.g. "telegram".
	Name() string
}

// Notifier fans an event out to every sender. It keeps a set of allowed
// event types; events outside the set are dropped. An empty set allows
// everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	log     *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders, filtered
// to the given event types.
func NewNotifier(senders []Sender, events []string, log *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		log:     log.With("component", "notifier"),
	}
}

// eventTitles maps event types to operator-facing titles. Unknown events
// pass through with the raw type as the title.
var eventTitles = map[string]string{
	"startup":     "Session started",
	"kill_switch": "KILL SWITCH",
	"halted":      "Session halted",
	"winddown":    "Winddown",
	"shutdown":    "Session stopped",
}

// Notify delivers one event to all senders, subject to the event filter. A
// single sender failure does not block the remaining senders.
func (n *Notifier) Notify(ctx context.Context, event, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.log.Debug("event filtered out", "event", event)
		return nil
	}

	title, ok := eventTitles[event]
	if !ok {
		title = event
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.log.Error("sender failed", "sender", s.Name(), "err", err)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
