/*
Package notify queues customer notifications produced by the stamp card.

PURPOSE:
  The stamp rules only return data. Whether and how a customer hears about a
  reward or a birthday bonus is decided here. Push delivery itself belongs to
  an external messaging service; this package records what should be sent in
  an outbox that such a service (or the customer app) reads.

NOTIFIERS:
  Outbox:       Persists to a Sink, deduplicating by DedupeKey
  LogNotifier:  Logs each notification (development)
  Multi:        Fans out to several notifiers
  Nop:          Discards everything

FAILURE POLICY:
  Notifications are sent after the ledger commit. A failing notifier is
  logged by the caller and never undoes or fails the scan.

SEE ALSO:
  - loyalty/service.go: Emits reward and birthday notifications
  - api/scheduler.go: Birthday reminder sweep
  - store/sqlite/sqlite.go: Sink implementation
*/
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Kind identifies why a notification was produced.
type Kind string

const (
	KindRewardEarned     Kind = "reward_earned"
	KindBirthdayBonus    Kind = "birthday_bonus"
	KindRewardRedeemed   Kind = "reward_redeemed"
	KindBirthdayReminder Kind = "birthday_reminder"
)

// Notification is a message addressed to one customer.
type Notification struct {
	ID         string
	CustomerID string
	Kind       Kind
	Title      string
	Body       string
	DedupeKey  string // Optional; a second notification with the same key is dropped
	CreatedAt  time.Time
}

// ErrDuplicate is returned by a Sink when DedupeKey was already stored.
var ErrDuplicate = errors.New("duplicate notification")

// Notifier accepts notifications for delivery.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Sink persists notifications.
type Sink interface {
	SaveNotification(ctx context.Context, n Notification) error
	ListNotifications(ctx context.Context, customerID string, limit int) ([]Notification, error)
}

// =============================================================================
// OUTBOX
// =============================================================================

// Outbox stores notifications through a Sink.
type Outbox struct {
	sink   Sink
	logger *slog.Logger
}

func NewOutbox(sink Sink, logger *slog.Logger) *Outbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Outbox{sink: sink, logger: logger}
}

// Notify persists n. A duplicate DedupeKey is not an error.
func (o *Outbox) Notify(ctx context.Context, n Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	err := o.sink.SaveNotification(ctx, n)
	if errors.Is(err, ErrDuplicate) {
		o.logger.Debug("notification already queued", "dedupe_key", n.DedupeKey, "kind", string(n.Kind))
		return nil
	}
	if err != nil {
		return fmt.Errorf("queue %s notification: %w", n.Kind, err)
	}
	return nil
}

// =============================================================================
// SIMPLE NOTIFIERS
// =============================================================================

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Notify(_ context.Context, n Notification) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification",
		"customer_id", n.CustomerID,
		"kind", string(n.Kind),
		"title", n.Title,
	)
	return nil
}

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(context.Context, Notification) error { return nil }
