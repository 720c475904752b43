/*
service.go - Transactional orchestration of the stamp card

PURPOSE:
  Connects the pure Engine to storage, the clock and notifications. Both
  staff entry points (scan and redemption) go through here, so there is
  exactly one implementation of the rules.

REQUEST FLOW (every mutation):
  1. Read the clock once
  2. WithTx:
       a. Load customer (ErrCustomerNotFound)
       b. Load ledger (absent -> empty ledger)
       c. Apply engine rule
       d. SaveLedger (compare-and-swap on Version)
       e. AppendEvent
  3. After commit: send notifications (failures are logged only)

ERRORS:
  Domain errors (not found, invalid state) pass through unchanged.
  Anything the store returns is wrapped with ErrInternal. The engine never
  retries; a failed transaction is surfaced once and staff may scan again.

SEE ALSO:
  - engine.go: The rules
  - store.go: TxStore contract
*/
package loyalty

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/warp/stampcard/notify"
)

// =============================================================================
// ACTOR CONTEXT
// =============================================================================

type actorKey struct{}

// WithActor records the staff identity performing an operation.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ActorFromContext returns the staff identity, or "" when absent.
func ActorFromContext(ctx context.Context) string {
	id, _ := ctx.Value(actorKey{}).(string)
	return id
}

// =============================================================================
// SERVICE
// =============================================================================

// Service runs stamp card operations against a transactional store.
type Service struct {
	store    TxStore
	engine   *Engine
	clock    Clock
	loc      *time.Location
	notifier notify.Notifier
	logger   *slog.Logger
	newID    func() string
}

// Option customizes a Service.
type Option func(*Service)

func WithClock(c Clock) Option { return func(s *Service) { s.clock = c } }

// WithLocation sets the café's time zone. Birthdays and the bonus year are
// judged on the local calendar day. A nil location means UTC.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc == nil {
			loc = time.UTC
		}
		s.loc = loc
	}
}

func WithNotifier(n notify.Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

func WithIDGenerator(f func() string) Option { return func(s *Service) { s.newID = f } }

// NewService creates a service. Defaults: system clock, no notifications,
// slog.Default logger, UUID identifiers.
func NewService(store TxStore, program Program, opts ...Option) *Service {
	s := &Service{
		store:    store,
		engine:   NewEngine(program),
		clock:    SystemClock{},
		loc:      time.UTC,
		notifier: notify.Nop{},
		logger:   slog.Default(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine exposes the rules in use.
func (s *Service) Engine() *Engine { return s.engine }

// Program exposes the program constants in use.
func (s *Service) Program() Program { return s.engine.Program }

// =============================================================================
// STAFF OPERATIONS
// =============================================================================

// ProcessScan adds the stamps for one staff scan of a customer's QR code.
func (s *Service) ProcessScan(ctx context.Context, id CustomerID) (Ledger, ScanResult, error) {
	if id == "" {
		return Ledger{}, ScanResult{}, fmt.Errorf("%w: customer id is required", ErrInvalidArgument)
	}
	now := s.Now()

	var result ScanResult
	next, err := s.mutate(ctx, "process scan", id, func(c *Customer, l Ledger) (Ledger, LedgerEvent, error) {
		var next Ledger
		next, result = s.engine.ApplyScan(l, c.DOB, now)
		rewards := 0
		if result.RewardEarned {
			rewards = 1
		}
		return next, LedgerEvent{
			Type:         EventScan,
			StampsDelta:  result.StampsAdded,
			RewardsDelta: rewards,
			Birthday:     result.BirthdayBonus,
			At:           now,
		}, nil
	})
	if err != nil {
		return Ledger{}, ScanResult{}, err
	}

	s.logger.Info("scan processed",
		"customer_id", string(id),
		"stamps_added", result.StampsAdded,
		"current_stamps", result.CurrentStamps,
		"reward_earned", result.RewardEarned,
		"birthday_bonus", result.BirthdayBonus,
	)

	if result.BirthdayBonus {
		s.notify(ctx, notify.Notification{
			CustomerID: string(id),
			Kind:       notify.KindBirthdayBonus,
			Title:      "Happy birthday!",
			Body:       fmt.Sprintf("We added %s to your card today.", pluralStamps(result.StampsAdded)),
			DedupeKey:  fmt.Sprintf("birthday-bonus-%s-%d", id, now.Year()),
			CreatedAt:  now,
		})
	}
	if result.RewardEarned {
		s.notify(ctx, notify.Notification{
			CustomerID: string(id),
			Kind:       notify.KindRewardEarned,
			Title:      "Free reward unlocked",
			Body:       result.Message,
			CreatedAt:  now,
		})
	}
	return next, result, nil
}

// RedeemReward redeems a full card. Fails with ErrInvalidState when the card
// holds fewer than StampsPerReward stamps.
func (s *Service) RedeemReward(ctx context.Context, id CustomerID) (Ledger, RedeemResult, error) {
	if id == "" {
		return Ledger{}, RedeemResult{}, fmt.Errorf("%w: customer id is required", ErrInvalidArgument)
	}
	now := s.Now()

	var result RedeemResult
	next, err := s.mutate(ctx, "redeem reward", id, func(_ *Customer, l Ledger) (Ledger, LedgerEvent, error) {
		next, res, err := s.engine.ApplyRedemption(l, now)
		result = res
		if err != nil {
			return l, LedgerEvent{}, err
		}
		return next, LedgerEvent{
			Type:          EventRedeem,
			RewardsDelta:  1,
			RedeemedDelta: 1,
			At:            now,
		}, nil
	})
	if err != nil {
		return Ledger{}, RedeemResult{}, err
	}

	s.logger.Info("reward redeemed",
		"customer_id", string(id),
		"rewards_earned", result.RewardsEarned,
		"lifetime_stamps", result.LifetimeStamps,
	)
	s.notify(ctx, notify.Notification{
		CustomerID: string(id),
		Kind:       notify.KindRewardRedeemed,
		Title:      "Enjoy your free reward",
		Body:       result.Message,
		CreatedAt:  now,
	})
	return next, result, nil
}

// ClaimReward hands over one reward previously earned by a scan rollover.
func (s *Service) ClaimReward(ctx context.Context, id CustomerID) (Ledger, error) {
	now := s.Now()
	next, err := s.mutate(ctx, "claim reward", id, func(_ *Customer, l Ledger) (Ledger, LedgerEvent, error) {
		next, err := s.engine.ApplyClaim(l, now)
		if err != nil {
			return l, LedgerEvent{}, err
		}
		return next, LedgerEvent{Type: EventClaim, RedeemedDelta: 1, At: now}, nil
	})
	if err != nil {
		return Ledger{}, err
	}
	s.notify(ctx, notify.Notification{
		CustomerID: string(id),
		Kind:       notify.KindRewardRedeemed,
		Title:      "Enjoy your free reward",
		Body:       claimMessage(next.AvailableRewards),
		CreatedAt:  now,
	})
	return next, nil
}

// mutate runs one read-modify-write inside a transaction and returns the
// ledger as stored.
func (s *Service) mutate(ctx context.Context, op string, id CustomerID,
	apply func(c *Customer, l Ledger) (Ledger, LedgerEvent, error)) (Ledger, error) {

	var saved Ledger
	err := s.store.WithTx(ctx, func(tx Store) error {
		customer, err := tx.GetCustomer(ctx, id)
		if err != nil {
			return err
		}
		current, err := tx.GetLedger(ctx, id)
		if err != nil {
			return err
		}
		ledger := NewLedger(id)
		if current != nil {
			ledger = *current
		}

		next, ev, err := apply(customer, ledger)
		if err != nil {
			return err
		}
		if err := tx.SaveLedger(ctx, next); err != nil {
			return err
		}
		saved = next
		saved.Version = next.Version + 1

		ev.ID = EventID(s.newID())
		ev.CustomerID = id
		ev.ActorID = ActorFromContext(ctx)
		return tx.AppendEvent(ctx, ev)
	})
	if err != nil && !IsClientError(err) && !IsNotFound(err) {
		s.logger.Error("ledger update failed", "op", op, "customer_id", string(id), "error", err)
	}
	if err != nil {
		return Ledger{}, Internal(op, err)
	}
	return saved, nil
}

func (s *Service) notify(ctx context.Context, n notify.Notification) {
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn("notification failed",
			"customer_id", n.CustomerID,
			"kind", string(n.Kind),
			"error", err,
		)
	}
}

// =============================================================================
// CUSTOMER DIRECTORY
// =============================================================================

// NewCustomer is the signup input.
type NewCustomer struct {
	Name  string
	Email string
	Phone string
	DOB   string // "DD/MM", "MM-DD" or "YYYY-MM-DD"; optional
	Role  Role   // defaults to RoleCustomer
}

// RegisterCustomer creates a customer and their ledger with the welcome
// stamps. The email must not already be registered.
func (s *Service) RegisterCustomer(ctx context.Context, in NewCustomer) (Customer, Ledger, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if name == "" {
		return Customer{}, Ledger{}, fmt.Errorf("%w: name is required", ErrInvalidArgument)
	}
	if email == "" || !strings.Contains(email, "@") {
		return Customer{}, Ledger{}, fmt.Errorf("%w: a valid email is required", ErrInvalidArgument)
	}
	dob, err := ParseDayMonth(in.DOB)
	if err != nil {
		return Customer{}, Ledger{}, err
	}
	role := in.Role
	if role == "" {
		role = RoleCustomer
	}
	if role != RoleCustomer && role != RoleSuperuser {
		return Customer{}, Ledger{}, fmt.Errorf("%w: unknown role %q", ErrInvalidArgument, role)
	}

	now := s.Now()
	customer := Customer{
		ID:        CustomerID(s.newID()),
		Name:      name,
		Email:     email,
		Phone:     strings.TrimSpace(in.Phone),
		DOB:       dob,
		Role:      role,
		CreatedAt: now,
	}

	var ledger Ledger
	err = s.store.WithTx(ctx, func(tx Store) error {
		existing, err := tx.FindCustomerByEmail(ctx, email)
		if err != nil {
			return err
		}
		if existing != nil {
			return &DuplicateCustomerError{Email: email, Existing: existing.ID}
		}
		if err := tx.SaveCustomer(ctx, customer); err != nil {
			return err
		}
		ledger = s.engine.ApplyWelcome(NewLedger(customer.ID), now)
		if err := tx.SaveLedger(ctx, ledger); err != nil {
			return err
		}
		if ledger.LifetimeStamps == 0 {
			return nil
		}
		return tx.AppendEvent(ctx, LedgerEvent{
			ID:          EventID(s.newID()),
			CustomerID:  customer.ID,
			Type:        EventWelcome,
			StampsDelta: ledger.LifetimeStamps,
			ActorID:     ActorFromContext(ctx),
			At:          now,
		})
	})
	if err != nil {
		return Customer{}, Ledger{}, Internal("register customer", err)
	}
	ledger.Version = 1

	s.logger.Info("customer registered", "customer_id", string(customer.ID), "welcome_stamps", len(ledger.Stamps))
	return customer, ledger, nil
}

// GetCustomer returns a customer or ErrCustomerNotFound.
func (s *Service) GetCustomer(ctx context.Context, id CustomerID) (*Customer, error) {
	c, err := s.store.GetCustomer(ctx, id)
	return c, Internal("get customer", err)
}

// ListCustomers returns every customer.
func (s *Service) ListCustomers(ctx context.Context) ([]Customer, error) {
	cs, err := s.store.ListCustomers(ctx)
	return cs, Internal("list customers", err)
}

// GetCard returns a customer's ledger, or an empty ledger when none exists.
func (s *Service) GetCard(ctx context.Context, id CustomerID) (Ledger, error) {
	if _, err := s.store.GetCustomer(ctx, id); err != nil {
		return Ledger{}, Internal("get card", err)
	}
	l, err := s.store.GetLedger(ctx, id)
	if err != nil {
		return Ledger{}, Internal("get card", err)
	}
	if l == nil {
		return NewLedger(id), nil
	}
	return *l, nil
}

// ListEvents returns a customer's ledger history.
func (s *Service) ListEvents(ctx context.Context, id CustomerID) ([]LedgerEvent, error) {
	if _, err := s.store.GetCustomer(ctx, id); err != nil {
		return nil, Internal("list events", err)
	}
	evs, err := s.store.ListEvents(ctx, id)
	return evs, Internal("list events", err)
}

// Now reads the service clock in the café's time zone.
func (s *Service) Now() time.Time { return s.clock.Now().In(s.loc) }

// BirthdaysDue returns customers whose birthday is observed on now's date and
// who have not received this year's birthday bonus yet. Customers born on
// 29 February are included on 28 February of non-leap years.
func (s *Service) BirthdaysDue(ctx context.Context, now time.Time) ([]Customer, error) {
	days := []DayMonth{{Day: now.Day(), Month: now.Month()}}
	if now.Month() == time.February && now.Day() == 28 && !isLeap(now.Year()) {
		days = append(days, DayMonth{Day: 29, Month: time.February})
	}

	var due []Customer
	for _, d := range days {
		customers, err := s.store.ListBirthdays(ctx, d)
		if err != nil {
			return nil, Internal("list birthdays", err)
		}
		for _, c := range customers {
			l, err := s.store.GetLedger(ctx, c.ID)
			if err != nil {
				return nil, Internal("list birthdays", err)
			}
			if l != nil && l.BirthdayBonusYear == now.Year() {
				continue
			}
			due = append(due, c)
		}
	}
	return due, nil
}
