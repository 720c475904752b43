/*
Package loyalty provides the stamp card engine for the café loyalty program.

PURPOSE:
  Customers collect one stamp per visit. A full card (nine stamps by default)
  turns into a free reward. On their birthday a customer receives one extra
  stamp, at most once per calendar year. This package owns those rules and
  the data they operate on.

KEY CONCEPTS IN THIS FILE (types.go):
  - Ledger: The per-customer stamp/reward record
  - Stamp: A single stamp on the current card
  - Customer: Profile record; the engine only reads DOB
  - Program: Tunable constants (stamps per reward, birthday bonus, welcome grant)
  - LedgerEvent: Append-only history entry for every mutation

DESIGN PRINCIPLES:
  1. Pure rules: Engine never reads the clock or touches storage
  2. Derived counters are repaired, never trusted: LifetimeStamps is raised to
     RewardsEarned*StampsPerReward + len(Stamps) before each mutation
  3. One engine, two call sites: staff scans and staff redemptions share it
  4. Atomic persistence: Service wraps read-modify-write in TxStore.WithTx

USAGE:
  engine := loyalty.NewEngine(loyalty.DefaultProgram())
  next, result := engine.ApplyScan(ledger, customer.DOB, now)

SEE ALSO:
  - engine.go: Scan, redemption and claim rules
  - service.go: Transactional orchestration
  - store.go: Persistence interfaces
*/
package loyalty

import (
	"fmt"
	"time"
)

// =============================================================================
// PROGRAM - Tunable constants of the stamp card
// =============================================================================

// Program holds the rules of a stamp card program.
type Program struct {
	StampsPerReward int // Stamps needed for one reward (9)
	BirthdayBonus   int // Extra stamps granted on a birthday scan (1)
	WelcomeStamps   int // Stamps granted at signup (2)
}

// DefaultProgram returns the standard café program: 9 stamps per reward,
// 1 birthday stamp, 2 welcome stamps.
func DefaultProgram() Program {
	return Program{
		StampsPerReward: 9,
		BirthdayBonus:   1,
		WelcomeStamps:   2,
	}
}

// Validate checks the program constants are usable.
func (p Program) Validate() error {
	if p.StampsPerReward < 1 {
		return fmt.Errorf("%w: stamps per reward must be positive", ErrInvalidArgument)
	}
	if p.BirthdayBonus < 0 || p.WelcomeStamps < 0 {
		return fmt.Errorf("%w: bonus and welcome stamps cannot be negative", ErrInvalidArgument)
	}
	if p.WelcomeStamps >= p.StampsPerReward {
		return fmt.Errorf("%w: welcome stamps must be fewer than a full card", ErrInvalidArgument)
	}
	return nil
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CustomerID string
type EventID string

// Role distinguishes customers from staff.
type Role string

const (
	RoleCustomer  Role = "customer"
	RoleSuperuser Role = "superuser"
)

// =============================================================================
// CUSTOMER
// =============================================================================

// DayMonth is a birthday without a year.
type DayMonth struct {
	Day   int
	Month time.Month
}

// Matches reports whether t falls on this birthday in t's year.
func (d DayMonth) Matches(t time.Time) bool {
	o := d.Observed(t.Year())
	return t.Day() == o.Day() && t.Month() == o.Month()
}

func (d DayMonth) String() string {
	return fmt.Sprintf("%02d/%02d", d.Day, int(d.Month))
}

// Customer is a loyalty program member.
type Customer struct {
	ID        CustomerID
	Name      string
	Email     string
	Phone     string
	DOB       *DayMonth // nil when the customer did not share a birthday
	Role      Role
	CreatedAt time.Time
}

// =============================================================================
// LEDGER - Stamp card state
// =============================================================================

// Stamp is one stamp on the current card.
type Stamp struct {
	Date time.Time
}

// Ledger is the per-customer stamp and reward record.
//
// INVARIANTS:
//   - LifetimeStamps >= RewardsEarned*StampsPerReward + len(Stamps)
//   - LifetimeStamps, RewardsEarned and RewardsRedeemed never decrease
//   - AvailableRewards == RewardsEarned - RewardsRedeemed
type Ledger struct {
	CustomerID         CustomerID
	Stamps             []Stamp
	LifetimeStamps     int
	RewardsEarned      int
	RewardsRedeemed    int
	AvailableRewards   int
	BirthdayBonusYear  int // 0 = never granted
	RewardClaimed      bool
	LastRedemptionDate *time.Time
	UpdatedAt          time.Time

	// Version is maintained by the store for compare-and-swap writes.
	Version int64
}

// NewLedger returns an empty ledger for a customer.
func NewLedger(id CustomerID) Ledger {
	return Ledger{CustomerID: id, Stamps: []Stamp{}}
}

// StampCount is the number of stamps on the current card.
func (l Ledger) StampCount() int { return len(l.Stamps) }

// Clone returns a deep copy so rules can mutate without aliasing the input.
func (l Ledger) Clone() Ledger {
	out := l
	out.Stamps = append([]Stamp{}, l.Stamps...)
	if l.LastRedemptionDate != nil {
		t := *l.LastRedemptionDate
		out.LastRedemptionDate = &t
	}
	return out
}

// =============================================================================
// LEDGER EVENTS - Append-only history
// =============================================================================

type EventType string

const (
	EventWelcome EventType = "welcome" // Signup grant
	EventScan    EventType = "scan"    // Staff scan (stamp accrual)
	EventRedeem  EventType = "redeem"  // Staff full-card redemption
	EventClaim   EventType = "claim"   // Available reward handed over
)

// LedgerEvent records one mutation of a ledger. Events are never updated.
type LedgerEvent struct {
	ID            EventID
	CustomerID    CustomerID
	Type          EventType
	StampsDelta   int  // Stamps granted by this event
	RewardsDelta  int  // Rewards earned by this event
	RedeemedDelta int  // Rewards handed over by this event
	Birthday      bool // Birthday bonus applied
	ActorID       string
	At            time.Time
}
