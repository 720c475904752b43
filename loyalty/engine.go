/*
engine.go - Stamp accrual, reward and birthday rules

PURPOSE:
  Turns a scan or a redemption into a new ledger state plus a user-facing
  outcome. The engine is a pure function of (ledger, birthday, now): it never
  reads the clock and never performs I/O, so every rule is testable with a
  fixed time.

SCAN RULES (ApplyScan):
  1. Birthday hit: DOB day/month equals now, and no bonus this calendar year
  2. stampsToAdd = 1 (+ BirthdayBonus on a hit)
  3. Repair LifetimeStamps up to RewardsEarned*N + len(Stamps)
  4. projected = len(Stamps) + stampsToAdd
       projected <= N: append stampsToAdd fresh stamps
       projected >  N: reward earned, card restarts with the overflow stamps
  5. A birthday hit records the current year in either branch

  Exactly N stamps does NOT earn a reward on its own. The card sits full
  until the next scan rolls it over, or staff redeem it.

REDEMPTION RULES (ApplyRedemption):
  Requires len(Stamps) >= N. Repairs the lifetime counter, counts a reward as
  both earned and handed over, and clears the card completely. Overflow is
  not preserved here; staff redemption always starts a fresh card.

CLAIM RULES (ApplyClaim):
  Hands over one reward earned earlier by a scan rollover. Requires
  AvailableRewards > 0.

SYNTHETIC TIMESTAMPS:
  Stamps created by one operation are dated now, now+1s, now+2s ... so the
  card always has a strict display order.

SEE ALSO:
  - message.go: Confirmation text
  - service.go: Loads, applies and persists atomically
*/
package loyalty

import "time"

// =============================================================================
// RESULTS
// =============================================================================

// ScanResult describes the outcome of one scan.
type ScanResult struct {
	StampsAdded    int
	RewardEarned   bool
	BirthdayBonus  bool
	CurrentStamps  int // Stamps on the current card after the scan
	OverflowStamps int // Stamps carried to the next card; 0 unless RewardEarned
	Message        string
}

// RedeemResult describes the outcome of a full-card redemption.
type RedeemResult struct {
	RewardsEarned  int
	LifetimeStamps int
	Message        string
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine applies the stamp card rules of a Program.
type Engine struct {
	Program Program
}

// NewEngine creates an engine for the given program.
func NewEngine(p Program) *Engine {
	return &Engine{Program: p}
}

// IsBirthdayHit reports whether a scan at now earns the birthday bonus.
func (e *Engine) IsBirthdayHit(l Ledger, dob *DayMonth, now time.Time) bool {
	if dob == nil || e.Program.BirthdayBonus == 0 {
		return false
	}
	return dob.Matches(now) && l.BirthdayBonusYear != now.Year()
}

// RepairLifetime raises LifetimeStamps to the minimum the other counters
// imply. It never lowers it.
func (e *Engine) RepairLifetime(l Ledger) Ledger {
	floor := l.RewardsEarned*e.Program.StampsPerReward + len(l.Stamps)
	if l.LifetimeStamps < floor {
		l.LifetimeStamps = floor
	}
	return l
}

// ApplyScan applies one staff scan to the ledger.
func (e *Engine) ApplyScan(l Ledger, dob *DayMonth, now time.Time) (Ledger, ScanResult) {
	next := e.RepairLifetime(l.Clone())
	full := e.Program.StampsPerReward

	birthday := e.IsBirthdayHit(next, dob, now)
	stampsToAdd := 1
	if birthday {
		stampsToAdd += e.Program.BirthdayBonus
	}

	result := ScanResult{StampsAdded: stampsToAdd, BirthdayBonus: birthday}

	projected := len(next.Stamps) + stampsToAdd
	if projected <= full {
		next.Stamps = append(next.Stamps, freshStamps(stampsToAdd, now)...)
	} else {
		overflow := projected - full
		next.Stamps = freshStamps(overflow, now)
		next.RewardsEarned++
		next.RewardClaimed = true
		at := now
		next.LastRedemptionDate = &at
		result.RewardEarned = true
		result.OverflowStamps = overflow
	}
	next.LifetimeStamps += stampsToAdd

	if birthday {
		next.BirthdayBonusYear = now.Year()
	}

	next.AvailableRewards = next.RewardsEarned - next.RewardsRedeemed
	next.UpdatedAt = now

	result.CurrentStamps = len(next.Stamps)
	result.Message = scanMessage(result, full)
	return next, result
}

// ApplyRedemption redeems a full card.
// Returns *InsufficientStampsError when the card holds fewer than N stamps.
func (e *Engine) ApplyRedemption(l Ledger, now time.Time) (Ledger, RedeemResult, error) {
	full := e.Program.StampsPerReward
	if len(l.Stamps) < full {
		return l, RedeemResult{}, &InsufficientStampsError{
			CustomerID: l.CustomerID,
			Have:       len(l.Stamps),
			Need:       full,
		}
	}

	next := e.RepairLifetime(l.Clone())
	next.RewardsEarned++
	next.RewardsRedeemed++
	next.RewardClaimed = true
	at := now
	next.LastRedemptionDate = &at
	next.Stamps = []Stamp{}
	next.AvailableRewards = next.RewardsEarned - next.RewardsRedeemed
	next.UpdatedAt = now

	return next, RedeemResult{
		RewardsEarned:  next.RewardsEarned,
		LifetimeStamps: next.LifetimeStamps,
		Message:        redeemMessage(next.RewardsEarned),
	}, nil
}

// ApplyClaim hands over one reward earned by an earlier scan rollover.
func (e *Engine) ApplyClaim(l Ledger, now time.Time) (Ledger, error) {
	next := e.RepairLifetime(l.Clone())
	next.AvailableRewards = next.RewardsEarned - next.RewardsRedeemed
	if next.AvailableRewards <= 0 {
		return l, &NoRewardAvailableError{CustomerID: l.CustomerID}
	}
	next.RewardsRedeemed++
	next.AvailableRewards--
	next.RewardClaimed = true
	at := now
	next.LastRedemptionDate = &at
	next.UpdatedAt = now
	return next, nil
}

// ApplyWelcome grants the signup stamps to a brand new ledger.
func (e *Engine) ApplyWelcome(l Ledger, now time.Time) Ledger {
	next := e.RepairLifetime(l.Clone())
	n := e.Program.WelcomeStamps
	next.Stamps = append(next.Stamps, freshStamps(n, now)...)
	next.LifetimeStamps += n
	next.AvailableRewards = next.RewardsEarned - next.RewardsRedeemed
	next.UpdatedAt = now
	return next
}

// freshStamps returns n stamps dated now, now+1s, now+2s ...
func freshStamps(n int, now time.Time) []Stamp {
	stamps := make([]Stamp, n)
	for i := range stamps {
		stamps[i] = Stamp{Date: now.Add(time.Duration(i) * time.Second)}
	}
	return stamps
}
