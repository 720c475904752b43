/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Operation results

TYPES:
  Staff operations:
    ScanRequest, ScanResponse, RedeemResponse

  Customers:
    CustomerDTO, CreateCustomerRequest, CreateCustomerResponse

  Card & history:
    CardDTO, EventDTO, NotificationDTO

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Validation is done in handlers and the loyalty service, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/stampcard/loyalty"
	"github.com/warp/stampcard/notify"
	"github.com/warp/stampcard/rewards"
)

// =============================================================================
// STAFF OPERATIONS
// =============================================================================

// ScanRequest is the body of POST /api/scans and POST /api/redemptions.
type ScanRequest struct {
	ScannedUserID string `json:"scanned_user_id"`
}

// ScanResponse is returned by POST /api/scans.
type ScanResponse struct {
	Success        bool   `json:"success"`
	StampsAdded    int    `json:"stamps_added"`
	Message        string `json:"message"`
	CurrentStamps  int    `json:"current_stamps"`
	RewardEarned   bool   `json:"reward_earned"`
	BirthdayBonus  bool   `json:"birthday_bonus"`
	OverflowStamps *int   `json:"overflow_stamps,omitempty"` // Only when a reward was earned
}

// RedeemResponse is returned by POST /api/redemptions.
type RedeemResponse struct {
	Success        bool   `json:"success"`
	RewardsEarned  int    `json:"rewards_earned"`
	LifetimeStamps int    `json:"lifetime_stamps"`
	Message        string `json:"message,omitempty"`
}

// =============================================================================
// CUSTOMERS
// =============================================================================

// CustomerDTO represents a customer in API responses.
type CustomerDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	DOB       string    `json:"dob,omitempty"` // DD/MM
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateCustomerRequest is the signup body.
type CreateCustomerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
	DOB   string `json:"dob,omitempty"` // DD/MM, MM-DD or YYYY-MM-DD
}

// CreateCustomerResponse is returned after signup.
type CreateCustomerResponse struct {
	Customer CustomerDTO `json:"customer"`
	Card     CardDTO     `json:"card"`
}

func toCustomerDTO(c loyalty.Customer) CustomerDTO {
	dto := CustomerDTO{
		ID:        string(c.ID),
		Name:      c.Name,
		Email:     c.Email,
		Phone:     c.Phone,
		Role:      string(c.Role),
		CreatedAt: c.CreatedAt,
	}
	if c.DOB != nil {
		dto.DOB = c.DOB.String()
	}
	return dto
}

// =============================================================================
// CARD & HISTORY
// =============================================================================

// CardDTO is the customer's stamp card as shown in the app.
type CardDTO struct {
	CustomerID         string      `json:"customer_id"`
	Stamps             []time.Time `json:"stamps"`
	StampCount         int         `json:"stamp_count"`
	StampsPerReward    int         `json:"stamps_per_reward"`
	StampsToNextReward int         `json:"stamps_to_next_reward"`
	LifetimeStamps     int         `json:"lifetime_stamps"`
	RewardsEarned      int         `json:"rewards_earned"`
	RewardsRedeemed    int         `json:"rewards_redeemed"`
	AvailableRewards   int         `json:"available_rewards"`
	RewardClaimed      bool        `json:"reward_claimed"`
	LastRedemptionDate *time.Time  `json:"last_redemption_date,omitempty"`
	BirthdayBonusYear  int         `json:"birthday_bonus_year,omitempty"`
	LifetimeSavings    string      `json:"lifetime_savings"` // e.g. "13.50 EUR"
	UpdatedAt          time.Time   `json:"updated_at"`
	Version            int64       `json:"version"`
}

func toCardDTO(l loyalty.Ledger, p loyalty.Program, catalog rewards.Catalog) CardDTO {
	stamps := make([]time.Time, len(l.Stamps))
	for i, s := range l.Stamps {
		stamps[i] = s.Date
	}
	toNext := p.StampsPerReward - len(l.Stamps)
	if toNext < 0 {
		toNext = 0
	}
	return CardDTO{
		CustomerID:         string(l.CustomerID),
		Stamps:             stamps,
		StampCount:         len(l.Stamps),
		StampsPerReward:    p.StampsPerReward,
		StampsToNextReward: toNext,
		LifetimeStamps:     l.LifetimeStamps,
		RewardsEarned:      l.RewardsEarned,
		RewardsRedeemed:    l.RewardsRedeemed,
		AvailableRewards:   l.AvailableRewards,
		RewardClaimed:      l.RewardClaimed,
		LastRedemptionDate: l.LastRedemptionDate,
		BirthdayBonusYear:  l.BirthdayBonusYear,
		LifetimeSavings:    catalog.Format(catalog.LifetimeSavings(l.RewardsRedeemed)),
		UpdatedAt:          l.UpdatedAt,
		Version:            l.Version,
	}
}

// EventDTO is one ledger history entry.
type EventDTO struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	StampsDelta   int       `json:"stamps_delta"`
	RewardsDelta  int       `json:"rewards_delta"`
	RedeemedDelta int       `json:"redeemed_delta"`
	Birthday      bool      `json:"birthday,omitempty"`
	ActorID       string    `json:"actor_id,omitempty"`
	At            time.Time `json:"at"`
}

func toEventDTO(ev loyalty.LedgerEvent) EventDTO {
	return EventDTO{
		ID:            string(ev.ID),
		Type:          string(ev.Type),
		StampsDelta:   ev.StampsDelta,
		RewardsDelta:  ev.RewardsDelta,
		RedeemedDelta: ev.RedeemedDelta,
		Birthday:      ev.Birthday,
		ActorID:       ev.ActorID,
		At:            ev.At,
	}
}

// NotificationDTO is a queued customer notification.
type NotificationDTO struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toNotificationDTO(n notify.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        n.ID,
		Kind:      string(n.Kind),
		Title:     n.Title,
		Body:      n.Body,
		CreatedAt: n.CreatedAt,
	}
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the body of POST /api/scenarios/load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// LoadScenarioResponse lists the customers a scenario created.
type LoadScenarioResponse struct {
	Scenario  ScenarioDTO   `json:"scenario"`
	Customers []CustomerDTO `json:"customers"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"` // unauthenticated, permission-denied, invalid-argument, ...
	Details string `json:"details,omitempty"`
}
