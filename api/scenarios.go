/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with customers
	at interesting points of the stamp card lifecycle, so staff devices and
	the customer app can be demoed without scanning by hand.

AVAILABLE SCENARIOS:

	fresh-signup:     Customer with only the welcome stamps
	eight-stamps:     One scan away from a full card
	full-card:        Nine stamps, ready for staff redemption
	reward-available: Card rolled over, one reward waiting to be claimed
	birthday-today:   Birthday today, bonus not granted yet

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Register customers through loyalty.Service (welcome stamps included)
 3. Apply scans through loyalty.Service

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "full-card"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description and a loader

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler dependencies
  - loyalty/service.go: RegisterCustomer, ProcessScan
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/warp/stampcard/loyalty"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	load func(ctx context.Context, svc *loyalty.Service) ([]loyalty.Customer, error)
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "fresh-signup",
			Name:        "Fresh Signup",
			Description: "New customer holding only the welcome stamps",
		},
		load: func(ctx context.Context, svc *loyalty.Service) ([]loyalty.Customer, error) {
			return seedCustomer(ctx, svc, demoCustomer("Maya Fresh", "maya@example.com", ""), 0)
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "eight-stamps",
			Name:        "Eight Stamps",
			Description: "One scan away from a full card",
		},
		load: func(ctx context.Context, svc *loyalty.Service) ([]loyalty.Customer, error) {
			return seedCustomer(ctx, svc, demoCustomer("Omar Regular", "omar@example.com", ""), stampsUpTo(svc, 8))
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "full-card",
			Name:        "Full Card",
			Description: "Nine stamps on the card, ready for staff redemption",
		},
		load: func(ctx context.Context, svc *loyalty.Service) ([]loyalty.Customer, error) {
			p := svc.Program()
			return seedCustomer(ctx, svc, demoCustomer("Lena Loyal", "lena@example.com", ""), stampsUpTo(svc, p.StampsPerReward))
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "reward-available",
			Name:        "Reward Available",
			Description: "Card rolled over on a scan, one reward waiting to be claimed",
		},
		load: func(ctx context.Context, svc *loyalty.Service) ([]loyalty.Customer, error) {
			p := svc.Program()
			return seedCustomer(ctx, svc, demoCustomer("Theo Twice", "theo@example.com", ""), stampsUpTo(svc, p.StampsPerReward+1))
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "birthday-today",
			Name:        "Birthday Today",
			Description: "Customer celebrating today; the next scan adds the birthday bonus",
		},
		load: func(ctx context.Context, svc *loyalty.Service) ([]loyalty.Customer, error) {
			now := svc.Now()
			dob := loyalty.DayMonth{Day: now.Day(), Month: now.Month()}.String()
			return seedCustomer(ctx, svc, demoCustomer("Bea Birthday", "bea@example.com", dob), 0)
		},
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns the available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the ID of the last loaded scenario.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, map[string]any{"scenario_id": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"scenario_id": current})
}

// LoadScenario resets the database and loads a demo scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid-argument", "invalid request body", err)
		return
	}
	s, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid-argument", fmt.Sprintf("unknown scenario %q", req.ScenarioID), nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Backend.Reset(ctx); err != nil {
		writeServiceError(w, r, loyalty.Internal("reset database", err))
		return
	}
	h.currentScenario = ""

	customers, err := s.load(ctx, h.Service)
	if err != nil {
		writeServiceError(w, r, loyalty.Internal("load scenario "+s.ID, err))
		return
	}
	h.currentScenario = s.ID
	h.logger.Info("scenario loaded", "scenario", s.ID, "customers", len(customers))

	dtos := make([]CustomerDTO, len(customers))
	for i, c := range customers {
		dtos[i] = toCustomerDTO(c)
	}
	writeJSON(w, http.StatusOK, LoadScenarioResponse{Scenario: s.ScenarioDTO, Customers: dtos})
}

// ResetDatabase wipes all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Backend.Reset(r.Context()); err != nil {
		writeServiceError(w, r, loyalty.Internal("reset database", err))
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func demoCustomer(name, email, dob string) loyalty.NewCustomer {
	return loyalty.NewCustomer{Name: name, Email: email, DOB: dob}
}

// stampsUpTo returns how many scans take a fresh signup to target stamps.
func stampsUpTo(svc *loyalty.Service, target int) int {
	n := target - svc.Program().WelcomeStamps
	if n < 0 {
		return 0
	}
	return n
}

// seedCustomer registers a customer and applies the given number of scans.
func seedCustomer(ctx context.Context, svc *loyalty.Service, in loyalty.NewCustomer, scans int) ([]loyalty.Customer, error) {
	c, _, err := svc.RegisterCustomer(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", in.Email, err)
	}
	for i := 0; i < scans; i++ {
		if _, _, err := svc.ProcessScan(ctx, c.ID); err != nil {
			return nil, fmt.Errorf("scan %s: %w", in.Email, err)
		}
	}
	return []loyalty.Customer{c}, nil
}
