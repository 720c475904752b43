/*
handlers.go - HTTP API handlers for the café stamp card

PURPOSE:
  Exposes the stamp card service via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to loyalty.Service.

ENDPOINTS:
  Staff (bearer JWT, role superuser):
    POST   /api/scans                          Add stamps for a QR scan
    POST   /api/redemptions                    Redeem a full card
    POST   /api/customers/{id}/claims          Hand over an earned reward
    GET    /api/customers                      List customers
    GET    /api/customers/{id}                 Customer profile
    GET    /api/customers/{id}/card            Stamp card
    GET    /api/customers/{id}/events          Ledger history
    GET    /api/customers/{id}/notifications   Queued notifications

  Public:
    POST   /api/customers                      Signup
    GET    /healthz                            Liveness

  Scenarios (staff):
    GET    /api/scenarios                      List demo scenarios
    GET    /api/scenarios/current              Last loaded scenario
    POST   /api/scenarios/load                 Load a demo scenario
    POST   /api/scenarios/reset                Wipe all data

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call loyalty.Service
  4. Record metrics
  5. Serialize response

ERROR HANDLING:
  Errors are returned as ErrorResponse JSON:
  - 400 invalid-argument:     Malformed body, missing scanned_user_id
  - 401 unauthenticated:      No or bad bearer token
  - 403 permission-denied:    Token without the staff role
  - 404 not-found:            Unknown customer
  - 409 failed-precondition:  Card not full, no reward to claim
  - 429 resource-exhausted:   Duplicate scan inside the guard interval
  - 500 internal:             Store failures; details are logged, not returned

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Staff token checks
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/warp/stampcard/loyalty"
	"github.com/warp/stampcard/metrics"
	"github.com/warp/stampcard/notify"
	"github.com/warp/stampcard/rewards"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Backend is the storage surface the handlers need beyond loyalty.Service:
// reading the notification outbox and wiping demo data.
type Backend interface {
	notify.Sink
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *loyalty.Service
	Backend Backend
	Catalog rewards.Catalog
	Guard   *ScanGuard

	logger *slog.Logger

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler. A nil guard disables duplicate-scan
// protection.
func NewHandler(svc *loyalty.Service, backend Backend, catalog rewards.Catalog, guard *ScanGuard, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Service: svc,
		Backend: backend,
		Catalog: catalog,
		Guard:   guard,
		logger:  logger,
	}
}

// =============================================================================
// STAFF OPERATIONS
// =============================================================================

// ProcessScan adds the stamps for one QR scan.
func (h *Handler) ProcessScan(w http.ResponseWriter, r *http.Request) {
	id, ok := decodeScanRequest(w, r)
	if !ok {
		metrics.RecordScan(metrics.ScanRejected, 0, false)
		return
	}

	release, ok := h.Guard.Reserve(id)
	if !ok {
		metrics.RecordThrottledScan()
		writeError(w, http.StatusTooManyRequests, "resource-exhausted", "customer was scanned moments ago", nil)
		return
	}

	_, result, err := h.Service.ProcessScan(r.Context(), loyalty.CustomerID(id))
	if err != nil {
		release()
		if loyalty.IsClientError(err) || loyalty.IsNotFound(err) {
			metrics.RecordScan(metrics.ScanRejected, 0, false)
		} else {
			metrics.RecordScan(metrics.ScanError, 0, false)
		}
		writeServiceError(w, r, err)
		return
	}

	outcome := metrics.ScanStamp
	if result.RewardEarned {
		outcome = metrics.ScanReward
	}
	metrics.RecordScan(outcome, result.StampsAdded, result.BirthdayBonus)

	resp := ScanResponse{
		Success:       true,
		StampsAdded:   result.StampsAdded,
		Message:       result.Message,
		CurrentStamps: result.CurrentStamps,
		RewardEarned:  result.RewardEarned,
		BirthdayBonus: result.BirthdayBonus,
	}
	if result.RewardEarned {
		overflow := result.OverflowStamps
		resp.OverflowStamps = &overflow
	}
	writeJSON(w, http.StatusOK, resp)
}

// RedeemReward redeems a full card.
func (h *Handler) RedeemReward(w http.ResponseWriter, r *http.Request) {
	id, ok := decodeScanRequest(w, r)
	if !ok {
		return
	}

	_, result, err := h.Service.RedeemReward(r.Context(), loyalty.CustomerID(id))
	metrics.RecordRedemption("redeem", err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, RedeemResponse{
		Success:        true,
		RewardsEarned:  result.RewardsEarned,
		LifetimeStamps: result.LifetimeStamps,
		Message:        result.Message,
	})
}

// ClaimReward hands over one reward earned by a scan rollover.
func (h *Handler) ClaimReward(w http.ResponseWriter, r *http.Request) {
	id := loyalty.CustomerID(chi.URLParam(r, "id"))

	ledger, err := h.Service.ClaimReward(r.Context(), id)
	metrics.RecordRedemption("claim", err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardDTO(ledger, h.Service.Program(), h.Catalog))
}

// decodeScanRequest reads {"scanned_user_id": "..."} and writes a 400 when
// the body is malformed or the ID is missing.
func decodeScanRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid-argument", "invalid request body", err)
		return "", false
	}
	id := strings.TrimSpace(req.ScannedUserID)
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid-argument", "scanned_user_id is required", nil)
		return "", false
	}
	return id, true
}

// =============================================================================
// CUSTOMER HANDLERS
// =============================================================================

// CreateCustomer signs up a customer and returns the welcome card.
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CreateCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid-argument", "invalid request body", err)
		return
	}

	customer, ledger, err := h.Service.RegisterCustomer(r.Context(), loyalty.NewCustomer{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
		DOB:   req.DOB,
	})
	if err != nil {
		var dup *loyalty.DuplicateCustomerError
		if errors.As(err, &dup) {
			writeError(w, http.StatusConflict, "already-exists", "email already registered", err)
			return
		}
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateCustomerResponse{
		Customer: toCustomerDTO(customer),
		Card:     toCardDTO(ledger, h.Service.Program(), h.Catalog),
	})
}

// ListCustomers returns all customers.
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.Service.ListCustomers(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	dtos := make([]CustomerDTO, len(customers))
	for i, c := range customers {
		dtos[i] = toCustomerDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCustomer returns a single customer.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := h.Service.GetCustomer(r.Context(), loyalty.CustomerID(chi.URLParam(r, "id")))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerDTO(*customer))
}

// GetCard returns the customer's stamp card.
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	ledger, err := h.Service.GetCard(r.Context(), loyalty.CustomerID(chi.URLParam(r, "id")))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardDTO(ledger, h.Service.Program(), h.Catalog))
}

// ListEvents returns the ledger history, oldest first.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Service.ListEvents(r.Context(), loyalty.CustomerID(chi.URLParam(r, "id")))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	dtos := make([]EventDTO, len(events))
	for i, ev := range events {
		dtos[i] = toEventDTO(ev)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListNotifications returns queued notifications, newest first.
// Optional query parameter: limit (default 50).
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.Service.GetCustomer(r.Context(), loyalty.CustomerID(id)); err != nil {
		writeServiceError(w, r, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid-argument", "limit must be a non-negative integer", err)
			return
		}
		limit = n
	}

	notes, err := h.Backend.ListNotifications(r.Context(), id, limit)
	if err != nil {
		writeServiceError(w, r, loyalty.Internal("list notifications", err))
		return
	}

	dtos := make([]NotificationDTO, len(notes))
	for i, n := range notes {
		dtos[i] = toNotificationDTO(n)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Healthz reports liveness. Backends that can be pinged are checked too.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Backend.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			h.logger.Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps loyalty errors to HTTP status codes. Internal
// failures are logged with the request ID and never leak their cause.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, loyalty.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required", err)
	case errors.Is(err, loyalty.ErrForbidden):
		writeError(w, http.StatusForbidden, "permission-denied", "staff role required", err)
	case errors.Is(err, loyalty.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid-argument", "invalid request", err)
	case loyalty.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not-found", "customer not found", err)
	case errors.Is(err, loyalty.ErrInvalidState):
		writeError(w, http.StatusConflict, "failed-precondition", err.Error(), nil)
	default:
		slog.Default().ErrorContext(r.Context(), "request failed",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal", "internal error", nil)
	}
}
