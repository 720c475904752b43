/*
handlers_test.go - HTTP tests for the stamp card API

Tests for:
- Staff authentication (401/403) before any ledger access
- Scan, redemption and claim responses
- Duplicate-scan guard (429)
- Error mapping (400/404/409/500)
- Signup and read endpoints
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stampcard/loyalty"
	"github.com/warp/stampcard/loyalty/store"
	"github.com/warp/stampcard/notify"
	"github.com/warp/stampcard/rewards"
	"github.com/warp/stampcard/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var march10 = time.Date(2025, time.March, 10, 14, 30, 0, 0, time.UTC)

type apiFixture struct {
	mem     *store.TxMemory
	clock   *loyalty.FixedClock
	svc     *loyalty.Service
	auth    *Authenticator
	handler *Handler
	router  http.Handler
	token   string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	mem := store.NewTxMemory()
	clock := loyalty.NewFixedClock(march10)
	svc := loyalty.NewService(mem, loyalty.DefaultProgram(),
		loyalty.WithClock(clock),
		loyalty.WithNotifier(notify.NewOutbox(mem, nil)),
	)

	guard := NewScanGuard(time.Second, 1)
	guard.now = clock.Now

	auth := NewAuthenticator("test-secret-at-least-16", "stampcard-test")
	h := NewHandler(svc, mem, rewards.DefaultCatalog(), guard, nil)
	router := NewRouter(h, RouterConfig{Auth: auth, CORSOrigins: []string{"http://localhost:5173"}})

	token, err := auth.Issue("staff-1", loyalty.RoleSuperuser, time.Hour)
	require.NoError(t, err)

	return &apiFixture{
		mem:     mem,
		clock:   clock,
		svc:     svc,
		auth:    auth,
		handler: h,
		router:  router,
		token:   token,
	}
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) register(t *testing.T, email, dob string) loyalty.Customer {
	t.Helper()
	c, _, err := f.svc.RegisterCustomer(context.Background(), loyalty.NewCustomer{
		Name:  "Ada",
		Email: email,
		DOB:   dob,
	})
	require.NoError(t, err)
	return c
}

// scanTo scans through the service, bypassing the guard, until the card
// holds n stamps.
func (f *apiFixture) scanTo(t *testing.T, id loyalty.CustomerID, n int) {
	t.Helper()
	for i := loyalty.DefaultProgram().WelcomeStamps; i < n; i++ {
		_, _, err := f.svc.ProcessScan(context.Background(), id)
		require.NoError(t, err)
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// =============================================================================
// AUTHENTICATION
// =============================================================================

func TestScan_RequiresStaffToken(t *testing.T) {
	// GIVEN: A customer with the welcome stamps
	// WHEN: Scans arrive without a token, with a bad token, and with a
	//       customer-role token
	// THEN: 401, 401, 403 and the ledger is untouched

	f := newAPIFixture(t)
	c := f.register(t, "ada@example.com", "")
	body := ScanRequest{ScannedUserID: string(c.ID)}

	rec := f.do(t, http.MethodPost, "/api/scans", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", decode[ErrorResponse](t, rec).Code)

	rec = f.do(t, http.MethodPost, "/api/scans", "not-a-jwt", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other := NewAuthenticator("another-secret-of-16+", "stampcard-test")
	forged, err := other.Issue("staff-1", loyalty.RoleSuperuser, time.Hour)
	require.NoError(t, err)
	rec = f.do(t, http.MethodPost, "/api/scans", forged, body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	customerToken, err := f.auth.Issue(string(c.ID), loyalty.RoleCustomer, time.Hour)
	require.NoError(t, err)
	rec = f.do(t, http.MethodPost, "/api/scans", customerToken, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "permission-denied", decode[ErrorResponse](t, rec).Code)

	card, err := f.svc.GetCard(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Len(t, card.Stamps, 2)
}

func TestAuthenticator_RejectsExpiredToken(t *testing.T) {
	f := newAPIFixture(t)

	expired, err := f.auth.Issue("staff-1", loyalty.RoleSuperuser, -time.Minute)
	require.NoError(t, err)

	_, err = f.auth.Parse(expired)
	assert.ErrorIs(t, err, loyalty.ErrUnauthenticated)

	claims, err := f.auth.Parse(f.token)
	require.NoError(t, err)
	assert.Equal(t, "staff-1", claims.Subject)
	assert.Equal(t, string(loyalty.RoleSuperuser), claims.Role)
}

// =============================================================================
// SCANS
// =============================================================================

func TestScan_AddsStamp(t *testing.T) {
	f := newAPIFixture(t)
	c := f.register(t, "ada@example.com", "")

	rec := f.do(t, http.MethodPost, "/api/scans", f.token, ScanRequest{ScannedUserID: string(c.ID)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "overflow_stamps")

	resp := decode[ScanResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.StampsAdded)
	assert.Equal(t, 3, resp.CurrentStamps)
	assert.False(t, resp.RewardEarned)
	assert.False(t, resp.BirthdayBonus)
	assert.Equal(t, "Stamp added! 3/9 stamps collected.", resp.Message)

	events, err := f.svc.ListEvents(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "staff-1", events[len(events)-1].ActorID)
}

func TestScan_BirthdayOverflow(t *testing.T) {
	// GIVEN: A customer born 10/03 holding 8 stamps collected before March 10
	// WHEN: Staff scans on March 10
	// THEN: 2 stamps added, reward earned, 1 overflow stamp on the new card

	f := newAPIFixture(t)
	c := f.register(t, "ada@example.com", "10/03")
	f.clock.Set(march10.AddDate(0, 0, -5))
	f.scanTo(t, c.ID, 8)
	f.clock.Set(march10)

	rec := f.do(t, http.MethodPost, "/api/scans", f.token, ScanRequest{ScannedUserID: string(c.ID)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[ScanResponse](t, rec)
	assert.Equal(t, 2, resp.StampsAdded)
	assert.True(t, resp.RewardEarned)
	assert.True(t, resp.BirthdayBonus)
	assert.Equal(t, 1, resp.CurrentStamps)
	require.NotNil(t, resp.OverflowStamps)
	assert.Equal(t, 1, *resp.OverflowStamps)
}

func TestScan_DuplicateScanIsThrottled(t *testing.T) {
	f := newAPIFixture(t)
	c := f.register(t, "ada@example.com", "")
	body := ScanRequest{ScannedUserID: string(c.ID)}

	rec := f.do(t, http.MethodPost, "/api/scans", f.token, body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/scans", f.token, body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "resource-exhausted", decode[ErrorResponse](t, rec).Code)

	f.clock.Advance(time.Second)
	rec = f.do(t, http.MethodPost, "/api/scans", f.token, body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4, decode[ScanResponse](t, rec).CurrentStamps)
}

func TestScan_InvalidRequests(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/scans", f.token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid-argument", decode[ErrorResponse](t, rec).Code)

	rec = f.do(t, http.MethodPost, "/api/scans", f.token, "not an object")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/scans", f.token, ScanRequest{ScannedUserID: "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not-found", decode[ErrorResponse](t, rec).Code)
}

func TestScan_StoreFailureIsInternal(t *testing.T) {
	f := newAPIFixture(t)
	c := f.register(t, "ada@example.com", "")
	f.mem.FailNext = errors.New("disk I/O error")

	rec := f.do(t, http.MethodPost, "/api/scans", f.token, ScanRequest{ScannedUserID: string(c.ID)})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "internal", resp.Code)
	assert.Empty(t, resp.Details)
	assert.NotContains(t, rec.Body.String(), "disk")
}

// =============================================================================
// REDEMPTIONS AND CLAIMS
// =============================================================================

func TestScan_FailedScanDoesNotThrottleRetry(t *testing.T) {
	// GIVEN: A scan that fails, either for an unknown customer or a store outage
	// WHEN: Staff re-scans immediately
	// THEN: The retry reaches the service instead of getting 429, and only a
	//       scan that stamped counts against the guard

	f := newAPIFixture(t)

	ghost := ScanRequest{ScannedUserID: "ghost"}
	rec := f.do(t, http.MethodPost, "/api/scans", f.token, ghost)
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/scans", f.token, ghost)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	c := f.register(t, "ada@example.com", "")
	body := ScanRequest{ScannedUserID: string(c.ID)}

	f.mem.FailNext = errors.New("disk I/O error")
	rec = f.do(t, http.MethodPost, "/api/scans", f.token, body)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/scans", f.token, body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decode[ScanResponse](t, rec).CurrentStamps)

	rec = f.do(t, http.MethodPost, "/api/scans", f.token, body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRedeem_FullCardOnly(t *testing.T) {
	f := newAPIFixture(t)
	c := f.register(t, "ada@example.com", "")
	body := ScanRequest{ScannedUserID: string(c.ID)}

	rec := f.do(t, http.MethodPost, "/api/redemptions", f.token, body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "failed-precondition", decode[ErrorResponse](t, rec).Code)

	f.scanTo(t, c.ID, 9)

	rec = f.do(t, http.MethodPost, "/api/redemptions", f.token, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[RedeemResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.RewardsEarned)
	assert.Equal(t, 9, resp.LifetimeStamps)

	rec = f.do(t, http.MethodPost, "/api/redemptions", f.token, body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/customers/"+string(c.ID)+"/card", f.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	card := decode[CardDTO](t, rec)
	assert.Equal(t, 0, card.StampCount)
	assert.Equal(t, 1, card.RewardsRedeemed)
	assert.Equal(t, "4.50 EUR", card.LifetimeSavings)
}

func TestClaim_AfterRollover(t *testing.T) {
	f := newAPIFixture(t)
	c := f.register(t, "ada@example.com", "")
	path := "/api/customers/" + string(c.ID) + "/claims"

	rec := f.do(t, http.MethodPost, path, f.token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	f.scanTo(t, c.ID, 10) // rolls over on the tenth stamp

	rec = f.do(t, http.MethodPost, path, f.token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	card := decode[CardDTO](t, rec)
	assert.Equal(t, 0, card.AvailableRewards)
	assert.Equal(t, 1, card.StampCount)
	assert.True(t, card.RewardClaimed)
}

// =============================================================================
// CUSTOMERS
// =============================================================================

func TestCreateCustomer(t *testing.T) {
	f := newAPIFixture(t)
	req := CreateCustomerRequest{Name: "Ada", Email: "ada@example.com", DOB: "1990-03-10"}

	rec := f.do(t, http.MethodPost, "/api/customers", "", req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[CreateCustomerResponse](t, rec)
	assert.Equal(t, "10/03", resp.Customer.DOB)
	assert.Equal(t, "customer", resp.Customer.Role)
	assert.Equal(t, 2, resp.Card.StampCount)
	assert.Equal(t, 7, resp.Card.StampsToNextReward)
	assert.Equal(t, "0.00 EUR", resp.Card.LifetimeSavings)

	rec = f.do(t, http.MethodPost, "/api/customers", "", req)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already-exists", decode[ErrorResponse](t, rec).Code)

	rec = f.do(t, http.MethodPost, "/api/customers", "", CreateCustomerRequest{Name: "Bob", Email: "bob@example.com", DOB: "31/02"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCustomerReads(t *testing.T) {
	f := newAPIFixture(t)
	c := f.register(t, "ada@example.com", "10/03")
	base := "/api/customers/" + string(c.ID)

	rec := f.do(t, http.MethodGet, "/api/customers", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/customers", f.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]CustomerDTO](t, rec), 1)

	rec = f.do(t, http.MethodGet, base, f.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ada@example.com", decode[CustomerDTO](t, rec).Email)

	rec = f.do(t, http.MethodPost, "/api/scans", f.token, ScanRequest{ScannedUserID: string(c.ID)})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, base+"/events", f.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	events := decode[[]EventDTO](t, rec)
	require.Len(t, events, 2)
	assert.Equal(t, "welcome", events[0].Type)
	assert.Equal(t, "scan", events[1].Type)
	assert.True(t, events[1].Birthday)

	rec = f.do(t, http.MethodGet, base+"/notifications?limit=5", f.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	notes := decode[[]NotificationDTO](t, rec)
	require.Len(t, notes, 1)
	assert.Equal(t, string(notify.KindBirthdayBonus), notes[0].Kind)

	rec = f.do(t, http.MethodGet, base+"/notifications?limit=-1", f.token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/customers/ghost/card", f.token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHealthz_PingsSQLiteBackend(t *testing.T) {
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)

	svc := loyalty.NewService(db, loyalty.DefaultProgram())
	h := NewHandler(svc, db, rewards.DefaultCatalog(), nil, nil)
	router := NewRouter(h, RouterConfig{Auth: NewAuthenticator("test-secret-at-least-16", "stampcard-test")})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, db.Close())
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
