package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stampcard/loyalty"
)

func TestListScenarios(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/scenarios", f.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	list := decode[[]ScenarioDTO](t, rec)
	ids := make([]string, len(list))
	for i, s := range list {
		ids[i] = s.ID
	}
	assert.Equal(t, []string{"fresh-signup", "eight-stamps", "full-card", "reward-available", "birthday-today"}, ids)
}

func TestLoadScenario_CardStates(t *testing.T) {
	tests := []struct {
		scenario  string
		stamps    int
		available int
	}{
		{"fresh-signup", 2, 0},
		{"eight-stamps", 8, 0},
		{"full-card", 9, 0},
		{"reward-available", 1, 1},
		{"birthday-today", 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.scenario, func(t *testing.T) {
			f := newAPIFixture(t)
			f.register(t, "leftover@example.com", "")

			rec := f.do(t, http.MethodPost, "/api/scenarios/load", f.token, LoadScenarioRequest{ScenarioID: tt.scenario})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			resp := decode[LoadScenarioResponse](t, rec)
			require.Len(t, resp.Customers, 1)

			all, err := f.svc.ListCustomers(context.Background())
			require.NoError(t, err)
			assert.Len(t, all, 1, "previous data is wiped")

			card, err := f.svc.GetCard(context.Background(), loyalty.CustomerID(resp.Customers[0].ID))
			require.NoError(t, err)
			assert.Len(t, card.Stamps, tt.stamps)
			assert.Equal(t, tt.available, card.AvailableRewards)

			rec = f.do(t, http.MethodGet, "/api/scenarios/current", f.token, nil)
			assert.JSONEq(t, `{"scenario_id":"`+tt.scenario+`"}`, rec.Body.String())
		})
	}
}

func TestLoadScenario_BirthdayTodayGrantsBonusOnNextScan(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/scenarios/load", f.token, LoadScenarioRequest{ScenarioID: "birthday-today"})
	require.Equal(t, http.StatusOK, rec.Code)
	id := decode[LoadScenarioResponse](t, rec).Customers[0].ID

	rec = f.do(t, http.MethodPost, "/api/scans", f.token, ScanRequest{ScannedUserID: id})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ScanResponse](t, rec)
	assert.True(t, resp.BirthdayBonus)
	assert.Equal(t, 4, resp.CurrentStamps)
}

func TestLoadScenario_Unknown(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/api/scenarios/load", f.token, LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResetDatabase(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "ada@example.com", "")

	rec := f.do(t, http.MethodPost, "/api/scenarios/reset", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/scenarios/reset", f.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	all, err := f.svc.ListCustomers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)

	rec = f.do(t, http.MethodGet, "/api/scenarios/current", f.token, nil)
	assert.JSONEq(t, `{"scenario_id":null}`, rec.Body.String())
}
