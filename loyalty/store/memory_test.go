package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stampcard/loyalty"
	"github.com/warp/stampcard/notify"
)

func TestMemory_SaveLedgerCompareAndSwap(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	l := loyalty.NewLedger("c1")
	require.NoError(t, m.SaveLedger(ctx, l))

	// A second insert at version 0 loses.
	assert.ErrorIs(t, m.SaveLedger(ctx, l), loyalty.ErrConcurrentModification)

	stored, err := m.GetLedger(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, int64(1), stored.Version)

	stored.LifetimeStamps = 5
	require.NoError(t, m.SaveLedger(ctx, *stored))

	// Writing from the stale read fails.
	assert.ErrorIs(t, m.SaveLedger(ctx, *stored), loyalty.ErrConcurrentModification)

	missing, err := m.GetLedger(ctx, "nobody")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemory_GetLedgerReturnsCopy(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	l := loyalty.NewLedger("c1")
	l.Stamps = []loyalty.Stamp{{Date: time.Now()}}
	require.NoError(t, m.SaveLedger(ctx, l))

	got, _ := m.GetLedger(ctx, "c1")
	got.Stamps[0] = loyalty.Stamp{}

	again, _ := m.GetLedger(ctx, "c1")
	assert.False(t, again.Stamps[0].Date.IsZero())
}

func TestTxMemory_RollbackOnError(t *testing.T) {
	tm := NewTxMemory()
	ctx := context.Background()
	boom := errors.New("boom")

	err := tm.WithTx(ctx, func(s loyalty.Store) error {
		require.NoError(t, s.SaveCustomer(ctx, loyalty.Customer{ID: "c1", Email: "a@b.c"}))
		require.NoError(t, s.SaveLedger(ctx, loyalty.NewLedger("c1")))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = tm.GetCustomer(ctx, "c1")
	assert.ErrorIs(t, err, loyalty.ErrCustomerNotFound)
	l, _ := tm.GetLedger(ctx, "c1")
	assert.Nil(t, l)
}

func TestMemory_EventsOrderedByTime(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	t0 := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	require.NoError(t, m.AppendEvent(ctx, loyalty.LedgerEvent{ID: "b", CustomerID: "c1", At: t0.Add(time.Hour)}))
	require.NoError(t, m.AppendEvent(ctx, loyalty.LedgerEvent{ID: "a", CustomerID: "c1", At: t0}))
	require.NoError(t, m.AppendEvent(ctx, loyalty.LedgerEvent{ID: "c", CustomerID: "c1", At: t0.Add(time.Hour)}))

	evs, err := m.ListEvents(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, evs, 3)
	assert.Equal(t, loyalty.EventID("a"), evs[0].ID)
	assert.Equal(t, loyalty.EventID("b"), evs[1].ID)
	assert.Equal(t, loyalty.EventID("c"), evs[2].ID)
}

func TestMemory_ListBirthdays(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	mar10 := loyalty.DayMonth{Day: 10, Month: time.March}

	require.NoError(t, m.SaveCustomer(ctx, loyalty.Customer{ID: "c1", DOB: &mar10}))
	require.NoError(t, m.SaveCustomer(ctx, loyalty.Customer{ID: "c2"}))
	require.NoError(t, m.SaveCustomer(ctx, loyalty.Customer{ID: "c3", DOB: &loyalty.DayMonth{Day: 11, Month: time.March}}))

	got, err := m.ListBirthdays(ctx, mar10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, loyalty.CustomerID("c1"), got[0].ID)
}

func TestMemory_NotificationDedupe(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	n := notify.Notification{ID: "n1", CustomerID: "c1", Kind: notify.KindBirthdayReminder, DedupeKey: "k"}
	require.NoError(t, m.SaveNotification(ctx, n))
	n.ID = "n2"
	assert.ErrorIs(t, m.SaveNotification(ctx, n), notify.ErrDuplicate)

	require.NoError(t, m.SaveNotification(ctx, notify.Notification{ID: "n3", CustomerID: "c1"}))

	got, err := m.ListNotifications(ctx, "c1", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "n3", got[0].ID)

	require.NoError(t, m.Reset(ctx))
	got, _ = m.ListNotifications(ctx, "c1", 0)
	assert.Empty(t, got)
}
