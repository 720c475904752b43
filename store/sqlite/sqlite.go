/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements loyalty.TxStore (customers, ledgers, ledger events) and
  notify.Sink (notification outbox) on SQLite.

KEY TABLES:
  customers:      Profile records, unique email
  ledgers:        One row per customer; stamps stored as a JSON array
  ledger_events:  Append-only history of every ledger mutation
  notifications:  Outbox read by the push service / customer app

LEDGER WRITES:
  A ledger is written as one row in one statement, so a scan can never be
  half applied. Writes are compare-and-swap on the version column:
    INSERT ... version = 1                    (new ledger)
    UPDATE ... WHERE version = <read version> (existing ledger)
  Zero affected rows -> loyalty.ErrConcurrentModification.

CONCURRENCY:
  The pool is limited to one connection and transactions start with
  BEGIN IMMEDIATE (_txlock=immediate), so read-modify-write transactions
  are serialized by SQLite itself.

USAGE:
  store, err := sqlite.New("./data/stampcard.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := loyalty.NewService(store, loyalty.DefaultProgram())

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - loyalty/store.go: Interface definitions
  - loyalty/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/stampcard/loyalty"
	"github.com/warp/stampcard/notify"
)

// Store implements loyalty.TxStore and notify.Sink using SQLite.
type Store struct {
	db *sql.DB
}

// Compile-time checks.
var (
	_ loyalty.TxStore = (*Store)(nil)
	_ notify.Sink     = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per-connection, and a single
	// writer is all SQLite supports anyway.
	db.SetMaxOpenConns(1)

	store, err := Open(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Open wraps an existing database handle and migrates the schema.
func Open(db *sql.DB) (*Store, error) {
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT,
		dob_day INTEGER,
		dob_month INTEGER,
		role TEXT NOT NULL DEFAULT 'customer',
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_customers_email
		ON customers(email);
	CREATE INDEX IF NOT EXISTS idx_customers_birthday
		ON customers(dob_month, dob_day) WHERE dob_month IS NOT NULL;

	-- One ledger document per customer
	CREATE TABLE IF NOT EXISTS ledgers (
		customer_id TEXT PRIMARY KEY REFERENCES customers(id),
		stamps_json TEXT NOT NULL DEFAULT '[]',
		lifetime_stamps INTEGER NOT NULL DEFAULT 0,
		rewards_earned INTEGER NOT NULL DEFAULT 0,
		rewards_redeemed INTEGER NOT NULL DEFAULT 0,
		available_rewards INTEGER NOT NULL DEFAULT 0,
		birthday_bonus_year INTEGER NOT NULL DEFAULT 0,
		reward_claimed BOOLEAN NOT NULL DEFAULT FALSE,
		last_redemption_at TEXT,
		updated_at TEXT NOT NULL,
		version INTEGER NOT NULL
	);

	-- Ledger history (append-only)
	CREATE TABLE IF NOT EXISTS ledger_events (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		event_type TEXT NOT NULL,
		stamps_delta INTEGER NOT NULL DEFAULT 0,
		rewards_delta INTEGER NOT NULL DEFAULT 0,
		redeemed_delta INTEGER NOT NULL DEFAULT 0,
		birthday BOOLEAN NOT NULL DEFAULT FALSE,
		actor_id TEXT,
		occurred_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_events_customer
		ON ledger_events(customer_id, occurred_at);

	-- Notification outbox
	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		title TEXT NOT NULL,
		body TEXT,
		dedupe_key TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_customer
		ON notifications(customer_id, created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// QUERIER - shared by *sql.DB and *sql.Tx
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// TRANSACTIONS (loyalty.TxStore)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(loyalty.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{q: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txStore is the loyalty.Store view of an open transaction.
type txStore struct {
	q querier
}

func (ts *txStore) GetCustomer(ctx context.Context, id loyalty.CustomerID) (*loyalty.Customer, error) {
	return getCustomer(ctx, ts.q, id)
}

func (ts *txStore) FindCustomerByEmail(ctx context.Context, email string) (*loyalty.Customer, error) {
	return findCustomerByEmail(ctx, ts.q, email)
}

func (ts *txStore) SaveCustomer(ctx context.Context, c loyalty.Customer) error {
	return saveCustomer(ctx, ts.q, c)
}

func (ts *txStore) ListCustomers(ctx context.Context) ([]loyalty.Customer, error) {
	return queryCustomers(ctx, ts.q, customerSelect+` ORDER BY created_at ASC, id ASC`)
}

func (ts *txStore) ListBirthdays(ctx context.Context, d loyalty.DayMonth) ([]loyalty.Customer, error) {
	return listBirthdays(ctx, ts.q, d)
}

func (ts *txStore) GetLedger(ctx context.Context, id loyalty.CustomerID) (*loyalty.Ledger, error) {
	return getLedger(ctx, ts.q, id)
}

func (ts *txStore) SaveLedger(ctx context.Context, l loyalty.Ledger) error {
	return saveLedger(ctx, ts.q, l)
}

func (ts *txStore) AppendEvent(ctx context.Context, ev loyalty.LedgerEvent) error {
	return appendEvent(ctx, ts.q, ev)
}

func (ts *txStore) ListEvents(ctx context.Context, id loyalty.CustomerID) ([]loyalty.LedgerEvent, error) {
	return listEvents(ctx, ts.q, id)
}

// =============================================================================
// CUSTOMERS
// =============================================================================

const customerSelect = `
	SELECT id, name, email, phone, dob_day, dob_month, role, created_at
	FROM customers`

// GetCustomer returns loyalty.ErrCustomerNotFound when id does not resolve.
func (s *Store) GetCustomer(ctx context.Context, id loyalty.CustomerID) (*loyalty.Customer, error) {
	return getCustomer(ctx, s.db, id)
}

// FindCustomerByEmail returns nil, nil when no customer has that email.
func (s *Store) FindCustomerByEmail(ctx context.Context, email string) (*loyalty.Customer, error) {
	return findCustomerByEmail(ctx, s.db, email)
}

// SaveCustomer inserts or updates a customer.
func (s *Store) SaveCustomer(ctx context.Context, c loyalty.Customer) error {
	return saveCustomer(ctx, s.db, c)
}

// ListCustomers returns all customers, oldest first.
func (s *Store) ListCustomers(ctx context.Context) ([]loyalty.Customer, error) {
	return queryCustomers(ctx, s.db, customerSelect+` ORDER BY created_at ASC, id ASC`)
}

// ListBirthdays returns customers born on d.
func (s *Store) ListBirthdays(ctx context.Context, d loyalty.DayMonth) ([]loyalty.Customer, error) {
	return listBirthdays(ctx, s.db, d)
}

func getCustomer(ctx context.Context, q querier, id loyalty.CustomerID) (*loyalty.Customer, error) {
	customers, err := queryCustomers(ctx, q, customerSelect+` WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(customers) == 0 {
		return nil, loyalty.ErrCustomerNotFound
	}
	return &customers[0], nil
}

func findCustomerByEmail(ctx context.Context, q querier, email string) (*loyalty.Customer, error) {
	customers, err := queryCustomers(ctx, q, customerSelect+` WHERE email = ?`, strings.ToLower(email))
	if err != nil || len(customers) == 0 {
		return nil, err
	}
	return &customers[0], nil
}

func listBirthdays(ctx context.Context, q querier, d loyalty.DayMonth) ([]loyalty.Customer, error) {
	return queryCustomers(ctx, q, customerSelect+` WHERE dob_day = ? AND dob_month = ? ORDER BY id ASC`,
		d.Day, int(d.Month))
}

func saveCustomer(ctx context.Context, q querier, c loyalty.Customer) error {
	var day, month sql.NullInt64
	if c.DOB != nil {
		day = sql.NullInt64{Int64: int64(c.DOB.Day), Valid: true}
		month = sql.NullInt64{Int64: int64(c.DOB.Month), Valid: true}
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO customers (id, name, email, phone, dob_day, dob_month, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			phone = excluded.phone,
			dob_day = excluded.dob_day,
			dob_month = excluded.dob_month,
			role = excluded.role
	`,
		c.ID,
		c.Name,
		strings.ToLower(c.Email),
		nullString(c.Phone),
		day,
		month,
		string(c.Role),
		c.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &loyalty.DuplicateCustomerError{Email: c.Email}
		}
		return fmt.Errorf("failed to save customer: %w", err)
	}
	return nil
}

func queryCustomers(ctx context.Context, q querier, query string, args ...any) ([]loyalty.Customer, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	var result []loyalty.Customer
	for rows.Next() {
		var (
			c          loyalty.Customer
			phone      sql.NullString
			day, month sql.NullInt64
			role       string
			createdAt  string
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &phone, &day, &month, &role, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		c.Phone = phone.String
		c.Role = loyalty.Role(role)
		if day.Valid && month.Valid {
			c.DOB = &loyalty.DayMonth{Day: int(day.Int64), Month: time.Month(month.Int64)}
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		result = append(result, c)
	}
	return result, rows.Err()
}

// =============================================================================
// LEDGERS
// =============================================================================

// GetLedger returns nil, nil when the customer has no ledger yet.
func (s *Store) GetLedger(ctx context.Context, id loyalty.CustomerID) (*loyalty.Ledger, error) {
	return getLedger(ctx, s.db, id)
}

// SaveLedger writes a ledger with a compare-and-swap on its version.
func (s *Store) SaveLedger(ctx context.Context, l loyalty.Ledger) error {
	return saveLedger(ctx, s.db, l)
}

func getLedger(ctx context.Context, q querier, id loyalty.CustomerID) (*loyalty.Ledger, error) {
	var (
		l              loyalty.Ledger
		stampsJSON     string
		lastRedemption sql.NullString
		updatedAt      string
	)
	err := q.QueryRowContext(ctx, `
		SELECT customer_id, stamps_json, lifetime_stamps, rewards_earned, rewards_redeemed,
		       available_rewards, birthday_bonus_year, reward_claimed, last_redemption_at,
		       updated_at, version
		FROM ledgers
		WHERE customer_id = ?
	`, id).Scan(
		&l.CustomerID,
		&stampsJSON,
		&l.LifetimeStamps,
		&l.RewardsEarned,
		&l.RewardsRedeemed,
		&l.AvailableRewards,
		&l.BirthdayBonusYear,
		&l.RewardClaimed,
		&lastRedemption,
		&updatedAt,
		&l.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger: %w", err)
	}

	stamps, err := decodeStamps(stampsJSON)
	if err != nil {
		return nil, err
	}
	l.Stamps = stamps
	if lastRedemption.Valid {
		t, err := time.Parse(time.RFC3339Nano, lastRedemption.String)
		if err == nil {
			l.LastRedemptionDate = &t
		}
	}
	l.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &l, nil
}

func saveLedger(ctx context.Context, q querier, l loyalty.Ledger) error {
	stampsJSON, err := encodeStamps(l.Stamps)
	if err != nil {
		return err
	}
	var lastRedemption sql.NullString
	if l.LastRedemptionDate != nil {
		lastRedemption = sql.NullString{String: l.LastRedemptionDate.UTC().Format(time.RFC3339Nano), Valid: true}
	}
	updatedAt := l.UpdatedAt.UTC().Format(time.RFC3339Nano)

	if l.Version == 0 {
		_, err := q.ExecContext(ctx, `
			INSERT INTO ledgers
			(customer_id, stamps_json, lifetime_stamps, rewards_earned, rewards_redeemed,
			 available_rewards, birthday_bonus_year, reward_claimed, last_redemption_at,
			 updated_at, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		`,
			l.CustomerID, stampsJSON, l.LifetimeStamps, l.RewardsEarned, l.RewardsRedeemed,
			l.AvailableRewards, l.BirthdayBonusYear, l.RewardClaimed, lastRedemption, updatedAt,
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return loyalty.ErrConcurrentModification
			}
			return fmt.Errorf("failed to insert ledger: %w", err)
		}
		return nil
	}

	res, err := q.ExecContext(ctx, `
		UPDATE ledgers SET
			stamps_json = ?, lifetime_stamps = ?, rewards_earned = ?, rewards_redeemed = ?,
			available_rewards = ?, birthday_bonus_year = ?, reward_claimed = ?,
			last_redemption_at = ?, updated_at = ?, version = version + 1
		WHERE customer_id = ? AND version = ?
	`,
		stampsJSON, l.LifetimeStamps, l.RewardsEarned, l.RewardsRedeemed,
		l.AvailableRewards, l.BirthdayBonusYear, l.RewardClaimed,
		lastRedemption, updatedAt, l.CustomerID, l.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update ledger: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update ledger: %w", err)
	}
	if n == 0 {
		return loyalty.ErrConcurrentModification
	}
	return nil
}

type stampJSON struct {
	Date time.Time `json:"date"`
}

func encodeStamps(stamps []loyalty.Stamp) (string, error) {
	out := make([]stampJSON, len(stamps))
	for i, st := range stamps {
		out[i] = stampJSON{Date: st.Date.UTC()}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to encode stamps: %w", err)
	}
	return string(b), nil
}

func decodeStamps(s string) ([]loyalty.Stamp, error) {
	var in []stampJSON
	if err := json.Unmarshal([]byte(s), &in); err != nil {
		return nil, fmt.Errorf("failed to decode stamps: %w", err)
	}
	stamps := make([]loyalty.Stamp, len(in))
	for i, st := range in {
		stamps[i] = loyalty.Stamp{Date: st.Date}
	}
	return stamps, nil
}

// =============================================================================
// LEDGER EVENTS (append-only)
// =============================================================================

// AppendEvent adds an entry to the ledger history.
func (s *Store) AppendEvent(ctx context.Context, ev loyalty.LedgerEvent) error {
	return appendEvent(ctx, s.db, ev)
}

// ListEvents returns a customer's history, oldest first.
func (s *Store) ListEvents(ctx context.Context, id loyalty.CustomerID) ([]loyalty.LedgerEvent, error) {
	return listEvents(ctx, s.db, id)
}

func appendEvent(ctx context.Context, q querier, ev loyalty.LedgerEvent) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO ledger_events
		(id, customer_id, event_type, stamps_delta, rewards_delta, redeemed_delta,
		 birthday, actor_id, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ev.ID, ev.CustomerID, string(ev.Type), ev.StampsDelta, ev.RewardsDelta,
		ev.RedeemedDelta, ev.Birthday, nullString(ev.ActorID),
		ev.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append ledger event: %w", err)
	}
	return nil
}

func listEvents(ctx context.Context, q querier, id loyalty.CustomerID) ([]loyalty.LedgerEvent, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, customer_id, event_type, stamps_delta, rewards_delta, redeemed_delta,
		       birthday, actor_id, occurred_at
		FROM ledger_events
		WHERE customer_id = ?
		ORDER BY occurred_at ASC, rowid ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger events: %w", err)
	}
	defer rows.Close()

	var result []loyalty.LedgerEvent
	for rows.Next() {
		var (
			ev         loyalty.LedgerEvent
			eventType  string
			actorID    sql.NullString
			occurredAt string
		)
		if err := rows.Scan(&ev.ID, &ev.CustomerID, &eventType, &ev.StampsDelta, &ev.RewardsDelta,
			&ev.RedeemedDelta, &ev.Birthday, &actorID, &occurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger event: %w", err)
		}
		ev.Type = loyalty.EventType(eventType)
		ev.ActorID = actorID.String
		ev.At, _ = time.Parse(time.RFC3339Nano, occurredAt)
		result = append(result, ev)
	}
	return result, rows.Err()
}

// =============================================================================
// NOTIFICATIONS (notify.Sink)
// =============================================================================

// SaveNotification queues a notification. Returns notify.ErrDuplicate when
// the dedupe key was already used.
func (s *Store) SaveNotification(ctx context.Context, n notify.Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, customer_id, kind, title, body, dedupe_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		n.ID, n.CustomerID, string(n.Kind), n.Title, n.Body, nullString(n.DedupeKey),
		n.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return notify.ErrDuplicate
		}
		return fmt.Errorf("failed to save notification: %w", err)
	}
	return nil
}

// ListNotifications returns a customer's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, customerID string, limit int) ([]notify.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, kind, title, body, dedupe_key, created_at
		FROM notifications
		WHERE customer_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var result []notify.Notification
	for rows.Next() {
		var (
			n         notify.Notification
			kind      string
			body      sql.NullString
			dedupe    sql.NullString
			createdAt string
		)
		if err := rows.Scan(&n.ID, &n.CustomerID, &kind, &n.Title, &body, &dedupe, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Kind = notify.Kind(kind)
		n.Body = body.String
		n.DedupeKey = dedupe.String
		n.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		result = append(result, n)
	}
	return result, rows.Err()
}

// =============================================================================
// ADMIN
// =============================================================================

// Reset deletes all data. Used by demo scenarios.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM notifications;
		DELETE FROM ledger_events;
		DELETE FROM ledgers;
		DELETE FROM customers;
	`)
	if err != nil {
		return fmt.Errorf("failed to reset database: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
