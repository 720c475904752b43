/*
store.go - Persistence interfaces for customers and stamp ledgers

PURPOSE:
  Defines the boundary between the stamp rules and the database. The
  service only ever mutates a ledger inside TxStore.WithTx, so a scan is a
  single atomic read-modify-write.

KEY INTERFACES:
  Store:   Customers, ledgers and the append-only event history
  TxStore: Store plus WithTx for atomic multi-statement writes

LEDGER WRITES:
  SaveLedger writes the whole ledger document in one statement and performs
  a compare-and-swap on Ledger.Version:
    - Version 0 inserts a new ledger (fails if one already exists)
    - Version n updates only if the stored version is still n
  A mismatch returns ErrConcurrentModification.

EVENTS:
  AppendEvent is the only write to the history. No update, no delete.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - loyalty/store/memory.go: In-memory for tests

SEE ALSO:
  - service.go: Uses WithTx for every mutation
*/
package loyalty

import "context"

// Store persists customers, ledgers and ledger events.
type Store interface {
	// GetCustomer returns ErrCustomerNotFound when id does not resolve.
	GetCustomer(ctx context.Context, id CustomerID) (*Customer, error)

	// FindCustomerByEmail returns nil, nil when no customer has that email.
	FindCustomerByEmail(ctx context.Context, email string) (*Customer, error)

	SaveCustomer(ctx context.Context, c Customer) error
	ListCustomers(ctx context.Context) ([]Customer, error)

	// ListBirthdays returns customers whose birthday is d.
	ListBirthdays(ctx context.Context, d DayMonth) ([]Customer, error)

	// GetLedger returns nil, nil when the customer has no ledger yet.
	GetLedger(ctx context.Context, id CustomerID) (*Ledger, error)

	// SaveLedger writes l with a compare-and-swap on l.Version.
	SaveLedger(ctx context.Context, l Ledger) error

	// AppendEvent adds an entry to the ledger history.
	AppendEvent(ctx context.Context, ev LedgerEvent) error

	// ListEvents returns a customer's history, oldest first.
	ListEvents(ctx context.Context, id CustomerID) ([]LedgerEvent, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
