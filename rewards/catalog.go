/*
Package rewards describes what a customer can get for a full stamp card.

PURPOSE:
  The stamp rules only count rewards. This package gives a reward a face
  and a price: which drink a full card buys, and what it is worth. The
  value is used to report how much a loyal customer has saved.

MONEY:
  All values are decimal.Decimal. Never float64 for money.

CATALOG:
  A Catalog lists the items a reward can be exchanged for. Exactly one item
  is the default; its value is the reference for savings.

  LifetimeSavings = rewards redeemed * default item value

EXAMPLE:
  catalog := rewards.DefaultCatalog()
  saved := catalog.LifetimeSavings(3) // 3 * 4.50 = 13.50 EUR

SEE ALSO:
  - presets.go: Ready-made program JSON
  - factory/program.go: Parses program files into Program + Catalog
*/
package rewards

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidCatalog is returned by Validate.
var ErrInvalidCatalog = errors.New("invalid reward catalog")

// Item is one reward a full card can be exchanged for.
type Item struct {
	ID      string
	Name    string
	Value   decimal.Decimal // Retail price of the item
	Default bool
}

// Catalog is the set of rewards offered by a program.
type Catalog struct {
	Currency string // ISO 4217, e.g. "EUR"
	Items    []Item
}

// DefaultCatalog is the standard café catalog: any regular drink.
func DefaultCatalog() Catalog {
	return Catalog{
		Currency: "EUR",
		Items: []Item{
			{ID: "regular-drink", Name: "Any regular drink", Value: decimal.RequireFromString("4.50"), Default: true},
			{ID: "pastry", Name: "Pastry of the day", Value: decimal.RequireFromString("3.20")},
		},
	}
}

// Validate checks IDs are unique, values are non-negative and exactly one
// item is the default.
func (c Catalog) Validate() error {
	if len(c.Items) == 0 {
		return fmt.Errorf("%w: no items", ErrInvalidCatalog)
	}
	if len(c.Currency) != 3 {
		return fmt.Errorf("%w: currency %q", ErrInvalidCatalog, c.Currency)
	}
	seen := make(map[string]bool, len(c.Items))
	defaults := 0
	for _, it := range c.Items {
		if it.ID == "" {
			return fmt.Errorf("%w: item without id", ErrInvalidCatalog)
		}
		if seen[it.ID] {
			return fmt.Errorf("%w: duplicate item %q", ErrInvalidCatalog, it.ID)
		}
		seen[it.ID] = true
		if it.Value.IsNegative() {
			return fmt.Errorf("%w: item %q has a negative value", ErrInvalidCatalog, it.ID)
		}
		if it.Default {
			defaults++
		}
	}
	if defaults != 1 {
		return fmt.Errorf("%w: want exactly one default item, got %d", ErrInvalidCatalog, defaults)
	}
	return nil
}

// Default returns the default item.
func (c Catalog) Default() (Item, bool) {
	for _, it := range c.Items {
		if it.Default {
			return it, true
		}
	}
	return Item{}, false
}

// Find returns the item with the given ID.
func (c Catalog) Find(id string) (Item, bool) {
	for _, it := range c.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// LifetimeSavings is what redeemed rewards would have cost at the default
// item's price. Zero when the catalog has no default.
func (c Catalog) LifetimeSavings(redeemed int) decimal.Decimal {
	it, ok := c.Default()
	if !ok || redeemed <= 0 {
		return decimal.Zero
	}
	return it.Value.Mul(decimal.NewFromInt(int64(redeemed)))
}

// Format renders an amount with the catalog currency, e.g. "13.50 EUR".
func (c Catalog) Format(amount decimal.Decimal) string {
	return amount.StringFixed(2) + " " + strings.ToUpper(c.Currency)
}
