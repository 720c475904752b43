/*
Package factory provides JSON to Go program conversion.

PURPOSE:
  Converts JSON program definitions into loyalty.Program and
  rewards.Catalog. A shop can change its stamp card (stamps per reward,
  birthday bonus, welcome stamps, reward menu) without a code change.

JSON SCHEMA:
  {
    "id": "cafe-standard",
    "name": "Standard stamp card",
    "stamps_per_reward": 9,
    "birthday_bonus": 1,
    "welcome_stamps": 2,
    "currency": "EUR",
    "rewards": [
      {"id": "regular-drink", "name": "Any regular drink", "value": "4.50", "default": true},
      {"id": "pastry", "name": "Pastry of the day", "value": "3.20"}
    ]
  }

DEFAULTS:
  Omitted numbers take loyalty.DefaultProgram() values. An explicit 0 is
  kept (a shop may switch the birthday bonus off). Omitted rewards take
  rewards.DefaultCatalog(). A single reward is the default automatically.

USAGE:
  pf := factory.NewProgramFactory()
  def, err := pf.ParseProgram(rewards.StandardCafeJSON("cafe", "Cafe", "4.50"))
  svc := loyalty.NewService(store, def.Program)

SEE ALSO:
  - loyalty/types.go: Program
  - rewards/catalog.go: Catalog
  - rewards/presets.go: Ready-made program JSON
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/warp/stampcard/loyalty"
	"github.com/warp/stampcard/rewards"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ProgramJSON is the JSON representation of a stamp card program.
type ProgramJSON struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	StampsPerReward *int         `json:"stamps_per_reward,omitempty"`
	BirthdayBonus   *int         `json:"birthday_bonus,omitempty"`
	WelcomeStamps   *int         `json:"welcome_stamps,omitempty"`
	Currency        string       `json:"currency,omitempty"`
	Rewards         []RewardJSON `json:"rewards,omitempty"`
}

// RewardJSON represents one catalog item. Value is a decimal string.
type RewardJSON struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Value   string `json:"value"`
	Default bool   `json:"default,omitempty"`
}

// Definition is a parsed program.
type Definition struct {
	ID      string
	Name    string
	Program loyalty.Program
	Catalog rewards.Catalog
}

// =============================================================================
// PROGRAM FACTORY
// =============================================================================

// ProgramFactory converts JSON programs to Go structs.
type ProgramFactory struct{}

// NewProgramFactory creates a new program factory.
func NewProgramFactory() *ProgramFactory {
	return &ProgramFactory{}
}

// Default returns the built-in program.
func (f *ProgramFactory) Default() Definition {
	return Definition{
		ID:      "cafe-standard",
		Name:    "Standard stamp card",
		Program: loyalty.DefaultProgram(),
		Catalog: rewards.DefaultCatalog(),
	}
}

// LoadFile reads and parses a program file. An empty path yields Default().
func (f *ProgramFactory) LoadFile(path string) (Definition, error) {
	if path == "" {
		return f.Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("failed to read program file: %w", err)
	}
	return f.ParseProgram(string(b))
}

// ParseProgram parses a JSON string into a Definition.
func (f *ProgramFactory) ParseProgram(jsonStr string) (Definition, error) {
	var pj ProgramJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return Definition{}, fmt.Errorf("failed to parse program JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// FromJSON converts ProgramJSON to a validated Definition.
func (f *ProgramFactory) FromJSON(pj ProgramJSON) (Definition, error) {
	def := f.Default()
	if pj.ID != "" {
		def.ID = pj.ID
	}
	if pj.Name != "" {
		def.Name = pj.Name
	}

	if pj.StampsPerReward != nil {
		def.Program.StampsPerReward = *pj.StampsPerReward
	}
	if pj.BirthdayBonus != nil {
		def.Program.BirthdayBonus = *pj.BirthdayBonus
	}
	if pj.WelcomeStamps != nil {
		def.Program.WelcomeStamps = *pj.WelcomeStamps
	}
	if err := def.Program.Validate(); err != nil {
		return Definition{}, fmt.Errorf("program %q: %w", def.ID, err)
	}

	if pj.Currency != "" {
		def.Catalog.Currency = pj.Currency
	}
	if len(pj.Rewards) > 0 {
		items, err := parseRewards(pj.Rewards)
		if err != nil {
			return Definition{}, fmt.Errorf("program %q: %w", def.ID, err)
		}
		def.Catalog.Items = items
	}
	if err := def.Catalog.Validate(); err != nil {
		return Definition{}, fmt.Errorf("program %q: %w", def.ID, err)
	}
	return def, nil
}

func parseRewards(rjs []RewardJSON) ([]rewards.Item, error) {
	items := make([]rewards.Item, 0, len(rjs))
	for _, rj := range rjs {
		value, err := decimal.NewFromString(rj.Value)
		if err != nil {
			return nil, fmt.Errorf("reward %q: invalid value %q: %w", rj.ID, rj.Value, err)
		}
		items = append(items, rewards.Item{
			ID:      rj.ID,
			Name:    rj.Name,
			Value:   value,
			Default: rj.Default,
		})
	}
	if len(items) == 1 {
		items[0].Default = true
	}
	return items, nil
}

// ToJSON converts a Definition back to ProgramJSON.
func (f *ProgramFactory) ToJSON(def Definition) ProgramJSON {
	spr, bonus, welcome := def.Program.StampsPerReward, def.Program.BirthdayBonus, def.Program.WelcomeStamps
	pj := ProgramJSON{
		ID:              def.ID,
		Name:            def.Name,
		StampsPerReward: &spr,
		BirthdayBonus:   &bonus,
		WelcomeStamps:   &welcome,
		Currency:        def.Catalog.Currency,
	}
	for _, it := range def.Catalog.Items {
		pj.Rewards = append(pj.Rewards, RewardJSON{
			ID:      it.ID,
			Name:    it.Name,
			Value:   it.Value.StringFixed(2),
			Default: it.Default,
		})
	}
	return pj
}
