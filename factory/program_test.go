package factory_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stampcard/factory"
	"github.com/warp/stampcard/loyalty"
	"github.com/warp/stampcard/rewards"
)

func TestParseProgram_StandardCafe(t *testing.T) {
	pf := factory.NewProgramFactory()

	def, err := pf.ParseProgram(rewards.StandardCafeJSON("cafe-1", "Corner Cafe", "4.80"))
	require.NoError(t, err)

	assert.Equal(t, "cafe-1", def.ID)
	assert.Equal(t, "Corner Cafe", def.Name)
	assert.Equal(t, loyalty.DefaultProgram(), def.Program)

	item, ok := def.Catalog.Default()
	require.True(t, ok)
	assert.True(t, item.Value.Equal(decimal.RequireFromString("4.80")))
	assert.Len(t, def.Catalog.Items, 2)
}

func TestParseProgram_ExplicitZeroKept(t *testing.T) {
	pf := factory.NewProgramFactory()

	def, err := pf.ParseProgram(rewards.NoWelcomeJSON("trial", "Trial", 6))
	require.NoError(t, err)

	assert.Equal(t, 6, def.Program.StampsPerReward)
	assert.Equal(t, 0, def.Program.BirthdayBonus)
	assert.Equal(t, 0, def.Program.WelcomeStamps)

	// A single reward becomes the default.
	item, ok := def.Catalog.Default()
	require.True(t, ok)
	assert.Equal(t, "espresso", item.ID)
}

func TestParseProgram_OmittedFieldsTakeDefaults(t *testing.T) {
	def, err := factory.NewProgramFactory().ParseProgram(`{"id": "minimal"}`)
	require.NoError(t, err)
	assert.Equal(t, loyalty.DefaultProgram(), def.Program)
	assert.Equal(t, rewards.DefaultCatalog().Currency, def.Catalog.Currency)
}

func TestParseProgram_Invalid(t *testing.T) {
	pf := factory.NewProgramFactory()

	tests := map[string]string{
		"malformed":      `{`,
		"zero threshold": `{"id": "x", "stamps_per_reward": 0}`,
		"welcome >= N":   `{"id": "x", "stamps_per_reward": 3, "welcome_stamps": 3}`,
		"bad value":      `{"id": "x", "rewards": [{"id": "a", "name": "A", "value": "cheap"}]}`,
		"two defaults":   `{"id": "x", "rewards": [{"id": "a", "value": "1", "default": true}, {"id": "b", "value": "2", "default": true}]}`,
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := pf.ParseProgram(in)
			assert.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	pf := factory.NewProgramFactory()

	def, err := pf.LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, pf.Default(), def)

	path := filepath.Join(t.TempDir(), "program.json")
	require.NoError(t, os.WriteFile(path, []byte(rewards.NoWelcomeJSON("t", "T", 5)), 0o600))
	def, err = pf.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 5, def.Program.StampsPerReward)

	_, err = pf.LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestToJSON_RoundTrip(t *testing.T) {
	pf := factory.NewProgramFactory()
	def := pf.Default()

	b, err := json.Marshal(pf.ToJSON(def))
	require.NoError(t, err)

	back, err := pf.ParseProgram(string(b))
	require.NoError(t, err)
	assert.Equal(t, def.Program, back.Program)
	assert.Equal(t, def.Catalog.Format(def.Catalog.LifetimeSavings(2)), back.Catalog.Format(back.Catalog.LifetimeSavings(2)))
}
