package rewards

import "encoding/json"

// These build program JSON directly so the factory package can parse them
// without rewards importing factory.

// StandardCafeJSON returns the default program: 9 stamps per reward,
// 1 birthday stamp, 2 welcome stamps, a regular drink worth drinkValue.
func StandardCafeJSON(id, name, drinkValue string) string {
	pj := map[string]interface{}{
		"id":                id,
		"name":              name,
		"stamps_per_reward": 9,
		"birthday_bonus":    1,
		"welcome_stamps":    2,
		"currency":          "EUR",
		"rewards": []map[string]interface{}{
			{"id": "regular-drink", "name": "Any regular drink", "value": drinkValue, "default": true},
			{"id": "pastry", "name": "Pastry of the day", "value": "3.20"},
		},
	}
	b, _ := json.MarshalIndent(pj, "", "  ")
	return string(b)
}

// NoWelcomeJSON returns a program that grants no signup stamps and no
// birthday bonus. Used for trial shops.
func NoWelcomeJSON(id, name string, stampsPerReward int) string {
	pj := map[string]interface{}{
		"id":                id,
		"name":              name,
		"stamps_per_reward": stampsPerReward,
		"birthday_bonus":    0,
		"welcome_stamps":    0,
		"currency":          "EUR",
		"rewards": []map[string]interface{}{
			{"id": "espresso", "name": "Espresso", "value": "2.10", "default": true},
		},
	}
	b, _ := json.MarshalIndent(pj, "", "  ")
	return string(b)
}
