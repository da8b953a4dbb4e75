package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceUpdate_WireShape(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	upd := NewPriceUpdate(map[string]AssetPrice{
		"btc": {Price: 50000, LastUpdated: &at},
		"eth": {Price: 0},
	}, at)

	b, err := json.Marshal(upd)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))

	assert.Equal(t, "price_update", raw["type"])
	assert.Equal(t, "2026-01-02T03:04:05Z", raw["timestamp"])

	data := raw["data"].(map[string]any)
	btc := data["btc"].(map[string]any)
	assert.Equal(t, 50000.0, btc["price"])
	assert.Equal(t, "2026-01-02T03:04:05Z", btc["last_updated"])

	eth := data["eth"].(map[string]any)
	assert.Contains(t, eth, "last_updated")
	assert.Nil(t, eth["last_updated"])
}

func TestNewPriceUpdate_NilSnapshot(t *testing.T) {
	b, err := json.Marshal(NewPriceUpdate(nil, time.Now()))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"data":{}`)
}
