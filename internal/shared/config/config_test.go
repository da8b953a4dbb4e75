package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SERVICE_NAME", "price-service")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8765", cfg.HTTPPort)
	assert.Equal(t, "9095", cfg.MetricsPort)
	assert.Equal(t, 10*time.Second, cfg.RefreshInterval)
	assert.Equal(t, 10*time.Second, cfg.FetchTimeout)
	assert.Equal(t, "usd", cfg.QuoteCurrency)
	assert.Equal(t, []string{"btc", "eth"}, cfg.Symbols())
	assert.Equal(t, map[string]string{"btc": "bitcoin", "eth": "ethereum"}, cfg.SourceIDs())
	assert.Equal(t, int64(4096), cfg.WSMaxMessageBytes)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "ws", cfg.ClientSource)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVICE_NAME", "price-service")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("REFRESH_INTERVAL", "3s")
	t.Setenv("TRACKED_ASSETS", "SOL:solana, eth:ethereum,doge")
	t.Setenv("PRICE_SOURCE_URL", "http://localhost:8081/api/v3/")
	t.Setenv("WS_INBOUND_RATE", "2.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.HTTPPort)
	assert.Equal(t, 3*time.Second, cfg.RefreshInterval)
	assert.Equal(t, "http://localhost:8081/api/v3", cfg.PriceSourceURL)
	assert.Equal(t, 2.5, cfg.WSInboundRate)
	assert.Equal(t, []Asset{
		{Symbol: "doge", SourceID: "doge"},
		{Symbol: "eth", SourceID: "ethereum"},
		{Symbol: "sol", SourceID: "solana"},
	}, cfg.TrackedAssets)
}

func TestLoad_SimulatorPorts(t *testing.T) {
	t.Setenv("SERVICE_NAME", "price-source-simulator")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8081", cfg.HTTPPort)
	assert.Equal(t, "9094", cfg.MetricsPort)
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := map[string]string{
		"REFRESH_INTERVAL":     "ten seconds",
		"FETCH_TIMEOUT":        "-1s",
		"WS_MAX_MESSAGE_BYTES": "big",
		"WS_INBOUND_BURST":     "0",
		"TRACKED_ASSETS":       "btc:bitcoin,btc:other",
		"CLIENT_SOURCE":        "carrier-pigeon",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestParseAssets_Empty(t *testing.T) {
	_, err := parseAssets(" , ")
	assert.Error(t, err)
}

func TestLoad_ClientPorts(t *testing.T) {
	t.Setenv("SERVICE_NAME", "price-stream-client")
	t.Setenv("CLIENT_SOURCE", "Redis")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.HTTPPort)
	assert.Equal(t, "9096", cfg.MetricsPort)
	assert.Equal(t, "redis", cfg.ClientSource)
	assert.Equal(t, 30*time.Second, cfg.ClientPingInterval)
}
