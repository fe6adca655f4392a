package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swapnilk30/AlgoTradingSetup01/internal/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ModePaper, cfg.Broker.Mode)
	assert.Equal(t, int64(100), cfg.Master.StrikeScale)
	assert.Equal(t, "NIFTY", cfg.Straddle.Underlying)
	assert.Equal(t, 1800, cfg.Risk.MaxQuantityPerOrder)
	assert.True(t, cfg.Market.EnforceHours)

	sc, err := cfg.Straddle.Strategy()
	require.NoError(t, err)
	assert.True(t, sc.Expiry.IsZero())
	assert.Equal(t, model.Sell, sc.Side)
}

func TestLoad_FileWithEnv(t *testing.T) {
	t.Setenv("TEST_TOTP", "JBSWY3DPEHPK3PXP")
	t.Setenv("ANGEL_CLIENT_CODE", "A123")
	t.Setenv("STRADDLE_LOTS", "2")

	path := writeConfig(t, `
broker:
  mode: live
  api_key: key
  password: "1234"
  totp_secret: ${TEST_TOTP}
master:
  redis_addr: localhost:6379
  redis_ttl: 6h
  strike_scale: 100
straddle:
  underlying: banknifty
  expiry: 05DEC2024
  strike_step: 100
  strike_offset: -1
  order_type: limit
risk:
  max_lots_per_leg: 4
market:
  holidays: ["2024-12-25"]
notify:
  telegram_token: t
  telegram_chat_id: "-100"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", cfg.Broker.TOTPSecret)
	assert.Equal(t, "A123", cfg.Broker.ClientCode)
	assert.Equal(t, 6*time.Hour, cfg.Master.RedisTTL)
	assert.Equal(t, 4, cfg.Risk.MaxLotsPerLeg)
	assert.Equal(t, 1800, cfg.Risk.MaxQuantityPerOrder)
	assert.NoError(t, cfg.ValidateLive())

	sc, err := cfg.Straddle.Strategy()
	require.NoError(t, err)
	assert.Equal(t, "BANKNIFTY", sc.Underlying)
	assert.Equal(t, time.Date(2024, 12, 5, 0, 0, 0, 0, time.UTC), sc.Expiry)
	assert.Equal(t, model.OrderLimit, sc.OrderType)
	assert.Equal(t, 2, sc.Lots)
	assert.Equal(t, -1, sc.StrikeOffset)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown key", "broker:\n  modee: live\n", "field modee not found"},
		{"bad mode", "broker:\n  mode: demo\n", "broker.mode"},
		{"bad scale", "master:\n  strike_scale: 0\n", "strike_scale"},
		{"bad expiry", "straddle:\n  expiry: someday\n", "straddle.expiry"},
		{"stop order", "straddle:\n  order_type: STOPLOSS_MARKET\n", "order type"},
		{"bad holiday", "market:\n  holidays: [25/12/2024]\n", "holiday"},
		{"half telegram", "notify:\n  telegram_token: t\n", "telegram"},
		{"bad level", "log:\n  level: loud\n", "loud"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config file")
}

func TestValidateLive_ListsMissing(t *testing.T) {
	cfg := Default()
	cfg.Broker.APIKey = "k"
	err := cfg.ValidateLive()
	require.Error(t, err)
	assert.Equal(t, "missing broker credentials: broker.client_code, broker.password, broker.totp_secret", err.Error())
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
}
