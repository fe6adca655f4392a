package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swapnilk30/AlgoTradingSetup01/pkg/smartconnect"
)

const testMaster = `[
 {"token":"99926000","symbol":"Nifty 50","name":"NIFTY","expiry":"","strike":"0.000000","lotsize":"1","instrumenttype":"AMXIDX","exch_seg":"NSE","tick_size":"0.000000"},
 {"token":"35003","symbol":"NIFTY05DEC2423500CE","name":"NIFTY","expiry":"05DEC2024","strike":"2350000.000000","lotsize":"25","instrumenttype":"OPTIDX","exch_seg":"NFO","tick_size":"5.000000"},
 {"token":"35004","symbol":"NIFTY05DEC2423500PE","name":"NIFTY","expiry":"05DEC2024","strike":"2350000.000000","lotsize":"25","instrumenttype":"OPTIDX","exch_seg":"NFO","tick_size":"5.000000"},
 {"token":"35001","symbol":"NIFTY26DEC24FUT","name":"NIFTY","expiry":"26DEC2024","strike":"-1.000000","lotsize":"25","instrumenttype":"FUTIDX","exch_seg":"NFO","tick_size":"10.000000"}
]`

func setup(t *testing.T) string {
	t.Helper()
	for _, k := range []string{"REDIS_ADDR", "SQLITE_PATH", "METRICS_ADDR", "TRADING_MODE", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "NOTIFY_WEBHOOK_URL", "STRADDLE_LOTS", "STRADDLE_UNDERLYING"} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	master := filepath.Join(dir, "master.json")
	require.NoError(t, os.WriteFile(master, []byte(testMaster), 0o600))

	cfg := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(`
broker:
  mode: paper
master:
  file: `+master+`
straddle:
  underlying: NIFTY
  expiry: 2024-12-05
  strike_step: 50
  lots: 2
metrics:
  addr: ""
`), 0o600))
	return cfg
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(io.Discard)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestATMCommand(t *testing.T) {
	out, err := execute(t, "atm", "23461.35", "--step", "50", "--offset", "1")
	require.NoError(t, err)
	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "23500", got["atm"])
	assert.Equal(t, "23550", got["strike"])
	assert.Equal(t, "23450", got["nearest"])

	_, err = execute(t, "atm", "0", "--step", "50")
	assert.Error(t, err)
}

func TestResolveOptionCommand(t *testing.T) {
	cfg := setup(t)
	out, err := execute(t, "-c", cfg, "resolve", "option", "nifty", "--strike", "23500", "--side", "pe", "--expiry", "05DEC2024")
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "35004", got["token"])
	assert.Equal(t, "NIFTY05DEC2423500PE", got["trading_symbol"])

	_, err = execute(t, "-c", cfg, "resolve", "option", "NIFTY", "--strike", "24000", "--side", "CE", "--expiry", "05DEC2024")
	assert.ErrorContains(t, err, "not found")
}

func TestResolveFutureAndEquity(t *testing.T) {
	cfg := setup(t)
	out, err := execute(t, "-c", cfg, "resolve", "future", "NIFTY")
	require.NoError(t, err)
	assert.Contains(t, out, `"token": "35001"`)

	out, err = execute(t, "-c", cfg, "resolve", "equity", "NIFTY")
	require.NoError(t, err)
	assert.Contains(t, out, `"token": "99926000"`)

	out, err = execute(t, "-c", cfg, "resolve", "expiries", "NIFTY")
	require.NoError(t, err)
	assert.Contains(t, out, "2024-12-05")
}

func TestRunPaperWithFixedSpot(t *testing.T) {
	cfg := setup(t)

	out, err := execute(t, "-c", cfg, "run", "--spot", "23461.35", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "NIFTY05DEC2423500CE")
	assert.Contains(t, out, "NIFTY05DEC2423500PE")

	out, err = execute(t, "-c", cfg, "run", "--spot", "23461.35")
	require.NoError(t, err)
	var res resultView
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "23500", res.ATM.String())
	assert.Equal(t, "2024-12-05", res.Expiry)
	require.Len(t, res.Legs, 2)
	for _, l := range res.Legs {
		assert.Equal(t, 50, l.Quantity)
		assert.NotEmpty(t, l.OrderID)
		assert.Empty(t, l.Error)
	}
}

func TestRun_SpotRejectedInLiveMode(t *testing.T) {
	cfg := setup(t)
	t.Setenv("TRADING_MODE", "live")
	_, err := execute(t, "-c", cfg, "run", "--spot", "23461.35")
	assert.ErrorContains(t, err, "paper mode")
}

func TestRun_RequiresCredentialsWithoutSpot(t *testing.T) {
	cfg := setup(t)
	for _, k := range []string{"ANGEL_API_KEY", "ANGEL_CLIENT_CODE", "ANGEL_PASSWORD", "ANGEL_TOTP_SECRET"} {
		t.Setenv(k, "")
	}
	_, err := execute(t, "-c", cfg, "run")
	assert.ErrorContains(t, err, "missing broker credentials")
}

func TestRun_SpotRejectsLimitOrders(t *testing.T) {
	cfg := setup(t)
	raw, err := os.ReadFile(cfg)
	require.NoError(t, err)
	limit := strings.Replace(string(raw), "  lots: 2\n", "  lots: 2\n  order_type: LIMIT\n", 1)
	require.NoError(t, os.WriteFile(cfg, []byte(limit), 0o600))

	_, err = execute(t, "-c", cfg, "run", "--spot", "23461.35", "--dry-run")
	assert.ErrorContains(t, err, "use MARKET")
}

type stubBook struct {
	entries []smartconnect.OrderBookEntry
	err     error
}

func (b stubBook) OrderBook(context.Context) ([]smartconnect.OrderBookEntry, error) {
	return b.entries, b.err
}

func TestOrderStatuses(t *testing.T) {
	got := orderStatuses(context.Background(), stubBook{entries: []smartconnect.OrderBookEntry{
		{OrderID: "1", OrderTag: "STR-0123abcd-CE", Status: "complete"},
		{OrderID: "2", OrderTag: "STR-0123abcd-PE", Status: "rejected"},
		{OrderID: "3", OrderTag: "other", Status: "open"},
	}})
	assert.Equal(t, map[string]string{"1": "complete", "2": "rejected"}, got)

	assert.Nil(t, orderStatuses(context.Background(), stubBook{err: errors.New("down")}))
}
