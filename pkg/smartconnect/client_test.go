package smartconnect

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler) *SmartConnect {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{
		APIKey:         "key",
		RootURL:        srv.URL,
		ClientPublicIP: "10.0.0.1",
		ClientLocalIP:  "10.0.0.2",
		ClientMAC:      "aa:bb:cc:dd:ee:ff",
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestGenerateSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(routes["api.login"], func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "key", r.Header.Get("X-PrivateKey"))
		assert.Equal(t, "10.0.0.1", r.Header.Get("X-ClientPublicIP"))
		assert.Empty(t, r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "C123", body["clientcode"])
		assert.Equal(t, "123456", body["totp"])

		writeJSON(w, map[string]any{
			"status": true, "message": "SUCCESS",
			"data": map[string]string{"jwtToken": "Bearer jwt-1", "refreshToken": "rt-1", "feedToken": "ft-1"},
		})
	})
	mux.HandleFunc(routes["api.user.profile"], func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer jwt-1", r.Header.Get("Authorization"))
		assert.Equal(t, "rt-1", r.URL.Query().Get("refreshToken"))
		writeJSON(w, map[string]any{
			"status": true,
			"data":   map[string]any{"clientcode": "C123", "name": "Test", "exchanges": []string{"NSE", "NFO"}},
		})
	})

	sc := newTestClient(t, mux)
	sess, err := sc.GenerateSession(context.Background(), "C123", "1111", "123456")
	require.NoError(t, err)

	assert.Equal(t, "jwt-1", sess.JWT)
	assert.Equal(t, "ft-1", sess.Feed)
	assert.Equal(t, []string{"NSE", "NFO"}, sess.Profile.Exchanges)
	assert.Equal(t, "jwt-1", sc.AccessToken())
	assert.Equal(t, "ft-1", sc.FeedToken())
	assert.Equal(t, "C123", sc.UserID())
}

func TestGenerateSession_Rejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(routes["api.login"], func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"status": false, "message": "Invalid totp", "errorcode": "AB1050", "data": nil})
	})
	sc := newTestClient(t, mux)

	_, err := sc.GenerateSession(context.Background(), "C123", "1111", "000000")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "AB1050", apiErr.ErrorCode)
	assert.Contains(t, err.Error(), "Invalid totp")
}

func TestLTP(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(routes["api.ltp.data"], func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "NSE", body["exchange"])
		assert.Equal(t, "99926000", body["symboltoken"])
		_, _ = w.Write([]byte(`{"status":true,"message":"SUCCESS","data":{"exchange":"NSE","tradingsymbol":"Nifty 50","symboltoken":"99926000","ltp":23461.35,"close":23400}}`))
	})
	sc := newTestClient(t, mux)

	d, err := sc.LTP(context.Background(), "NSE", "Nifty 50", "99926000")
	require.NoError(t, err)
	assert.Equal(t, "23461.35", d.LTP.String())
}

func TestPlaceOrder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(routes["api.order.place"], func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "SELL", body["transactiontype"])
		_, hasNil := body["ordertag"]
		assert.False(t, hasNil)
		writeJSON(w, map[string]any{"status": true, "data": map[string]string{"orderid": "241205000001", "uniqueorderid": "u-1"}})
	})
	sc := newTestClient(t, mux)

	id, err := sc.PlaceOrder(context.Background(), map[string]any{"transactiontype": "SELL", "ordertag": nil})
	require.NoError(t, err)
	assert.Equal(t, "241205000001", id)
}

func TestTokenExpiryHook(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(routes["api.order.book"], func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		writeJSON(w, map[string]any{"error_type": "TokenException", "message": "Invalid Token"})
	})
	sc := newTestClient(t, mux)
	called := false
	sc.SessionExpiryHook = func() { called = true }

	_, err := sc.OrderBook(context.Background())
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.True(t, called)
}

func TestPublicIPLookupIsLazy(t *testing.T) {
	hits := 0
	ipSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte("203.0.113.7\n"))
	}))
	defer ipSrv.Close()

	var seen []string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("X-ClientPublicIP"))
		writeJSON(w, map[string]any{"status": true, "data": []any{}})
	}))
	defer api.Close()

	sc := New(Config{APIKey: "k", RootURL: api.URL, PublicIPURL: ipSrv.URL})
	assert.Equal(t, 0, hits)

	_, err := sc.OrderBook(context.Background())
	require.NoError(t, err)
	_, err = sc.OrderBook(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, hits)
	assert.Equal(t, []string{"203.0.113.7", "203.0.113.7"}, seen)
}

func TestTerminateSession(t *testing.T) {
	var got map[string]string
	mux := http.NewServeMux()
	mux.HandleFunc(routes["api.logout"], func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, map[string]any{"status": true, "message": "SUCCESS", "data": ""})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	sc := New(Config{APIKey: "key", RootURL: srv.URL, UserID: "C123", AccessToken: "jwt", PublicIPURL: "-"})
	require.NoError(t, sc.TerminateSession(context.Background()))
	assert.Equal(t, "C123", got["clientcode"])
}

func TestOrderBook(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(routes["api.order.book"], func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"status":true,"data":[{"orderid":"241205000001","tradingsymbol":"NIFTY05DEC2423500CE","status":"rejected","text":"margin","quantity":"50","ordertag":"STR-0123abcd-CE"}]}`))
	})
	sc := newTestClient(t, mux)

	book, err := sc.OrderBook(context.Background())
	require.NoError(t, err)
	require.Len(t, book, 1)
	assert.Equal(t, "241205000001", book[0].OrderID)
	assert.Equal(t, "rejected", book[0].Status)
	assert.Equal(t, "STR-0123abcd-CE", book[0].OrderTag)
	assert.Equal(t, "50", book[0].Quantity.String())
}
