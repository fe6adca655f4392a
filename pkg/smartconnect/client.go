// Package smartconnect is a small Angel One SmartAPI client covering what the
// straddle engine needs: password+TOTP login, token renewal, profile, LTP
// quotes and order placement, plus the WebSocket V2 market feed.
//
// Usage example:
//
//	sc := smartconnect.New(smartconnect.Config{APIKey: "your_api_key"})
//	sess, err := sc.GenerateSession(ctx, "CLIENTID", "PIN", totpCode)
//	if err != nil { return err }
//	ltp, err := sc.LTP(ctx, "NSE", "Nifty 50", "99926000")
package smartconnect

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ---- Config & client ----

type Config struct {
	APIKey       string
	AccessToken  string
	RefreshToken string
	FeedToken    string
	UserID       string

	RootURL        string        // default: https://apiconnect.angelone.in
	Timeout        time.Duration // default: 7s
	ProxyURL       string        // optional HTTP proxy URL
	DisableSSL     bool          // if true, InsecureSkipVerify
	UserType       string        // default: USER
	SourceID       string        // default: WEB
	ClientPublicIP string        // default: resolved lazily via PublicIPURL
	ClientLocalIP  string        // default: first non-loopback IPv4
	ClientMAC      string        // default: first interface MAC
	PublicIPURL    string        // default: https://api.ipify.org?format=text; "-" disables lookup

	HTTPClient *http.Client // overrides Timeout/ProxyURL/DisableSSL when set
}

type SmartConnect struct {
	apiKey  string
	rootURL string

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	feedToken    string
	userID       string

	httpClient *http.Client

	userType string
	sourceID string

	ipOnce         sync.Once
	publicIPURL    string
	clientPublicIP string
	clientLocalIP  string
	clientMAC      string

	// Optional callback for 403 TokenException
	SessionExpiryHook func()
}

const (
	defaultRoot     = "https://apiconnect.angelone.in"
	defaultPublicIP = "https://api.ipify.org?format=text"
	fallbackIP      = "106.193.147.98"
)

var routes = map[string]string{
	"api.login":        "/rest/auth/angelbroking/user/v1/loginByPassword",
	"api.logout":       "/rest/secure/angelbroking/user/v1/logout",
	"api.user.profile": "/rest/secure/angelbroking/user/v1/getProfile",

	"api.order.place": "/rest/secure/angelbroking/order/v1/placeOrder",
	"api.order.book":  "/rest/secure/angelbroking/order/v1/getOrderBook",

	"api.ltp.data": "/rest/secure/angelbroking/order/v1/getLtpData",
}

// APIError is a SmartAPI response with status=false or an error_type.
type APIError struct {
	StatusCode int
	ErrorCode  string
	Message    string
}

func (e *APIError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("smartapi: %s: %s (http %d)", e.ErrorCode, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("smartapi: %s (http %d)", e.Message, e.StatusCode)
}

// ErrTokenExpired is wrapped when the broker rejects the JWT.
var ErrTokenExpired = errors.New("smartapi: session token expired")

// New initializes the client. No network calls are made here.
func New(cfg Config) *SmartConnect {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	if cfg.UserType == "" {
		cfg.UserType = "USER"
	}
	if cfg.SourceID == "" {
		cfg.SourceID = "WEB"
	}
	if cfg.PublicIPURL == "" {
		cfg.PublicIPURL = defaultPublicIP
	}
	if cfg.ClientLocalIP == "" {
		ip, err := LocalIP()
		if err != nil {
			slog.Warn("smartconnect: local ip", "error", err)
		}
		cfg.ClientLocalIP = firstNonEmpty(ip, "127.0.0.1")
	}
	if cfg.ClientMAC == "" {
		cfg.ClientMAC = macAddress()
	}

	client := cfg.HTTPClient
	if client == nil {
		tr := &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion:         tls.VersionTLS12,
				InsecureSkipVerify: cfg.DisableSSL,
			},
		}
		if cfg.ProxyURL != "" {
			if purl, err := url.Parse(cfg.ProxyURL); err == nil {
				tr.Proxy = http.ProxyURL(purl)
			}
		}
		client = &http.Client{Transport: tr, Timeout: cfg.Timeout}
	}

	return &SmartConnect{
		apiKey:         cfg.APIKey,
		rootURL:        strings.TrimRight(cfg.RootURL, "/"),
		accessToken:    cfg.AccessToken,
		refreshToken:   cfg.RefreshToken,
		feedToken:      cfg.FeedToken,
		userID:         cfg.UserID,
		httpClient:     client,
		userType:       cfg.UserType,
		sourceID:       cfg.SourceID,
		publicIPURL:    cfg.PublicIPURL,
		clientPublicIP: cfg.ClientPublicIP,
		clientLocalIP:  cfg.ClientLocalIP,
		clientMAC:      cfg.ClientMAC,
	}
}

// PublicIP fetches the caller's public IP from url.
func PublicIP(ctx context.Context, client *http.Client, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	ip, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(ip)), nil
}

// LocalIP finds the first non-loopback IPv4 address.
func LocalIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}

	for _, address := range addrs {
		if ipNet, ok := address.(*net.IPNet); ok && !ipNet.IP.IsLoopback() {
			if ipNet.IP.To4() != nil {
				return ipNet.IP.String(), nil
			}
		}
	}
	return "", fmt.Errorf("no local IP found")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func macAddress() string {
	ifs, _ := net.Interfaces()
	for _, ifc := range ifs {
		if len(ifc.HardwareAddr) > 0 {
			return ifc.HardwareAddr.String()
		}
	}
	return "00:11:22:33:44:55"
}

// ---- Helpers ----

func (sc *SmartConnect) resolvePublicIP(ctx context.Context) string {
	sc.ipOnce.Do(func() {
		if sc.clientPublicIP != "" {
			return
		}
		if sc.publicIPURL == "-" {
			sc.clientPublicIP = fallbackIP
			return
		}
		ip, err := PublicIP(ctx, sc.httpClient, sc.publicIPURL)
		if err != nil || net.ParseIP(ip) == nil {
			slog.Warn("smartconnect: public ip lookup failed, using fallback", "error", err)
			ip = fallbackIP
		}
		sc.clientPublicIP = ip
	})
	return sc.clientPublicIP
}

func (sc *SmartConnect) requestHeaders(ctx context.Context) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("X-ClientLocalIP", sc.clientLocalIP)
	h.Set("X-ClientPublicIP", sc.resolvePublicIP(ctx))
	h.Set("X-MACAddress", sc.clientMAC)
	h.Set("X-PrivateKey", sc.apiKey)
	h.Set("X-UserType", sc.userType)
	h.Set("X-SourceID", sc.sourceID)
	if tok := sc.AccessToken(); tok != "" {
		h.Set("Authorization", "Bearer "+tok)
	}
	return h
}

// envelope is the common SmartAPI response shape.
type envelope struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	ErrorType string          `json:"error_type"`
	Data      json.RawMessage `json:"data"`
}

// do sends params as JSON (POST) or query string (GET) and decodes the
// envelope's data into out when out is non-nil.
func (sc *SmartConnect) do(ctx context.Context, method, route string, params map[string]any, out any) error {
	uri, ok := routes[route]
	if !ok {
		return fmt.Errorf("smartapi: unknown route: %s", route)
	}
	reqURL := sc.rootURL + uri

	var body io.Reader
	if method == http.MethodGet {
		if len(params) > 0 {
			q := url.Values{}
			for k, v := range params {
				q.Set(k, fmt.Sprint(v))
			}
			reqURL += "?" + q.Encode()
		}
	} else {
		if params == nil {
			params = map[string]any{}
		}
		b, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("smartapi: encode %s: %w", route, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return err
	}
	req.Header = sc.requestHeaders(ctx)

	slog.Debug("smartconnect: request", "method", method, "route", route)

	resp, err := sc.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("smartapi: %s %s: %w", method, route, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("smartapi: read %s: %w", route, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("smartapi: couldn't parse %s response (http %d): %w", route, resp.StatusCode, err)
	}

	if env.ErrorType != "" {
		apiErr := &APIError{StatusCode: resp.StatusCode, ErrorCode: env.ErrorType, Message: env.Message}
		if resp.StatusCode == http.StatusForbidden && env.ErrorType == "TokenException" {
			if sc.SessionExpiryHook != nil {
				sc.SessionExpiryHook()
			}
			return fmt.Errorf("%w: %w", ErrTokenExpired, apiErr)
		}
		return apiErr
	}
	if !env.Status || resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, ErrorCode: env.ErrorCode, Message: firstNonEmpty(env.Message, http.StatusText(resp.StatusCode))}
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("smartapi: decode %s data: %w", route, err)
		}
	}
	return nil
}

// ---- Setters/Getters ----

func (sc *SmartConnect) AccessToken() string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.accessToken
}

func (sc *SmartConnect) FeedToken() string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.feedToken
}

func (sc *SmartConnect) UserID() string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.userID
}

func (sc *SmartConnect) APIKey() string { return sc.apiKey }

func (sc *SmartConnect) setTokens(t Tokens) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if t.JWT != "" {
		sc.accessToken = t.JWT
	}
	if t.Refresh != "" {
		sc.refreshToken = t.Refresh
	}
	if t.Feed != "" {
		sc.feedToken = t.Feed
	}
}

// ---- Session ----

// Tokens is the token set returned by login and renewal.
type Tokens struct {
	JWT     string `json:"jwtToken"`
	Refresh string `json:"refreshToken"`
	Feed    string `json:"feedToken"`
}

// Profile is the subset of getProfile the engine uses.
type Profile struct {
	ClientCode string   `json:"clientcode"`
	Name       string   `json:"name"`
	Exchanges  []string `json:"exchanges"`
	Products   []string `json:"products"`
}

// Session is the outcome of GenerateSession.
type Session struct {
	Tokens
	Profile Profile
}

// GenerateSession logs in with client code, PIN and TOTP, stores the tokens
// on the client and returns them with the user profile.
func (sc *SmartConnect) GenerateSession(ctx context.Context, clientCode, password, totp string) (*Session, error) {
	slog.Info("smartconnect: generating session", "client_code", clientCode)

	var tok Tokens
	params := map[string]any{"clientcode": clientCode, "password": password, "totp": totp}
	if err := sc.do(ctx, http.MethodPost, "api.login", params, &tok); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if tok.JWT == "" {
		return nil, errors.New("login: response carried no jwtToken")
	}
	tok.JWT = strings.TrimPrefix(tok.JWT, "Bearer ")
	sc.setTokens(tok)

	prof, err := sc.GetProfile(ctx)
	if err != nil {
		return nil, err
	}
	sc.mu.Lock()
	sc.userID = firstNonEmpty(prof.ClientCode, clientCode)
	sc.mu.Unlock()

	return &Session{Tokens: tok, Profile: *prof}, nil
}

// GetProfile returns the logged-in user's profile.
func (sc *SmartConnect) GetProfile(ctx context.Context) (*Profile, error) {
	sc.mu.RLock()
	rt := sc.refreshToken
	sc.mu.RUnlock()

	var p Profile
	if err := sc.do(ctx, http.MethodGet, "api.user.profile", map[string]any{"refreshToken": rt}, &p); err != nil {
		return nil, fmt.Errorf("profile: %w", err)
	}
	return &p, nil
}

// TerminateSession logs the client out.
func (sc *SmartConnect) TerminateSession(ctx context.Context) error {
	if err := sc.do(ctx, http.MethodPost, "api.logout", map[string]any{"clientcode": sc.UserID()}, nil); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// ---- Market data ----

// LTPData is the getLtpData payload. Prices are in rupees.
type LTPData struct {
	Exchange      string      `json:"exchange"`
	TradingSymbol string      `json:"tradingsymbol"`
	SymbolToken   string      `json:"symboltoken"`
	Open          json.Number `json:"open"`
	High          json.Number `json:"high"`
	Low           json.Number `json:"low"`
	Close         json.Number `json:"close"`
	LTP           json.Number `json:"ltp"`
}

// LTP returns the last traded price of one instrument.
func (sc *SmartConnect) LTP(ctx context.Context, exchange, tradingSymbol, token string) (*LTPData, error) {
	var d LTPData
	params := map[string]any{"exchange": exchange, "tradingsymbol": tradingSymbol, "symboltoken": token}
	if err := sc.do(ctx, http.MethodPost, "api.ltp.data", params, &d); err != nil {
		return nil, fmt.Errorf("ltp %s:%s: %w", exchange, token, err)
	}
	if d.LTP == "" {
		return nil, fmt.Errorf("ltp %s:%s: empty price", exchange, token)
	}
	return &d, nil
}

// ---- Orders ----

// PlaceOrder submits params (SmartAPI field names) and returns the order id.
func (sc *SmartConnect) PlaceOrder(ctx context.Context, params map[string]any) (string, error) {
	cleanNil(params)
	var data struct {
		OrderID       string `json:"orderid"`
		UniqueOrderID string `json:"uniqueorderid"`
	}
	if err := sc.do(ctx, http.MethodPost, "api.order.place", params, &data); err != nil {
		return "", fmt.Errorf("place order: %w", err)
	}
	if data.OrderID == "" {
		return "", errors.New("place order: response carried no orderid")
	}
	return data.OrderID, nil
}

// OrderBookEntry is the subset of an order book row the engine reports on.
type OrderBookEntry struct {
	OrderID       string      `json:"orderid"`
	TradingSymbol string      `json:"tradingsymbol"`
	Status        string      `json:"status"`
	Text          string      `json:"text"`
	Quantity      json.Number `json:"quantity"`
	OrderTag      string      `json:"ordertag"`
}

// OrderBook returns the day's orders.
func (sc *SmartConnect) OrderBook(ctx context.Context) ([]OrderBookEntry, error) {
	var out []OrderBookEntry
	if err := sc.do(ctx, http.MethodGet, "api.order.book", nil, &out); err != nil {
		return nil, fmt.Errorf("order book: %w", err)
	}
	return out, nil
}

// ---- Utils ----

func cleanNil(m map[string]any) {
	for k, v := range m {
		if v == nil {
			delete(m, k)
		}
	}
}
