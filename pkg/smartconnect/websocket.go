package smartconnect

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// SmartStream V2 endpoint and protocol constants.
const (
	StreamURL         = "wss://smartapisocket.angelone.in/smart-stream"
	HeartBeatMessage  = "ping"
	HeartBeatInterval = 10 * time.Second
	QuotaDepthLimit   = 50
)

// Subscription action / modes / exchanges
const (
	SubscribeAction   = 1
	UnsubscribeAction = 0

	ModeLTP       = 1
	ModeQuote     = 2
	ModeSnapQuote = 3
	ModeDepth     = 4

	NSE_CM = 1
	NSE_FO = 2
	BSE_CM = 3
	BSE_FO = 4
	MCX_FO = 5
	NCX_FO = 7
	CDE_FO = 13
)

// ltpPacketLen is the size of the header every binary frame starts with.
const ltpPacketLen = 51

// ExchangeType maps a master exch_seg to the stream's exchange type.
func ExchangeType(segment string) (int, bool) {
	switch segment {
	case "NSE":
		return NSE_CM, true
	case "NFO":
		return NSE_FO, true
	case "BSE":
		return BSE_CM, true
	case "BFO":
		return BSE_FO, true
	case "MCX":
		return MCX_FO, true
	case "CDS":
		return CDE_FO, true
	}
	return 0, false
}

// TokenListEntry represents exchangeType + tokens for subscribe/unsubscribe
type TokenListEntry struct {
	ExchangeType int      `json:"exchangeType"`
	Tokens       []string `json:"tokens"`
}

type streamRequest struct {
	CorrelationID string       `json:"correlationID,omitempty"`
	Action        int          `json:"action"`
	Params        streamParams `json:"params"`
}

type streamParams struct {
	Mode      int              `json:"mode"`
	TokenList []TokenListEntry `json:"tokenList"`
}

// Tick is the common header of a binary market data frame.
// LastTradedPrice is in paise.
type Tick struct {
	Mode              int
	ExchangeType      int
	Token             string
	SequenceNumber    int64
	ExchangeTimestamp int64
	LastTradedPrice   int64
}

// StreamConfig identifies the session the feed authenticates with.
type StreamConfig struct {
	AuthToken  string
	APIKey     string
	ClientCode string
	FeedToken  string
	URL        string // default StreamURL
}

// Stream is a SmartStream V2 connection. ReadTick must be called from one
// goroutine; writes are serialized internally.
type Stream struct {
	cfg  StreamConfig
	conn *websocket.Conn

	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
}

// DialStream connects and starts the heartbeat.
func DialStream(ctx context.Context, cfg StreamConfig) (*Stream, error) {
	if cfg.AuthToken == "" || cfg.APIKey == "" || cfg.ClientCode == "" || cfg.FeedToken == "" {
		return nil, errors.New("smartstream: auth token, api key, client code and feed token are required")
	}
	if cfg.URL == "" {
		cfg.URL = StreamURL
	}

	header := http.Header{}
	header.Add("Authorization", cfg.AuthToken)
	header.Add("x-api-key", cfg.APIKey)
	header.Add("x-client-code", cfg.ClientCode)
	header.Add("x-feed-token", cfg.FeedToken)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("smartstream: dial: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("smartstream: dial: %w", err)
	}
	slog.Info("smartstream: connected", "url", cfg.URL)

	s := &Stream{cfg: cfg, conn: conn, done: make(chan struct{})}
	go s.heartbeatLoop()
	return s, nil
}

// Subscribe requests ticks for tokenList in mode.
func (s *Stream) Subscribe(correlationID string, mode int, tokenList []TokenListEntry) error {
	if mode == ModeDepth {
		total := 0
		for _, t := range tokenList {
			total += len(t.Tokens)
		}
		if total > QuotaDepthLimit {
			return fmt.Errorf("smartstream: quota exceeded: you can subscribe to a maximum of %d tokens only", QuotaDepthLimit)
		}
	}
	return s.writeJSON(streamRequest{
		CorrelationID: correlationID,
		Action:        SubscribeAction,
		Params:        streamParams{Mode: mode, TokenList: tokenList},
	})
}

// Unsubscribe stops ticks for tokenList in mode.
func (s *Stream) Unsubscribe(correlationID string, mode int, tokenList []TokenListEntry) error {
	return s.writeJSON(streamRequest{
		CorrelationID: correlationID,
		Action:        UnsubscribeAction,
		Params:        streamParams{Mode: mode, TokenList: tokenList},
	})
}

func (s *Stream) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

// ReadTick blocks until the next binary frame arrives, skipping text frames
// such as "pong". ctx cancellation closes the connection.
func (s *Stream) ReadTick(ctx context.Context) (Tick, error) {
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	for {
		mt, msg, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return Tick{}, ctx.Err()
			}
			return Tick{}, fmt.Errorf("smartstream: read: %w", err)
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		tick, err := ParseTick(msg)
		if err != nil {
			slog.Warn("smartstream: bad frame", "error", err, "len", len(msg))
			continue
		}
		return tick, nil
	}
}

// Close stops the heartbeat and closes the connection. Safe to call twice.
func (s *Stream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

// heartbeatLoop sends the text "ping" the server expects.
func (s *Stream) heartbeatLoop() {
	ticker := time.NewTicker(HeartBeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteMessage(websocket.TextMessage, []byte(HeartBeatMessage))
			s.writeMu.Unlock()
			if err != nil {
				slog.Warn("smartstream: ping write error", "error", err)
				return
			}
		}
	}
}

// ParseTick decodes the little-endian header shared by every mode:
// mode(1) exchange(1) token(25, NUL padded) seq(8) exch_ts(8) ltp(8).
func ParseTick(b []byte) (Tick, error) {
	if len(b) < ltpPacketLen {
		return Tick{}, fmt.Errorf("binary payload too short: %d bytes", len(b))
	}
	return Tick{
		Mode:              int(b[0]),
		ExchangeType:      int(b[1]),
		Token:             parseTokenValue(b[2:27]),
		SequenceNumber:    int64(binary.LittleEndian.Uint64(b[27:35])),
		ExchangeTimestamp: int64(binary.LittleEndian.Uint64(b[35:43])),
		LastTradedPrice:   int64(binary.LittleEndian.Uint64(b[43:51])),
	}, nil
}

func parseTokenValue(b []byte) string {
	for i := 0; i < len(b); i++ {
		if b[i] == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
