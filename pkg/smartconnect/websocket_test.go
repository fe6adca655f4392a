package smartconnect

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeTick is the inverse of ParseTick.
func encodeTick(t Tick) []byte {
	b := make([]byte, ltpPacketLen)
	b[0] = byte(t.Mode)
	b[1] = byte(t.ExchangeType)
	copy(b[2:27], t.Token)
	binary.LittleEndian.PutUint64(b[27:35], uint64(t.SequenceNumber))
	binary.LittleEndian.PutUint64(b[35:43], uint64(t.ExchangeTimestamp))
	binary.LittleEndian.PutUint64(b[43:51], uint64(t.LastTradedPrice))
	return b
}

func TestParseTick_RoundTrip(t *testing.T) {
	in := Tick{Mode: ModeLTP, ExchangeType: NSE_CM, Token: "99926000", SequenceNumber: 7, ExchangeTimestamp: 1733380200000, LastTradedPrice: 2346135}
	out, err := ParseTick(encodeTick(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = ParseTick(make([]byte, 10))
	assert.Error(t, err)
}

func TestExchangeType(t *testing.T) {
	et, ok := ExchangeType("NFO")
	assert.True(t, ok)
	assert.Equal(t, NSE_FO, et)

	_, ok = ExchangeType("XYZ")
	assert.False(t, ok)
}

func TestStream_SubscribeAndRead(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotSub := make(chan streamRequest, 1)
	gotUnsub := make(chan streamRequest, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "jwt", r.Header.Get("Authorization"))
		assert.Equal(t, "feed", r.Header.Get("x-feed-token"))

		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		var req streamRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		gotSub <- req

		_ = conn.WriteMessage(websocket.TextMessage, []byte("pong"))
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3})
		_ = conn.WriteMessage(websocket.BinaryMessage, encodeTick(Tick{
			Mode: ModeLTP, ExchangeType: NSE_CM, Token: req.Params.TokenList[0].Tokens[0], LastTradedPrice: 2346135,
		}))
		// hold the connection open until the client closes it
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var next streamRequest
			if json.Unmarshal(msg, &next) == nil && next.Action == UnsubscribeAction {
				gotUnsub <- next
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := DialStream(ctx, StreamConfig{
		AuthToken: "jwt", APIKey: "key", ClientCode: "C1", FeedToken: "feed",
		URL: "ws" + strings.TrimPrefix(srv.URL, "http"),
	})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Subscribe("corr-1", ModeLTP, []TokenListEntry{{ExchangeType: NSE_CM, Tokens: []string{"99926000"}}}))

	sub := <-gotSub
	assert.Equal(t, SubscribeAction, sub.Action)
	assert.Equal(t, ModeLTP, sub.Params.Mode)
	assert.Equal(t, "corr-1", sub.CorrelationID)

	tick, err := s.ReadTick(ctx)
	require.NoError(t, err)
	assert.Equal(t, "99926000", tick.Token)
	assert.Equal(t, int64(2346135), tick.LastTradedPrice)

	require.NoError(t, s.Unsubscribe("corr-1", ModeLTP, []TokenListEntry{{ExchangeType: NSE_CM, Tokens: []string{"99926000"}}}))
	select {
	case unsub := <-gotUnsub:
		assert.Equal(t, "corr-1", unsub.CorrelationID)
		assert.Equal(t, []string{"99926000"}, unsub.Params.TokenList[0].Tokens)
	case <-ctx.Done():
		t.Fatal("unsubscribe not received")
	}

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestStream_DepthQuota(t *testing.T) {
	s := &Stream{}
	tokens := make([]string, QuotaDepthLimit+1)
	err := s.Subscribe("c", ModeDepth, []TokenListEntry{{ExchangeType: NSE_FO, Tokens: tokens}})
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestDialStream_RequiresCredentials(t *testing.T) {
	_, err := DialStream(context.Background(), StreamConfig{APIKey: "k"})
	assert.Error(t, err)
}
