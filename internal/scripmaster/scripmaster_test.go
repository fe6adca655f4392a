package scripmaster

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swapnilk30/AlgoTradingSetup01/internal/instrument"
	"github.com/swapnilk30/AlgoTradingSetup01/internal/model"
)

const sampleMaster = `[
 {"token":"99926000","symbol":"Nifty 50","name":"NIFTY","expiry":"","strike":"0.000000","lotsize":"1","instrumenttype":"AMXIDX","exch_seg":"NSE","tick_size":"0.000000"},
 {"token":"35003","symbol":"NIFTY05DEC2423500CE","name":"NIFTY","expiry":"05DEC2024","strike":"2350000.000000","lotsize":"25","instrumenttype":"OPTIDX","exch_seg":"NFO","tick_size":"5.000000"}
]`

func TestDecode(t *testing.T) {
	recs, err := Decode([]byte(sampleMaster))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	tok, ok := recs[1].Get("token")
	assert.True(t, ok)
	assert.Equal(t, "35003", tok)

	_, err = Decode([]byte("  "))
	assert.ErrorIs(t, err, ErrEmptyMaster)
	_, err = Decode([]byte("[]"))
	assert.ErrorIs(t, err, ErrEmptyMaster)
	_, err = Decode([]byte("{not json"))
	assert.Error(t, err)
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(sampleMaster))
	}))
	defer srv.Close()

	body, err := NewHTTPSource(srv.URL+"/master.json", time.Second).Fetch(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, sampleMaster, string(body))

	_, err = NewHTTPSource(srv.URL+"/missing", time.Second).Fetch(context.Background())
	assert.ErrorContains(t, err, "404")
}

func TestSaveFileAndFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "OpenAPIScripMaster.json")
	require.NoError(t, SaveFile(path, []byte(sampleMaster)))

	body, err := (&FileSource{Path: path}).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sampleMaster, string(body))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = (&FileSource{Path: path + ".nope"}).Fetch(context.Background())
	assert.Error(t, err)
}

type stubSource struct {
	body  []byte
	err   error
	calls int
}

func (s *stubSource) Name() string { return "stub" }
func (s *stubSource) Fetch(context.Context) ([]byte, error) {
	s.calls++
	return s.body, s.err
}

type memCache struct {
	body []byte
	at   time.Time
	err  error
}

func (c *memCache) Get(context.Context) ([]byte, time.Time, error) {
	if c.body == nil {
		return nil, time.Time{}, errors.New("miss")
	}
	return c.body, c.at, nil
}

func (c *memCache) Set(_ context.Context, at time.Time, body []byte) error {
	if c.err != nil {
		return c.err
	}
	c.body, c.at = body, at
	return nil
}

type memSnapshots struct {
	body []byte
	at   time.Time
	src  string
}

func (m *memSnapshots) Save(_ context.Context, at time.Time, source string, body []byte) (int64, error) {
	m.body, m.at, m.src = body, at, source
	return 1, nil
}

func (m *memSnapshots) Latest(context.Context) ([]byte, time.Time, error) {
	if m.body == nil {
		return nil, time.Time{}, errors.New("empty")
	}
	return m.body, m.at, nil
}

func TestCachedSource_UpstreamWritesBack(t *testing.T) {
	up := &stubSource{body: []byte(sampleMaster)}
	cache := &memCache{}
	snaps := &memSnapshots{}
	cs := NewCachedSource(up, cache, snaps)

	body, err := cs.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OriginUpstream, cs.LastOrigin())
	assert.Equal(t, sampleMaster, string(body))
	assert.Equal(t, sampleMaster, string(cache.body))
	assert.Equal(t, "stub", snaps.src)

	_, err = cs.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OriginCache, cs.LastOrigin())
	assert.Equal(t, 1, up.calls)
}

func TestCachedSource_CacheWriteFailureIsNotFatal(t *testing.T) {
	cs := NewCachedSource(&stubSource{body: []byte(sampleMaster)}, &memCache{err: errors.New("redis down")}, nil)
	_, err := cs.Fetch(context.Background())
	assert.NoError(t, err)
}

func TestCachedSource_SnapshotFallback(t *testing.T) {
	now := time.Date(2024, 12, 5, 9, 0, 0, 0, time.UTC)
	down := errors.New("connection reset")
	snaps := &memSnapshots{body: []byte(sampleMaster), at: now.Add(-20 * time.Hour)}

	cs := NewCachedSource(&stubSource{err: down}, nil, snaps)
	cs.SetClock(func() time.Time { return now })
	body, err := cs.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OriginSnapshot, cs.LastOrigin())
	assert.Equal(t, sampleMaster, string(body))

	cs.MaxSnapshotAge = 12 * time.Hour
	_, err = cs.Fetch(context.Background())
	assert.ErrorIs(t, err, down)
	assert.ErrorContains(t, err, "older than")
}

func TestCachedSource_InvalidUpstreamBodyFallsBack(t *testing.T) {
	snaps := &memSnapshots{body: []byte(sampleMaster), at: time.Now()}
	cs := NewCachedSource(&stubSource{body: []byte("<html>maintenance</html>")}, nil, snaps)

	_, err := cs.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OriginSnapshot, cs.LastOrigin())
}

// decodes as JSON but fails the catalog build: no token
const tokenlessMaster = `[
 {"symbol":"Nifty 50","name":"NIFTY","expiry":"","strike":"0.000000","lotsize":"1","instrumenttype":"AMXIDX","exch_seg":"NSE","tick_size":"0.000000"}
]`

func TestCachedSource_UnloadableUpstreamIsNotStored(t *testing.T) {
	up := &stubSource{body: []byte(tokenlessMaster)}
	cache := &memCache{}
	snaps := &memSnapshots{}
	cs := NewCachedSource(up, cache, snaps)

	_, _, err := LoadCatalog(context.Background(), cs)
	require.Error(t, err)
	assert.ErrorIs(t, err, instrument.ErrCatalogLoad)
	assert.Nil(t, cache.body)
	assert.Nil(t, snaps.body)

	up.body = []byte(sampleMaster)
	cat, _, err := LoadCatalog(context.Background(), cs)
	require.NoError(t, err)
	assert.Equal(t, 2, cat.Len())
	assert.Equal(t, OriginUpstream, cs.LastOrigin())
	assert.Equal(t, 2, up.calls)
	assert.Equal(t, sampleMaster, string(cache.body))
}

func TestCachedSource_UnloadableCacheIsAMiss(t *testing.T) {
	up := &stubSource{body: []byte(sampleMaster)}
	cache := &memCache{body: []byte(tokenlessMaster), at: time.Now()}
	cs := NewCachedSource(up, cache, nil)

	body, err := cs.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OriginUpstream, cs.LastOrigin())
	assert.Equal(t, sampleMaster, string(body))
	assert.Equal(t, 1, up.calls)
	assert.Equal(t, sampleMaster, string(cache.body))
}

func TestCachedSource_UnloadableSnapshotIsRejected(t *testing.T) {
	down := errors.New("connection reset")
	snaps := &memSnapshots{body: []byte(tokenlessMaster), at: time.Now()}
	cs := NewCachedSource(&stubSource{err: down}, nil, snaps)

	_, err := cs.Fetch(context.Background())
	assert.ErrorIs(t, err, down)
	assert.ErrorContains(t, err, "snapshot rejected")
}

func TestValidateCatalog(t *testing.T) {
	assert.NoError(t, ValidateCatalog()([]byte(sampleMaster)))
	assert.ErrorIs(t, ValidateCatalog()([]byte(tokenlessMaster)), instrument.ErrCatalogLoad)
	assert.Error(t, ValidateCatalog()([]byte("not json")))
	assert.ErrorIs(t, ValidateCatalog(instrument.WithStrikeScale(decimal.Zero))([]byte(sampleMaster)), instrument.ErrCatalogLoad)
}

func TestCachedSource_NoFallback(t *testing.T) {
	down := errors.New("timeout")
	_, err := NewCachedSource(&stubSource{err: down}, nil, nil).Fetch(context.Background())
	assert.ErrorIs(t, err, down)

	_, err = NewCachedSource(&stubSource{err: down}, nil, &memSnapshots{}).Fetch(context.Background())
	assert.ErrorIs(t, err, down)
}

func TestLoadCatalog(t *testing.T) {
	cat, stats, err := LoadCatalog(context.Background(), &stubSource{body: []byte(sampleMaster)})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Rows)
	assert.Equal(t, "stub", stats.Source)

	inst, err := cat.ByToken(model.SegmentNFO, "35003")
	require.NoError(t, err)
	assert.Equal(t, "23500", inst.Strike.String())

	_, _, err = LoadCatalog(context.Background(), &stubSource{body: []byte(`[{"name":"X","exch_seg":"NSE","instrumenttype":""}]`)})
	assert.ErrorIs(t, err, instrument.ErrCatalogLoad)

	_, _, err = LoadCatalog(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoSource)
}
