package scripmaster

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/swapnilk30/AlgoTradingSetup01/internal/instrument"
)

// ErrNoSource is returned by LoadCatalog when called with a nil source.
var ErrNoSource = errors.New("scripmaster: no source")

// LoadStats describes one catalog build.
type LoadStats struct {
	Source   string
	Bytes    int
	Rows     int
	Duration time.Duration
}

// ValidateCatalog returns a check that body decodes and builds a catalog
// with opts. CachedSource uses it so a master that would fail LoadCatalog is
// never served from, or written to, the cache and snapshot stores.
func ValidateCatalog(opts ...instrument.Option) func(body []byte) error {
	return func(body []byte) error {
		recs, err := Decode(body)
		if err != nil {
			return err
		}
		_, err = instrument.Load(recs, opts...)
		return err
	}
}

// LoadCatalog fetches, decodes and indexes the master in one step.
func LoadCatalog(ctx context.Context, src Source, opts ...instrument.Option) (*instrument.Catalog, LoadStats, error) {
	if src == nil {
		return nil, LoadStats{}, ErrNoSource
	}
	start := time.Now()
	stats := LoadStats{Source: src.Name()}

	body, err := src.Fetch(ctx)
	if err != nil {
		return nil, stats, err
	}
	stats.Bytes = len(body)

	recs, err := Decode(body)
	if err != nil {
		return nil, stats, err
	}
	cat, err := instrument.Load(recs, opts...)
	if err != nil {
		return nil, stats, err
	}

	stats.Rows = cat.Len()
	stats.Duration = time.Since(start)
	slog.Info("scripmaster: catalog loaded",
		"source", stats.Source, "rows", stats.Rows, "bytes", stats.Bytes, "took", stats.Duration.String())
	return cat, stats, nil
}
