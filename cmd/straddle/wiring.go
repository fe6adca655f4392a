package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/swapnilk30/AlgoTradingSetup01/internal/instrument"
	"github.com/swapnilk30/AlgoTradingSetup01/internal/model"
	"github.com/swapnilk30/AlgoTradingSetup01/internal/notification"
	"github.com/swapnilk30/AlgoTradingSetup01/internal/scripmaster"
	redisstore "github.com/swapnilk30/AlgoTradingSetup01/internal/store/redis"
	sqlitestore "github.com/swapnilk30/AlgoTradingSetup01/internal/store/sqlite"
	"github.com/swapnilk30/AlgoTradingSetup01/pkg/smartconnect"
)

// stores are the optional master stores; either may be nil.
type stores struct {
	cache     *redisstore.MasterCache
	snapshots *sqlitestore.SnapshotStore
}

func (s *stores) Close() {
	if s.cache != nil {
		s.cache.Close()
	}
	if s.snapshots != nil {
		s.snapshots.Close()
	}
}

// openStores connects the configured stores. A store that cannot be opened
// is logged and skipped.
func (a *app) openStores() *stores {
	m := a.cfg.Master
	st := &stores{}
	if m.RedisAddr != "" {
		c, err := redisstore.New(redisstore.WriterConfig{
			Addr: m.RedisAddr, Password: m.RedisPassword, DB: m.RedisDB, TTL: m.RedisTTL,
		})
		if err != nil {
			slog.Warn("straddle: redis cache disabled", "addr", m.RedisAddr, "error", err)
		} else {
			st.cache = c
		}
	}
	if m.SQLitePath != "" {
		s, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: m.SQLitePath, Keep: m.SnapshotKeep})
		if err != nil {
			slog.Warn("straddle: sqlite snapshots disabled", "path", m.SQLitePath, "error", err)
		} else {
			st.snapshots = s
		}
	}
	return st
}

func (a *app) upstream() scripmaster.Source {
	if a.cfg.Master.File != "" {
		return &scripmaster.FileSource{Path: a.cfg.Master.File}
	}
	return scripmaster.NewHTTPSource(a.cfg.Master.URL, a.cfg.Master.Timeout)
}

// masterSource layers the cache and snapshots over the upstream source.
// A local file is read as is.
func (a *app) masterSource(st *stores) scripmaster.Source {
	up := a.upstream()
	if a.cfg.Master.File != "" {
		return up
	}
	cs := scripmaster.NewCachedSource(up, nil, nil)
	cs.Validate = scripmaster.ValidateCatalog(a.catalogOptions()...)
	if st.cache != nil {
		cs.Cache = st.cache
	}
	if st.snapshots != nil {
		cs.Snapshots = st.snapshots
	}
	cs.MaxSnapshotAge = a.cfg.Master.MaxSnapshotAge
	return cs
}

func (a *app) catalogOptions() []instrument.Option {
	return []instrument.Option{instrument.WithStrikeScale(decimal.NewFromInt(a.cfg.Master.StrikeScale))}
}

// catalogLoad is one catalog build and where its master came from.
type catalogLoad struct {
	catalog *instrument.Catalog
	stats   scripmaster.LoadStats
	origin  string
}

func (a *app) loadCatalog(ctx context.Context, st *stores) (*catalogLoad, error) {
	src := a.masterSource(st)
	cat, stats, err := scripmaster.LoadCatalog(ctx, src, a.catalogOptions()...)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	origin := src.Name()
	if cs, ok := src.(*scripmaster.CachedSource); ok {
		origin = string(cs.LastOrigin())
	}
	return &catalogLoad{catalog: cat, stats: stats, origin: origin}, nil
}

func (a *app) newClient() *smartconnect.SmartConnect {
	b := a.cfg.Broker
	return smartconnect.New(smartconnect.Config{
		APIKey:      b.APIKey,
		RootURL:     b.RootURL,
		Timeout:     b.Timeout,
		PublicIPURL: b.PublicIPURL,
	})
}

func (a *app) notifier() notification.Notifier {
	n := a.cfg.Notify
	out := notification.Multi{notification.NewLogNotifier()}
	if n.TelegramToken != "" {
		out = append(out, notification.NewTelegramNotifier(n.TelegramToken, n.TelegramChatID, n.TelegramURL))
	}
	if n.WebhookURL != "" {
		out = append(out, notification.NewWebhookNotifier(n.WebhookURL))
	}
	return out
}

// fixedQuotes answers every LTP with one price. It backs offline paper
// runs started with --spot.
type fixedQuotes struct {
	price decimal.Decimal
}

func (q fixedQuotes) LTP(context.Context, model.Instrument) (decimal.Decimal, error) {
	return q.price, nil
}

// timeoutQuotes bounds each LTP call; the stream source otherwise waits for
// the first matching tick indefinitely.
type timeoutQuotes struct {
	next interface {
		LTP(ctx context.Context, inst model.Instrument) (decimal.Decimal, error)
	}
	timeout time.Duration
}

func (q timeoutQuotes) LTP(ctx context.Context, inst model.Instrument) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	return q.next.LTP(ctx, inst)
}
