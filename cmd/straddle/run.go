package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/swapnilk30/AlgoTradingSetup01/config"
	"github.com/swapnilk30/AlgoTradingSetup01/internal/api"
	"github.com/swapnilk30/AlgoTradingSetup01/internal/broker"
	"github.com/swapnilk30/AlgoTradingSetup01/internal/execution"
	"github.com/swapnilk30/AlgoTradingSetup01/internal/instrument"
	"github.com/swapnilk30/AlgoTradingSetup01/internal/logger"
	"github.com/swapnilk30/AlgoTradingSetup01/internal/markethours"
	"github.com/swapnilk30/AlgoTradingSetup01/internal/metrics"
	"github.com/swapnilk30/AlgoTradingSetup01/internal/model"
	"github.com/swapnilk30/AlgoTradingSetup01/internal/notification"
	"github.com/swapnilk30/AlgoTradingSetup01/internal/risk"
	"github.com/swapnilk30/AlgoTradingSetup01/internal/strategy"
	"github.com/swapnilk30/AlgoTradingSetup01/pkg/smartconnect"
)

const quoteTimeout = 15 * time.Second

type runOptions struct {
	dryRun bool
	force  bool
	spot   string
	now    func() time.Time
}

func newRunCmd(a *app) *cobra.Command {
	opts := runOptions{now: time.Now}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Place one ATM straddle",
		Long: `Loads the scrip master, logs in, quotes the underlying index, derives the
ATM strike and submits the CE and PE legs. In paper mode orders are recorded
locally instead of being sent to the exchange.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Resolve and build both legs without submitting")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Enter even when the market is closed")
	cmd.Flags().StringVar(&opts.spot, "spot", "", "Use this spot price instead of a broker quote (paper mode only)")
	return cmd
}

func (a *app) run(ctx context.Context, out io.Writer, opts runOptions) error {
	cfg := a.cfg
	live := cfg.Broker.Mode == config.ModeLive

	var fixedSpot decimal.Decimal
	if opts.spot != "" {
		if live {
			return errors.New("--spot is only allowed in paper mode")
		}
		px, err := decimal.NewFromString(opts.spot)
		if err != nil {
			return fmt.Errorf("--spot: %w", err)
		}
		fixedSpot = px
	}
	needSession := opts.spot == ""
	if needSession {
		if err := cfg.ValidateLive(); err != nil {
			return err
		}
	}

	cal, err := markethours.NewCalendar(cfg.Market.Holidays)
	if err != nil {
		return err
	}
	now := opts.now()
	if live && !opts.dryRun && cfg.Market.EnforceHours && !opts.force && !cal.IsMarketOpen(now) {
		return fmt.Errorf("%s; pass --force to enter anyway", cal.StatusString(now))
	}

	sc, err := cfg.Straddle.Strategy()
	if err != nil {
		return err
	}
	if !needSession && sc.OrderType.RequiresPrice() {
		return fmt.Errorf("--spot only quotes the index; order type %s needs option prices, use MARKET", sc.OrderType)
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	health := metrics.NewHealthStatus()
	lookups := &api.Handler{}
	if cfg.Metrics.Addr != "" {
		srv := metrics.NewServer(cfg.Metrics.Addr, health, reg, api.NewRouter(lookups))
		if err := srv.Start(); err != nil {
			slog.Warn("straddle: metrics server not started", "addr", cfg.Metrics.Addr, "error", err)
		} else {
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Stop(stopCtx)
			}()
		}
	}

	notifier := a.notifier()
	st := a.openStores()
	defer st.Close()
	if st.cache != nil {
		health.CheckRedis(ctx, st.cache)
	}
	if st.snapshots != nil {
		health.CheckSQLite(ctx, st.snapshots)
	}

	// the master download and the login are independent
	var (
		load     *catalogLoad
		client   *smartconnect.SmartConnect
		sess     *broker.Session
		loggedIn bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		l, err := a.loadCatalog(gctx, st)
		if err != nil {
			return err
		}
		load = l
		m.ObserveCatalog(l.stats.Rows, l.stats.Duration, l.origin)
		health.SetCatalog(l.catalog.Len(), l.catalog.LoadedAt())
		return nil
	})
	if needSession {
		client = a.newClient()
		sess = broker.NewSession(client, broker.Credentials{
			ClientCode: cfg.Broker.ClientCode,
			PIN:        cfg.Broker.Password,
			TOTPSecret: cfg.Broker.TOTPSecret,
		})
		sess.OnLogin = func(err error) {
			m.ObserveLogin(err)
			health.SetSessionOK(err == nil)
			notification.SendBestEffort(ctx, notifier, notification.LoginAlert(cfg.Broker.ClientCode, err))
		}
		g.Go(func() error {
			if _, err := sess.Login(gctx); err != nil {
				return err
			}
			loggedIn = true
			return nil
		})
		// runs after g.Wait, so loggedIn is settled
		defer func() {
			if !loggedIn {
				return
			}
			logoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := sess.Logout(logoutCtx); err != nil {
				slog.Warn("straddle: logout failed", "error", err)
			}
		}()
	} else {
		health.SetSessionOK(true)
	}
	if err := g.Wait(); err != nil {
		return err
	}

	resolver := instrument.NewResolver(load.catalog)
	resolver.OnResolve = m.ObserveResolve
	lookups.SetResolver(resolver)

	breakerSettings := broker.DefaultCircuitBreakerSettings()
	breakerSettings.OnStateChange = m.ObserveBreaker

	var quotes broker.QuoteSource
	switch {
	case !needSession:
		quotes = fixedQuotes{price: fixedSpot}
	case cfg.Straddle.Quotes == config.QuotesStream:
		quotes = timeoutQuotes{
			next: broker.NewStreamQuotes(broker.DialSmartStream(smartconnect.StreamConfig{
				AuthToken:  client.AccessToken(),
				APIKey:     client.APIKey(),
				ClientCode: client.UserID(),
				FeedToken:  client.FeedToken(),
				URL:        cfg.Broker.StreamURL,
			})),
			timeout: quoteTimeout,
		}
	default:
		quotes = broker.NewRESTQuotes(client)
	}
	quotes = broker.NewCircuitBreakerQuotes(quotes, breakerSettings)

	var orders broker.OrderSubmitter
	var paper *execution.PaperSubmitter
	if live {
		orders = broker.NewCircuitBreakerOrders(broker.NewSmartOrders(client), breakerSettings)
	} else {
		paper = execution.NewPaperSubmitter()
		orders = paper
	}

	limits := risk.NewManager(cfg.Risk)
	if live {
		// the broker's order book carries the count across runs
		prior, err := broker.TaggedOrders(ctx, client, strategy.OrderTagPrefix)
		if err != nil {
			slog.Warn("straddle: order book unavailable, daily cap counts this run only", "error", err)
		} else {
			limits.Restore(len(prior))
		}
	}

	straddle, err := strategy.New(sc, resolver, quotes, orders, limits)
	if err != nil {
		return err
	}
	straddle.SetClock(opts.now)
	straddle.OnOrder = func(side model.OptionSide, err error) {
		m.ObserveOrder(string(side), err)
	}

	ctx = logger.WithRunID(ctx, logger.NewRunID())
	m.LastRunUnixTime.SetToCurrentTime()

	if opts.dryRun {
		plan, err := straddle.Plan(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, plan)
	}

	res, runErr := straddle.Run(ctx)
	notification.SendBestEffort(ctx, notifier, notification.StraddleAlert(res, runErr))
	if res != nil {
		var statuses map[string]string
		if live && len(res.Placed()) > 0 {
			statuses = orderStatuses(ctx, client)
		}
		if err := printJSON(out, newResultView(res, statuses)); err != nil {
			return err
		}
	}
	if paper != nil {
		slog.Info("straddle: paper orders recorded", append(logger.Attrs(ctx), "count", len(paper.Orders()))...)
	}
	return runErr
}

type legView struct {
	Side     model.OptionSide `json:"side"`
	Symbol   string           `json:"symbol"`
	Token    string           `json:"token"`
	Quantity int              `json:"quantity"`
	OrderID  string           `json:"order_id,omitempty"`
	Status   string           `json:"status,omitempty"`
	Error    string           `json:"error,omitempty"`
}

type resultView struct {
	RunID  string          `json:"run_id"`
	LTP    decimal.Decimal `json:"ltp"`
	ATM    decimal.Decimal `json:"atm"`
	Strike decimal.Decimal `json:"strike"`
	Expiry string          `json:"expiry"`
	Legs   []legView       `json:"legs"`
}

// orderStatuses maps order id to the exchange status of today's straddle
// orders. A placed order can still be rejected by the exchange.
func orderStatuses(ctx context.Context, book broker.OrderBookReader) map[string]string {
	tagged, err := broker.TaggedOrders(ctx, book, strategy.OrderTagPrefix)
	if err != nil {
		slog.Warn("straddle: order status unavailable", "error", err)
		return nil
	}
	out := make(map[string]string, len(tagged))
	for _, e := range tagged {
		out[e.OrderID] = e.Status
	}
	return out
}

func newResultView(res *strategy.Result, statuses map[string]string) resultView {
	p := res.Plan
	v := resultView{RunID: p.RunID, LTP: p.LTP, ATM: p.ATM, Strike: p.Strike, Expiry: p.Expiry.Format("2006-01-02")}
	for _, l := range res.Legs {
		lv := legView{Side: l.Side, Symbol: l.Request.TradingSymbol, Token: l.Request.Token, Quantity: l.Request.Quantity, OrderID: l.OrderID, Status: statuses[l.OrderID]}
		if l.Err != nil {
			lv.Error = l.Err.Error()
		}
		v.Legs = append(v.Legs, lv)
	}
	return v
}
