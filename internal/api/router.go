// Package api exposes read-only instrument lookups over HTTP so operators can
// check what a straddle would trade before it runs.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/swapnilk30/AlgoTradingSetup01/internal/instrument"
	"github.com/swapnilk30/AlgoTradingSetup01/internal/model"
	"github.com/swapnilk30/AlgoTradingSetup01/internal/strike"
)

// Handler serves lookups against the current resolver. The resolver may be
// swapped at any time; requests before the first SetResolver get 503.
type Handler struct {
	resolver atomic.Pointer[instrument.Resolver]
}

// SetResolver publishes a resolver to subsequent requests.
func (h *Handler) SetResolver(r *instrument.Resolver) { h.resolver.Store(r) }

// NewRouter mounts the lookup routes under /api/v1.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.handleHealth)
		r.Get("/instruments/option", h.handleOption)
		r.Get("/instruments/future", h.handleFuture)
		r.Get("/instruments/equity", h.handleEquity)
		r.Get("/instruments/{segment}/{token}", h.handleByToken)
		r.Get("/atm", handleATM)
	})
	return r
}

func (h *Handler) current(w http.ResponseWriter) *instrument.Resolver {
	res := h.resolver.Load()
	if res == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("catalog not loaded"))
	}
	return res
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"status": "ok"}
	if res := h.resolver.Load(); res != nil {
		out["instruments"] = res.Catalog().Len()
		out["loaded_at"] = res.Catalog().LoadedAt().Format(time.RFC3339)
	} else {
		out["status"] = "loading"
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /api/v1/instruments/option?name=NIFTY&type=OPTIDX&strike=23500&side=CE&expiry=05DEC2024
func (h *Handler) handleOption(w http.ResponseWriter, r *http.Request) {
	res := h.current(w)
	if res == nil {
		return
	}
	q := r.URL.Query()
	strikeVal, err := decimal.NewFromString(q.Get("strike"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("strike: %w", err))
		return
	}
	expiry, ok := instrument.ParseExpiry(q.Get("expiry"))
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Errorf("expiry: cannot parse %q", q.Get("expiry")))
		return
	}
	typ := model.InstrumentType(strings.ToUpper(defaultString(q.Get("type"), string(model.TypeOptionIndex))))
	side := model.OptionSide(strings.ToUpper(q.Get("side")))

	inst, err := res.ResolveOption(strings.ToUpper(q.Get("name")), typ, strikeVal, side, expiry)
	if err != nil {
		writeResolveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

// GET /api/v1/instruments/future?name=NIFTY&type=FUTIDX
func (h *Handler) handleFuture(w http.ResponseWriter, r *http.Request) {
	res := h.current(w)
	if res == nil {
		return
	}
	q := r.URL.Query()
	typ := model.InstrumentType(strings.ToUpper(defaultString(q.Get("type"), string(model.TypeFutureIndex))))
	insts, err := res.ResolveFuture(strings.ToUpper(q.Get("name")), typ)
	if err != nil {
		writeResolveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, insts)
}

// GET /api/v1/instruments/equity?name=RELIANCE&segment=NSE
func (h *Handler) handleEquity(w http.ResponseWriter, r *http.Request) {
	res := h.current(w)
	if res == nil {
		return
	}
	q := r.URL.Query()
	seg := model.Segment(strings.ToUpper(defaultString(q.Get("segment"), string(model.SegmentNSE))))
	inst, err := res.ResolveEquityOrIndex(strings.ToUpper(q.Get("name")), seg)
	if err != nil {
		writeResolveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (h *Handler) handleByToken(w http.ResponseWriter, r *http.Request) {
	res := h.current(w)
	if res == nil {
		return
	}
	seg := model.Segment(strings.ToUpper(chi.URLParam(r, "segment")))
	inst, err := res.Catalog().ByToken(seg, chi.URLParam(r, "token"))
	if err != nil {
		writeResolveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

// GET /api/v1/atm?spot=23461.35&step=50&offset=1
func handleATM(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	spot, err := decimal.NewFromString(q.Get("spot"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("spot: %w", err))
		return
	}
	step, err := strconv.ParseInt(q.Get("step"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("step: %w", err))
		return
	}
	offset := 0
	if s := q.Get("offset"); s != "" {
		if offset, err = strconv.Atoi(s); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("offset: %w", err))
			return
		}
	}

	atm, err := strike.ComputeATM(spot, step)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	shifted, err := strike.Offset(atm, step, offset)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	nearest, err := strike.Nearest(spot, step)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"atm":     atm.String(),
		"strike":  shifted.String(),
		"nearest": nearest.String(),
	})
}

func writeResolveError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, instrument.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, instrument.ErrAmbiguousMatch):
		status = http.StatusConflict
	case errors.Is(err, instrument.ErrInvalidQuery):
		status = http.StatusBadRequest
	}
	writeError(w, status, err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api: encode response", "error", err)
	}
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
