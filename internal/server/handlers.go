package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"wheel-tracker/internal/analytics"
	apperrors "wheel-tracker/internal/errors"
	"wheel-tracker/internal/logging"
	"wheel-tracker/internal/models"
	"wheel-tracker/internal/tracker"
)

type ctxKey struct{}

// withTracker resolves the {mode} path parameter.
func (s *Server) withTracker(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t, err := s.registry.Lookup(chi.URLParam(r, "mode"))
		if err != nil {
			s.writeErr(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, t)))
	})
}

func trackerFrom(r *http.Request) *tracker.Tracker {
	return r.Context().Value(ctxKey{}).(*tracker.Tracker)
}

// EventRequest is the JSON body for POST /api/{mode}/events. Dates use
// YYYY-MM-DD; prices are per share.
type EventRequest struct {
	Ticker            string              `json:"ticker"`
	Kind              string              `json:"kind"`
	Strike            decimal.Decimal     `json:"strike"`
	Expiration        string              `json:"expiration,omitempty"`
	Premium           decimal.NullDecimal `json:"premium"`
	ClosePrice        decimal.Decimal     `json:"close_price"`
	Contracts         int                 `json:"contracts"`
	Delta             *float64            `json:"delta,omitempty"`
	Shares            int64               `json:"shares,omitempty"`
	CostBasisPerShare decimal.Decimal     `json:"cost_basis_per_share"`
	LinkedTradeID     int64               `json:"linked_trade_id,omitempty"`
	Timestamp         *time.Time          `json:"timestamp,omitempty"`
}

// Event converts the request into an unrecorded trade event.
func (req EventRequest) Event() (models.TradeEvent, error) {
	kind, err := models.ParseEventKind(req.Kind)
	if err != nil {
		return models.TradeEvent{}, apperrors.NewValidationError("kind", req.Kind, err.Error())
	}
	ev := models.TradeEvent{
		Ticker:            req.Ticker,
		Kind:              kind,
		Strike:            req.Strike,
		Premium:           req.Premium,
		ClosePrice:        req.ClosePrice,
		Contracts:         req.Contracts,
		Delta:             req.Delta,
		Shares:            req.Shares,
		CostBasisPerShare: req.CostBasisPerShare,
		LinkedTradeID:     req.LinkedTradeID,
	}
	if req.Expiration != "" {
		exp, err := models.ParseDate(req.Expiration)
		if err != nil {
			return models.TradeEvent{}, apperrors.NewValidationError("expiration", req.Expiration, err.Error())
		}
		ev.Expiration = exp
	}
	if req.Timestamp != nil {
		ev.Timestamp = req.Timestamp.UTC()
	}
	return ev, nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	modes := s.registry.Modes()
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = string(m)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "modes": names})
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	events := trackerFrom(r).Events()
	if ticker := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("ticker"))); ticker != "" {
		filtered := events[:0]
		for _, ev := range events {
			if ev.Ticker == ticker {
				filtered = append(filtered, ev)
			}
		}
		events = filtered
	}
	if events == nil {
		events = []models.TradeEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) recordEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	ev, err := req.Event()
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	recorded, err := trackerFrom(r).Record(r.Context(), ev)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, recorded)
}

func (s *Server) getEvent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, "invalid event id", http.StatusBadRequest)
		return
	}
	ev, err := trackerFrom(r).Event(id)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) exportCSV(w http.ResponseWriter, r *http.Request) {
	t := trackerFrom(r)
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="wheel-`+string(t.Mode())+`.csv"`)
	if err := t.WriteCSV(w); err != nil {
		logger := logging.FromContext(r.Context())
		logger.Error().Err(err).Msg("CSV export failed")
	}
}

func (s *Server) listPositions(w http.ResponseWriter, r *http.Request) {
	t := trackerFrom(r)
	at, err := timeParam(r, "at", t.Now())
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	list, err := t.Positions(at)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getPosition(w http.ResponseWriter, r *http.Request) {
	t := trackerFrom(r)
	p, err := t.Position(strings.ToUpper(chi.URLParam(r, "ticker")), t.Now())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) openLegs(w http.ResponseWriter, r *http.Request) {
	t := trackerFrom(r)
	legs, err := t.OpenLegs(t.Now())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if legs == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, legs)
}

func (s *Server) premiumSummary(w http.ResponseWriter, r *http.Request) {
	t := trackerFrom(r)
	at, err := timeParam(r, "at", t.Now())
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	sum, err := t.Summary(at)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) income(w http.ResponseWriter, r *http.Request) {
	t := trackerFrom(r)
	now := t.Now()
	from, to, err := rangeParams(r, time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC), now)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	gran := models.GranularityWeek
	if g := r.URL.Query().Get("granularity"); g != "" {
		if gran, err = models.ParseGranularity(g); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	series, err := t.IncomeByPeriod(from, to, gran)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func (s *Server) tickerTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := trackerFrom(r).TickerTotals()
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (s *Server) topPerformers(w http.ResponseWriter, r *http.Request) {
	t := trackerFrom(r)
	period := analytics.PeriodMTD
	if p := r.URL.Query().Get("period"); p != "" {
		var err error
		if period, err = analytics.ParsePeriod(p); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	limit, err := intParam(r, "limit", analytics.DefaultTopLimit)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	top, err := t.TopPerformers(period, t.Now(), limit)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, top)
}

func (s *Server) rankings(w http.ResponseWriter, r *http.Request) {
	t := trackerFrom(r)
	now := t.Now()
	from, to, err := rangeParams(r, time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC), now)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := t.Rankings(r.Context(), from, to)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) portfolioValue(w http.ResponseWriter, r *http.Request) {
	t := trackerFrom(r)
	now := t.Now()
	from, to, err := rangeParams(r, now.AddDate(0, 0, -30), now)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	step, err := intParam(r, "step", 1)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	points, err := t.PortfolioValue(r.Context(), from, to, step)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) {
	t := trackerFrom(r)
	at, err := timeParam(r, "at", t.Now())
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	snap, err := t.Snapshot(r.Context(), at)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// timeParam parses a YYYY-MM-DD query parameter as the end of that day.
func timeParam(r *http.Request, name string, def time.Time) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	d, err := models.ParseDate(v)
	if err != nil {
		return time.Time{}, err
	}
	return d.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
}

func rangeParams(r *http.Request, defFrom, defTo time.Time) (time.Time, time.Time, error) {
	from, to := defFrom, defTo
	q := r.URL.Query()
	var err error
	if v := q.Get("from"); v != "" {
		if from, err = models.ParseDate(v); err != nil {
			return from, to, err
		}
	}
	if v := q.Get("to"); v != "" {
		if to, err = timeParam(r, "to", defTo); err != nil {
			return from, to, err
		}
	}
	if to.Before(from) {
		return from, to, errors.New("from must not be after to")
	}
	return from, to, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errors.New(name + " must be a positive integer")
	}
	return n, nil
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrAmbiguousReference):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrInvalidEvent):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrNotFound), errors.Is(err, apperrors.ErrUnknownMode):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrDataUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger := logging.FromContext(r.Context())
		logger.Error().Err(err).Msg("Request failed")
		writeError(w, "internal error", status)
		return
	}
	writeError(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
