package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	apperrors "wheel-tracker/internal/errors"
	"wheel-tracker/internal/logging"
	"wheel-tracker/internal/metrics"
	"wheel-tracker/internal/models"
	"wheel-tracker/pkg/utils"
)

// DefaultBaseURL is the Polygon.io REST endpoint.
const DefaultBaseURL = "https://api.polygon.io"

// Cache lifetimes per kind of data.
const (
	tickerDetailsTTL = 24 * time.Hour
	previousCloseTTL = time.Hour
)

// lookback is how far before a date PriceOf searches for the latest close.
const lookback = 7 * 24 * time.Hour

// PolygonConfig holds Polygon client settings.
type PolygonConfig struct {
	APIKey            string
	Tier              Tier
	BaseURL           string
	Timeout           time.Duration
	RequestsPerMinute int
	CacheTTL          time.Duration
	Retry             utils.RetryConfig
	Breaker           BreakerConfig
}

// DefaultPolygonConfig returns free-tier settings.
func DefaultPolygonConfig() PolygonConfig {
	return PolygonConfig{
		Tier:              TierFree,
		BaseURL:           DefaultBaseURL,
		Timeout:           10 * time.Second,
		RequestsPerMinute: 5,
		CacheTTL:          5 * time.Minute,
		Retry:             utils.DefaultRetryConfig(),
		Breaker:           DefaultBreakerConfig(),
	}
}

// PolygonClient is a tier-aware Polygon.io client. Responses are cached and
// requests are rate limited to the configured per-minute budget.
type PolygonClient struct {
	cfg        PolygonConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *breaker
	cache      *cache.Cache
	clock      func() time.Time
	logger     zerolog.Logger
}

// NewPolygonClient creates a client.
func NewPolygonClient(cfg PolygonConfig, logger zerolog.Logger) *PolygonClient {
	def := DefaultPolygonConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Tier == "" {
		cfg.Tier = def.Tier
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = def.Retry
	}
	cfg.Retry.Retryable = isRetryable

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.RequestsPerMinute)
	}

	return &PolygonClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		breaker:    newBreaker(cfg.Breaker),
		cache:      cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		clock:      time.Now,
		logger:     logger.With().Str("component", "polygon").Logger(),
	}
}

// Tier returns the configured subscription tier.
func (c *PolygonClient) Tier() Tier {
	return c.cfg.Tier
}

// BreakerState reports whether upstream calls are currently being refused.
func (c *PolygonClient) BreakerState() BreakerState {
	return c.breaker.State()
}

// HasFeature reports whether the tier includes f.
func (c *PolygonClient) HasFeature(f Feature) bool {
	return c.cfg.Tier.Has(f)
}

func (c *PolygonClient) require(f Feature, symbol string) error {
	if c.HasFeature(f) {
		return nil
	}
	return apperrors.NewDataError(string(f), symbol,
		fmt.Sprintf("not included in the %s tier", c.cfg.Tier),
		fmt.Errorf("%w: %w", apperrors.ErrFeatureNotInTier, apperrors.ErrDataUnavailable))
}

// statusError is a non-200 HTTP response.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("polygon returned HTTP %d: %s", e.Code, e.Body)
}

func isRetryable(err error) bool {
	var se *statusError
	if apperrors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return !apperrors.Is(err, apperrors.ErrDataUnavailable) &&
		!apperrors.Is(err, context.Canceled) &&
		!apperrors.Is(err, context.DeadlineExceeded)
}

type envelope struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

func (e envelope) ok() bool {
	return e.Status == "OK" || e.Status == "DELAYED"
}

// get issues a GET against endpoint and decodes the JSON body into out.
// label names the endpoint in logs and metrics.
func (c *PolygonClient) get(ctx context.Context, label, endpoint string, params url.Values, out interface{}) error {
	if c.cfg.APIKey == "" {
		return apperrors.Unavailable(label, endpoint, "no API key configured")
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("apiKey", c.cfg.APIKey)
	target := c.cfg.BaseURL + endpoint + "?" + params.Encode()

	if err := c.breaker.allow(); err != nil {
		metrics.MarketDataRequests.WithLabelValues(label, "refused").Inc()
		return apperrors.Unavailable(label, endpoint, err.Error())
	}

	err := utils.Retry(ctx, c.cfg.Retry, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		start := time.Now()
		err := c.do(ctx, target, out)
		logging.LogAPICall(c.logger, http.MethodGet, endpoint, time.Since(start), err)

		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.MarketDataRequests.WithLabelValues(label, outcome).Inc()
		return err
	})

	c.breaker.record(err != nil && upstreamFailure(err))
	metrics.MarketDataBreakerOpen.Set(boolGauge(c.breaker.State() != BreakerClosed))
	return err
}

// upstreamFailure reports whether err reflects on the provider's health.
// Rejected requests and cancelled contexts do not.
func upstreamFailure(err error) bool {
	var se *statusError
	if apperrors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return !apperrors.Is(err, apperrors.ErrDataUnavailable) &&
		!apperrors.Is(err, context.Canceled)
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (c *PolygonClient) do(ctx context.Context, target string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport errors quote the URL, which carries the API key.
		return fmt.Errorf("polygon request: %w", logging.RedactError(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("reading polygon response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding polygon response: %w", err)
	}
	return nil
}

// cached returns a cached value of type T for key.
func cached[T any](c *PolygonClient, key string) (T, bool) {
	var zero T
	v, ok := c.cache.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if ok {
		metrics.MarketDataCacheHits.WithLabelValues(strings.SplitN(key, ":", 2)[0]).Inc()
	}
	return t, ok
}

// TestConnection checks the API key with a minimal reference query.
func (c *PolygonClient) TestConnection(ctx context.Context) (bool, string) {
	if c.cfg.APIKey == "" {
		return false, "No API key configured"
	}
	var resp envelope
	params := url.Values{"limit": {"1"}}
	if err := c.get(ctx, "tickers", "/v3/reference/tickers", params, &resp); err != nil {
		return false, err.Error()
	}
	if resp.ok() {
		return true, "Connected successfully"
	}
	if resp.Error != "" {
		return false, resp.Error
	}
	return false, "Connection failed"
}

// TickerDetails returns reference data for ticker.
func (c *PolygonClient) TickerDetails(ctx context.Context, ticker string) (models.TickerDetails, error) {
	ticker = strings.ToUpper(ticker)
	key := "details:" + ticker
	if d, ok := cached[models.TickerDetails](c, key); ok {
		return d, nil
	}

	var resp struct {
		envelope
		Results models.TickerDetails `json:"results"`
	}
	if err := c.get(ctx, "details", "/v3/reference/tickers/"+url.PathEscape(ticker), nil, &resp); err != nil {
		return models.TickerDetails{}, err
	}
	if !resp.ok() {
		return models.TickerDetails{}, apperrors.Unavailable("details", ticker, resp.failure())
	}
	c.cache.Set(key, resp.Results, tickerDetailsTTL)
	return resp.Results, nil
}

// SearchTickers finds active stock tickers matching query.
func (c *PolygonClient) SearchTickers(ctx context.Context, query string, limit int) ([]models.TickerDetails, error) {
	if err := c.require(FeatureTickerSearch, query); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	params := url.Values{
		"search": {query},
		"active": {"true"},
		"market": {"stocks"},
		"limit":  {strconv.Itoa(limit)},
	}
	var resp struct {
		envelope
		Results []models.TickerDetails `json:"results"`
	}
	if err := c.get(ctx, "search", "/v3/reference/tickers", params, &resp); err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, apperrors.Unavailable("search", query, resp.failure())
	}
	return resp.Results, nil
}

func (e envelope) failure() string {
	if e.Error != "" {
		return e.Error
	}
	return "unexpected status " + e.Status
}

type aggBar struct {
	T int64   `json:"t"`
	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`
	V float64 `json:"v"`
}

func (b aggBar) bar() models.Bar {
	return models.Bar{
		Timestamp: time.UnixMilli(b.T).UTC(),
		Open:      decimal.NewFromFloat(b.O),
		High:      decimal.NewFromFloat(b.H),
		Low:       decimal.NewFromFloat(b.L),
		Close:     decimal.NewFromFloat(b.C),
		Volume:    int64(b.V),
	}
}

type aggsResponse struct {
	envelope
	Results []aggBar `json:"results"`
}

// PreviousClose returns the most recent completed daily bar.
func (c *PolygonClient) PreviousClose(ctx context.Context, ticker string) (models.Bar, error) {
	ticker = strings.ToUpper(ticker)
	if err := c.require(FeatureEndOfDayPrices, ticker); err != nil {
		return models.Bar{}, err
	}
	key := "prev:" + ticker
	if b, ok := cached[models.Bar](c, key); ok {
		return b, nil
	}

	var resp aggsResponse
	if err := c.get(ctx, "prev", "/v2/aggs/ticker/"+url.PathEscape(ticker)+"/prev", nil, &resp); err != nil {
		return models.Bar{}, err
	}
	if !resp.ok() || len(resp.Results) == 0 {
		return models.Bar{}, apperrors.Unavailable("prev", ticker, "no previous close")
	}
	bar := resp.Results[0].bar()
	c.cache.Set(key, bar, previousCloseTTL)
	return bar, nil
}

// CurrentPrice returns the last trade when the tier has real-time quotes,
// otherwise the previous close.
func (c *PolygonClient) CurrentPrice(ctx context.Context, ticker string) (models.Quote, error) {
	ticker = strings.ToUpper(ticker)
	if c.HasFeature(FeatureRealtimeQuotes) {
		var resp struct {
			envelope
			Results struct {
				P float64 `json:"p"`
				T int64   `json:"t"`
			} `json:"results"`
		}
		err := c.get(ctx, "last_trade", "/v2/last/trade/"+url.PathEscape(ticker), nil, &resp)
		if err == nil && resp.ok() && resp.Results.P > 0 {
			return models.Quote{
				Ticker:    ticker,
				Price:     decimal.NewFromFloat(resp.Results.P),
				Realtime:  true,
				Timestamp: time.Unix(0, resp.Results.T).UTC(),
			}, nil
		}
		if err != nil && ctx.Err() != nil {
			return models.Quote{}, err
		}
		c.logger.Debug().Err(err).Str("ticker", ticker).Msg("Last trade unavailable, using previous close")
	}

	bar, err := c.PreviousClose(ctx, ticker)
	if err != nil {
		return models.Quote{}, err
	}
	return models.Quote{Ticker: ticker, Price: bar.Close, Timestamp: bar.Timestamp}, nil
}

// Bars returns daily bars for ticker between from and to, oldest first.
func (c *PolygonClient) Bars(ctx context.Context, ticker string, from, to time.Time) ([]models.Bar, error) {
	ticker = strings.ToUpper(ticker)
	if err := c.require(FeatureEndOfDayPrices, ticker); err != nil {
		return nil, err
	}
	fromStr, toStr := from.Format("2006-01-02"), to.Format("2006-01-02")
	key := "bars:" + ticker + ":" + fromStr + ":" + toStr
	if bars, ok := cached[[]models.Bar](c, key); ok {
		return bars, nil
	}

	endpoint := fmt.Sprintf("/v2/aggs/ticker/%s/range/1/day/%s/%s", url.PathEscape(ticker), fromStr, toStr)
	params := url.Values{"adjusted": {"true"}, "sort": {"asc"}, "limit": {"50000"}}
	var resp aggsResponse
	if err := c.get(ctx, "bars", endpoint, params, &resp); err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, apperrors.Unavailable("bars", ticker, resp.failure())
	}

	bars := make([]models.Bar, len(resp.Results))
	for i, r := range resp.Results {
		bars[i] = r.bar()
	}
	c.cache.Set(key, bars, cache.DefaultExpiration)
	return bars, nil
}

// PriceOf returns the close of ticker on date, falling back to the latest
// close in the preceding week. Today and future dates use CurrentPrice.
func (c *PolygonClient) PriceOf(ctx context.Context, ticker string, date time.Time) (decimal.Decimal, error) {
	day := calendarDate(date)
	if !day.Before(utils.SessionDate(c.clock())) {
		q, err := c.CurrentPrice(ctx, ticker)
		if err != nil {
			return decimal.Zero, err
		}
		return q.Price, nil
	}

	bars, err := c.Bars(ctx, ticker, day.Add(-lookback), day)
	if err != nil {
		return decimal.Zero, err
	}
	for i := len(bars) - 1; i >= 0; i-- {
		if !utils.SessionDate(bars[i].Timestamp).After(day) {
			return bars[i].Close, nil
		}
	}
	return decimal.Zero, apperrors.Unavailable("price", ticker, "no close on or before "+day.Format("2006-01-02"))
}

// IndexSeries returns daily closes for symbol in [start, end].
func (c *PolygonClient) IndexSeries(ctx context.Context, symbol string, start, end time.Time) ([]models.PricePoint, error) {
	bars, err := c.Bars(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, apperrors.Unavailable("index_series", symbol, "no bars in range")
	}
	points := make([]models.PricePoint, len(bars))
	for i, b := range bars {
		points[i] = models.PricePoint{Date: utils.SessionDate(b.Timestamp), Price: b.Close}
	}
	return points, nil
}
