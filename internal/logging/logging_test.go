package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"wheel-tracker/internal/models"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line %q is not JSON: %v", buf.String(), err)
	}
	buf.Reset()
	return entry
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).With().Str("request_id", "abc").Logger()

	ctxLogger := FromContext(WithLogger(context.Background(), logger))
	ctxLogger.Info().Msg("hello")
	if entry := decodeLine(t, &buf); entry["request_id"] != "abc" {
		t.Errorf("entry = %v, want request_id abc", entry)
	}

	nopLogger := FromContext(context.Background())
	nopLogger.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Errorf("logger without context wrote %q", buf.String())
	}
}

func TestTradeEventLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := WithOperation(WithTicker(zerolog.New(&buf), "AAPL"), "record")

	ev := models.TradeEvent{
		ID: 7, Ticker: "AAPL", Kind: models.KindSellPut, Contracts: 2,
		Premium: decimal.NewNullDecimal(decimal.RequireFromString("1.25")),
	}
	LogTradeEvent(logger, ev)
	entry := decodeLine(t, &buf)
	for key, want := range map[string]interface{}{
		"ticker": "AAPL", "operation": "record", "kind": "SELL_PUT",
		"event_id": float64(7), "premium": "1.25",
	} {
		if entry[key] != want {
			t.Errorf("%s = %v, want %v", key, entry[key], want)
		}
	}

	LogRejection(logger, ev, errors.New("premium must not be negative"))
	entry = decodeLine(t, &buf)
	if entry["level"] != "warn" || entry["ticker"] != "AAPL" || entry["error"] == nil {
		t.Errorf("rejection entry = %v", entry)
	}
}
