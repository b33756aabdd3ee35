package ledger

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"

	"wheel-tracker/internal/models"
)

// Row is the flat, one-row-per-event export form of a TradeEvent. Optional
// fields that were not recorded export as empty cells.
type Row struct {
	ID                string `csv:"id" json:"id"`
	Timestamp         string `csv:"timestamp" json:"timestamp"`
	Ticker            string `csv:"ticker" json:"ticker"`
	Kind              string `csv:"kind" json:"kind"`
	Strike            string `csv:"strike" json:"strike"`
	Expiration        string `csv:"expiration" json:"expiration"`
	Premium           string `csv:"premium" json:"premium"`
	ClosePrice        string `csv:"close_price" json:"close_price"`
	Contracts         string `csv:"contracts" json:"contracts"`
	Delta             string `csv:"delta" json:"delta"`
	Shares            string `csv:"shares" json:"shares"`
	CostBasisPerShare string `csv:"cost_basis_per_share" json:"cost_basis_per_share"`
	LinkedTradeID     string `csv:"linked_trade_id" json:"linked_trade_id"`
}

// ToRow flattens an event.
func ToRow(ev models.TradeEvent) Row {
	row := Row{
		ID:        strconv.FormatInt(ev.ID, 10),
		Timestamp: ev.Timestamp.UTC().Format(time.RFC3339),
		Ticker:    ev.Ticker,
		Kind:      string(ev.Kind),
		Contracts: strconv.Itoa(ev.Contracts),
	}
	if !ev.Strike.IsZero() {
		row.Strike = ev.Strike.String()
	}
	if ev.HasExpiration() {
		row.Expiration = ev.Expiration.Format("2006-01-02")
	}
	if ev.Premium.Valid {
		row.Premium = ev.Premium.Decimal.String()
	}
	if !ev.ClosePrice.IsZero() {
		row.ClosePrice = ev.ClosePrice.String()
	}
	if ev.Delta != nil {
		row.Delta = strconv.FormatFloat(*ev.Delta, 'f', -1, 64)
	}
	if ev.Shares != 0 {
		row.Shares = strconv.FormatInt(ev.Shares, 10)
	}
	if !ev.CostBasisPerShare.IsZero() {
		row.CostBasisPerShare = ev.CostBasisPerShare.String()
	}
	if ev.HasLink() {
		row.LinkedTradeID = strconv.FormatInt(ev.LinkedTradeID, 10)
	}
	return row
}

// Rows exports the whole ledger in ledger order.
func (l *Ledger) Rows() []Row {
	events := l.All()
	rows := make([]Row, len(events))
	for i, ev := range events {
		rows[i] = ToRow(ev)
	}
	return rows
}

// WriteCSV writes the exported rows, with a header, to w.
func (l *Ledger) WriteCSV(w io.Writer) error {
	rows := l.Rows()
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("writing csv: %w", err)
	}
	return nil
}
