// Package analytics turns a simulator notification stream into position,
// PnL and trade tables. It replays the stream; no matching decision is
// re-derived here.
package analytics

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/shopspring/decimal"

	"replaysim/engine"
)

// DefaultFee is the maker rebate applied when no fee is configured.
const DefaultFee = -0.00001

// PnLRow is the account state right after one notification.
type PnLRow struct {
	ExchangeTS int64
	ReceiveTS  int64
	// Worth is base valued at mid plus quote. NaN until both sides of the
	// book have been seen.
	Worth  float64
	Volume decimal.Decimal
	Base   decimal.Decimal
	Quote  decimal.Decimal
	Mid    float64
}

// PnL replays updates. fee is charged on quote as fee × price × size per own
// trade; a negative fee is a rebate.
func PnL(updates []engine.Notification, fee float64) []PnLRow {
	feeRate := decimal.NewFromFloat(fee)
	base, quote, volume := decimal.Zero, decimal.Zero, decimal.Zero
	bid, ask := math.Inf(-1), math.Inf(1)

	rows := make([]PnLRow, 0, len(updates))
	for _, u := range updates {
		switch u := u.(type) {
		case engine.MarketData:
			bid, ask = engine.UpdateBest(bid, ask, u)
		case engine.OwnTrade:
			size := decimal.NewFromFloat(u.Size)
			notional := decimal.NewFromFloat(u.Price).Mul(size)
			volume = volume.Add(size)
			if u.Side == engine.Buy {
				base = base.Add(size)
				quote = quote.Sub(notional)
			} else {
				base = base.Sub(size)
				quote = quote.Add(notional)
			}
			quote = quote.Sub(feeRate.Mul(notional))
		}

		mid := 0.5 * (bid + ask)
		rows = append(rows, PnLRow{
			ExchangeTS: u.ExchangeTime(),
			ReceiveTS:  u.ReceiveTime(),
			Worth:      worth(base, quote, mid),
			Volume:     volume,
			Base:       base,
			Quote:      quote,
			Mid:        mid,
		})
	}
	return rows
}

func worth(base, quote decimal.Decimal, mid float64) float64 {
	if math.IsInf(mid, 0) || math.IsNaN(mid) {
		return math.NaN()
	}
	return base.Mul(decimal.NewFromFloat(mid)).Add(quote).InexactFloat64()
}

// WritePnLCSV writes rows with a header line.
func WritePnLCSV(w io.Writer, rows []PnLRow) error {
	cw := csv.NewWriter(w)
	header := []string{"exchange_ts", "receive_ts", "worth_quote", "volume", "base_balance", "quote_balance", "mid_price"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		rec := []string{
			strconv.FormatInt(r.ExchangeTS, 10),
			strconv.FormatInt(r.ReceiveTS, 10),
			strconv.FormatFloat(r.Worth, 'f', -1, 64),
			r.Volume.String(),
			r.Base.String(),
			r.Quote.String(),
			strconv.FormatFloat(r.Mid, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
