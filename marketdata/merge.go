package marketdata

import (
	"sort"

	"replaysim/engine"
)

type key struct {
	exchange int64
	receive  int64
}

// Merge pairs snapshots and trades sharing (exchange_ts, receive_ts) into one
// update per key, ordered by receive time and then exchange time, which is the
// order a live strategy would have seen them. A later duplicate key wins.
func Merge(books []engine.BookSnapshot, trades []engine.AnonTrade) []engine.MarketData {
	byKey := make(map[key]*engine.MarketData, len(books)+len(trades))
	get := func(k key) *engine.MarketData {
		md, ok := byKey[k]
		if !ok {
			md = &engine.MarketData{ExchangeTS: k.exchange, ReceiveTS: k.receive}
			byKey[k] = md
		}
		return md
	}
	for i := range books {
		b := books[i]
		get(key{b.ExchangeTS, b.ReceiveTS}).Book = &b
	}
	for i := range trades {
		tr := trades[i]
		get(key{tr.ExchangeTS, tr.ReceiveTS}).Trade = &tr
	}

	out := make([]engine.MarketData, 0, len(byKey))
	for _, md := range byKey {
		out = append(out, *md)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReceiveTS != out[j].ReceiveTS {
			return out[i].ReceiveTS < out[j].ReceiveTS
		}
		return out[i].ExchangeTS < out[j].ExchangeTS
	})
	return out
}
