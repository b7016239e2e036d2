package engine

import "math"

// UpdateBest derives the touch after md. Only snapshots move it; an empty
// side resets to the matching infinity. Trades leave bid and ask unchanged.
func UpdateBest(bid, ask float64, md MarketData) (float64, float64) {
	if md.Book == nil {
		return bid, ask
	}
	bid, ask = math.Inf(-1), math.Inf(1)
	for _, lvl := range md.Book.Bids {
		if lvl.Price > bid {
			bid = lvl.Price
		}
	}
	for _, lvl := range md.Book.Asks {
		if lvl.Price < ask {
			ask = lvl.Price
		}
	}
	return bid, ask
}
