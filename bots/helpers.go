package bots

import "math"

func midPrice(bid, ask float64) (float64, bool) {
	bidOK := !math.IsInf(bid, 0)
	askOK := !math.IsInf(ask, 0)
	switch {
	case bidOK && askOK:
		return (bid + ask) / 2, true
	case bidOK:
		return bid, true
	case askOK:
		return ask, true
	default:
		return 0, false
	}
}

// cancelExpired cancels open orders placed more than lifetime before ts.
func cancelExpired(ts, lifetime int64, client Client) {
	if lifetime <= 0 {
		return
	}
	for _, o := range client.Open() {
		if ts-o.PlaceTS > lifetime {
			_ = client.Cancel(ts, o.ID)
		}
	}
}
