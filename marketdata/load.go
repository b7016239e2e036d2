// Package marketdata loads order-book snapshots and anonymous trades from CSV
// files and merges them into the ordered stream the simulator consumes.
//
// Snapshot files carry exchange_ts and receive_ts followed by per-level
// ask_price_N, ask_vol_N, bid_price_N and bid_vol_N columns. Level columns may
// carry an instrument prefix such as "btcusdt:Binance:LinearPerpetual_ask_price_0".
// Trade files carry exchange_ts, receive_ts, aggro_side, price and size.
package marketdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"replaysim/engine"
)

// ErrMissingColumn is returned when a required CSV column is absent.
var ErrMissingColumn = errors.New("missing column")

// Window bounds loaded rows by receive timestamp, inclusive. A zero bound is
// open.
type Window struct {
	Min int64
	Max int64
}

func (w Window) contains(ts int64) bool {
	if w.Min != 0 && ts < w.Min {
		return false
	}
	if w.Max != 0 && ts > w.Max {
		return false
	}
	return true
}

// Load reads both files and merges them.
func Load(lobsPath, tradesPath string, w Window) ([]engine.MarketData, error) {
	books, err := LoadBooks(lobsPath, w)
	if err != nil {
		return nil, err
	}
	trades, err := LoadTrades(tradesPath, w)
	if err != nil {
		return nil, err
	}
	return Merge(books, trades), nil
}

// LoadBooks reads a snapshot file.
func LoadBooks(path string, w Window) ([]engine.BookSnapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open books: %w", err)
	}
	defer f.Close()
	books, err := ReadBooks(f, w)
	if err != nil {
		return nil, fmt.Errorf("read books %s: %w", path, err)
	}
	return books, nil
}

// LoadTrades reads a trade file.
func LoadTrades(path string, w Window) ([]engine.AnonTrade, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trades: %w", err)
	}
	defer f.Close()
	trades, err := ReadTrades(f, w)
	if err != nil {
		return nil, fmt.Errorf("read trades %s: %w", path, err)
	}
	return trades, nil
}

var levelColumn = regexp.MustCompile(`(ask|bid)_(price|vol)_(\d+)$`)

type levelRef struct {
	price int
	vol   int
}

// ReadBooks parses snapshot rows from r.
func ReadBooks(r io.Reader, w Window) ([]engine.BookSnapshot, error) {
	cr := newReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	cols := columnIndex(header)
	exIdx, rcvIdx, err := timestampColumns(cols)
	if err != nil {
		return nil, err
	}

	asks := map[int]*levelRef{}
	bids := map[int]*levelRef{}
	for i, name := range header {
		m := levelColumn.FindStringSubmatch(strings.TrimSpace(name))
		if m == nil {
			continue
		}
		depth, _ := strconv.Atoi(m[3])
		side := asks
		if m[1] == "bid" {
			side = bids
		}
		ref, ok := side[depth]
		if !ok {
			ref = &levelRef{price: -1, vol: -1}
			side[depth] = ref
		}
		if m[2] == "price" {
			ref.price = i
		} else {
			ref.vol = i
		}
	}
	askRefs, err := orderedLevels(asks, "ask")
	if err != nil {
		return nil, err
	}
	bidRefs, err := orderedLevels(bids, "bid")
	if err != nil {
		return nil, err
	}

	var out []engine.BookSnapshot
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		snap := engine.BookSnapshot{}
		if snap.ExchangeTS, err = parseInt(rec[exIdx]); err != nil {
			return nil, fmt.Errorf("line %d exchange_ts: %w", line, err)
		}
		if snap.ReceiveTS, err = parseInt(rec[rcvIdx]); err != nil {
			return nil, fmt.Errorf("line %d receive_ts: %w", line, err)
		}
		if !w.contains(snap.ReceiveTS) {
			continue
		}
		if snap.Asks, err = parseLevels(rec, askRefs); err != nil {
			return nil, fmt.Errorf("line %d asks: %w", line, err)
		}
		if snap.Bids, err = parseLevels(rec, bidRefs); err != nil {
			return nil, fmt.Errorf("line %d bids: %w", line, err)
		}
		out = append(out, snap)
	}
	return out, nil
}

// ReadTrades parses trade rows from r and orders them by
// (exchange_ts, receive_ts).
func ReadTrades(r io.Reader, w Window) ([]engine.AnonTrade, error) {
	cr := newReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	cols := columnIndex(header)
	exIdx, rcvIdx, err := timestampColumns(cols)
	if err != nil {
		return nil, err
	}
	idx := map[string]int{}
	for _, name := range []string{"aggro_side", "price", "size"} {
		i, ok := cols[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
		idx[name] = i
	}

	var out []engine.AnonTrade
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		var tr engine.AnonTrade
		if tr.ExchangeTS, err = parseInt(rec[exIdx]); err != nil {
			return nil, fmt.Errorf("line %d exchange_ts: %w", line, err)
		}
		if tr.ReceiveTS, err = parseInt(rec[rcvIdx]); err != nil {
			return nil, fmt.Errorf("line %d receive_ts: %w", line, err)
		}
		if !w.contains(tr.ReceiveTS) {
			continue
		}
		if tr.Side, err = engine.ParseSide(rec[idx["aggro_side"]]); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if tr.Price, err = strconv.ParseFloat(strings.TrimSpace(rec[idx["price"]]), 64); err != nil {
			return nil, fmt.Errorf("line %d price: %w", line, err)
		}
		if tr.Size, err = strconv.ParseFloat(strings.TrimSpace(rec[idx["size"]]), 64); err != nil {
			return nil, fmt.Errorf("line %d size: %w", line, err)
		}
		out = append(out, tr)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ExchangeTS != out[j].ExchangeTS {
			return out[i].ExchangeTS < out[j].ExchangeTS
		}
		return out[i].ReceiveTS < out[j].ReceiveTS
	})
	return out, nil
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	return cr
}

func columnIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	return cols
}

func timestampColumns(cols map[string]int) (int, int, error) {
	ex, ok := cols["exchange_ts"]
	if !ok {
		return 0, 0, fmt.Errorf("%w: exchange_ts", ErrMissingColumn)
	}
	rcv, ok := cols["receive_ts"]
	if !ok {
		return 0, 0, fmt.Errorf("%w: receive_ts", ErrMissingColumn)
	}
	return ex, rcv, nil
}

func orderedLevels(levels map[int]*levelRef, side string) ([]levelRef, error) {
	out := make([]levelRef, len(levels))
	for depth, ref := range levels {
		if depth >= len(levels) {
			return nil, fmt.Errorf("%w: %s levels are not contiguous at %d", ErrMissingColumn, side, depth)
		}
		if ref.price < 0 {
			return nil, fmt.Errorf("%w: %s_price_%d", ErrMissingColumn, side, depth)
		}
		if ref.vol < 0 {
			return nil, fmt.Errorf("%w: %s_vol_%d", ErrMissingColumn, side, depth)
		}
		out[depth] = *ref
	}
	return out, nil
}

func parseLevels(rec []string, refs []levelRef) ([]engine.Level, error) {
	out := make([]engine.Level, 0, len(refs))
	for _, ref := range refs {
		price := strings.TrimSpace(rec[ref.price])
		vol := strings.TrimSpace(rec[ref.vol])
		// Shallow snapshots leave deeper levels blank.
		if price == "" || vol == "" {
			continue
		}
		p, err := strconv.ParseFloat(price, 64)
		if err != nil {
			return nil, err
		}
		v, err := strconv.ParseFloat(vol, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, engine.Level{Price: p, Size: v})
	}
	return out, nil
}

func parseInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	// Some exports write nanosecond stamps in float notation.
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}
