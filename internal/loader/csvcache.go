package loader

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"backtestsim/internal/model"
)

// CSVCandleLoader reads a market's candle history from a CSV file under a
// cache directory (spec.md §6 cacheDirectory): one row per candle,
// "unixSeconds,open,high,low,close,quoteVolume", optionally preceded by a
// header row. Grounded on the CSV-ingestion shape used across the
// retrieval pack's backtest tooling (field-by-field strconv parsing,
// skip-on-error rather than abort-on-first-bad-row) adapted to load a
// complete CandleHistorySegment up front rather than a mutable bar slice.
type CSVCandleLoader struct {
	CacheDirectory string
	Market         model.Market
	CandleLength   time.Duration
}

func (l CSVCandleLoader) path() string {
	return filepath.Join(l.CacheDirectory, l.Market.ExchangeID, l.Market.TradingPair()+".csv")
}

// Load reads the full CSV file and returns the candles within
// [start, end), aligned to start. The file is read synchronously;
// ctx cancellation is checked between rows so a caller-imposed
// LoaderTimeout still aborts an oversized file.
func (l CSVCandleLoader) Load(ctx context.Context, start, end time.Time) (*model.CandleHistorySegment, error) {
	f, err := os.Open(l.path())
	if err != nil {
		return nil, fmt.Errorf("loader: opening candle cache %s: %w", l.path(), err)
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	out := model.NewCandleHistorySegment(l.Market, l.CandleLength, start)
	first := true
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("loader: reading candle cache %s: %w", l.path(), err)
		}
		if first {
			first = false
			if len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "time") {
				continue
			}
		}
		if len(rec) < 6 {
			continue
		}

		candle, err := parseCandleRow(rec, l.CandleLength)
		if err != nil {
			continue
		}
		if candle.StartTime.Before(start) || !candle.StartTime.Before(end) {
			continue
		}
		if err := out.Append(candle); err != nil {
			return nil, fmt.Errorf("loader: candle cache %s: %w", l.path(), err)
		}
	}
	return out, nil
}

func parseCandleRow(rec []string, length time.Duration) (model.Candle, error) {
	unix, err := strconv.ParseInt(strings.TrimSpace(rec[0]), 10, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("invalid timestamp %q: %w", rec[0], err)
	}
	open, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("invalid open %q: %w", rec[1], err)
	}
	high, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("invalid high %q: %w", rec[2], err)
	}
	low, err := strconv.ParseFloat(strings.TrimSpace(rec[3]), 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("invalid low %q: %w", rec[3], err)
	}
	closePrice, err := strconv.ParseFloat(strings.TrimSpace(rec[4]), 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("invalid close %q: %w", rec[4], err)
	}
	volume, err := strconv.ParseFloat(strings.TrimSpace(rec[5]), 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("invalid volume %q: %w", rec[5], err)
	}

	return model.Candle{
		StartTime:   time.Unix(unix, 0).UTC(),
		Open:        open,
		High:        high,
		Low:         low,
		Close:       closePrice,
		QuoteVolume: volume,
		Length:      length,
	}, nil
}
