package collector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"BotInvest/internal/model"
)

var csvDateLayouts = []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339, "2006/01/02"}

type csvBar struct {
	Date   string  `csv:"Date"`
	Open   float64 `csv:"Open"`
	High   float64 `csv:"High"`
	Low    float64 `csv:"Low"`
	Close  float64 `csv:"Close"`
	Volume float64 `csv:"Volume"`
}

// CSVFetcher reads daily history from <Dir>/<SYMBOL>.csv files with a
// Date,Open,High,Low,Close,Volume header.
type CSVFetcher struct {
	Dir string
}

// NewCSVFetcher creates a CSVFetcher rooted at dir.
func NewCSVFetcher(dir string) *CSVFetcher {
	return &CSVFetcher{Dir: dir}
}

func (c *CSVFetcher) Name() string { return "csv" }

func (c *CSVFetcher) FetchSeries(ctx context.Context, symbol string, r model.Range) (*model.PriceSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(c.Dir, strings.ToUpper(symbol)+".csv")
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: no file %s", ErrDataUnavailable, symbol, path)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrDataUnavailable, symbol, err)
	}
	defer f.Close()

	var rows []*csvBar
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	bars := make([]model.OHLCV, 0, len(rows))
	for i, row := range rows {
		ts, err := parseCSVDate(row.Date)
		if err != nil {
			return nil, fmt.Errorf("parse %s row %d: %w", path, i+1, err)
		}
		if !r.Contains(ts) {
			continue
		}
		bars = append(bars, model.OHLCV{
			Time:   ts,
			Open:   row.Open,
			High:   row.High,
			Low:    row.Low,
			Close:  row.Close,
			Volume: row.Volume,
		})
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })

	return &model.PriceSeries{Symbol: symbol, Bars: bars, FetchedAt: time.Now()}, nil
}

func parseCSVDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range csvDateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
