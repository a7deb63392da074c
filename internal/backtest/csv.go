package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// csvHeader is the expected first row of a candle CSV file.
var csvHeader = []string{"openTime", "open", "high", "low", "close", "volume", "closeTime"}

// LoadCSV reads candle history from a CSV file: a header row, then one row
// per candle with millisecond-epoch open/close times and decimal prices.
func LoadCSV(path string) ([]domain.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("backtest: open candle csv: %w", err)
	}
	defer f.Close()
	return ReadCandles(f)
}

// ReadCandles parses candle rows from r. Candles are returned sorted
// ascending by open time and validated.
func ReadCandles(r io.Reader) ([]domain.Candle, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvHeader)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("backtest: read csv header: %w", err)
	}
	for i, want := range csvHeader {
		if header[i] != want {
			return nil, fmt.Errorf("backtest: csv header column %d is %q, want %q", i, header[i], want)
		}
	}

	var candles []domain.Candle
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("backtest: read csv line %d: %w", line, err)
		}
		c, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("backtest: csv line %d: %w", line, err)
		}
		candles = append(candles, c)
	}

	domain.SortCandles(candles)
	for i, c := range candles {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("backtest: candle %d: %w", i, err)
		}
	}
	return candles, nil
}

func parseRow(row []string) (domain.Candle, error) {
	openMs, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("openTime: %w", err)
	}
	closeMs, err := strconv.ParseInt(row[6], 10, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("closeTime: %w", err)
	}

	fields := [5]decimal.Decimal{}
	names := [5]string{"open", "high", "low", "close", "volume"}
	for i := 0; i < 5; i++ {
		d, err := decimal.NewFromString(row[i+1])
		if err != nil {
			return domain.Candle{}, fmt.Errorf("%s: %w", names[i], err)
		}
		fields[i] = d
	}

	return domain.Candle{
		OpenTime:  time.UnixMilli(openMs).UTC(),
		CloseTime: time.UnixMilli(closeMs).UTC(),
		Open:      fields[0],
		High:      fields[1],
		Low:       fields[2],
		Close:     fields[3],
		Volume:    fields[4],
	}, nil
}
