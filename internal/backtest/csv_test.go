package backtest

import (
	"strings"
	"testing"
	"time"
)

const sampleCSV = `openTime,open,high,low,close,volume,closeTime
1709253900000,50010,50130,49900,50100,12.5,1709254800000
1709253000000,50000,50120,49950,50010,10.1,1709253900000
`

func TestReadCandlesParsesAndSorts(t *testing.T) {
	candles, err := ReadCandles(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("got %d candles, want 2", len(candles))
	}

	// Rows are out of order in the file; output must be ascending.
	if !candles[0].OpenTime.Before(candles[1].OpenTime) {
		t.Fatal("candles must be sorted ascending by open time")
	}
	want := time.UnixMilli(1709253000000).UTC()
	if !candles[0].OpenTime.Equal(want) {
		t.Fatalf("first open time = %v, want %v", candles[0].OpenTime, want)
	}
	if candles[0].Close.String() != "50010" {
		t.Fatalf("first close = %s, want 50010", candles[0].Close)
	}
	if candles[1].Volume.String() != "12.5" {
		t.Fatalf("second volume = %s, want 12.5", candles[1].Volume)
	}
}

func TestReadCandlesRejectsBadHeader(t *testing.T) {
	bad := "time,open,high,low,close,volume,closeTime\n1,2,3,1,2,5,6\n"
	if _, err := ReadCandles(strings.NewReader(bad)); err == nil {
		t.Fatal("expected header error")
	}
}

func TestReadCandlesRejectsMalformedRow(t *testing.T) {
	bad := "openTime,open,high,low,close,volume,closeTime\n1709253000000,abc,50120,49950,50010,10.1,1709253900000\n"
	if _, err := ReadCandles(strings.NewReader(bad)); err == nil {
		t.Fatal("expected parse error for non-decimal open")
	}
}

func TestReadCandlesRejectsInconsistentOHLC(t *testing.T) {
	// High below low.
	bad := "openTime,open,high,low,close,volume,closeTime\n1709253000000,50000,49000,49950,50010,10.1,1709253900000\n"
	if _, err := ReadCandles(strings.NewReader(bad)); err == nil {
		t.Fatal("expected validation error for high < low")
	}
}
