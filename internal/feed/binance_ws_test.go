package feed

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

type memCandleStore struct {
	upserts []domain.Candle
}

func (m *memCandleStore) UpsertBatch(_ context.Context, _, _ string, candles []domain.Candle) error {
	m.upserts = append(m.upserts, candles...)
	return nil
}

func (m *memCandleStore) Latest(context.Context, string, string, int) ([]domain.Candle, error) {
	return nil, nil
}

func (m *memCandleStore) Range(context.Context, string, string, time.Time, time.Time) ([]domain.Candle, error) {
	return nil, nil
}

type memPriceCache struct {
	last decimal.Decimal
	sets int
}

func (m *memPriceCache) SetPrice(_ context.Context, _ string, price decimal.Decimal, _ time.Time) error {
	m.last = price
	m.sets++
	return nil
}

func (m *memPriceCache) GetPrice(context.Context, string) (decimal.Decimal, time.Time, error) {
	return m.last, time.Time{}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

const openKline = `{"stream":"btcusdt@kline_15m","data":{"e":"kline","s":"BTCUSDT","k":{"t":1700000000000,"T":1700000899999,"i":"15m","o":"50000","h":"50100","l":"49900","c":"50050.5","v":"12.5","x":false}}}`

const closedKline = `{"stream":"btcusdt@kline_15m","data":{"e":"kline","s":"BTCUSDT","k":{"t":1700000000000,"T":1700000899999,"i":"15m","o":"50000","h":"50100","l":"49900","c":"50075","v":"14","x":true}}}`

func TestHandleMessageOpenBarOnlyUpdatesPrice(t *testing.T) {
	store := &memCandleStore{}
	prices := &memPriceCache{}
	f := NewKlineFeed("", "BTCUSDT", []string{"15m"}, store, prices, testLogger())

	if err := f.handleMessage(context.Background(), []byte(openKline)); err != nil {
		t.Fatalf("handle open kline: %v", err)
	}
	if prices.sets != 1 {
		t.Fatalf("price sets = %d, want 1", prices.sets)
	}
	if !prices.last.Equal(decimal.RequireFromString("50050.5")) {
		t.Fatalf("cached price = %s", prices.last)
	}
	if len(store.upserts) != 0 {
		t.Fatal("open bar must not be persisted")
	}
}

func TestHandleMessageClosedBarPersisted(t *testing.T) {
	store := &memCandleStore{}
	prices := &memPriceCache{}
	f := NewKlineFeed("", "BTCUSDT", []string{"15m"}, store, prices, testLogger())

	if err := f.handleMessage(context.Background(), []byte(closedKline)); err != nil {
		t.Fatalf("handle closed kline: %v", err)
	}
	if len(store.upserts) != 1 {
		t.Fatalf("upserts = %d, want 1", len(store.upserts))
	}
	c := store.upserts[0]
	if !c.OpenTime.Equal(time.UnixMilli(1700000000000)) {
		t.Fatalf("open time = %v", c.OpenTime)
	}
	if !c.Close.Equal(decimal.NewFromInt(50075)) || !c.Volume.Equal(decimal.NewFromInt(14)) {
		t.Fatalf("candle = %+v", c)
	}
}

func TestHandleMessageIgnoresOtherEvents(t *testing.T) {
	store := &memCandleStore{}
	f := NewKlineFeed("", "BTCUSDT", []string{"15m"}, store, nil, testLogger())

	msg := `{"stream":"btcusdt@markPrice","data":{"e":"markPriceUpdate","s":"BTCUSDT"}}`
	if err := f.handleMessage(context.Background(), []byte(msg)); err != nil {
		t.Fatalf("handle non-kline: %v", err)
	}
	if len(store.upserts) != 0 {
		t.Fatal("non-kline event must be ignored")
	}
}

func TestStreamURL(t *testing.T) {
	f := NewKlineFeed("", "BTCUSDT", []string{"15m", "1h"}, nil, nil, testLogger())
	want := DefaultStreamURL + "?streams=btcusdt@kline_15m/btcusdt@kline_1h"
	if got := f.streamURL(); got != want {
		t.Fatalf("streamURL = %q, want %q", got, want)
	}
}
