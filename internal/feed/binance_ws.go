// Package feed streams live market data from the Binance futures WebSocket
// into the candle store and price cache.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

const (
	// DefaultStreamURL is the Binance USD-M futures combined stream endpoint.
	DefaultStreamURL = "wss://fstream.binance.com/stream"

	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait bounds how long the connection may stay silent. Binance pings
	// roughly every 3 minutes.
	pongWait = 4 * time.Minute
)

// streamMessage is the envelope of a combined-stream payload.
type streamMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// klineEvent is the kline payload of a <symbol>@kline_<interval> stream.
type klineEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Kline     struct {
		OpenTime  int64  `json:"t"`
		CloseTime int64  `json:"T"`
		Interval  string `json:"i"`
		Open      string `json:"o"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Close     string `json:"c"`
		Volume    string `json:"v"`
		Closed    bool   `json:"x"`
	} `json:"k"`
}

// KlineFeed subscribes to kline streams for one symbol across the configured
// timeframes. Every tick refreshes the price cache; each closed bar is
// persisted to the candle store. The feed reconnects with exponential backoff
// until its context is cancelled.
type KlineFeed struct {
	url        string
	symbol     string
	timeframes []string
	candles    domain.CandleStore
	prices     domain.PriceCache
	logger     *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewKlineFeed creates a feed for the given symbol and timeframes. url may be
// empty, in which case DefaultStreamURL is used.
func NewKlineFeed(url, symbol string, timeframes []string, candles domain.CandleStore, prices domain.PriceCache, logger *slog.Logger) *KlineFeed {
	if url == "" {
		url = DefaultStreamURL
	}
	return &KlineFeed{
		url:        url,
		symbol:     symbol,
		timeframes: timeframes,
		candles:    candles,
		prices:     prices,
		logger:     logger.With(slog.String("component", "kline_feed")),
		done:       make(chan struct{}),
	}
}

// streamURL builds the combined-stream URL, e.g.
// wss://fstream.binance.com/stream?streams=btcusdt@kline_15m/btcusdt@kline_1h
func (f *KlineFeed) streamURL() string {
	streams := make([]string, 0, len(f.timeframes))
	lower := strings.ToLower(f.symbol)
	for _, tf := range f.timeframes {
		streams = append(streams, lower+"@kline_"+tf)
	}
	return f.url + "?streams=" + strings.Join(streams, "/")
}

// Run connects and consumes kline events until ctx is cancelled or Close is
// called. Disconnects are retried with exponential backoff.
func (f *KlineFeed) Run(ctx context.Context) error {
	if len(f.timeframes) == 0 {
		f.logger.Info("no timeframes to subscribe, exiting")
		return nil
	}

	retry := &backoff.Backoff{
		Min:    time.Second,
		Max:    time.Minute,
		Jitter: true,
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := retry.Duration()
		f.logger.Warn("kline stream disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(delay):
		}
	}
}

func (f *KlineFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}

	conn, _, err := dialer.DialContext(ctx, f.streamURL(), nil)
	if err != nil {
		return fmt.Errorf("feed: connect: %w", err)
	}
	defer conn.Close()

	// Binance pings the client; answer with pongs and keep the read deadline
	// moving.
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(payload string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.PongMessage, []byte(payload))
	})

	f.logger.Info("kline stream connected",
		slog.String("symbol", f.symbol),
		slog.Int("streams", len(f.timeframes)),
	)

	// Unblock ReadMessage when the caller shuts down.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-f.done:
		case <-stop:
			return
		}
		_ = conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		_ = conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-f.done:
			return nil
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			select {
			case <-f.done:
				return nil
			default:
			}
			return fmt.Errorf("feed: read: %w", domain.ErrWSDisconnect)
		}

		if err := f.handleMessage(ctx, message); err != nil {
			f.logger.Debug("kline message dropped", slog.String("error", err.Error()))
		}
	}
}

func (f *KlineFeed) handleMessage(ctx context.Context, raw []byte) error {
	var env streamMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		return err
	}
	if env.Data == nil {
		return nil
	}

	var ev klineEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		return err
	}
	if ev.EventType != "kline" {
		return nil
	}

	candle, err := parseKline(ev)
	if err != nil {
		return err
	}

	if f.prices != nil {
		if err := f.prices.SetPrice(ctx, ev.Symbol, candle.Close, time.Now()); err != nil {
			f.logger.Warn("price cache update failed", slog.String("error", err.Error()))
		}
	}

	if ev.Kline.Closed && f.candles != nil {
		if err := f.candles.UpsertBatch(ctx, ev.Symbol, ev.Kline.Interval, []domain.Candle{candle}); err != nil {
			return fmt.Errorf("feed: persist candle: %w", err)
		}
		f.logger.Debug("candle closed",
			slog.String("symbol", ev.Symbol),
			slog.String("timeframe", ev.Kline.Interval),
			slog.Time("open_time", candle.OpenTime),
		)
	}
	return nil
}

func parseKline(ev klineEvent) (domain.Candle, error) {
	open, err := decimal.NewFromString(ev.Kline.Open)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("feed: parse open: %w", err)
	}
	high, err := decimal.NewFromString(ev.Kline.High)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("feed: parse high: %w", err)
	}
	low, err := decimal.NewFromString(ev.Kline.Low)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("feed: parse low: %w", err)
	}
	closePrice, err := decimal.NewFromString(ev.Kline.Close)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("feed: parse close: %w", err)
	}
	volume, err := decimal.NewFromString(ev.Kline.Volume)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("feed: parse volume: %w", err)
	}

	return domain.Candle{
		OpenTime:  time.UnixMilli(ev.Kline.OpenTime),
		CloseTime: time.UnixMilli(ev.Kline.CloseTime),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
	}, nil
}

// Close stops the feed.
func (f *KlineFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
