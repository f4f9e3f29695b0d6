package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/riozmarkets/settlement/internal/domain"
)

const (
	// handshakeTimeout bounds the websocket dial.
	handshakeTimeout = 15 * time.Second

	// pongWait is the time allowed to read the next message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than
	// pongWait.
	pingPeriod = (pongWait * 9) / 10

	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// tickMsg is the upstream ticker message format: one message per price move,
// with string-encoded decimals as crypto feeds ship them.
type tickMsg struct {
	Symbol string `json:"s"`
	Price  string `json:"c"`
}

// subscribeCmd is sent after every (re)connect to select the symbol streams.
type subscribeCmd struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

// Feed streams reference prices from the upstream websocket into the price
// cache and republishes them on the signal bus. It reconnects with
// exponential backoff until its context is cancelled; consumers observe an
// outage only as sample age, which is exactly what the freshness gate and
// the watchdog key off.
type Feed struct {
	url     string
	symbols []string
	cache   domain.PriceCache
	bus     domain.SignalBus
	logger  *slog.Logger
}

// NewFeed creates a Feed for the given websocket URL and symbols.
func NewFeed(url string, symbols []string, cache domain.PriceCache, bus domain.SignalBus, logger *slog.Logger) *Feed {
	return &Feed{
		url:     url,
		symbols: symbols,
		cache:   cache,
		bus:     bus,
		logger:  logger.With(slog.String("component", "oracle_feed")),
	}
}

// Run connects and consumes ticks until ctx is cancelled. Connection errors
// trigger reconnection with exponential backoff; Run only returns ctx.Err().
func (f *Feed) Run(ctx context.Context) error {
	delay := reconnectDelay
	for {
		err := f.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.WarnContext(ctx, "feed disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (f *Feed) runOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("oracle: dial %s: %w", f.url, err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	params := make([]string, 0, len(f.symbols))
	for _, sym := range f.symbols {
		params = append(params, sym+"@ticker")
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(subscribeCmd{Method: "SUBSCRIBE", Params: params, ID: 1}); err != nil {
		return fmt.Errorf("oracle: subscribe: %w", err)
	}

	f.logger.InfoContext(ctx, "feed connected",
		slog.String("url", f.url),
		slog.Int("symbols", len(f.symbols)),
	)

	// Close the connection when ctx is cancelled so the blocked read returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("oracle: read: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var tick tickMsg
		if err := json.Unmarshal(raw, &tick); err != nil || tick.Symbol == "" || tick.Price == "" {
			continue // subscription acks and malformed frames
		}
		price, err := strconv.ParseFloat(tick.Price, 64)
		if err != nil {
			f.logger.WarnContext(ctx, "unparseable tick price",
				slog.String("symbol", tick.Symbol),
				slog.String("price", tick.Price),
			)
			continue
		}

		now := time.Now().UTC()
		if err := f.cache.SetPrice(ctx, tick.Symbol, price, now); err != nil {
			f.logger.ErrorContext(ctx, "price cache write failed",
				slog.String("symbol", tick.Symbol),
				slog.String("error", err.Error()),
			)
			continue
		}

		ev := domain.NewEvent("price_tick", "", map[string]any{
			"symbol": tick.Symbol,
			"price":  price,
		})
		if err := f.bus.Publish(ctx, domain.ChannelPrices, ev.Marshal()); err != nil {
			f.logger.DebugContext(ctx, "price publish failed", slog.String("error", err.Error()))
		}
	}
}
