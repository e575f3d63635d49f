package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rustyeddy/propdesk/internal/logger"
	"github.com/rustyeddy/propdesk/market"
	"go.uber.org/zap"
)

// Stream names understood by WSFeed.
const (
	BookTicker = "bookTicker"
	AggTrade   = "aggTrade"
)

type WSOptions struct {
	// URL is the combined-stream endpoint, e.g.
	// wss://stream.binance.com:9443/stream
	URL     string
	Symbols []string
	Stream  string

	ReadTimeout time.Duration
	MinBackoff  time.Duration
	MaxBackoff  time.Duration

	Dialer *websocket.Dialer
	Log    *zap.Logger
	Clock  func() time.Time
}

// WSFeed subscribes to a Binance-style combined stream and reconnects with
// exponential backoff until its context is done.
type WSFeed struct {
	opts    WSOptions
	symbols []string
	log     *zap.Logger
}

func NewWSFeed(opts WSOptions) (*WSFeed, error) {
	if opts.URL == "" {
		return nil, errors.New("feed: missing url")
	}
	syms := normalize(opts.Symbols)
	if len(syms) == 0 {
		return nil, errors.New("feed: missing symbols")
	}
	switch opts.Stream {
	case "":
		opts.Stream = BookTicker
	case BookTicker, AggTrade:
	default:
		return nil, fmt.Errorf("feed: unknown stream %q", opts.Stream)
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 60 * time.Second
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = time.Second
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &WSFeed{opts: opts, symbols: syms, log: logger.Module(opts.Log, "feed.ws")}, nil
}

// StreamURL is the subscription URL for the configured symbols.
func (f *WSFeed) StreamURL() (string, error) {
	u, err := url.Parse(f.opts.URL)
	if err != nil {
		return "", err
	}
	streams := make([]string, len(f.symbols))
	for i, s := range f.symbols {
		streams[i] = strings.ToLower(s) + "@" + f.opts.Stream
	}
	q := u.Query()
	q.Set("streams", strings.Join(streams, "/"))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (f *WSFeed) Run(ctx context.Context, h Handler) error {
	addr, err := f.StreamURL()
	if err != nil {
		return err
	}

	backoff := f.opts.MinBackoff
	for {
		got, err := f.session(ctx, addr, h)
		if ctx.Err() != nil {
			return nil
		}
		if got > 0 {
			backoff = f.opts.MinBackoff
		}
		f.log.Warn("stream disconnected",
			zap.Error(err),
			zap.Int("ticks", got),
			zap.Duration("retry_in", backoff))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(2*backoff, f.opts.MaxBackoff)
	}
}

// session runs one connection and returns the number of ticks delivered.
func (f *WSFeed) session(ctx context.Context, addr string, h Handler) (int, error) {
	conn, _, err := f.opts.Dialer.DialContext(ctx, addr, nil)
	if err != nil {
		return 0, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	f.log.Info("stream connected", zap.Strings("symbols", f.symbols), zap.String("stream", f.opts.Stream))

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(f.opts.ReadTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	n := 0
	for {
		_ = conn.SetReadDeadline(time.Now().Add(f.opts.ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return n, err
		}
		t, ok, err := f.decode(msg)
		if err != nil {
			f.log.Debug("bad stream message", zap.Error(err), zap.ByteString("msg", trim(msg)))
			continue
		}
		if !ok {
			continue
		}
		if err := h(ctx, t); err != nil {
			f.log.Error("tick handler", zap.String("symbol", t.Symbol), zap.Error(err))
		}
		n++
	}
}

type envelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type bookTicker struct {
	Symbol string `json:"s"`
	Bid    string `json:"b"`
	Ask    string `json:"a"`
}

type aggTrade struct {
	Event     string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	TradeTime int64  `json:"T"`
}

// decode reads one combined-stream frame. Frames that are not market data,
// such as subscription acks, report ok=false.
func (f *WSFeed) decode(msg []byte) (market.Tick, bool, error) {
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return market.Tick{}, false, err
	}
	if len(env.Data) == 0 {
		// raw stream without the combined envelope
		env.Data = msg
		env.Stream = "@" + f.opts.Stream
	}

	switch {
	case strings.HasSuffix(env.Stream, "@"+BookTicker):
		var bt bookTicker
		if err := json.Unmarshal(env.Data, &bt); err != nil {
			return market.Tick{}, false, err
		}
		if bt.Symbol == "" {
			return market.Tick{}, false, nil
		}
		bid, err := parsePrice(bt.Bid)
		if err != nil {
			return market.Tick{}, false, err
		}
		ask, err := parsePrice(bt.Ask)
		if err != nil {
			return market.Tick{}, false, err
		}
		return market.Tick{
			Symbol: market.NormalizeSymbol(bt.Symbol),
			Price:  (bid + ask) / 2,
			Time:   f.opts.Clock().UTC(),
		}, true, nil

	case strings.HasSuffix(env.Stream, "@"+AggTrade):
		var at aggTrade
		if err := json.Unmarshal(env.Data, &at); err != nil {
			return market.Tick{}, false, err
		}
		if at.Symbol == "" {
			return market.Tick{}, false, nil
		}
		p, err := parsePrice(at.Price)
		if err != nil {
			return market.Tick{}, false, err
		}
		ts := f.opts.Clock().UTC()
		if at.TradeTime > 0 {
			ts = time.UnixMilli(at.TradeTime).UTC()
		}
		return market.Tick{Symbol: market.NormalizeSymbol(at.Symbol), Price: p, Time: ts}, true, nil
	}
	return market.Tick{}, false, nil
}

func trim(b []byte) []byte {
	const n = 200
	if len(b) <= n {
		return b
	}
	return b[:n]
}
