package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rustyeddy/propdesk/internal/logger"
	"github.com/rustyeddy/propdesk/market"
	"go.uber.org/zap"
)

type RESTOptions struct {
	// BaseURL is the exchange REST root, e.g. https://api.binance.com
	BaseURL  string
	Symbols  []string
	Interval time.Duration
	Timeout  time.Duration

	Log   *zap.Logger
	Clock func() time.Time
}

// RESTPoller fetches last prices on a fixed interval.
type RESTPoller struct {
	client   *resty.Client
	symbols  []string
	interval time.Duration
	clock    func() time.Time
	log      *zap.Logger
}

func NewRESTPoller(opts RESTOptions) (*RESTPoller, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("feed: missing base url")
	}
	syms := normalize(opts.Symbols)
	if len(syms) == 0 {
		return nil, errors.New("feed: missing symbols")
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseURL)
	client.SetTimeout(opts.Timeout)
	client.SetHeader("Accept", "application/json")

	return &RESTPoller{
		client:   client,
		symbols:  syms,
		interval: opts.Interval,
		clock:    opts.Clock,
		log:      logger.Module(opts.Log, "feed.rest"),
	}, nil
}

type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// Poll fetches one price per configured symbol.
func (p *RESTPoller) Poll(ctx context.Context) ([]market.Tick, error) {
	syms, err := json.Marshal(p.symbols)
	if err != nil {
		return nil, err
	}

	var rows []tickerPrice
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("symbols", string(syms)).
		SetResult(&rows).
		Get("/api/v3/ticker/price")
	if err != nil {
		return nil, fmt.Errorf("ticker request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("ticker http %d: %s", resp.StatusCode(), resp.String())
	}

	now := p.clock().UTC()
	out := make([]market.Tick, 0, len(rows))
	for _, r := range rows {
		price, err := parsePrice(r.Price)
		if err != nil {
			p.log.Debug("bad ticker row", zap.String("symbol", r.Symbol), zap.Error(err))
			continue
		}
		out = append(out, market.Tick{Symbol: market.NormalizeSymbol(r.Symbol), Price: price, Time: now})
	}
	return out, nil
}

// Run polls immediately and then on every interval. Poll errors are logged
// and retried on the next interval.
func (p *RESTPoller) Run(ctx context.Context, h Handler) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		ticks, err := p.Poll(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			p.log.Warn("poll failed", zap.Error(err))
		}
		for _, t := range ticks {
			if err := h(ctx, t); err != nil {
				p.log.Error("tick handler", zap.String("symbol", t.Symbol), zap.Error(err))
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
