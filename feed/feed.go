// Package feed turns exchange market data into price ticks for the desk.
package feed

import (
	"context"
	"fmt"
	"strings"

	"github.com/rustyeddy/propdesk/market"
	"github.com/shopspring/decimal"
)

// Handler receives each decoded tick. A returned error is logged by the
// feed and does not stop it.
type Handler func(ctx context.Context, t market.Tick) error

// Feed delivers ticks to h until ctx is done.
type Feed interface {
	Run(ctx context.Context, h Handler) error
}

func parsePrice(s string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("price %q: %w", s, err)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("price %q: must be > 0", s)
	}
	f, _ := d.Float64()
	return f, nil
}

func normalize(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s = market.NormalizeSymbol(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
