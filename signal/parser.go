package signal

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/propdesk/market"
	"github.com/shopspring/decimal"
)

// Options fills in intent attributes that most providers do not state.
type Options struct {
	DefaultConfluence int
	DefaultConfidence float64
}

// Parser turns free-text messages into TradeIntents. It holds no mutable
// state and may be shared between goroutines.
type Parser struct {
	opts      Options
	templates []template
}

func NewParser(opts Options) *Parser {
	return &Parser{opts: opts, templates: defaultTemplates()}
}

// Parse parses raw and stamps the intent with the current time.
func (p *Parser) Parse(raw string) (TradeIntent, error) {
	return p.ParseAt(raw, time.Now().UTC())
}

// ParseAt parses raw and stamps the intent with at.
func (p *Parser) ParseAt(raw string, at time.Time) (TradeIntent, error) {
	msg := strings.TrimSpace(raw)

	for _, tpl := range p.templates {
		f, ok := tpl.match(msg)
		if !ok {
			continue
		}
		return p.build(tpl.name, f, msg, at)
	}
	return TradeIntent{}, &ParseError{Kind: UnrecognizedFormat}
}

// Template names in the order they are tried.
func (p *Parser) Templates() []string {
	names := make([]string, len(p.templates))
	for i, t := range p.templates {
		names[i] = t.name
	}
	return names
}

func (p *Parser) build(name string, f fields, msg string, at time.Time) (TradeIntent, error) {
	side, err := market.ParseSide(f.side)
	if err != nil {
		return TradeIntent{}, &ParseError{Kind: UnrecognizedFormat, Template: name, Err: err}
	}

	intent := TradeIntent{
		Symbol:     market.NormalizeSymbol(f.symbol),
		Side:       side,
		Confidence: p.opts.DefaultConfidence,
		Confluence: p.opts.DefaultConfluence,
		ReceivedAt: at,
		Raw:        msg,
	}

	for _, n := range []struct {
		field string
		raw   string
		dst   *float64
	}{
		{"entry", f.entry, &intent.Entry},
		{"take_profit", f.tp, &intent.TakeProfit},
		{"stop_loss", f.sl, &intent.StopLoss},
	} {
		v, err := parseNumber(n.raw)
		if err != nil {
			return TradeIntent{}, &ParseError{Kind: InvalidNumber, Template: name, Field: n.field, Value: n.raw, Err: err}
		}
		*n.dst = v
	}

	if m := confluenceRe.FindStringSubmatch(msg); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			intent.Confluence = n
		}
	}
	if m := confidenceRe.FindStringSubmatch(msg); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			if m[2] == "%" || v > 1 {
				v /= 100
			}
			intent.Confidence = clamp01(v)
		}
	}

	if err := intent.Validate(); err != nil {
		return TradeIntent{}, &ParseError{Kind: InvalidLevels, Template: name, Err: err}
	}
	return intent, nil
}

// groupedRe accepts plain digits or digits in groups of three split by
// grouping separators, with an optional decimal point. "45.000,5"
// and "3 000,5" are rejected rather than guessed.
var groupedRe = regexp.MustCompile(`^(?:[0-9]+|[0-9]{1,3}(?:[,_' ][0-9]{3})+)(?:\.[0-9]*)?$`)

// parseNumber strips grouping separators and parses the remainder exactly.
func parseNumber(s string) (float64, error) {
	s = strings.TrimRight(strings.TrimSpace(s), ",'_")
	if !groupedRe.MatchString(s) {
		return 0, fmt.Errorf("malformed number %q", s)
	}
	clean := strings.NewReplacer(",", "", "_", "", "'", "", " ", "").Replace(s)
	d, err := decimal.NewFromString(strings.TrimRight(clean, "."))
	if err != nil {
		return 0, err
	}
	v, _ := d.Float64()
	return v, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
