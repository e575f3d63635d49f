package replay

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rustyeddy/propdesk/desk"
	"github.com/rustyeddy/propdesk/internal/logger"
	"github.com/rustyeddy/propdesk/lifecycle"
	"github.com/rustyeddy/propdesk/market"
	"go.uber.org/zap"
)

// Clock is a settable time source. A desk built with Clock.Now sees replay
// time instead of wall time.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock { return &Clock{now: start.UTC()} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock forward. Earlier times are ignored.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.now) {
		c.now = t.UTC()
	}
}

// Options controls how replay behaves.
type Options struct {
	// If true: process the row's tick first, then its event, so CLOSE_ALL
	// closes at that row's price.
	TickThenEvent bool
	Log           *zap.Logger
}

// Summary counts what a replay did.
type Summary struct {
	Rows     int `json:"rows"`
	Ticks    int `json:"ticks"`
	Signals  int `json:"signals"`
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
	Partials int `json:"partials"`
	Closes   int `json:"closes"`
	Resets   int `json:"resets"`
}

func (s *Summary) exits(xs []desk.Exit) {
	for _, x := range xs {
		if x.Decision.Kind == lifecycle.Partial {
			s.Partials++
		} else {
			s.Closes++
		}
	}
}

// CSV replays ticks and scripted events from a CSV file.
//
// Format:
//
//	time,symbol,price,event,arg1,arg2,arg3
//
// symbol and price may be empty on event-only rows. Events
// (case-insensitive):
//
//	SIGNAL:     arg1=channel  arg2=message id  arg3=text (\n escapes allowed)
//	CLOSE:      arg1=position id, 1-based open index or symbol  arg2=price (optional, defaults to last tick)
//	CLOSE_ALL:  closes every open position at its last tick
//	RESET:      runs the daily reset if the boundary has passed
//	FUNDING:    arg1=true|false  arg2=months funded
func CSV(ctx context.Context, csvPath string, d *desk.Desk, clock *Clock, opts Options) (Summary, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return Summary{}, err
	}
	defer f.Close()
	return Run(ctx, f, d, clock, opts)
}

// Run replays rows read from r.
func Run(ctx context.Context, r io.Reader, d *desk.Desk, clock *Clock, opts Options) (Summary, error) {
	rp := &replayer{desk: d, clock: clock, opts: opts, log: logger.Module(opts.Log, "replay")}

	cr := newReader(r)

	line := 0
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rp.sum, nil
		}
		if err != nil {
			return rp.sum, err
		}
		line++
		if len(row) == 0 || (line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "time")) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return rp.sum, err
		}
		if err := rp.row(ctx, row); err != nil {
			return rp.sum, fmt.Errorf("row %d: %w", line, err)
		}
	}
}

// FirstTime returns the time of the first data row in r.
func FirstTime(r io.Reader) (time.Time, error) {
	cr := newReader(r)
	for line := 1; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return time.Time{}, errors.New("no rows")
		}
		if err != nil {
			return time.Time{}, err
		}
		if len(row) == 0 || (line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "time")) {
			continue
		}
		return time.Parse(time.RFC3339, strings.TrimSpace(row[0]))
	}
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.Comment = '#'
	return cr
}

type replayer struct {
	desk  *desk.Desk
	clock *Clock
	opts  Options
	log   *zap.Logger
	sum   Summary
}

func (rp *replayer) row(ctx context.Context, row []string) error {
	for i := range row {
		row[i] = strings.TrimSpace(row[i])
	}
	if len(row) < 1 || row[0] == "" {
		return fmt.Errorf("missing time: %v", row)
	}
	t, err := time.Parse(time.RFC3339, row[0])
	if err != nil {
		return fmt.Errorf("bad time %q: %w", row[0], err)
	}
	rp.clock.Set(t)
	rp.sum.Rows++

	var (
		symbol string
		price  float64
		event  string
		args   []string
	)
	if len(row) >= 2 {
		symbol = row[1]
	}
	if len(row) >= 3 && row[2] != "" {
		price, err = strconv.ParseFloat(row[2], 64)
		if err != nil {
			return fmt.Errorf("bad price %q: %w", row[2], err)
		}
	}
	if len(row) >= 4 {
		event = row[3]
	}
	if len(row) >= 5 {
		args = row[4:]
	}

	tick := func() error {
		if symbol == "" || price == 0 {
			return nil
		}
		xs, err := rp.desk.SubmitPriceTick(ctx, symbol, price, t)
		if err != nil {
			return err
		}
		rp.sum.Ticks++
		rp.sum.exits(xs)
		return nil
	}

	if rp.opts.TickThenEvent {
		if err := tick(); err != nil {
			return err
		}
		if event != "" {
			return rp.event(ctx, t, event, args)
		}
		return nil
	}

	// Event first, then tick
	if event != "" {
		if err := rp.event(ctx, t, event, args); err != nil {
			return err
		}
	}
	return tick()
}

func (rp *replayer) event(ctx context.Context, t time.Time, event string, args []string) error {
	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}

	switch strings.ToUpper(event) {
	case "SIGNAL":
		// SIGNAL,<channel>,<message>,<text>
		if arg(0) == "" || arg(1) == "" {
			return fmt.Errorf("SIGNAL: need arg1=channel arg2=message")
		}
		text := strings.ReplaceAll(arg(2), `\n`, "\n")
		rec, err := rp.desk.SubmitSignal(ctx, text, arg(0), arg(1))
		if err != nil {
			return fmt.Errorf("SIGNAL: %w", err)
		}
		rp.sum.Signals++
		if rec.Accepted() {
			rp.sum.Accepted++
		} else {
			rp.sum.Rejected++
		}
		rp.log.Debug("signal", zap.Time("at", t), zap.Stringer("decision", rec))
		return nil

	case "CLOSE":
		// CLOSE,<position id | open index | symbol>,<price>
		if arg(0) == "" {
			return fmt.Errorf("CLOSE: missing position")
		}
		var price float64
		if arg(1) != "" {
			p, err := strconv.ParseFloat(arg(1), 64)
			if err != nil {
				return fmt.Errorf("CLOSE: bad price %q: %w", arg(1), err)
			}
			price = p
		}
		ids, err := rp.closeTargets(arg(0))
		if err != nil {
			return fmt.Errorf("CLOSE: %w", err)
		}
		for _, pid := range ids {
			x, err := rp.desk.ClosePosition(ctx, pid, price)
			if err != nil {
				return fmt.Errorf("CLOSE %s: %w", pid, err)
			}
			rp.sum.exits([]desk.Exit{x})
		}
		return nil

	case "CLOSE_ALL":
		xs, err := rp.desk.CloseAll(ctx)
		if err != nil {
			return fmt.Errorf("CLOSE_ALL: %w", err)
		}
		rp.sum.exits(xs)
		return nil

	case "RESET":
		_, ok, err := rp.desk.ResetDaily(ctx, t)
		if err != nil {
			return fmt.Errorf("RESET: %w", err)
		}
		if ok {
			rp.sum.Resets++
		}
		return nil

	case "FUNDING":
		// FUNDING,<funded>,<months>
		funded, err := strconv.ParseBool(arg(0))
		if err != nil {
			return fmt.Errorf("FUNDING: bad funded flag %q", arg(0))
		}
		months := 0
		if arg(1) != "" {
			if months, err = strconv.Atoi(arg(1)); err != nil {
				return fmt.Errorf("FUNDING: bad months %q", arg(1))
			}
		}
		_, err = rp.desk.SetFunding(ctx, funded, months)
		return err

	default:
		return fmt.Errorf("unknown event %q", event)
	}
}

// closeTargets resolves a CLOSE argument to position ids. It is tried as a
// position id, then as a 1-based index into the open positions in open
// order, then as a symbol whose open positions all close.
func (rp *replayer) closeTargets(target string) ([]string, error) {
	open := rp.desk.Positions()
	for _, p := range open {
		if p.ID == target {
			return []string{p.ID}, nil
		}
	}
	if n, err := strconv.Atoi(target); err == nil {
		if n < 1 || n > len(open) {
			return nil, fmt.Errorf("index %d outside %d open positions", n, len(open))
		}
		return []string{open[n-1].ID}, nil
	}

	sym := market.NormalizeSymbol(target)
	var ids []string
	for _, p := range open {
		if p.Symbol == sym {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no open position matches %q: %w", target, lifecycle.ErrUnknownPosition)
	}
	return ids, nil
}
