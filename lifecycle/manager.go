package lifecycle

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rustyeddy/propdesk/market"
)

var (
	ErrStaleTick       = errors.New("tick older than last applied tick")
	ErrUnknownPosition = errors.New("unknown position")
	ErrDuplicateID     = errors.New("position id already open")
)

// CommitFunc persists an evaluated position before it becomes visible.
// It may update bookkeeping fields of next such as RealizedPnL. Returning
// an error discards the evaluation.
type CommitFunc func(next *Position, d ExitDecision) error

// slot serializes writers with mu. Readers load view and never take mu, so
// a commit callback may lock the caller's state while readers proceed.
type slot struct {
	mu   sync.Mutex
	pos  Position
	view atomic.Pointer[Position]
}

func newSlot(p Position) *slot {
	s := &slot{pos: p}
	s.publish()
	return s
}

func (s *slot) publish() {
	v := s.pos.clone()
	s.view.Store(&v)
}

func (s *slot) load() Position {
	return s.view.Load().clone()
}

// Manager tracks open positions. Ticks for one position are serialized by
// that position's lock; different positions may be updated in parallel.
type Manager struct {
	rules Rules

	mu    sync.RWMutex
	slots map[string]*slot
}

func NewManager(rules Rules) *Manager {
	return &Manager{
		rules: rules,
		slots: make(map[string]*slot),
	}
}

func (m *Manager) Rules() Rules { return m.rules }

// Open registers p. Zero tracking fields are initialized from the entry so
// restored positions keep their state.
func (m *Manager) Open(p Position) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p = p.clone()
	p.Status = StatusOpen
	p.Symbol = market.NormalizeSymbol(p.Symbol)
	if p.Remaining <= 0 {
		p.Remaining = p.Notional
	}
	if p.HighestPrice == 0 {
		p.HighestPrice = p.Entry
	}
	if p.LastTickAt.IsZero() {
		p.LastTickAt = p.OpenedAt
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.slots[p.ID]; ok {
		return fmt.Errorf("open %s: %w", p.ID, ErrDuplicateID)
	}
	m.slots[p.ID] = newSlot(p)
	return nil
}

func (m *Manager) slot(id string) (*slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.slots[id]
	if !ok {
		return nil, fmt.Errorf("position %s: %w", id, ErrUnknownPosition)
	}
	return s, nil
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	delete(m.slots, id)
	m.mu.Unlock()
}

// Get returns a copy of an open position.
func (m *Manager) Get(id string) (Position, error) {
	s, err := m.slot(id)
	if err != nil {
		return Position{}, err
	}
	return s.load(), nil
}

// Positions returns copies of all open positions ordered by open time.
func (m *Manager) Positions() []Position {
	return m.filter(func(Position) bool { return true })
}

// OpenFor returns the open positions on symbol.
func (m *Manager) OpenFor(symbol string) []Position {
	sym := market.NormalizeSymbol(symbol)
	return m.filter(func(p Position) bool { return p.Symbol == sym })
}

// IDsFor returns the ids of open positions on symbol.
func (m *Manager) IDsFor(symbol string) []string {
	ps := m.OpenFor(symbol)
	ids := make([]string, len(ps))
	for i, p := range ps {
		ids[i] = p.ID
	}
	return ids
}

func (m *Manager) filter(keep func(Position) bool) []Position {
	m.mu.RLock()
	slots := make([]*slot, 0, len(m.slots))
	for _, s := range m.slots {
		slots = append(slots, s)
	}
	m.mu.RUnlock()

	out := make([]Position, 0, len(slots))
	for _, s := range slots {
		p := s.load()
		if p.IsOpen() && keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out
}

// Update applies a price tick without a commit step.
func (m *Manager) Update(id string, price float64, at time.Time) (ExitDecision, error) {
	return m.UpdateFunc(id, price, at, nil)
}

// UpdateFunc applies a price tick. commit, when set, is called with the
// evaluated position whenever the decision is not None or the tracking
// state moved; the new state is stored only if it succeeds.
func (m *Manager) UpdateFunc(id string, price float64, at time.Time, commit CommitFunc) (ExitDecision, error) {
	s, err := m.slot(id)
	if err != nil {
		return ExitDecision{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.pos.IsOpen() {
		return ExitDecision{}, fmt.Errorf("position %s: %w", id, ErrUnknownPosition)
	}
	if at.Before(s.pos.LastTickAt) {
		return ExitDecision{}, fmt.Errorf("position %s at %s: %w", id, at.Format(time.RFC3339Nano), ErrStaleTick)
	}

	next, d := m.rules.Evaluate(s.pos, price, at)
	if commit != nil && (d.Kind != None || moved(s.pos, next)) {
		if err := commit(&next, d); err != nil {
			return ExitDecision{}, err
		}
	}
	s.pos = next
	s.publish()
	if !next.IsOpen() {
		m.remove(id)
	}
	return d, nil
}

// CloseFunc closes a position manually at price.
func (m *Manager) CloseFunc(id string, price float64, at time.Time, commit CommitFunc) (Position, ExitDecision, error) {
	s, err := m.slot(id)
	if err != nil {
		return Position{}, ExitDecision{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.pos.IsOpen() {
		return Position{}, ExitDecision{}, fmt.Errorf("position %s: %w", id, ErrUnknownPosition)
	}

	next := s.pos.clone()
	if at.After(next.LastTickAt) {
		next.LastTickAt = at
	}
	next, d := closeAt(next, ExitDecision{Price: price, ProfitPct: next.ProfitPct(price)}, Manual, at)
	if commit != nil {
		if err := commit(&next, d); err != nil {
			return Position{}, ExitDecision{}, err
		}
	}
	s.pos = next
	s.publish()
	m.remove(id)
	return next.clone(), d, nil
}

func moved(prev, next Position) bool {
	return prev.HighestProfitPct != next.HighestProfitPct || prev.TrailingActivated != next.TrailingActivated
}
