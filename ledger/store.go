package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/rustyeddy/propdesk/lifecycle"
	"github.com/rustyeddy/propdesk/risk"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate decision")
)

// Store persists ledger state. Every Save* call that carries an account
// snapshot writes it in the same transaction as the record.
type Store interface {
	SaveDecision(ctx context.Context, rec DecisionRecord, pos *lifecycle.Position, acct risk.AccountState) error
	SaveExit(ctx context.Context, rec ExitRecord, pos lifecycle.Position, acct risk.AccountState) error
	SaveDay(ctx context.Context, day risk.DailyPerformance, acct risk.AccountState) error
	SaveAccount(ctx context.Context, acct risk.AccountState) error
	SavePosition(ctx context.Context, pos lifecycle.Position) error

	LoadAccount(ctx context.Context) (risk.AccountState, error)
	OpenPositions(ctx context.Context) ([]lifecycle.Position, error)
	FindDecision(ctx context.Context, channelID, messageID string) (DecisionRecord, error)

	Decisions(ctx context.Context, q Query) ([]DecisionRecord, error)
	Exits(ctx context.Context, q Query) ([]ExitRecord, error)
	Days(ctx context.Context, limit int) ([]risk.DailyPerformance, error)

	Close() error
}

// Query filters list results. Zero fields match everything.
type Query struct {
	Decision   Decision
	Symbol     string
	PositionID string
	Since      time.Time
	Limit      int
}
