package ledger

const Schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id TEXT PRIMARY KEY,
	channel_id TEXT NOT NULL,
	message_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	entry REAL NOT NULL,
	stop_loss REAL NOT NULL,
	take_profit REAL NOT NULL,
	decision TEXT NOT NULL,
	reason TEXT NOT NULL,
	detail TEXT NOT NULL,
	mode TEXT NOT NULL,
	risk_reward REAL NOT NULL,
	sizing TEXT NOT NULL,
	position_id TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_decisions_intent ON decisions(channel_id, message_id);
CREATE INDEX IF NOT EXISTS idx_decisions_created ON decisions(created_at);

CREATE TABLE IF NOT EXISTS positions (
	id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	status TEXT NOT NULL,
	data TEXT NOT NULL,
	opened_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);

CREATE TABLE IF NOT EXISTS exits (
	id TEXT PRIMARY KEY,
	position_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	kind TEXT NOT NULL,
	reason TEXT NOT NULL,
	level REAL NOT NULL,
	entry REAL NOT NULL,
	exit_price REAL NOT NULL,
	notional REAL NOT NULL,
	pnl REAL NOT NULL,
	opened_at DATETIME NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_exits_position ON exits(position_id);

CREATE TABLE IF NOT EXISTS account_snapshots (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	data TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS daily_performance (
	date TEXT PRIMARY KEY,
	start_balance REAL NOT NULL,
	end_balance REAL NOT NULL,
	pnl REAL NOT NULL,
	pnl_pct REAL NOT NULL,
	trades INTEGER NOT NULL,
	wins INTEGER NOT NULL,
	losses INTEGER NOT NULL,
	max_drawdown REAL NOT NULL,
	mode TEXT NOT NULL
);
`
