package journal

const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	trade_id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	amount REAL NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	take_profit REAL NOT NULL,
	stop_loss REAL NOT NULL,
	open_time DATETIME NOT NULL,
	close_time DATETIME NOT NULL,
	outcome TEXT NOT NULL,
	pnl REAL NOT NULL,
	fee REAL NOT NULL,
	reason TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_close_time ON trades(close_time);

CREATE TABLE IF NOT EXISTS equity (
	time DATETIME NOT NULL,
	balance REAL NOT NULL,
	equity REAL NOT NULL,
	open_positions INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_time ON equity(time);

CREATE TABLE IF NOT EXISTS account (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	active INTEGER NOT NULL,
	started_at DATETIME,
	balance REAL NOT NULL,
	total_profit REAL NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	symbol TEXT PRIMARY KEY,
	position_id TEXT NOT NULL,
	side TEXT NOT NULL,
	entry_price REAL NOT NULL,
	amount REAL NOT NULL,
	take_profit REAL NOT NULL,
	stop_loss REAL NOT NULL,
	leverage INTEGER NOT NULL,
	opened_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS history (
	trade_id TEXT PRIMARY KEY,
	close_time DATETIME NOT NULL,
	seq INTEGER NOT NULL,
	record TEXT NOT NULL
);
`
