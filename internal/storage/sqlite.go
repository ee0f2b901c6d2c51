package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"rpsledger/internal/hand"

	_ "modernc.org/sqlite"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements every statement once, for both the plain handle and transactions
type queries struct {
	q querier
}

// Store is the LedgerStore: accounts, games, the balance journal and the event log
type Store struct {
	queries
	db *sql.DB
}

// Tx is a store transaction. Events emitted through it are kept in order so the
// caller can hand them out once the transaction has committed.
type Tx struct {
	queries
	tx     *sql.Tx
	events []Event
}

// Open opens (or creates) the SQLite database at dbPath with WAL mode and runs migrations.
// ":memory:" opens a private in-memory database.
func Open(dbPath string) (*Store, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		absPath, err := filepath.Abs(dbPath)
		if err != nil {
			return nil, err
		}
		dsn = absPath
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One writer at a time; an in-memory database also only exists on its own connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{queries: queries{q: db}, db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// DB returns the database connection
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// runMigrations creates the necessary tables
func (s *Store) runMigrations() error {
	accountsTable := `
		CREATE TABLE IF NOT EXISTS accounts (
			id INTEGER PRIMARY KEY,
			username TEXT NOT NULL DEFAULT '',
			first_name TEXT NOT NULL DEFAULT '',
			available INTEGER NOT NULL DEFAULT 0 CHECK (available >= 0),
			locked INTEGER NOT NULL DEFAULT 0 CHECK (locked >= 0),
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`

	transactionsTable := `
		CREATE TABLE IF NOT EXISTS transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id INTEGER NOT NULL,
			amount INTEGER NOT NULL,
			source_type TEXT NOT NULL,
			game_id INTEGER NOT NULL DEFAULT 0,
			description TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (account_id) REFERENCES accounts(id)
		)
	`

	gamesTable := `
		CREATE TABLE IF NOT EXISTS games (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			player1 INTEGER NOT NULL,
			player2 INTEGER NOT NULL,
			bet INTEGER NOT NULL CHECK (bet > 0),
			status INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			free_bet_time INTEGER NOT NULL,
			expiration_time INTEGER NOT NULL,
			acceptance_time INTEGER NOT NULL DEFAULT 0,
			commitment1 TEXT NOT NULL DEFAULT '',
			commitment2 TEXT NOT NULL DEFAULT '',
			hand1 INTEGER NOT NULL DEFAULT 0,
			hand2 INTEGER NOT NULL DEFAULT 0,
			winner INTEGER NOT NULL DEFAULT 0,
			expiry_notified INTEGER NOT NULL DEFAULT 0,
			CHECK (player1 <> player2),
			CHECK (expiration_time > free_bet_time AND free_bet_time > created_at)
		)
	`

	eventsTable := `
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			game_id INTEGER NOT NULL DEFAULT 0,
			account_id INTEGER NOT NULL DEFAULT 0,
			amount INTEGER NOT NULL DEFAULT 0,
			penalty INTEGER NOT NULL DEFAULT 0,
			status INTEGER NOT NULL DEFAULT 0,
			hand INTEGER NOT NULL DEFAULT 0,
			winner INTEGER NOT NULL DEFAULT 0,
			commitment TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`

	// Create indexes for better query performance
	createIndexes := `
		CREATE INDEX IF NOT EXISTS idx_transactions_account_id ON transactions(account_id);
		CREATE INDEX IF NOT EXISTS idx_games_player1 ON games(player1);
		CREATE INDEX IF NOT EXISTS idx_games_player2 ON games(player2);
		CREATE INDEX IF NOT EXISTS idx_games_status_expiration ON games(status, expiration_time);
		CREATE INDEX IF NOT EXISTS idx_events_game_id ON events(game_id);
	`

	for _, stmt := range []string{accountsTable, transactionsTable, gamesTable, eventsTable, createIndexes} {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InTx runs fn inside one transaction. Nothing fn wrote survives an error.
// On success it returns the events fn emitted, in emission order.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) ([]Event, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	tx := &Tx{queries: queries{q: sqlTx}, tx: sqlTx}
	if err := fn(tx); err != nil {
		return nil, err
	}

	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return tx.events, nil
}

// Emit appends an event to the log
func (t *Tx) Emit(ctx context.Context, ev Event) error {
	payload := ""
	if ev.Metadata != nil {
		raw, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode event metadata: %w", err)
		}
		payload = string(raw)
	}
	commitment := ""
	if !ev.Commitment.IsZero() {
		commitment = ev.Commitment.String()
	}

	result, err := t.q.ExecContext(ctx, `
		INSERT INTO events (kind, game_id, account_id, amount, penalty, status, hand, winner, commitment, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, string(ev.Kind), ev.GameID, ev.Account, ev.Amount, ev.Penalty, int(ev.Status), int(ev.Hand), int(ev.Winner), commitment, payload)
	if err != nil {
		return fmt.Errorf("failed to insert %s event: %w", ev.Kind, err)
	}
	if ev.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	t.events = append(t.events, ev)
	return nil
}

// GetAccount retrieves an account by ID, nil if it has never been created
func (x queries) GetAccount(ctx context.Context, id int64) (*Account, error) {
	var acc Account
	err := x.q.QueryRowContext(ctx, `
		SELECT id, username, first_name, available, locked, created_at, updated_at
		FROM accounts
		WHERE id = ?
	`, id).Scan(
		&acc.ID,
		&acc.Username,
		&acc.FirstName,
		&acc.Available,
		&acc.Locked,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &acc, nil
}

// EnsureAccount creates the account if it does not exist yet and refreshes the
// display names when given. created reports whether the row is new.
func (x queries) EnsureAccount(ctx context.Context, id int64, username, firstName string) (acc *Account, created bool, err error) {
	result, err := x.q.ExecContext(ctx, `
		INSERT OR IGNORE INTO accounts (id, username, first_name)
		VALUES (?, ?, ?)
	`, id, username, firstName)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert account: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	created = n == 1

	if !created && (username != "" || firstName != "") {
		_, err = x.q.ExecContext(ctx, `
			UPDATE accounts
			SET username = COALESCE(NULLIF(?, ''), username),
				first_name = COALESCE(NULLIF(?, ''), first_name),
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, username, firstName, id)
		if err != nil {
			return nil, false, fmt.Errorf("failed to update account names: %w", err)
		}
	}

	acc, err = x.GetAccount(ctx, id)
	return acc, created, err
}

// SetBalances overwrites both balance columns of an existing account
func (x queries) SetBalances(ctx context.Context, id, available, locked int64) error {
	result, err := x.q.ExecContext(ctx, `
		UPDATE accounts
		SET available = ?, locked = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, available, locked, id)
	if err != nil {
		return fmt.Errorf("failed to update balances: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("account %d not found", id)
	}
	return nil
}

// ListAccounts returns every account ordered by ID
func (x queries) ListAccounts(ctx context.Context) ([]*Account, error) {
	rows, err := x.q.QueryContext(ctx, `
		SELECT id, username, first_name, available, locked, created_at, updated_at
		FROM accounts
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		var acc Account
		if err := rows.Scan(&acc.ID, &acc.Username, &acc.FirstName, &acc.Available, &acc.Locked, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, &acc)
	}
	return accounts, rows.Err()
}

// InsertTransaction writes a journal row
func (x queries) InsertTransaction(ctx context.Context, t *Transaction) error {
	result, err := x.q.ExecContext(ctx, `
		INSERT INTO transactions (account_id, amount, source_type, game_id, description)
		VALUES (?, ?, ?, ?, ?)
	`, t.AccountID, t.Amount, string(t.SourceType), t.GameID, t.Description)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	t.ID, err = result.LastInsertId()
	return err
}

// ListTransactions returns the journal of an account, newest first
func (x queries) ListTransactions(ctx context.Context, accountID int64, limit int) ([]Transaction, error) {
	rows, err := x.q.QueryContext(ctx, `
		SELECT id, account_id, amount, source_type, game_id, description, created_at
		FROM transactions
		WHERE account_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		var source string
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Amount, &source, &t.GameID, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.SourceType = TransactionSource(source)
		out = append(out, t)
	}
	return out, rows.Err()
}

const gameColumns = `id, player1, player2, bet, status, created_at, free_bet_time, expiration_time,
	acceptance_time, commitment1, commitment2, hand1, hand2, winner, expiry_notified`

// InsertGame stores a new game and assigns its ID
func (x queries) InsertGame(ctx context.Context, g *Game) (int64, error) {
	result, err := x.q.ExecContext(ctx, `
		INSERT INTO games (player1, player2, bet, status, created_at, free_bet_time, expiration_time,
			acceptance_time, commitment1, commitment2, hand1, hand2, winner)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, g.Player1, g.Player2, g.Bet, int(g.Status), g.CreatedAt, g.FreeBetTime, g.ExpirationTime,
		g.AcceptanceTime, encodeCommitment(g.Commitment1), encodeCommitment(g.Commitment2),
		int(g.Hand1), int(g.Hand2), int(g.Winner))
	if err != nil {
		return 0, fmt.Errorf("failed to insert game: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	g.ID = id
	return id, nil
}

// UpdateGame persists the state columns of a game. The expiry flag is only
// written by MarkExpiryNotified.
func (x queries) UpdateGame(ctx context.Context, g *Game) error {
	_, err := x.q.ExecContext(ctx, `
		UPDATE games
		SET status = ?, acceptance_time = ?, commitment2 = ?, hand1 = ?, hand2 = ?, winner = ?
		WHERE id = ?
	`, int(g.Status), g.AcceptanceTime, encodeCommitment(g.Commitment2),
		int(g.Hand1), int(g.Hand2), int(g.Winner), g.ID)
	if err != nil {
		return fmt.Errorf("failed to update game %d: %w", g.ID, err)
	}
	return nil
}

// GetGame retrieves a game by ID, nil if it does not exist
func (x queries) GetGame(ctx context.Context, id int64) (*Game, error) {
	row := x.q.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE id = ?`, id)
	g, err := scanGame(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	return g, nil
}

// ListGamesByAccount returns the games an account plays in, newest first
func (x queries) ListGamesByAccount(ctx context.Context, account int64, limit int) ([]*Game, error) {
	return x.listGames(ctx, `
		SELECT `+gameColumns+`
		FROM games
		WHERE player1 = ? OR player2 = ?
		ORDER BY id DESC
		LIMIT ?
	`, account, account, limit)
}

// ListExpiredOpenGames returns games past their expiration time that are still
// open and whose participants have not been told yet
func (x queries) ListExpiredOpenGames(ctx context.Context, now int64) ([]*Game, error) {
	return x.listGames(ctx, `
		SELECT `+gameColumns+`
		FROM games
		WHERE status NOT IN (?, ?)
		AND expiration_time < ?
		AND expiry_notified = 0
		ORDER BY id
	`, int(GameStatusClosed), int(GameStatusStopped), now)
}

// MarkExpiryNotified flags a game so the expiry reminder is sent once
func (x queries) MarkExpiryNotified(ctx context.Context, id int64) error {
	_, err := x.q.ExecContext(ctx, `UPDATE games SET expiry_notified = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark game %d: %w", id, err)
	}
	return nil
}

func (x queries) listGames(ctx context.Context, query string, args ...any) ([]*Game, error) {
	rows, err := x.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	defer rows.Close()

	var games []*Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// ListEvents returns the events of a game in emission order
func (x queries) ListEvents(ctx context.Context, gameID int64) ([]Event, error) {
	rows, err := x.q.QueryContext(ctx, `
		SELECT id, kind, game_id, account_id, amount, penalty, status, hand, winner, commitment, payload, created_at
		FROM events
		WHERE game_id = ?
		ORDER BY id
	`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ev                        Event
			kind, commitment, payload string
			status, handValue, winner int
		)
		err := rows.Scan(&ev.ID, &kind, &ev.GameID, &ev.Account, &ev.Amount, &ev.Penalty,
			&status, &handValue, &winner, &commitment, &payload, &ev.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Kind = EventKind(kind)
		ev.Status = GameStatus(status)
		ev.Hand = hand.Hand(handValue)
		ev.Winner = hand.Verdict(winner)
		if ev.Commitment, err = decodeCommitment(commitment); err != nil {
			return nil, err
		}
		if payload != "" {
			ev.Metadata = &GameMetadata{}
			if err := json.Unmarshal([]byte(payload), ev.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode event %d payload: %w", ev.ID, err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*Game, error) {
	var (
		g              Game
		status         int
		c1, c2         string
		h1, h2, winner int
	)
	err := row.Scan(&g.ID, &g.Player1, &g.Player2, &g.Bet, &status, &g.CreatedAt, &g.FreeBetTime,
		&g.ExpirationTime, &g.AcceptanceTime, &c1, &c2, &h1, &h2, &winner, &g.ExpiryNotified)
	if err != nil {
		return nil, err
	}
	g.Status = GameStatus(status)
	g.Hand1, g.Hand2 = hand.Hand(h1), hand.Hand(h2)
	g.Winner = hand.Verdict(winner)
	if g.Commitment1, err = decodeCommitment(c1); err != nil {
		return nil, err
	}
	if g.Commitment2, err = decodeCommitment(c2); err != nil {
		return nil, err
	}
	return &g, nil
}

func encodeCommitment(c hand.Commitment) string {
	if c.IsZero() {
		return ""
	}
	return c.String()
}

func decodeCommitment(s string) (hand.Commitment, error) {
	if strings.TrimSpace(s) == "" {
		return hand.Commitment{}, nil
	}
	c, err := hand.ParseCommitment(s)
	if err != nil {
		return c, fmt.Errorf("stored commitment is corrupt: %w", err)
	}
	return c, nil
}
