package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/handoff-router/internal/domain"
	"github.com/ashureev/handoff-router/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	// DefaultOrderRetention is how many orders the recent-orders log keeps.
	DefaultOrderRetention = 100
	// DefaultHistoryLimit is how many lines of history are kept per identity.
	DefaultHistoryLimit = 50

	maxWriteRetries = 3
	baseRetryDelay  = 50 * time.Millisecond
)

// ErrDuplicateOrder is returned when an order id has already been recorded.
var ErrDuplicateOrder = errors.New("duplicate order id")

// Options tunes retention of the SQLite store.
type Options struct {
	OrderRetention int
	HistoryLimit   int
}

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db             *sql.DB
	writeMu        sync.Mutex // serialises writers to keep SQLITE_BUSY rare
	orderRetention int
	historyLimit   int
	now            func() time.Time
}

var _ Repository = (*SQLiteStore)(nil)

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string, opts Options) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if opts.OrderRetention <= 0 {
		opts.OrderRetention = DefaultOrderRetention
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}

	store := &SQLiteStore{
		db:             db,
		orderRetention: opts.OrderRetention,
		historyLimit:   opts.HistoryLimit,
		now:            time.Now,
	}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		identity TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		data_json TEXT NOT NULL DEFAULT '{}',
		linked_agent TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_linked_agent ON sessions(linked_agent) WHERE linked_agent IS NOT NULL;

	CREATE TABLE IF NOT EXISTS active_chats (
		agent_identity TEXT PRIMARY KEY,
		buyer_identity TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS orders (
		order_id TEXT PRIMARY KEY,
		buyer TEXT NOT NULL,
		product_name TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		unit_price INTEGER NOT NULL,
		delivery_charge INTEGER NOT NULL,
		total INTEGER NOT NULL,
		location TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_orders_created ON orders(created_at);

	CREATE TABLE IF NOT EXISTS message_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		identity TEXT NOT NULL,
		line TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_identity ON message_history(identity, id);
	CREATE INDEX IF NOT EXISTS idx_history_created ON message_history(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// write runs fn under the writer lock, retrying SQLITE_BUSY with
// exponential backoff.
func (s *SQLiteStore) write(ctx context.Context, op string, fn func() error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var err error
	for i := 0; i < maxWriteRetries; i++ {
		err = fn()
		if err == nil || !shared.IsSQLiteConflictError(err) {
			return err
		}
		if i == maxWriteRetries-1 {
			break
		}
		delay := baseRetryDelay * time.Duration(1<<i) // 50ms, 100ms
		slog.Debug("SQLite write busy, retrying", "op", op, "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%s after %d attempts: %w", op, maxWriteRetries, err)
}

// GetSession retrieves the session for identity.
func (s *SQLiteStore) GetSession(ctx context.Context, identity string) (*domain.Session, error) {
	query := `
		SELECT identity, state, data_json, linked_agent, created_at, updated_at
		FROM sessions WHERE identity = ?`

	session, err := scanSession(s.db.QueryRowContext(ctx, query, identity))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewSession(identity), nil
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// PutSession creates or replaces a session.
func (s *SQLiteStore) PutSession(ctx context.Context, session *domain.Session) error {
	if session.Identity == "" {
		return fmt.Errorf("put session: empty identity")
	}
	if !session.State.Valid() {
		return fmt.Errorf("put session %s: invalid state %q", session.Identity, session.State)
	}

	dataJSON, err := json.Marshal(session.Data)
	if err != nil {
		return fmt.Errorf("marshal session data: %w", err)
	}

	var linkedAgent interface{}
	if session.LinkedAgent != "" {
		linkedAgent = session.LinkedAgent
	}

	now := s.now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	query := `
	INSERT INTO sessions (identity, state, data_json, linked_agent, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(identity) DO UPDATE SET
		state = excluded.state,
		data_json = excluded.data_json,
		linked_agent = excluded.linked_agent,
		updated_at = excluded.updated_at`

	return s.write(ctx, "put session", func() error {
		_, err := s.db.ExecContext(ctx, query,
			session.Identity, string(session.State), string(dataJSON), linkedAgent,
			session.CreatedAt.Unix(), session.UpdatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("upsert session: %w", err)
		}
		return nil
	})
}

// ListHandoffSessions returns handoff sessions linked to agent.
func (s *SQLiteStore) ListHandoffSessions(ctx context.Context, agent string) ([]*domain.Session, error) {
	query := `
		SELECT identity, state, data_json, linked_agent, created_at, updated_at
		FROM sessions
		WHERE linked_agent = ? AND state IN (?, ?)
		ORDER BY identity`

	rows, err := s.db.QueryContext(ctx, query, agent,
		string(domain.StateHandoffAgent), string(domain.StateHandoffSupervisor))
	if err != nil {
		return nil, fmt.Errorf("query handoff sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close handoff session rows", "error", closeErr)
		}
	}()

	var sessions []*domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate handoff sessions: %w", err)
	}
	return sessions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var session domain.Session
	var state, dataJSON string
	var linkedAgent sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&session.Identity, &state, &dataJSON, &linkedAgent, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	if err := json.Unmarshal([]byte(dataJSON), &session.Data); err != nil {
		return nil, fmt.Errorf("decode session data for %s: %w", session.Identity, err)
	}
	session.State = domain.State(state)
	session.LinkedAgent = linkedAgent.String
	session.CreatedAt = time.Unix(createdAt, 0)
	session.UpdatedAt = time.Unix(updatedAt, 0)
	return &session, nil
}

// GetActiveChat returns the buyer bound to agent.
func (s *SQLiteStore) GetActiveChat(ctx context.Context, agent string) (string, error) {
	var buyer string
	err := s.db.QueryRowContext(ctx,
		`SELECT buyer_identity FROM active_chats WHERE agent_identity = ?`, agent,
	).Scan(&buyer)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get active chat: %w", err)
	}
	return buyer, nil
}

// SetActiveChat binds agent to buyer.
func (s *SQLiteStore) SetActiveChat(ctx context.Context, agent, buyer string) error {
	if agent == "" || buyer == "" {
		return fmt.Errorf("set active chat: agent and buyer are required")
	}
	query := `
	INSERT INTO active_chats (agent_identity, buyer_identity, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(agent_identity) DO UPDATE SET
		buyer_identity = excluded.buyer_identity,
		updated_at = excluded.updated_at`

	return s.write(ctx, "set active chat", func() error {
		if _, err := s.db.ExecContext(ctx, query, agent, buyer, s.now().Unix()); err != nil {
			return fmt.Errorf("upsert active chat: %w", err)
		}
		return nil
	})
}

// ClearActiveChat removes agent's binding.
func (s *SQLiteStore) ClearActiveChat(ctx context.Context, agent string) error {
	return s.write(ctx, "clear active chat", func() error {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM active_chats WHERE agent_identity = ?`, agent); err != nil {
			return fmt.Errorf("delete active chat: %w", err)
		}
		return nil
	})
}

// RecordOrder inserts an order and trims the log to the retention limit.
func (s *SQLiteStore) RecordOrder(ctx context.Context, order *domain.Order) error {
	if order.ID == "" {
		return fmt.Errorf("record order: empty order id")
	}

	insert := `
	INSERT INTO orders (order_id, buyer, product_name, quantity, unit_price,
		delivery_charge, total, location, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	trim := `
	DELETE FROM orders WHERE order_id NOT IN (
		SELECT order_id FROM orders ORDER BY created_at DESC, rowid DESC LIMIT ?
	)`

	return s.write(ctx, "record order", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin order tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, insert,
			order.ID, order.Buyer, order.ProductName, order.Quantity, order.UnitPrice,
			order.DeliveryCharge, order.Total, order.Location, order.CreatedAt.Unix(),
		); err != nil {
			if shared.IsSQLiteConstraintError(err) {
				return fmt.Errorf("%w: %s", ErrDuplicateOrder, order.ID)
			}
			return fmt.Errorf("insert order: %w", err)
		}
		if _, err := tx.ExecContext(ctx, trim, s.orderRetention); err != nil {
			return fmt.Errorf("trim orders: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit order: %w", err)
		}
		return nil
	})
}

// ListOrders returns up to limit orders, newest first.
func (s *SQLiteStore) ListOrders(ctx context.Context, limit int) ([]*domain.Order, error) {
	if limit <= 0 || limit > s.orderRetention {
		limit = s.orderRetention
	}

	query := `
		SELECT order_id, buyer, product_name, quantity, unit_price,
		       delivery_charge, total, location, created_at
		FROM orders ORDER BY created_at DESC, rowid DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close order rows", "error", closeErr)
		}
	}()

	var orders []*domain.Order
	for rows.Next() {
		var o domain.Order
		var createdAt int64
		if err := rows.Scan(
			&o.ID, &o.Buyer, &o.ProductName, &o.Quantity, &o.UnitPrice,
			&o.DeliveryCharge, &o.Total, &o.Location, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		o.CreatedAt = time.Unix(createdAt, 0).UTC()
		orders = append(orders, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

// AppendHistory adds a line to identity's history, keeping the newest lines only.
func (s *SQLiteStore) AppendHistory(ctx context.Context, identity, line string) error {
	insert := `INSERT INTO message_history (identity, line, created_at) VALUES (?, ?, ?)`
	trim := `
	DELETE FROM message_history WHERE identity = ? AND id NOT IN (
		SELECT id FROM message_history WHERE identity = ? ORDER BY id DESC LIMIT ?
	)`

	return s.write(ctx, "append history", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin history tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, insert, identity, line, s.now().Unix()); err != nil {
			return fmt.Errorf("insert history: %w", err)
		}
		if _, err := tx.ExecContext(ctx, trim, identity, identity, s.historyLimit); err != nil {
			return fmt.Errorf("trim history: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit history: %w", err)
		}
		return nil
	})
}

// History returns identity's history, oldest first.
func (s *SQLiteStore) History(ctx context.Context, identity string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT line FROM message_history WHERE identity = ? ORDER BY id`, identity)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close history rows", "error", closeErr)
		}
	}()

	var lines []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return lines, nil
}

// PruneHistory removes history older than maxAge.
func (s *SQLiteStore) PruneHistory(ctx context.Context, maxAge time.Duration) (int64, error) {
	threshold := s.now().Add(-maxAge).Unix()
	var deleted int64
	err := s.write(ctx, "prune history", func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM message_history WHERE created_at < ?`, threshold)
		if err != nil {
			return fmt.Errorf("prune history: %w", err)
		}
		deleted, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		return nil
	})
	return deleted, err
}
