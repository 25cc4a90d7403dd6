package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/RichardoC/mintchat/internal/models"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrStorageUnavailable wraps every failure of the underlying store. It is
// never used for a missing session; GetSession returns nil for that.
var ErrStorageUnavailable = errors.New("storage unavailable")

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    wallet_address TEXT NOT NULL DEFAULT '',
    locale TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
    content TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at, id);`

type Database struct {
	db  *sql.DB
	now func() time.Time
}

// New opens (or creates) the SQLite database at dbPath and applies the schema.
func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, unavailable("open", err)
	}
	// A single connection keeps :memory: databases coherent and matches
	// SQLite's single-writer model.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, unavailable("migrate", err)
	}

	return NewWithDB(db), nil
}

// NewWithDB wraps an already opened handle without touching the schema.
func NewWithDB(db *sql.DB) *Database {
	return &Database{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (db *Database) Close() error {
	return db.db.Close()
}

// Ping reports whether the store is reachable.
func (db *Database) Ping(ctx context.Context) error {
	if err := db.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

// CreateSession allocates a fresh random identifier. A primary key collision
// is retried with a new id.
func (db *Database) CreateSession(ctx context.Context, locale models.Locale, walletAddress string) (*models.Session, error) {
	if locale == "" {
		locale = models.DefaultLocale
	}

	const attempts = 3
	var lastErr error
	for i := 0; i < attempts; i++ {
		sess := &models.Session{
			ID:            uuid.NewString(),
			Locale:        locale,
			WalletAddress: walletAddress,
			CreatedAt:     db.now(),
		}
		res, err := db.db.ExecContext(ctx, `
            INSERT INTO sessions (id, wallet_address, locale, created_at)
            VALUES (?, ?, ?, ?)
            ON CONFLICT(id) DO NOTHING`,
			sess.ID, sess.WalletAddress, string(sess.Locale), sess.CreatedAt)
		if err != nil {
			return nil, unavailable("create session", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, unavailable("create session", err)
		}
		if n == 1 {
			return sess, nil
		}
		lastErr = fmt.Errorf("session id %s already exists", sess.ID)
	}
	return nil, unavailable("create session", lastErr)
}

// GetSession returns nil, nil when the id is unknown.
func (db *Database) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var (
		sess   models.Session
		locale string
	)
	err := db.db.QueryRowContext(ctx, `
        SELECT id, wallet_address, locale, created_at
        FROM sessions
        WHERE id = ?`, id).Scan(&sess.ID, &sess.WalletAddress, &locale, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get session", err)
	}
	sess.Locale = models.ParseLocale(locale)
	return &sess, nil
}

// AttachWallet binds walletAddress to the session, overwriting any previous
// address. Writing the same address again changes nothing.
func (db *Database) AttachWallet(ctx context.Context, id, walletAddress string) error {
	_, err := db.db.ExecContext(ctx, `
        UPDATE sessions SET wallet_address = ?
        WHERE id = ? AND wallet_address <> ?`, walletAddress, id, walletAddress)
	if err != nil {
		return unavailable("attach wallet", err)
	}
	return nil
}

func (db *Database) UpdateLocale(ctx context.Context, id string, locale models.Locale) error {
	_, err := db.db.ExecContext(ctx, "UPDATE sessions SET locale = ? WHERE id = ?", string(locale), id)
	if err != nil {
		return unavailable("update locale", err)
	}
	return nil
}

// AppendMessage durably records one message. On error the caller must assume
// nothing was written.
func (db *Database) AppendMessage(ctx context.Context, sessionID string, role models.Role, content string) (*models.Message, error) {
	msg := &models.Message{SessionID: sessionID, Role: role, Content: content}
	if err := insertMessage(ctx, db.db, msg, db.now()); err != nil {
		return nil, unavailable("append message", err)
	}
	return msg, nil
}

// AppendExchange writes a user message and its reply in one transaction, so
// either both are stored or neither is.
func (db *Database) AppendExchange(ctx context.Context, sessionID, userContent, assistantContent string) ([]models.Message, error) {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("append exchange", err)
	}
	defer tx.Rollback()

	now := db.now()
	msgs := []models.Message{
		{SessionID: sessionID, Role: models.RoleUser, Content: userContent},
		{SessionID: sessionID, Role: models.RoleAssistant, Content: assistantContent},
	}
	for i := range msgs {
		if err := insertMessage(ctx, tx, &msgs[i], now); err != nil {
			return nil, unavailable("append exchange", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, unavailable("append exchange", err)
	}
	return msgs, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertMessage(ctx context.Context, q queryRower, msg *models.Message, now time.Time) error {
	query := `
        INSERT INTO messages (session_id, role, content, created_at)
        VALUES (?, ?, ?, ?)
        RETURNING id`

	if err := q.QueryRowContext(ctx, query, msg.SessionID, string(msg.Role), msg.Content, now).Scan(&msg.ID); err != nil {
		return err
	}
	msg.CreatedAt = now
	return nil
}

// ListMessages returns the full history in ascending creation order.
func (db *Database) ListMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	rows, err := db.db.QueryContext(ctx, `
        SELECT id, session_id, role, content, created_at
        FROM messages
        WHERE session_id = ?
        ORDER BY created_at ASC, id ASC`, sessionID)
	if err != nil {
		return nil, unavailable("list messages", err)
	}
	return scanMessages(rows)
}

// RecentMessages returns the last limit messages, oldest first.
func (db *Database) RecentMessages(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		return []models.Message{}, nil
	}
	rows, err := db.db.QueryContext(ctx, `
        SELECT id, session_id, role, content, created_at
        FROM messages
        WHERE session_id = ?
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, unavailable("recent messages", err)
	}
	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var (
			msg  models.Message
			role string
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, unavailable("scan message", err)
		}
		msg.Role = models.Role(role)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("scan message", err)
	}
	return messages, nil
}

// UserMessageCount is the gate counter: the number of stored user messages.
func (db *Database) UserMessageCount(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := db.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE session_id = ? AND role = ?",
		sessionID, string(models.RoleUser)).Scan(&n)
	if err != nil {
		return 0, unavailable("count user messages", err)
	}
	return n, nil
}
