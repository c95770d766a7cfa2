package history

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS chat_history (
	id BIGSERIAL PRIMARY KEY,
	chat_id BIGINT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	message_id BIGINT NOT NULL DEFAULT 0,
	reply_to BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS chat_history_chat_created_idx ON chat_history (chat_id, created_at DESC);
`

// PostgresConfig tunes the connection pool.
type PostgresConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	ConnectTimeout  time.Duration
}

// PostgresStore persists turns in a chat_history table.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPostgresStore connects, pings and ensures the schema exists.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig, log *slog.Logger) (*PostgresStore, error) {
	if log == nil {
		log = slog.Default()
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(pingCtx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure chat_history table: %w", err)
	}

	log.With("component", "history.postgres").Info("Chat history store ready")
	return &PostgresStore{pool: pool, log: log.With("component", "history.postgres")}, nil
}

func (s *PostgresStore) AddMessage(ctx context.Context, chatID int64, role string, content string, messageID int64, replyTo int64) error {
	role, content, ok := normalizeEntry(role, content)
	if !ok {
		return nil
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_history (chat_id, role, content, message_id, reply_to) VALUES ($1, $2, $3, $4, $5)`,
		chatID, role, content, messageID, replyTo,
	)
	if err != nil {
		return fmt.Errorf("insert chat history: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetContext(ctx context.Context, chatID int64, q Query) ([]Entry, error) {
	window := q.window()
	if window <= 0 {
		return nil, nil
	}

	entries, err := s.query(ctx,
		`SELECT chat_id, role, content, message_id, reply_to, created_at
		FROM chat_history WHERE chat_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2`,
		chatID, window,
	)
	if err != nil {
		return nil, err
	}

	slices.Reverse(entries)
	return selectContext(entries, q, time.Now()), nil
}

func (s *PostgresStore) Search(ctx context.Context, chatID int64, text string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	return s.query(ctx,
		`SELECT chat_id, role, content, message_id, reply_to, created_at
		FROM chat_history WHERE chat_id = $1 AND content ILIKE '%' || $2 || '%'
		ORDER BY created_at DESC, id DESC LIMIT $3`,
		chatID, text, limit,
	)
}

func (s *PostgresStore) query(ctx context.Context, sql string, args ...any) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query chat history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.ChatID, &entry.Role, &entry.Content, &entry.MessageID, &entry.ReplyTo, &entry.At); err != nil {
			return nil, fmt.Errorf("scan chat history: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read chat history rows: %w", err)
	}

	return entries, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}
