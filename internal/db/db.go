package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"document-qa/internal/config"
	"document-qa/internal/models"
)

// Message is one persisted transcript entry.
type Message struct {
	bun.BaseModel `bun:"table:messages,alias:m"`
	ID            int64     `bun:"id,pk,autoincrement"`
	SessionID     string    `bun:"session_id,notnull"`
	Author        string    `bun:"author,notnull"`
	Content       string    `bun:"content,notnull"`
	Sources       []string  `bun:"sources,array"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the database with bun's pgdriver, or with lib/pq when the driver is "postgres".
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case "postgres", "pq":
		return sql.Open("postgres", cfg.DSN)
	case "pgdriver", "":
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN))), nil
	default:
		return nil, fmt.Errorf("unknown database driver: %q", cfg.Driver)
	}
}

func InitDB(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*Message)(nil)).IfNotExists().Exec(ctx)
	return err
}

// TranscriptStore records session messages.
type TranscriptStore struct {
	db *bun.DB
}

func NewTranscriptStore(db *bun.DB) *TranscriptStore {
	return &TranscriptStore{db: db}
}

func (s *TranscriptStore) RecordMessage(ctx context.Context, sessionID string, msg models.Message) error {
	_, err := s.insertQuery(sessionID, msg).Exec(ctx)
	if err != nil {
		return fmt.Errorf("store message: %w", err)
	}
	return nil
}

func (s *TranscriptStore) insertQuery(sessionID string, msg models.Message) *bun.InsertQuery {
	return s.db.NewInsert().Model(newMessage(sessionID, msg)).ExcludeColumn("created_at")
}

// ListMessages returns a session's messages oldest first.
func (s *TranscriptStore) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	var msgs []Message
	err := s.listQuery(sessionID, &msgs).Scan(ctx)
	return msgs, err
}

func (s *TranscriptStore) listQuery(sessionID string, dst *[]Message) *bun.SelectQuery {
	return s.db.NewSelect().
		Model(dst).
		Where("session_id = ?", sessionID).
		OrderExpr("id ASC")
}

func (s *TranscriptStore) Close() error {
	return s.db.Close()
}

func newMessage(sessionID string, msg models.Message) *Message {
	sources := make([]string, 0, len(msg.Elements))
	for _, e := range msg.Elements {
		sources = append(sources, e.Name)
	}
	return &Message{
		SessionID: sessionID,
		Author:    msg.Author,
		Content:   msg.Content,
		Sources:   sources,
	}
}
