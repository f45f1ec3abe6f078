package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"chatrelay/internal/app/backend"
	"chatrelay/internal/pkg/logx"
)

const insertMessageSQL = `INSERT INTO messages (id, sender_id, receiver_id, content, created_at)
VALUES ($1, $2, $3, $4, $5)`

// ErrRejectedMessage is returned when the database refuses a message's content.
var ErrRejectedMessage = errors.New("message rejected by database constraint")

// execer is the subset of *pgxpool.Pool the store needs.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// MessageStore implements backend.MessageStore over PostgreSQL.
type MessageStore struct {
	db     execer
	logger zerolog.Logger
}

var _ backend.MessageStore = (*MessageStore)(nil)

// NewMessageStore constructs a MessageStore. db is normally the pool returned by NewPool.
func NewMessageStore(db execer) *MessageStore {
	return &MessageStore{
		db:     db,
		logger: logx.Component("db"),
	}
}

// SaveMessage inserts msg. The sender token is not needed: the relay itself is trusted by the
// database. Inserting an id twice is treated as success.
func (s *MessageStore) SaveMessage(ctx context.Context, msg backend.Message, _ string) error {
	tag, err := s.db.Exec(ctx, insertMessageSQL, msg.ID, msg.SenderID, msg.ReceiverID, msg.Content, msg.CreatedAt)
	switch {
	case err == nil:
	case IsUniqueViolation(err):
		s.logger.Warn().Str("message_id", msg.ID).Msg("Message already stored, ignoring duplicate insert.")
		return nil
	case IsCheckViolation(err):
		return fmt.Errorf("insert message %s: %w: %v", msg.ID, ErrRejectedMessage, err)
	default:
		return fmt.Errorf("insert message %s: %w", msg.ID, err)
	}

	s.logger.Debug().
		Str("message_id", msg.ID).
		Int64("rows", tag.RowsAffected()).
		Msg("Message stored in database.")

	return nil
}
