package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/onnwee/chat-relay/chat"
)

// ErrDuplicate reports an insert whose youtube id already exists. The net
// effect the caller wants (the row exists) is satisfied, so InsertIfAbsent
// treats it as success.
var ErrDuplicate = errors.New("message already stored")

// uniqueViolation is the Postgres error code for a unique constraint violation.
const uniqueViolation = "23505"

// MessageStore is the deduplication gate over the livechat_messages table. A
// message id goes in at most once; the UNIQUE constraint on youtube_id is the
// backstop for the check-then-insert window under concurrent callers.
type MessageStore struct{ DB *sql.DB }

func NewMessageStore(db *sql.DB) *MessageStore { return &MessageStore{DB: db} }

// Exists reports whether a message with the given youtube id is stored.
func (s *MessageStore) Exists(ctx context.Context, youtubeID string) (bool, error) {
	var exists bool
	err := s.DB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM livechat_messages WHERE youtube_id=$1)`, youtubeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check message %q: %w", youtubeID, err)
	}
	return exists, nil
}

// Insert stores one message. A concurrent insert of the same youtube id
// surfaces as ErrDuplicate; other failures are storage errors.
func (s *MessageStore) Insert(ctx context.Context, m chat.Message) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO livechat_messages (youtube_id, channel_id, display_name, message, sent_at, received_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		m.YouTubeID, m.ChannelID, m.DisplayName, m.Message, m.SentAt, m.ReceivedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("insert message %q: %w", m.YouTubeID, ErrDuplicate)
		}
		return fmt.Errorf("insert message %q: %w", m.YouTubeID, err)
	}
	return nil
}

// InsertIfAbsent stores m unless its youtube id was already seen. inserted
// reports whether this call created the row. Losing the insert race to a
// concurrent caller is success with inserted=false.
func (s *MessageStore) InsertIfAbsent(ctx context.Context, m chat.Message) (inserted bool, err error) {
	exists, err := s.Exists(ctx, m.YouTubeID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := s.Insert(ctx, m); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// List returns stored messages ordered by sent_at descending, paginated by
// limit/offset.
func (s *MessageStore) List(ctx context.Context, limit, offset int) ([]chat.Message, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT youtube_id, channel_id, display_name, message, sent_at, received_at
		 FROM livechat_messages ORDER BY sent_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := make([]chat.Message, 0, limit)
	for rows.Next() {
		var m chat.Message
		if err := rows.Scan(&m.YouTubeID, &m.ChannelID, &m.DisplayName, &m.Message, &m.SentAt, &m.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return out, nil
}
