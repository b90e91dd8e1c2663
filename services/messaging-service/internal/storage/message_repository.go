package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/wellnest-app/wellnest/libs/db"
	"github.com/wellnest-app/wellnest/services/messaging-service/internal/messaging"
)

type MessageRepository struct {
	pool *db.Pool
}

func NewMessageRepository(pool *db.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

var _ messaging.Store = (*MessageRepository)(nil)

func (r *MessageRepository) Insert(ctx context.Context, msg *messaging.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO messages (id, group_id, sender_id, sender_role, kind, body)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
		RETURNING created_at
	`, msg.ID, msg.GroupID, msg.SenderID, msg.SenderRole, msg.Kind, msg.Body).Scan(&msg.CreatedAt)
}

func (r *MessageRepository) List(ctx context.Context, groupID string, limit int) ([]messaging.Message, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, group_id::text, COALESCE(sender_id::text, ''), sender_role, kind, body, created_at
		FROM messages
		WHERE group_id = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, groupID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []messaging.Message
	for rows.Next() {
		var m messaging.Message
		if err := rows.Scan(&m.ID, &m.GroupID, &m.SenderID, &m.SenderRole, &m.Kind, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
