package messaging

import (
	"context"
	"errors"
	"time"
)

var ErrEmptyBody = errors.New("message body is empty")

const (
	KindUser   = "user"
	KindSystem = "system"
)

// Message lives in a group thread. Group ids are appointment ids: every
// appointment gets a thread shared by client and specialist.
type Message struct {
	ID         string
	GroupID    string
	SenderID   string
	SenderRole string
	Kind       string
	Body       string
	CreatedAt  time.Time
}

// Store is the persistence port for threads. List returns newest-last so
// clients can render chronologically without re-sorting.
type Store interface {
	Insert(ctx context.Context, msg *Message) error
	List(ctx context.Context, groupID string, limit int) ([]Message, error)
}
