package identity

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already registered")
)

const (
	RoleClient       = "client"
	RoleTrainer      = "trainer"
	RoleNutritionist = "nutritionist"
	RoleTherapist    = "therapist"
	RolePsychologist = "psychologist"
	RoleAdmin        = "admin"
)

// SelfServiceRole reports whether a role may be chosen at registration time.
// Admin accounts are provisioned out of band.
func SelfServiceRole(role string) bool {
	switch role {
	case RoleClient, RoleTrainer, RoleNutritionist, RoleTherapist, RolePsychologist:
		return true
	default:
		return false
	}
}

type User struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// Users is the persistence port for accounts. Implementations return
// ErrEmailTaken on duplicate email and ErrNotFound on missing lookups.
type Users interface {
	Create(ctx context.Context, user User) error
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
}

type RefreshToken struct {
	ID        string
	UserID    string
	Hash      string
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// Sessions stores hashed refresh tokens. Lookups are by hash, never by raw
// token. Missing hashes return ErrNotFound.
type Sessions interface {
	Create(ctx context.Context, userID string, rawToken string, expiresAt time.Time) (string, error)
	GetByHash(ctx context.Context, hash string) (RefreshToken, error)
	Revoke(ctx context.Context, id string) error
}
