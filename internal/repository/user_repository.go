package repository

import (
	"context"
	"time"

	"printstudio/internal/domain/model"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, userID int64) (*model.User, error)
	//見つからなければ nil, nil
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	TouchLastLogin(ctx context.Context, userID int64, at time.Time) error
}

// セッションの保存先（Redis）
type SessionStore interface {
	Save(ctx context.Context, s model.Session, ttl time.Duration) error
	Find(ctx context.Context, sessionID string) (model.Session, error)
	Revoke(ctx context.Context, sessionID string) error
}
