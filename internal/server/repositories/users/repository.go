package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/storefront/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	SetResetToken(ctx context.Context, id int64, token string, expiration time.Time) error
	FindByResetToken(ctx context.Context, token string, now time.Time) (*models.User, error)
	ConsumeResetToken(ctx context.Context, id int64, token string, passwordDigest string, now time.Time) error
}
