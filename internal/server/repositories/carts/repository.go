package carts

import (
	"context"

	"github.com/dmitrijs2005/storefront/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, userID int64) (*models.Cart, error)
	GetByUserID(ctx context.Context, userID int64) (*models.Cart, error)
}
