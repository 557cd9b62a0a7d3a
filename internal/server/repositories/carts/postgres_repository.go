package carts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/dmitrijs2005/storefront/internal/dbx"
	"github.com/dmitrijs2005/storefront/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create opens the empty cart of userID. A second cart for the same user
// yields common.ErrorAlreadyExists.
func (r *PostgresRepository) Create(ctx context.Context, userID int64) (*models.Cart, error) {
	query :=
		`INSERT INTO carts (user_id)
		 VALUES ($1)
		 RETURNING id, created_at
		 `

	cart := &models.Cart{UserID: userID}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&cart.ID, &cart.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return cart, nil
}

func (r *PostgresRepository) GetByUserID(ctx context.Context, userID int64) (*models.Cart, error) {
	query :=
		`SELECT id, user_id, created_at FROM carts
		 WHERE user_id = $1
		 `

	cart := &models.Cart{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&cart.ID, &cart.UserID, &cart.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return cart, nil
}
