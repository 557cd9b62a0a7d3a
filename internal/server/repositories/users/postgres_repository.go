package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/dmitrijs2005/storefront/internal/dbx"
	"github.com/dmitrijs2005/storefront/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const userColumns = `id, email, password, reset_token, reset_token_expiration, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(&user.ID, &user.Email, &user.Password, &user.ResetToken, &user.ResetTokenExpiration, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

// Create inserts user and fills in ID and timestamps. A duplicate email
// yields common.ErrorAlreadyExists.
func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {

	query :=
		`INSERT INTO users (email, password)
         VALUES ($1, $2)
		 RETURNING id, created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.Email, user.Password).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query :=
		`SELECT ` + userColumns + ` FROM users
		 WHERE email = $1
		 `

	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query :=
		`SELECT ` + userColumns + ` FROM users
		 WHERE id = $1
		 `

	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

// SetResetToken overwrites any previous token of the user.
func (r *PostgresRepository) SetResetToken(ctx context.Context, id int64, token string, expiration time.Time) error {
	query :=
		`UPDATE users SET reset_token = $2, reset_token_expiration = $3, updated_at = now()
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query, id, token, expiration)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return requireOneRow(res)
}

// FindByResetToken returns the user holding token while it is still live
// at now. Unknown and expired tokens both yield common.ErrorNotFound.
func (r *PostgresRepository) FindByResetToken(ctx context.Context, token string, now time.Time) (*models.User, error) {
	query :=
		`SELECT ` + userColumns + ` FROM users
		 WHERE reset_token = $1 AND reset_token_expiration > $2
		 `

	return scanUser(r.db.QueryRowContext(ctx, query, token, now))
}

// ConsumeResetToken stores a new password digest and clears the reset
// fields, but only if id still holds a live token. Otherwise it returns
// common.ErrorNotFound and changes nothing.
func (r *PostgresRepository) ConsumeResetToken(ctx context.Context, id int64, token string, passwordDigest string, now time.Time) error {
	query :=
		`UPDATE users
		 SET password = $3, reset_token = NULL, reset_token_expiration = NULL, updated_at = now()
		 WHERE id = $1 AND reset_token = $2 AND reset_token_expiration > $4
		 `

	res, err := r.db.ExecContext(ctx, query, id, token, passwordDigest, now)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return requireOneRow(res)
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
