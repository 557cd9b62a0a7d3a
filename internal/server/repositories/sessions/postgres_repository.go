package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/dmitrijs2005/storefront/internal/dbx"
	"github.com/dmitrijs2005/storefront/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Find returns the session with id unless it has expired at now.
func (r *PostgresRepository) Find(ctx context.Context, id string, now time.Time) (*models.Session, error) {
	query :=
		`SELECT id, data, expires_at FROM sessions
		 WHERE id = $1 AND expires_at > $2
		 `

	var raw []byte
	s := &models.Session{}
	err := r.db.QueryRowContext(ctx, query, id, now).Scan(&s.ID, &raw, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if err := json.Unmarshal(raw, &s.Data); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	return s, nil
}

// Save inserts or replaces the session row.
func (r *PostgresRepository) Save(ctx context.Context, s *models.Session) error {
	raw, err := json.Marshal(s.Data)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	query :=
		`INSERT INTO sessions (id, data, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE
		 SET data = EXCLUDED.data, expires_at = EXCLUDED.expires_at, updated_at = now()
		 `

	if _, err := r.db.ExecContext(ctx, query, s.ID, string(raw), s.ExpiresAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

// Delete removes the session. Deleting a missing session is not an error.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query :=
		`DELETE FROM sessions
		 WHERE id = $1
		 `

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

// DeleteExpired removes every session that expired at or before now and
// returns how many rows went.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query :=
		`DELETE FROM sessions
		 WHERE expires_at <= $1
		 `

	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return n, nil
}
