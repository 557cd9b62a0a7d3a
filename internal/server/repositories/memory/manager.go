// Package memory implements the repositories over process memory. All
// repositories handed out by one Manager share state, and the DBTX passed
// in is ignored, so writes inside a transaction are not rolled back.
package memory

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/dmitrijs2005/storefront/internal/dbx"
	"github.com/dmitrijs2005/storefront/internal/server/models"
	"github.com/dmitrijs2005/storefront/internal/server/repositories/carts"
	"github.com/dmitrijs2005/storefront/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/storefront/internal/server/repositories/users"
)

type Manager struct {
	mu       sync.Mutex
	nextUser int64
	nextCart int64
	users    map[int64]*models.User
	carts    map[int64]*models.Cart
	sessions map[string]*models.Session
}

func NewManager() *Manager {
	return &Manager{
		users:    make(map[int64]*models.User),
		carts:    make(map[int64]*models.Cart),
		sessions: make(map[string]*models.Session),
	}
}

func (m *Manager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *Manager) Users(dbx.DBTX) users.Repository       { return (*userRepo)(m) }
func (m *Manager) Carts(dbx.DBTX) carts.Repository       { return (*cartRepo)(m) }
func (m *Manager) Sessions(dbx.DBTX) sessions.Repository { return (*sessionRepo)(m) }

// UserCount, CartCount and SessionCount expose sizes for assertions.
func (m *Manager) UserCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

func (m *Manager) CartCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.carts)
}

func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// DeleteUser removes a user and, like ON DELETE CASCADE, the cart.
func (m *Manager) DeleteUser(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	delete(m.carts, id)
}

func copyUser(u *models.User) *models.User {
	c := *u
	if u.ResetToken != nil {
		t := *u.ResetToken
		c.ResetToken = &t
	}
	if u.ResetTokenExpiration != nil {
		e := *u.ResetTokenExpiration
		c.ResetTokenExpiration = &e
	}
	return &c
}

type userRepo Manager

func (r *userRepo) Create(_ context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Email == user.Email {
			return nil, common.ErrorAlreadyExists
		}
	}

	r.nextUser++
	now := time.Now()
	user.ID = r.nextUser
	user.CreatedAt, user.UpdatedAt = now, now
	r.users[user.ID] = copyUser(user)
	return user, nil
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *userRepo) GetByID(_ context.Context, id int64) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return copyUser(u), nil
}

func (r *userRepo) SetResetToken(_ context.Context, id int64, token string, expiration time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.ResetToken = &token
	u.ResetTokenExpiration = &expiration
	u.UpdatedAt = time.Now()
	return nil
}

func live(u *models.User, token string, now time.Time) bool {
	return u.ResetToken != nil && *u.ResetToken == token &&
		u.ResetTokenExpiration != nil && u.ResetTokenExpiration.After(now)
}

func (r *userRepo) FindByResetToken(_ context.Context, token string, now time.Time) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if live(u, token, now) {
			return copyUser(u), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *userRepo) ConsumeResetToken(_ context.Context, id int64, token string, passwordDigest string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok || !live(u, token, now) {
		return common.ErrorNotFound
	}
	u.Password = passwordDigest
	u.ResetToken = nil
	u.ResetTokenExpiration = nil
	u.UpdatedAt = time.Now()
	return nil
}

type cartRepo Manager

func (r *cartRepo) Create(_ context.Context, userID int64) (*models.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.carts[userID]; ok {
		return nil, common.ErrorAlreadyExists
	}
	if _, ok := r.users[userID]; !ok {
		return nil, common.ErrorNotFound
	}

	r.nextCart++
	c := &models.Cart{ID: r.nextCart, UserID: userID, CreatedAt: time.Now()}
	r.carts[userID] = c
	out := *c
	return &out, nil
}

func (r *cartRepo) GetByUserID(_ context.Context, userID int64) (*models.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.carts[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	out := *c
	return &out, nil
}

type sessionRepo Manager

func copySession(s *models.Session) *models.Session {
	c := *s
	if s.Data.Flash != nil {
		c.Data.Flash = make(map[string][]string, len(s.Data.Flash))
		for k, v := range s.Data.Flash {
			c.Data.Flash[k] = append([]string(nil), v...)
		}
	}
	return &c
}

func (r *sessionRepo) Find(_ context.Context, id string, now time.Time) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || !s.ExpiresAt.After(now) {
		return nil, common.ErrorNotFound
	}
	return copySession(s), nil
}

func (r *sessionRepo) Save(_ context.Context, s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[s.ID] = copySession(s)
	return nil
}

func (r *sessionRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	return nil
}

func (r *sessionRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, s := range r.sessions {
		if !s.ExpiresAt.After(now) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}
