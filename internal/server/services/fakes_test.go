package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/storefront/internal/dbx"
	"github.com/dmitrijs2005/storefront/internal/server/config"
	"github.com/dmitrijs2005/storefront/internal/server/mailer"
	"github.com/dmitrijs2005/storefront/internal/server/models"
	"github.com/dmitrijs2005/storefront/internal/server/repositories/carts"
	"github.com/dmitrijs2005/storefront/internal/server/repositories/memory"
	"github.com/dmitrijs2005/storefront/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/storefront/internal/server/repositories/users"
)

var errBoom = errors.New("boom")

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.BaseURL = "http://shop.test"
	cfg.SecretKey = "k"
	return cfg
}

type fakeHasher struct {
	hashErr error
}

func (h *fakeHasher) Hash(plain string) (string, error) {
	if h.hashErr != nil {
		return "", h.hashErr
	}
	return "hashed:" + plain, nil
}

func (h *fakeHasher) Verify(plain, digest string) bool {
	return digest == "hashed:"+plain
}

type fakeTokens struct {
	mu  sync.Mutex
	n   int
	err error
}

func (g *fakeTokens) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	g.n++
	return fmt.Sprintf("tok-%d", g.n), nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (n *fakeNotifier) Dispatch(_ context.Context, msg mailer.Message) <-chan error {
	n.mu.Lock()
	n.sent = append(n.sent, msg)
	n.mu.Unlock()
	ch := make(chan error, 1)
	ch <- nil
	close(ch)
	return ch
}

func (n *fakeNotifier) messages() []mailer.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]mailer.Message(nil), n.sent...)
}

// fakeRepoManager serves the in-memory repositories unless a failing
// replacement is set.
type fakeRepoManager struct {
	*memory.Manager
	users    users.Repository
	carts    carts.Repository
	sessions sessions.Repository
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{Manager: memory.NewManager()}
}

func (m *fakeRepoManager) Users(db dbx.DBTX) users.Repository {
	if m.users != nil {
		return m.users
	}
	return m.Manager.Users(db)
}

func (m *fakeRepoManager) Carts(db dbx.DBTX) carts.Repository {
	if m.carts != nil {
		return m.carts
	}
	return m.Manager.Carts(db)
}

func (m *fakeRepoManager) Sessions(db dbx.DBTX) sessions.Repository {
	if m.sessions != nil {
		return m.sessions
	}
	return m.Manager.Sessions(db)
}

// failingUsers delegates to the wrapped repository unless an error is set
// for the call.
type failingUsers struct {
	users.Repository
	createErr     error
	getByEmailErr error
	getByIDErr    error
	setTokenErr   error
	findTokenErr  error
	consumeErr    error
}

func (f *failingUsers) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.Repository.Create(ctx, u)
}

func (f *failingUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if f.getByEmailErr != nil {
		return nil, f.getByEmailErr
	}
	return f.Repository.GetByEmail(ctx, email)
}

func (f *failingUsers) GetByID(ctx context.Context, id int64) (*models.User, error) {
	if f.getByIDErr != nil {
		return nil, f.getByIDErr
	}
	return f.Repository.GetByID(ctx, id)
}

func (f *failingUsers) SetResetToken(ctx context.Context, id int64, token string, exp time.Time) error {
	if f.setTokenErr != nil {
		return f.setTokenErr
	}
	return f.Repository.SetResetToken(ctx, id, token, exp)
}

func (f *failingUsers) FindByResetToken(ctx context.Context, token string, now time.Time) (*models.User, error) {
	if f.findTokenErr != nil {
		return nil, f.findTokenErr
	}
	return f.Repository.FindByResetToken(ctx, token, now)
}

func (f *failingUsers) ConsumeResetToken(ctx context.Context, id int64, token, digest string, now time.Time) error {
	if f.consumeErr != nil {
		return f.consumeErr
	}
	return f.Repository.ConsumeResetToken(ctx, id, token, digest, now)
}

type failingCarts struct {
	carts.Repository
	err error
}

func (f *failingCarts) Create(context.Context, int64) (*models.Cart, error) {
	return nil, f.err
}

func (f *failingCarts) GetByUserID(context.Context, int64) (*models.Cart, error) {
	return nil, f.err
}

type failingSessions struct {
	sessions.Repository
	err error
}

func (f *failingSessions) Find(context.Context, string, time.Time) (*models.Session, error) {
	return nil, f.err
}

func (f *failingSessions) Save(context.Context, *models.Session) error { return f.err }

func (f *failingSessions) Delete(context.Context, string) error { return f.err }

func (f *failingSessions) DeleteExpired(context.Context, time.Time) (int64, error) { return 0, f.err }
