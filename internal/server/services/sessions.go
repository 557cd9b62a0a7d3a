package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/dmitrijs2005/storefront/internal/server/auth"
	"github.com/dmitrijs2005/storefront/internal/server/config"
	"github.com/dmitrijs2005/storefront/internal/server/models"
	"github.com/dmitrijs2005/storefront/internal/server/repositories/repomanager"
)

// SessionService manages server-side sessions and the signed cookie that
// refers to them.
type SessionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	tokens      auth.TokenGenerator
	secret      []byte
	ttl         time.Duration
	now         func() time.Time
}

func NewSessionService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, tokens auth.TokenGenerator) *SessionService {
	return &SessionService{
		db:          db,
		repomanager: m,
		tokens:      tokens,
		secret:      []byte(cfg.SecretKey),
		ttl:         cfg.SessionTTL,
		now:         time.Now,
	}
}

// TTL is the idle lifetime of a session.
func (s *SessionService) TTL() time.Duration { return s.ttl }

// Load resolves a cookie value to a live session. An empty, forged or
// expired cookie and a swept row all yield common.ErrorNotFound.
func (s *SessionService) Load(ctx context.Context, cookie string) (*models.Session, error) {
	if cookie == "" {
		return nil, common.ErrorNotFound
	}

	id, err := auth.ParseSessionID(cookie, s.secret)
	if err != nil {
		return nil, common.ErrorNotFound
	}

	sess, err := s.repomanager.Sessions(s.db).Find(ctx, id, s.now())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("%w: load session: %v", common.ErrorInternal, err)
	}

	return sess, nil
}

// New returns an anonymous session with a fresh id. It is not stored
// until Save.
func (s *SessionService) New() (*models.Session, error) {
	id, err := s.tokens.Generate()
	if err != nil {
		return nil, err
	}
	return &models.Session{ID: id, ExpiresAt: s.now().Add(s.ttl)}, nil
}

// Save persists sess and slides its expiry.
func (s *SessionService) Save(ctx context.Context, sess *models.Session) error {
	sess.ExpiresAt = s.now().Add(s.ttl)
	if err := s.repomanager.Sessions(s.db).Save(ctx, sess); err != nil {
		return fmt.Errorf("%w: save session: %v", common.ErrorInternal, err)
	}
	return nil
}

// NeedsRefresh reports whether more than a tenth of the TTL has passed
// since sess was last saved.
func (s *SessionService) NeedsRefresh(sess *models.Session) bool {
	return sess.ExpiresAt.Sub(s.now()) < s.ttl-s.ttl/10
}

// Cookie returns the signed cookie value for sess.
func (s *SessionService) Cookie(sess *models.Session) (string, error) {
	v, err := auth.SignSessionID(sess.ID, s.secret, s.ttl)
	if err != nil {
		return "", fmt.Errorf("%w: sign session: %v", common.ErrorInternal, err)
	}
	return v, nil
}

// CSRFToken returns the token of sess, creating one on first use. The
// second result reports whether sess changed.
func (s *SessionService) CSRFToken(sess *models.Session) (string, bool, error) {
	if sess.Data.CSRFToken != "" {
		return sess.Data.CSRFToken, false, nil
	}
	tok, err := s.tokens.Generate()
	if err != nil {
		return "", false, err
	}
	sess.Data.CSRFToken = tok
	return tok, true, nil
}

// Establish logs userID in. The previous session, if any, is deleted and
// replaced by one with a new id and a new CSRF token.
func (s *SessionService) Establish(ctx context.Context, old *models.Session, userID int64) (*models.Session, error) {
	sess, err := s.New()
	if err != nil {
		return nil, err
	}
	csrf, err := s.tokens.Generate()
	if err != nil {
		return nil, err
	}
	sess.Data = models.SessionData{IsLoggedIn: true, UserID: userID, CSRFToken: csrf}

	if old != nil {
		if err := s.repomanager.Sessions(s.db).Delete(ctx, old.ID); err != nil {
			return nil, fmt.Errorf("%w: drop session: %v", common.ErrorInternal, err)
		}
	}

	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Destroy deletes sess. A nil or never-stored session is fine.
func (s *SessionService) Destroy(ctx context.Context, sess *models.Session) error {
	if sess == nil {
		return nil
	}
	if err := s.repomanager.Sessions(s.db).Delete(ctx, sess.ID); err != nil {
		return fmt.Errorf("%w: destroy session: %v", common.ErrorInternal, err)
	}
	return nil
}

// Sweep deletes expired sessions and returns how many were removed.
func (s *SessionService) Sweep(ctx context.Context) (int64, error) {
	n, err := s.repomanager.Sessions(s.db).DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("%w: sweep sessions: %v", common.ErrorInternal, err)
	}
	return n, nil
}
