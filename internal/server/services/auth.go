// Package services contains server-side business logic: the authentication
// flows of AuthService and the session lifecycle of SessionService.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/dmitrijs2005/storefront/internal/dbx"
	"github.com/dmitrijs2005/storefront/internal/server/auth"
	"github.com/dmitrijs2005/storefront/internal/server/config"
	"github.com/dmitrijs2005/storefront/internal/server/mailer"
	"github.com/dmitrijs2005/storefront/internal/server/models"
	"github.com/dmitrijs2005/storefront/internal/server/repositories/repomanager"
)

// Notifier hands mail off for asynchronous delivery.
type Notifier interface {
	Dispatch(ctx context.Context, msg mailer.Message) <-chan error
}

// SignupInput is the raw signup form.
type SignupInput struct {
	Email           string
	Password        string
	ConfirmPassword string
}

// AuthService implements login, signup and password reset.
type AuthService struct {
	db                *sql.DB
	repomanager       repomanager.RepositoryManager
	hasher            auth.PasswordHasher
	tokens            auth.TokenGenerator
	notifier          Notifier
	mailFrom          string
	baseURL           string
	resetTokenTTL     time.Duration
	minPasswordLength int
	now               func() time.Time
}

// NewAuthService constructs an AuthService using repositories and server config.
func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config,
	hasher auth.PasswordHasher, tokens auth.TokenGenerator, notifier Notifier) *AuthService {
	return &AuthService{
		db:                db,
		repomanager:       m,
		hasher:            hasher,
		tokens:            tokens,
		notifier:          notifier,
		mailFrom:          cfg.MailFrom,
		baseURL:           cfg.BaseURL,
		resetTokenTTL:     cfg.ResetTokenTTL,
		minPasswordLength: cfg.MinPasswordLength,
		now:               time.Now,
	}
}

// Login checks credentials. Unknown email and wrong password both return
// common.ErrorUnauthorized.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, error) {
	email = NormalizeEmail(email)

	var fe fieldErrors
	if !validEmail(email) {
		fe.add("email", msgInvalidEmail)
	}
	if password == "" {
		fe.add("password", msgPasswordRequired)
	}
	if err := fe.err(); err != nil {
		return nil, err
	}

	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	if !s.hasher.Verify(password, user.Password) {
		return nil, common.ErrorUnauthorized
	}

	return user, nil
}

// Signup creates the account and its empty cart in one transaction, then
// queues the confirmation mail. A taken email yields common.ErrorAlreadyExists.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	user, err := s.CreateUser(ctx, in)
	if err != nil {
		return nil, err
	}

	s.notifier.Dispatch(ctx, mailer.SignupMessage(s.mailFrom, user.Email))

	return user, nil
}

// CreateUser is Signup without the confirmation mail.
func (s *AuthService) CreateUser(ctx context.Context, in SignupInput) (*models.User, error) {
	email := NormalizeEmail(in.Email)

	var fe fieldErrors
	if !validEmail(email) {
		fe.add("email", msgInvalidEmail)
	}
	if msg := s.passwordProblem(in.Password); msg != "" {
		fe.add("password", msg)
	}
	if in.ConfirmPassword != in.Password {
		fe.add("confirmPassword", msgPasswordMismatch)
	}
	if err := fe.err(); err != nil {
		return nil, err
	}

	if _, err := s.repomanager.Users(s.db).GetByEmail(ctx, email); err == nil {
		return nil, common.ErrorAlreadyExists
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	var user *models.User
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		u, err := s.repomanager.Users(tx).Create(ctx, &models.User{Email: email, Password: digest})
		if err != nil {
			return err
		}
		if _, err := s.repomanager.Carts(tx).Create(ctx, u.ID); err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("%w: create user: %v", common.ErrorInternal, err)
	}

	return user, nil
}

// RequestPasswordReset issues a fresh reset token for email and mails the
// link. An unknown email yields common.ErrorNotFound and nothing is stored.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	token, err := s.tokens.Generate()
	if err != nil {
		return err
	}

	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	if err := repo.SetResetToken(ctx, user.ID, token, s.now().Add(s.resetTokenTTL)); err != nil {
		return fmt.Errorf("%w: store reset token: %v", common.ErrorInternal, err)
	}

	s.notifier.Dispatch(ctx, mailer.ResetMessage(s.mailFrom, user.Email, s.ResetLink(token)))

	return nil
}

// ResetLink is the absolute URL of the new-password form for token.
func (s *AuthService) ResetLink(token string) string {
	return s.baseURL + "/reset/" + token
}

// ValidateResetToken returns the owner of a live token, or
// common.ErrInvalidToken.
func (s *AuthService) ValidateResetToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, common.ErrInvalidToken
	}

	user, err := s.repomanager.Users(s.db).FindByResetToken(ctx, token, s.now())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	return user, nil
}

// CompletePasswordReset sets a new password if userID still holds the live
// token. The token is cleared in the same statement, so it works once.
func (s *AuthService) CompletePasswordReset(ctx context.Context, userID int64, token, newPassword string) error {
	if msg := s.passwordProblem(newPassword); msg != "" {
		return &ValidationError{Errors: []FieldError{{Field: "password", Message: msg}}}
	}
	if userID <= 0 || token == "" {
		return common.ErrInvalidToken
	}

	digest, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	err = s.repomanager.Users(s.db).ConsumeResetToken(ctx, userID, token, digest, s.now())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrInvalidToken
		}
		return fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	return nil
}

// CurrentUser loads the user a session points at. A deleted user yields
// common.ErrorNotFound.
func (s *AuthService) CurrentUser(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	return user, nil
}

// Cart returns the cart owned by userID.
func (s *AuthService) Cart(ctx context.Context, userID int64) (*models.Cart, error) {
	cart, err := s.repomanager.Carts(s.db).GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	return cart, nil
}

func (s *AuthService) passwordProblem(password string) string {
	if password == "" {
		return msgPasswordRequired
	}
	if utf8.RuneCountInString(password) < s.minPasswordLength {
		return fmt.Sprintf("Please enter a password with at least %d characters.", s.minPasswordLength)
	}
	if len(password) > maxPasswordBytes {
		return msgPasswordTooLong
	}
	return ""
}
