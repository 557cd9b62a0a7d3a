// Package storectl implements the operator command line: applying schema
// migrations and creating accounts without going through the signup page.
package storectl

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/dmitrijs2005/storefront/internal/server"
	"github.com/dmitrijs2005/storefront/internal/server/auth"
	"github.com/dmitrijs2005/storefront/internal/server/config"
	"github.com/dmitrijs2005/storefront/internal/server/mailer"
	"github.com/dmitrijs2005/storefront/internal/server/models"
	"github.com/dmitrijs2005/storefront/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/storefront/internal/server/services"
)

// UserCreator is the part of services.AuthService the CLI needs.
type UserCreator interface {
	CreateUser(ctx context.Context, in services.SignupInput) (*models.User, error)
}

// silentNotifier drops mail; accounts created here get no confirmation.
type silentNotifier struct{}

func (silentNotifier) Dispatch(context.Context, mailer.Message) <-chan error {
	ch := make(chan error)
	close(ch)
	return ch
}

type App struct {
	config *config.Config
	in     *bufio.Reader
	out    io.Writer
	openDB func(ctx context.Context, c *config.Config, m repomanager.RepositoryManager) (*sql.DB, error)
}

func NewApp(c *config.Config, in io.Reader, out io.Writer) *App {
	return &App{
		config: c,
		in:     bufio.NewReader(in),
		out:    out,
		openDB: server.OpenDB,
	}
}

func (a *App) Run(ctx context.Context, o Options) error {
	switch o.Command {
	case CommandMigrate, CommandCreateUser:
	default:
		return fmt.Errorf("unknown command %q (want %s or %s)", o.Command, CommandMigrate, CommandCreateUser)
	}

	um := repomanager.NewPostgresRepositoryManager()
	db, err := a.openDB(ctx, a.config, um)
	if err != nil {
		return err
	}
	defer db.Close()

	if o.Command == CommandMigrate {
		fmt.Fprintln(a.out, "Migrations applied.")
		return nil
	}

	as := services.NewAuthService(db, um, a.config, auth.NewBcryptHasher(), auth.NewHexTokenGenerator(), silentNotifier{})
	return a.CreateUser(ctx, as, o.Email)
}

// CreateUser prompts for whatever is missing and creates the account.
func (a *App) CreateUser(ctx context.Context, uc UserCreator, email string) error {
	var err error
	if email == "" {
		email, err = GetSimpleText(a.in, "Enter user email", a.out)
		if err != nil {
			return err
		}
	}

	password, err := GetPassword("Enter password: ", a.out)
	if err != nil {
		return err
	}
	confirm, err := GetPassword("Repeat password: ", a.out)
	if err != nil {
		return err
	}

	user, err := uc.CreateUser(ctx, services.SignupInput{Email: email, Password: password, ConfirmPassword: confirm})
	if err != nil {
		var ve *services.ValidationError
		switch {
		case errors.As(err, &ve):
			for _, fe := range ve.Errors {
				fmt.Fprintf(a.out, "%s: %s\n", fe.Field, fe.Message)
			}
		case errors.Is(err, common.ErrorAlreadyExists):
			fmt.Fprintf(a.out, "%s is already registered\n", email)
		}
		return err
	}

	fmt.Fprintf(a.out, "Created user %d (%s)\n", user.ID, user.Email)
	return nil
}
