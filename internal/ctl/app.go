// Package ctl implements pwkeeperctl, the operator tool for one-off tasks
// against the server's database: schema migrations, creating superusers and
// generating encryption keys.
package ctl

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/pwkeeper/internal/cryptox"
	"github.com/dmitrijs2005/pwkeeper/internal/logging"
	"github.com/dmitrijs2005/pwkeeper/internal/server/auth"
	"github.com/dmitrijs2005/pwkeeper/internal/server/config"
	"github.com/dmitrijs2005/pwkeeper/internal/server/services"
	"github.com/dmitrijs2005/pwkeeper/internal/server/shared/db"
	"github.com/dmitrijs2005/pwkeeper/internal/shared"
)

var ErrUnknownCommand = errors.New("unknown command")

const usage = `Usage: pwkeeperctl <command> [flags]

Commands:
  migrate           apply database migrations
  createsuperuser   create an active superuser account
  genkey            print a random ENCRYPTION_KEY value
  help              show this message

Flags are the server's: -d <dsn>, -c <config.json>, -env <file>.
`

type App struct {
	config *config.Config
	reader *bufio.Reader
	out    io.Writer
	logger logging.Logger
	open   func(ctx context.Context, dsn string) (*db.Store, error)
}

func NewApp(c *config.Config, in io.Reader, out io.Writer, l logging.Logger) *App {
	return &App{
		config: c,
		reader: bufio.NewReader(in),
		out:    out,
		logger: l.With("module", "ctl"),
		open:   db.Open,
	}
}

// Run executes one command.
func (a *App) Run(ctx context.Context, cmd string) error {
	switch cmd {
	case "migrate":
		return a.migrate(ctx)
	case "createsuperuser":
		return a.createSuperuser(ctx)
	case "genkey":
		return a.genKey()
	case "", "help", "-h", "--help":
		_, err := fmt.Fprint(a.out, usage)
		return err
	default:
		fmt.Fprint(a.out, usage)
		return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
	}
}

func (a *App) openStore(ctx context.Context) (*db.Store, error) {
	store, err := a.open(ctx, a.config.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func (a *App) migrate(ctx context.Context) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	a.logger.Info(ctx, "migrations applied")
	_, err = fmt.Fprintln(a.out, "Database is up to date.")
	return err
}

func (a *App) createSuperuser(ctx context.Context) error {
	username, err := GetSimpleText(a.reader, "Username", a.out)
	if err != nil {
		return err
	}
	email, err := GetSimpleText(a.reader, "Email", a.out)
	if err != nil {
		return err
	}

	pw, err := GetPassword("Password", a.out)
	if err != nil {
		return err
	}
	defer shared.WipeByteArray(pw)
	again, err := GetPassword("Password (again)", a.out)
	if err != nil {
		return err
	}
	defer shared.WipeByteArray(again)
	if !bytes.Equal(pw, again) {
		return errors.New("passwords do not match")
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	us := services.NewUserService(services.Deps{
		Tx:       store.Tx,
		Repos:    store.Repos,
		Hasher:   auth.NewPasswordHasher(a.config.BcryptCost),
		Notifier: services.NopNotifier{},
		Logger:   a.logger,
	})
	u, err := us.Create(ctx, services.CreateUserInput{
		Username:    username,
		Email:       email,
		Password:    string(pw),
		IsActive:    true,
		IsSuperuser: true,
	})
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(a.out, "Superuser %s <%s> created (id %s).\n", u.Username, u.Email, u.ID)
	return err
}

func (a *App) genKey() error {
	key, err := cryptox.GenerateKey()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, key)
	return err
}
