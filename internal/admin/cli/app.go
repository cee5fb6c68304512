// Package cli implements notekeeper-admin, the operator tool that runs
// maintenance commands directly against the server's database and keystore.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/notekeeper/internal/server/models"
	"github.com/dmitrijs2005/notekeeper/internal/server/services"
)

var ErrUsage = errors.New("usage: notekeeper-admin create-admin | delete-user <id> | delete-note <id> | purge-users | sweep")

type userCreator interface {
	CreateAdmin(ctx context.Context, adminKey string, in services.SignUpInput) (*models.User, error)
}

type adminOps interface {
	DeleteUser(ctx context.Context, userID string) error
	DeleteAllUsers(ctx context.Context) (int, error)
	DeleteNote(ctx context.Context, noteID string) error
}

type sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

type App struct {
	users    userCreator
	admin    adminOps
	reaper   sweeper
	adminKey string
	in       *bufio.Reader
	out      io.Writer
}

func NewApp(users userCreator, admin adminOps, reaper sweeper, adminKey string, in io.Reader, out io.Writer) *App {
	return &App{
		users:    users,
		admin:    admin,
		reaper:   reaper,
		adminKey: adminKey,
		in:       bufio.NewReader(in),
		out:      out,
	}
}

// CommandArgs returns the leading non-flag arguments. Flags for the server
// configuration follow the command.
func CommandArgs(args []string) []string {
	for i, a := range args {
		if strings.HasPrefix(a, "-") {
			return args[:i]
		}
	}
	return args
}

// Run executes the command named by args[0].
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return ErrUsage
	}

	switch args[0] {
	case "create-admin":
		return a.createAdmin(ctx)
	case "delete-user":
		if len(args) != 2 {
			return ErrUsage
		}
		if err := a.admin.DeleteUser(ctx, args[1]); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "user deleted")
		return nil
	case "delete-note":
		if len(args) != 2 {
			return ErrUsage
		}
		if err := a.admin.DeleteNote(ctx, args[1]); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "note deleted")
		return nil
	case "purge-users":
		return a.purgeUsers(ctx)
	case "sweep":
		n, err := a.reaper.Sweep(ctx)
		fmt.Fprintf(a.out, "expired notes deleted: %d\n", n)
		return err
	default:
		return ErrUsage
	}
}

func (a *App) createAdmin(ctx context.Context) error {
	name, err := GetSimpleText(a.in, "Username", a.out)
	if err != nil {
		return err
	}
	email, err := GetSimpleText(a.in, "Email", a.out)
	if err != nil {
		return err
	}
	password, err := GetPassword(a.out, "Password")
	if err != nil {
		return err
	}
	again, err := GetPassword(a.out, "Repeat password")
	if err != nil {
		return err
	}
	if password != again {
		return errors.New("passwords do not match")
	}

	user, err := a.users.CreateAdmin(ctx, a.adminKey, services.SignUpInput{
		UserName: name,
		Email:    email,
		Password: password,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "admin %s created (id %s)\n", user.UserName, user.ID)
	return nil
}

func (a *App) purgeUsers(ctx context.Context) error {
	ok, err := Confirm(a.in, "Delete every non-admin user and their notes?", a.out)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(a.out, "aborted")
		return nil
	}
	n, err := a.admin.DeleteAllUsers(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "users deleted: %d\n", n)
	return nil
}
