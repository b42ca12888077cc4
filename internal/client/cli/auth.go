package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dmitrijs2005/gophauth/internal/client/client"
	"github.com/dmitrijs2005/gophauth/internal/shared"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts for an email, a password and its confirmation and
// creates the account. Both secrets are wiped before returning.
func (a *App) Register(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout, "Enter password: ")
	if err != nil {
		return err
	}
	defer shared.WipeByteArray(password)

	confirmation, err := getPassword(os.Stdout, "Repeat password: ")
	if err != nil {
		return err
	}
	defer shared.WipeByteArray(confirmation)

	if err := a.authService.Register(ctx, email, password, confirmation); err != nil {
		return err
	}

	printlnFn("Success! You can log in now.")
	return nil
}

func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout, "Enter password: ")
	if err != nil {
		return err
	}
	defer shared.WipeByteArray(password)

	if err := a.authService.Login(ctx, email, password); err != nil {
		if errors.Is(err, client.ErrUnavailable) {
			a.setMode(ModeOffline)
		}
		return err
	}

	a.setMode(ModeOnline)
	printlnFn("Logged in as", a.authService.CurrentUser())
	return nil
}

func (a *App) Refresh(ctx context.Context) error {
	if err := a.authService.Refresh(ctx); err != nil {
		return err
	}
	printlnFn("Tokens refreshed")
	return nil
}

func (a *App) Me(ctx context.Context) error {
	me, err := a.authService.Me(ctx)
	if err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("%s [%s]", me.Email, strings.Join(me.Roles, ", ")))
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if err := a.authService.Logout(ctx); err != nil {
		return err
	}
	printlnFn("Logged out")
	return nil
}
