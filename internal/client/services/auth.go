// Package services contains application services for the gophauth client.
// This file defines the authentication service: register, login, token
// refresh, identity lookup and logout over the API client.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dmitrijs2005/gophauth/internal/client/client"
)

// AuthService defines authentication operations for the CLI.
//
// CurrentUser returns the email of the logged-in user, or "" when the
// session is closed or the server refused to refresh it.
type AuthService interface {
	Register(ctx context.Context, email string, password, confirmation []byte) error
	Login(ctx context.Context, email string, password []byte) error
	Refresh(ctx context.Context) error
	Me(ctx context.Context) (*client.Identity, error)
	Logout(ctx context.Context) error
	Ping(ctx context.Context) error
	CurrentUser() string
}

type authService struct {
	client client.Client

	mu   sync.Mutex
	user string
}

// NewAuthService constructs an AuthService bound to the given API client.
func NewAuthService(c client.Client) AuthService {
	return &authService{client: c}
}

func (a *authService) setUser(email string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.user = email
}

func (a *authService) CurrentUser() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.user
}

func (a *authService) Register(ctx context.Context, email string, password, confirmation []byte) error {
	if _, err := a.client.Register(ctx, strings.TrimSpace(email), password, confirmation); err != nil {
		return fmt.Errorf("register error: %w", err)
	}
	return nil
}

// Login opens a session; the cookies stay inside the API client.
func (a *authService) Login(ctx context.Context, email string, password []byte) error {
	if _, err := a.client.Login(ctx, strings.TrimSpace(email), password); err != nil {
		return fmt.Errorf("login error: %w", err)
	}

	// the server owns the canonical form of the email
	me, err := a.client.Me(ctx)
	if err != nil {
		a.setUser(strings.ToLower(strings.TrimSpace(email)))
		return nil
	}
	a.setUser(me.Email)
	return nil
}

func (a *authService) Refresh(ctx context.Context) error {
	if _, err := a.client.Refresh(ctx); err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			a.setUser("")
		}
		return fmt.Errorf("refresh error: %w", err)
	}
	return nil
}

func (a *authService) Me(ctx context.Context) (*client.Identity, error) {
	me, err := a.client.Me(ctx)
	if err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			a.setUser("")
		}
		return nil, err
	}
	a.setUser(me.Email)
	return me, nil
}

func (a *authService) Logout(ctx context.Context) error {
	if _, err := a.client.Logout(ctx); err != nil {
		return fmt.Errorf("logout error: %w", err)
	}
	a.setUser("")
	return nil
}

// Ping proxies a liveness check to the underlying client.
func (a *authService) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}
