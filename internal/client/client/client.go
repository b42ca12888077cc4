package client

import "context"

// Identity is the authenticated principal as the server reports it.
type Identity struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

type Client interface {
	Register(ctx context.Context, email string, password, confirmation []byte) (string, error)
	Login(ctx context.Context, email string, password []byte) (string, error)
	Refresh(ctx context.Context) (string, error)
	Me(ctx context.Context) (*Identity, error)
	Logout(ctx context.Context) (string, error)
	Ping(ctx context.Context) error
}
