// Package models defines the rows the auth server persists.
package models

import "time"

// User is an account that can log in. Roles are role names without any
// framework prefix, e.g. "NON_SUBSCRIBED_USER".
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
