// Package client talks to the gophauth HTTP API.
//
// HTTPClient keeps the session in a cookie jar: login and refresh store the
// access and refresh token cookies, logout clears them. Me retries once
// after a refresh when the access token is no longer accepted.
//
// Transport failures match ErrUnavailable and 401 answers match
// ErrUnauthorized; every other non-2xx answer is an *APIError.
package client
