// Package cli provides the interactive gophauth command-line client.
//
// It wires configuration, the HTTP API client and an interactive REPL with
// register, login, refresh, me and logout. A background watcher pings the
// server and shows whether it is reachable.
//
// The REPL is started via App.Root(ctx), which blocks until the user exits.
package cli
