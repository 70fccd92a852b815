package storage

import (
	"context"

	"memory-duel-server/auth"
	"memory-duel-server/game"
)

// Backend is everything the server needs from a store. Postgres and Memory
// can be swapped for each other.
type Backend interface {
	game.Store
	auth.UserStore

	Ping(ctx context.Context) error
	Close()
}

// Ensure both stores implement Backend at compile time.
var (
	_ Backend = (*Postgres)(nil)
	_ Backend = (*Memory)(nil)
)

// Open returns a Postgres backend when databaseURL is set and an in-memory
// one otherwise.
func Open(ctx context.Context, databaseURL string) (Backend, error) {
	if databaseURL == "" {
		return NewMemory(), nil
	}
	pg, err := NewPostgres(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return pg, nil
}
