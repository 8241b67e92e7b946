// Package pgx stores the knowledge base in PostgreSQL. Chunk embeddings live
// in a pgvector column; the entity graph is walked with recursive CTEs.
package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/leaselock"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/logger"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/store"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// Store implements store.Store on PostgreSQL. Reads run without locks under
// MVCC; commits for one knowledge base are serialized with a lease lock.
type Store struct {
	conn  pgxIConn
	locks *leaselock.Locker
	name  string
}

type StoreOption func(*Store)

// WithKnowledgeBase names the knowledge base, which scopes the commit lock.
func WithKnowledgeBase(name string) StoreOption {
	return func(s *Store) {
		s.name = name
	}
}

// New wraps an open pool or connection. The pool must have the pgvector
// types registered.
func New(conn pgxIConn, opts ...StoreOption) *Store {
	s := &Store{
		conn: conn,
		name: "default",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	if db, ok := conn.(leaselock.DB); ok {
		s.locks = leaselock.New(db, leaselock.Config{Owner: "store-"})
	}
	return s
}

// withWriteLock runs fn while holding the knowledge base commit lock.
func (s *Store) withWriteLock(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.locks == nil {
		return fn(ctx)
	}
	return s.locks.Do(ctx, leaselock.KnowledgeBaseKey(s.name), fn)
}

// Migrate applies every pending migration in dir to databaseURL.
func Migrate(databaseURL, dir string) error {
	m, err := migrate.New("file://"+dir, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	version, dirty, _ := m.Version()
	logger.Info("[Store] Migrations applied", "version", version, "dirty", dirty)
	return nil
}

func (s *Store) ExistsAnyData(ctx context.Context) (bool, error) {
	var exists bool
	err := s.conn.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM chunks) OR EXISTS (SELECT 1 FROM entities)
	`).Scan(&exists)
	return exists, err
}

var _ store.Store = (*Store)(nil)
