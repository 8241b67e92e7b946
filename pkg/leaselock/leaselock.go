// Package leaselock serializes knowledge base commits across processes with
// expiring rows in the app_locks table. A held lease keeps extending its row
// until it is unlocked; if the row is taken over the lease context is
// cancelled with ErrLost.
package leaselock

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/util"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	ErrBusy = errors.New("lease lock busy")
	ErrLost = errors.New("lease lock lost")
)

// KnowledgeBaseKey is the lock key that guards commits to one knowledge base.
func KnowledgeBaseKey(name string) string {
	return "kb:" + name
}

// DB is the subset of pgxpool.Pool and pgx.Tx the locker needs.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Config tunes a Locker. Zero fields take defaults.
type Config struct {
	// TTL is how long a row stays valid without renewal.
	TTL time.Duration
	// RenewEvery must be shorter than TTL.
	RenewEvery time.Duration
	// PollMin and PollMax bound the exponential wait between attempts in
	// Lock.
	PollMin time.Duration
	PollMax time.Duration
	// Owner prefixes the token stored in app_locks.locked_by.
	Owner string
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = 5 * time.Minute
	}
	if c.RenewEvery <= 0 || c.RenewEvery >= c.TTL {
		c.RenewEvery = c.TTL / 2
	}
	if c.PollMin <= 0 {
		c.PollMin = 50 * time.Millisecond
	}
	if c.PollMax < c.PollMin {
		c.PollMax = max(time.Second, c.PollMin)
	}
	if c.Owner == "" {
		c.Owner = "pkg-"
	}
	return c
}

type Locker struct {
	db  DB
	cfg Config
}

func New(db DB, cfg Config) *Locker {
	return &Locker{db: db, cfg: cfg.withDefaults()}
}

// Lease is a held lock row.
type Lease struct {
	key    string
	token  string
	locker *Locker

	ctx    context.Context
	cancel context.CancelCauseFunc
	done   chan struct{}
	once   sync.Once
}

func (l *Lease) Key() string { return l.key }

// Context is cancelled when the lease is unlocked or lost.
func (l *Lease) Context() context.Context { return l.ctx }

func (lk *Locker) newToken() (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", err
	}
	return lk.cfg.Owner + id, nil
}

// claim inserts or takes over an expired row. It reports ErrBusy when
// another owner holds key.
func (lk *Locker) claim(ctx context.Context, key, token string) error {
	var got string
	err := lk.db.QueryRow(ctx, claimSQL, key, token, lk.cfg.TTL.Milliseconds()).Scan(&got)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrBusy
	case err != nil:
		return err
	}
	return nil
}

func (lk *Locker) hold(ctx context.Context, key, token string) *Lease {
	leaseCtx, cancel := context.WithCancelCause(ctx)
	l := &Lease{
		key:    key,
		token:  token,
		locker: lk,
		ctx:    leaseCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go l.keepAlive()
	return l
}

// TryLock takes key if it is free and returns ErrBusy otherwise.
func (lk *Locker) TryLock(ctx context.Context, key string) (*Lease, error) {
	if key == "" {
		return nil, errors.New("lease lock key is empty")
	}
	token, err := lk.newToken()
	if err != nil {
		return nil, err
	}
	if err := lk.claim(ctx, key, token); err != nil {
		return nil, err
	}
	return lk.hold(ctx, key, token), nil
}

// Lock waits until key is free or ctx is done. Database errors end the wait.
func (lk *Locker) Lock(ctx context.Context, key string) (*Lease, error) {
	if key == "" {
		return nil, errors.New("lease lock key is empty")
	}
	token, err := lk.newToken()
	if err != nil {
		return nil, err
	}
	backoff := util.ExponentialBackoff(lk.cfg.PollMin, lk.cfg.PollMax)
	_, err = util.RetryWithBackoff(ctx, math.MaxInt, backoff, func(ctx context.Context) (struct{}, error) {
		err := lk.claim(ctx, key, token)
		if err != nil && !errors.Is(err, ErrBusy) {
			return struct{}{}, util.Permanent(err)
		}
		return struct{}{}, err
	})
	if err != nil {
		return nil, err
	}
	return lk.hold(ctx, key, token), nil
}

// Do runs fn while holding key. fn receives the lease context.
func (lk *Locker) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lease, err := lk.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer lease.Unlock(context.WithoutCancel(ctx))
	return fn(lease.ctx)
}

// Unlock stops renewal and deletes the row if this lease still owns it. It
// is safe to call more than once.
func (l *Lease) Unlock(ctx context.Context) error {
	l.once.Do(func() { l.cancel(context.Canceled) })
	<-l.done
	_, err := l.locker.db.Exec(ctx, unlockSQL, l.key, l.token)
	return err
}

func (l *Lease) keepAlive() {
	defer close(l.done)
	t := time.NewTicker(l.locker.cfg.RenewEvery)
	defer t.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-t.C:
			if err := l.renew(); err != nil {
				l.cancel(err)
				return
			}
		}
	}
}

// renew extends the row. Transient errors are retried a few times; a
// missing row means another owner took over.
func (l *Lease) renew() error {
	backoff := util.ExponentialBackoff(200*time.Millisecond, time.Second)
	_, err := util.RetryWithBackoff(l.ctx, 3, backoff, func(ctx context.Context) (struct{}, error) {
		ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		var got string
		err := l.locker.db.QueryRow(ctx, renewSQL, l.key, l.token, l.locker.cfg.TTL.Milliseconds()).Scan(&got)
		if errors.Is(err, pgx.ErrNoRows) {
			return struct{}{}, util.Permanent(ErrLost)
		}
		return struct{}{}, err
	})
	if errors.Is(err, context.Canceled) && l.ctx.Err() != nil {
		return nil
	}
	return err
}

const claimSQL = `
INSERT INTO app_locks (lock_key, locked_by, expires_at)
VALUES ($1, $2, now() + ($3::bigint * interval '1 millisecond'))
ON CONFLICT (lock_key) DO UPDATE
SET locked_by  = EXCLUDED.locked_by,
    expires_at = EXCLUDED.expires_at
WHERE app_locks.expires_at < now()
   OR app_locks.locked_by = EXCLUDED.locked_by
RETURNING lock_key;
`

const renewSQL = `
UPDATE app_locks
SET expires_at = now() + ($3::bigint * interval '1 millisecond')
WHERE lock_key = $1 AND locked_by = $2
RETURNING lock_key;
`

const unlockSQL = `
DELETE FROM app_locks
WHERE lock_key = $1 AND locked_by = $2;
`
