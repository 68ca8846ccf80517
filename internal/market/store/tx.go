package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	id "reyu/pkg/domain"
	dErrors "reyu/pkg/domain-errors"
	"reyu/pkg/platform/sentinel"
	txcontext "reyu/pkg/platform/tx"
)

// Every listing, bid and deal resolves to exactly one diamond, so the
// diamond id is the unit of serialization for market transactions.
const numShards = 128

const defaultTxTimeout = 5 * time.Second

// ShardedTx serializes in-memory transactions per diamond and rolls back the
// memory stores when fn fails.
type ShardedTx struct {
	shards  [numShards]sync.Mutex
	timeout time.Duration
}

func NewShardedTx(timeout time.Duration) *ShardedTx {
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}
	return &ShardedTx{timeout: timeout}
}

func (t *ShardedTx) RunInTx(ctx context.Context, key id.DiamondID, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	shard := &t.shards[shardFor(key)]
	shard.Lock()
	defer shard.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	ctx, j := withJournal(ctx)
	if err := fn(ctx); err != nil {
		j.rollback()
		return err
	}
	return nil
}

func shardFor(key id.DiamondID) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.String()))
	return h.Sum32() % numShards
}

// PostgresTx runs fn in a database transaction holding a row lock on the
// diamond, which gives the same per-diamond serialization as ShardedTx.
type PostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresTx(db *sql.DB, timeout time.Duration) *PostgresTx {
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}
	return &PostgresTx{db: db, timeout: timeout}
}

func (t *PostgresTx) RunInTx(ctx context.Context, key id.DiamondID, fn func(ctx context.Context) error) error {
	return txcontext.Run(ctx, t.db, t.timeout, func(ctx context.Context) error {
		var locked string
		err := txcontext.Exec(ctx, t.db).QueryRowContext(ctx,
			`SELECT id FROM diamonds WHERE id = $1 FOR UPDATE`, key.String()).Scan(&locked)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return sentinel.ErrNotFound
			}
			return fmt.Errorf("lock diamond: %w", err)
		}
		return fn(ctx)
	})
}
