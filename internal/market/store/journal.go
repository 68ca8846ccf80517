package store

import "context"

// journal collects undo steps for the in-memory stores while a transaction
// is open. Stores call recordUndo after each mutation; ShardedTx replays the
// steps in reverse when the transaction function fails.
type journal struct {
	undo []func()
}

type journalKey struct{}

func withJournal(ctx context.Context) (context.Context, *journal) {
	j := &journal{}
	return context.WithValue(ctx, journalKey{}, j), j
}

func recordUndo(ctx context.Context, undo func()) {
	if j, ok := ctx.Value(journalKey{}).(*journal); ok {
		j.undo = append(j.undo, undo)
	}
}

func (j *journal) rollback() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}
