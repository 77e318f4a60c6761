// Package transaction provides an in-request operation log with reverse
// rollback. Provisioning and ingestion flows queue forward operations with
// matching compensations; when a forward fails, the compensations of every
// previously-successful operation run in LIFO order.
package transaction

import (
	"context"
	"errors"
	"fmt"

	"github.com/gmalakar/flouds-vector-go/pkg/observability"
)

// ForwardFunc performs one step of a compound operation and returns a
// result that is handed to the matching rollback on failure of a later step.
type ForwardFunc func(ctx context.Context) (interface{}, error)

// RollbackFunc compensates a completed forward operation. result is the
// value the forward returned. Rollbacks that cannot meaningfully undo
// anything (flush, idempotent grants) should be NoopRollback.
type RollbackFunc func(ctx context.Context, result interface{}) error

// NoopRollback is the identity compensation for irreversible operations.
func NoopRollback(context.Context, interface{}) error { return nil }

type operation struct {
	name     string
	forward  ForwardFunc
	rollback RollbackFunc
	result   interface{}
	done     bool
}

// Transaction is a single-use, single-goroutine operation log. It is not
// safe for concurrent use; each request builds its own.
type Transaction struct {
	name     string
	ops      []*operation
	executed bool
	logger   observability.Logger
}

// New begins a named transaction. The name appears in rollback logs only.
func New(name string, logger observability.Logger) *Transaction {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Transaction{name: name, logger: logger}
}

// Add queues a forward operation and its compensation. Panics if called
// after Execute, which would indicate a programming error in the caller.
func (t *Transaction) Add(name string, forward ForwardFunc, rollback RollbackFunc) {
	if t.executed {
		panic("transaction: Add after Execute")
	}
	if rollback == nil {
		rollback = NoopRollback
	}
	t.ops = append(t.ops, &operation{name: name, forward: forward, rollback: rollback})
}

// Len reports the number of queued operations.
func (t *Transaction) Len() int { return len(t.ops) }

// Execute runs the queued forwards in order. On the first failure it rolls
// back every previously-successful operation in reverse order and returns
// the original cause, annotated with any rollback failures. A transaction
// that is never executed is a no-op.
//
// Rollbacks run even when the failure was a context cancellation: partial
// provisioning state must not survive a client disconnect, so the rollback
// chain runs under a context detached from the request's cancellation.
func (t *Transaction) Execute(ctx context.Context) ([]interface{}, error) {
	if t.executed {
		return nil, fmt.Errorf("transaction %s: already executed", t.name)
	}
	t.executed = true

	results := make([]interface{}, 0, len(t.ops))
	for i, op := range t.ops {
		if err := ctx.Err(); err != nil {
			return nil, t.rollback(ctx, i, fmt.Errorf("transaction %s: %w", t.name, err))
		}
		res, err := op.forward(ctx)
		if err != nil {
			return nil, t.rollback(ctx, i, fmt.Errorf("transaction %s: step %s: %w", t.name, op.name, err))
		}
		op.result = res
		op.done = true
		results = append(results, res)
	}
	return results, nil
}

func (t *Transaction) rollback(ctx context.Context, failedIdx int, cause error) error {
	rbCtx := context.WithoutCancel(ctx)

	var rollbackErrs []error
	for i := failedIdx - 1; i >= 0; i-- {
		op := t.ops[i]
		if !op.done {
			continue
		}
		if err := op.rollback(rbCtx, op.result); err != nil {
			t.logger.Warn("rollback step failed", map[string]interface{}{
				"transaction": t.name,
				"step":        op.name,
				"error":       err.Error(),
			})
			rollbackErrs = append(rollbackErrs, fmt.Errorf("rollback %s: %w", op.name, err))
			continue
		}
		t.logger.Debug("rolled back step", map[string]interface{}{
			"transaction": t.name,
			"step":        op.name,
		})
	}

	if len(rollbackErrs) > 0 {
		return fmt.Errorf("%w (rollback errors: %w)", cause, errors.Join(rollbackErrs...))
	}
	return cause
}
