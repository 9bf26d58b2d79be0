package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lalith-99/studybuddy/internal/repository"
)

// DBTX is the query surface shared by *pgxpool.Pool, pgx.Tx and pgxmock.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool is a DBTX that can open transactions.
type Pool interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// uniqueViolation is the SQLSTATE Postgres reports for a unique key collision.
const uniqueViolation = "23505"

type txKey struct{}

// conn returns the transaction carried by ctx, or the pool when there is none.
// Every store method goes through it, which is what lets a service compose
// several repository calls into one WithinTx.
func conn(ctx context.Context, pool Pool) DBTX {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}

// TxManager implements repository.Transactor on a pgx pool.
type TxManager struct {
	pool Pool
}

func NewTxManager(pool Pool) *TxManager {
	return &TxManager{pool: pool}
}

func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		// Rollback after a failed statement is expected to succeed; if it
		// doesn't, the connection is discarded by the pool anyway.
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("rollback tx: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// NewStore wires every Postgres repository onto one pool.
func NewStore(pool Pool) repository.Store {
	return repository.Store{
		Tx:            NewTxManager(pool),
		Users:         NewUserStore(pool),
		Communities:   NewCommunityStore(pool),
		Memberships:   NewMembershipStore(pool),
		Notifications: NewNotificationStore(pool),
		Posts:         NewPostStore(pool),
		Rooms:         NewStudyRoomStore(pool),
		Messages:      NewMessageStore(pool),
		Resources:     NewResourceStore(pool),
		CascadeJobs:   NewCascadeJobStore(pool),
	}
}
