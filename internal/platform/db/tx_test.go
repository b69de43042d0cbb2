package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	commitErr  error
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(ctx context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.rolledBack = true
	return nil
}

type fakeStarter struct {
	tx       *fakeTx
	err      error
	lastOpts pgx.TxOptions
}

func (s *fakeStarter) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	s.lastOpts = opts
	if s.err != nil {
		return nil, s.err
	}
	return s.tx, nil
}

func TestWithTxCommits(t *testing.T) {
	starter := &fakeStarter{tx: &fakeTx{}}
	require.NoError(t, WithTx(context.Background(), starter, func(pgx.Tx) error { return nil }))
	assert.True(t, starter.tx.committed)
	assert.False(t, starter.tx.rolledBack)
	assert.Equal(t, pgx.RepeatableRead, starter.lastOpts.IsoLevel)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	starter := &fakeStarter{tx: &fakeTx{}}
	boom := errors.New("duplicate role")
	err := WithTx(context.Background(), starter, func(pgx.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.False(t, starter.tx.committed)
	assert.True(t, starter.tx.rolledBack)
}

func TestWithTxCommitAndBeginFailures(t *testing.T) {
	starter := &fakeStarter{tx: &fakeTx{commitErr: errors.New("serialization failure")}}
	err := WithTxOptions(context.Background(), starter, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(pgx.Tx) error { return nil })
	require.ErrorContains(t, err, "commit tx")
	assert.True(t, starter.tx.rolledBack)
	assert.Equal(t, pgx.Serializable, starter.lastOpts.IsoLevel)

	err = WithTx(context.Background(), &fakeStarter{err: errors.New("pool closed")}, func(pgx.Tx) error {
		t.Fatal("fn must not run")
		return nil
	})
	require.ErrorContains(t, err, "begin tx")
}
