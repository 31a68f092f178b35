package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

func TestWithTxRequiresPool(t *testing.T) {
	called := false
	err := WithTx(context.Background(), nil, func(pgx.Tx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrNoPool)
	require.False(t, called)

	err = WithTxOptions(context.Background(), nil, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(pgx.Tx) error { return nil })
	require.ErrorIs(t, err, ErrNoPool)
}

func TestNewRejectsBadDSN(t *testing.T) {
	_, err := New(context.Background(), "postgres://%zz", PoolOptions{})
	require.Error(t, err)
}
