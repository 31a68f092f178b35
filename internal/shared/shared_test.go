package shared

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestActorFromContext(t *testing.T) {
	require.Equal(t, SystemActor, ActorFromContext(context.Background()))
	ctx := ContextWithActor(context.Background(), "maria")
	require.Equal(t, "maria", ActorFromContext(ctx))
	require.Equal(t, SystemActor, ActorFromContext(ContextWithActor(context.Background(), "")))
}

func TestAuditPrepare(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	logger := &AuditLogger{now: func() time.Time { return at }}

	_, err := logger.Prepare(context.Background(), AuditLog{Action: "ORDER_PAYMENT"})
	require.ErrorIs(t, err, ErrAuditIncomplete)

	ctx := ContextWithActor(context.Background(), "compras")
	log, err := logger.Prepare(ctx, AuditLog{Action: "ORDER_PAYMENT", Entity: "supplier_order", EntityID: "7"})
	require.NoError(t, err)
	require.Equal(t, "compras", log.Actor)
	require.Equal(t, at, log.At)
	require.NotNil(t, log.Meta)
}

func TestRecordWithoutPool(t *testing.T) {
	var logger *AuditLogger
	require.Error(t, logger.Record(context.Background(), AuditLog{Action: "a", Entity: "b", EntityID: "c"}))
}

func TestIsUniqueViolation(t *testing.T) {
	require.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	require.False(t, IsUniqueViolation(fmt.Errorf("plain")))
}

func TestIdempotencyStoreGuards(t *testing.T) {
	var store *IdempotencyStore
	require.Error(t, store.CheckAndInsert(context.Background(), "k", "m"))
	require.NoError(t, store.Delete(context.Background(), "k"))
	require.NoError(t, store.Cleanup(context.Background(), time.Hour))

	store = NewIdempotencyStore(nil)
	require.EqualError(t, store.CheckAndInsert(context.Background(), "", "m"), "idempotency key required")
	require.EqualError(t, store.CheckAndInsert(context.Background(), "k", ""), "idempotency module required")
	require.Error(t, store.CheckAndInsert(context.Background(), strings.Repeat("k", 256), "m"))
	require.NoError(t, store.Cleanup(context.Background(), 0))
}
