package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stphkoo/solana-indexer/internal/schema"
	pgstore "github.com/stphkoo/solana-indexer/internal/storage/postgres"
)

func TestDlqStore_Insert(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := pgstore.NewDlqStore(pool)
	ctx := context.Background()

	rec := schema.DlqRecord{
		Timestamp: 1700000000000,
		Signature: "SIG_DLQ_1",
		Slot:      42,
		Chain:     "solana",
		Reason:    schema.ReasonRPCExhausted,
		Error:     "rate limited after 3 attempts",
		Attempts:  3,
		Venue:     ptr("raydium_amm_v4"),
		IsV0ALT:   false,
	}
	require.NoError(t, store.Insert(ctx, rec))

	var count int
	row := pool.QueryRow(ctx, "SELECT count(*) FROM decoder_dlq_records WHERE signature = $1", "SIG_DLQ_1")
	require.NoError(t, row.Scan(&count))
	require.Equal(t, 1, count)
}

func TestDlqStore_Insert_ToleratesRedeliveredDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := pgstore.NewDlqStore(pool)
	ctx := context.Background()

	rec := schema.DlqRecord{
		Timestamp: 1700000000000,
		Signature: "SIG_DLQ_REDELIVERED",
		Slot:      42,
		Chain:     "solana",
		Reason:    schema.ReasonRPCExhausted,
		Error:     "rate limited after 3 attempts",
		Attempts:  3,
		Venue:     ptr("raydium_amm_v4"),
		IsV0ALT:   false,
	}
	require.NoError(t, store.Insert(ctx, rec))
	// Kafka's at-least-once delivery can hand the consumer the same
	// terminal disposition again; the second insert must be a no-op, not
	// an error, and must not create a second row.
	require.NoError(t, store.Insert(ctx, rec))

	var count int
	row := pool.QueryRow(ctx, "SELECT count(*) FROM decoder_dlq_records WHERE signature = $1", "SIG_DLQ_REDELIVERED")
	require.NoError(t, row.Scan(&count))
	require.Equal(t, 1, count)
}
