package clickhouse_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	chstore "github.com/stphkoo/solana-indexer/internal/storage/clickhouse"
	"github.com/stphkoo/solana-indexer/internal/schema"
)

func TestDeltaStore_InsertAndQuery(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := chstore.NewDeltaStore(conn)
	ctx := context.Background()

	err := store.InsertNativeDeltas(ctx, []schema.NativeBalanceDelta{
		{Slot: 100, Signature: "SIG1", Account: "ACC1", PreBalance: 1000, PostBalance: 900, Delta: -100},
	})
	require.NoError(t, err)

	err = store.InsertTokenDeltas(ctx, []schema.TokenBalanceDelta{
		{Slot: 100, Signature: "SIG1", AccountIndex: 3, Mint: "MINT1", Decimals: ptr(uint8(6)), PreAmount: 500, PostAmount: 400, Delta: -100},
	})
	require.NoError(t, err)

	ev := schema.SwapEvent{
		SchemaVersion: schema.CurrentSchemaVersion,
		Chain:         "solana",
		Slot:          100,
		Signature:     "SIG1",
		IndexInTx:     0,
		Venue:         "raydium_amm_v4",
		Trader:        "TRADER1",
		InMint:        "MINT_IN",
		InAmount:      decimal.NewFromInt(1000),
		OutMint:       "MINT_OUT",
		OutAmount:     decimal.NewFromInt(2000),
		Confidence:    100,
	}
	err = store.InsertSwaps(ctx, []schema.SwapEvent{ev})
	require.NoError(t, err)

	var count uint64
	row := conn.QueryRow(ctx, "SELECT count() FROM sol_swaps WHERE signature = $1", "SIG1")
	require.NoError(t, row.Scan(&count))
	require.Equal(t, uint64(1), count)
}

func TestDeltaStore_EmptyBatchIsNoop(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := chstore.NewDeltaStore(conn)
	ctx := context.Background()

	require.NoError(t, store.InsertNativeDeltas(ctx, nil))
	require.NoError(t, store.InsertTokenDeltas(ctx, nil))
	require.NoError(t, store.InsertSwaps(ctx, nil))
}
