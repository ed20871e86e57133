package clickhouse

import (
	"context"
	"fmt"

	"github.com/stphkoo/solana-indexer/internal/schema"
)

// DeltaStore lands the decoder's three JSON output streams into ClickHouse.
// It is the P3 sink's write path for sol_balance_deltas, sol_token_balance_deltas
// and sol_swaps.
type DeltaStore struct {
	conn *Conn
}

// NewDeltaStore creates a new DeltaStore.
func NewDeltaStore(conn *Conn) *DeltaStore {
	return &DeltaStore{conn: conn}
}

// InsertNativeDeltas batch-inserts NativeBalanceDelta rows.
func (s *DeltaStore) InsertNativeDeltas(ctx context.Context, rows []schema.NativeBalanceDelta) error {
	if len(rows) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO sol_balance_deltas (
			slot, block_time, signature, account, pre_balance, post_balance, delta
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, r := range rows {
		if err := batch.Append(r.Slot, r.BlockTime, r.Signature, r.Account, r.PreBalance, r.PostBalance, r.Delta); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// InsertTokenDeltas batch-inserts TokenBalanceDelta rows.
func (s *DeltaStore) InsertTokenDeltas(ctx context.Context, rows []schema.TokenBalanceDelta) error {
	if len(rows) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO sol_token_balance_deltas (
			slot, block_time, signature, account_index, mint, decimals, pre_amount, post_amount, delta
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, r := range rows {
		if err := batch.Append(r.Slot, r.BlockTime, r.Signature, r.AccountIndex, r.Mint, r.Decimals, r.PreAmount, r.PostAmount, r.Delta); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// InsertSwaps batch-inserts SwapEvent rows. Amounts are stored as the
// decimal strings rendered from schema.SwapEvent's decimal.Decimal fields.
func (s *DeltaStore) InsertSwaps(ctx context.Context, rows []schema.SwapEvent) error {
	if len(rows) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO sol_swaps (
			schema_version, chain, slot, block_time, signature, index_in_block, index_in_tx,
			hop_index, venue, pool_id, trader, in_mint, in_amount, out_mint, out_amount,
			fee_mint, fee_amount, route_id, confidence, confidence_reasons_bitmap, explain
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, r := range rows {
		var feeAmount *string
		if r.FeeAmount != nil {
			s := r.FeeAmount.String()
			feeAmount = &s
		}
		err := batch.Append(
			r.SchemaVersion, r.Chain, r.Slot, r.BlockTime, r.Signature, r.IndexInBlock, r.IndexInTx,
			r.HopIndex, r.Venue, r.PoolID, r.Trader, r.InMint, r.InAmount.String(), r.OutMint, r.OutAmount.String(),
			r.FeeMint, feeAmount, r.RouteID, r.Confidence, r.ConfidenceReasonsBitmap, r.Explain,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}
