package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/stphkoo/solana-indexer/internal/schema"
)

// DlqStore archives terminal DLQ records in Postgres for operator querying,
// independent of (and in addition to) the best-effort sol_decoder_dlq Kafka
// topic publish.
type DlqStore struct {
	pool *Pool
}

// NewDlqStore creates a new DlqStore.
func NewDlqStore(pool *Pool) *DlqStore {
	return &DlqStore{pool: pool}
}

// Insert archives one DlqRecord. Kafka's at-least-once input topic means the
// same terminal disposition can be redelivered and re-decoded after a
// consumer restart; a (signature, reason) unique violation on that replay is
// not a failure, it's confirmation the record is already archived.
func (s *DlqStore) Insert(ctx context.Context, r schema.DlqRecord) error {
	query := `
		INSERT INTO decoder_dlq_records (
			ts, signature, slot, block_time, chain, reason, error, attempts, venue, is_v0_alt, context
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.pool.Exec(ctx, query,
		time.UnixMilli(r.Timestamp),
		r.Signature,
		r.Slot,
		r.BlockTime,
		r.Chain,
		r.Reason,
		r.Error,
		r.Attempts,
		r.Venue,
		r.IsV0ALT,
		r.Context,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("insert dlq record: %w", err)
	}
	return nil
}
