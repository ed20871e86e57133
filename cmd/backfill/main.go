// Command backfill replays a historical slot range (P2): for each slot it
// lists the block's transaction signatures via getBlock and publishes a
// minimal RawTxEnvelope per signature to the input Kafka topic, exactly as
// the live streamer does. It never fetches the full transaction itself;
// C1 hydration happens once the envelope reaches the decoder.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/stphkoo/solana-indexer/internal/config"
	"github.com/stphkoo/solana-indexer/internal/kafkaio"
	"github.com/stphkoo/solana-indexer/internal/schema"
	"github.com/stphkoo/solana-indexer/internal/solrpc"
)

func main() {
	config.LoadEnvFile(".env")

	logger := log.New(os.Stdout, "[backfill] ", log.LstdFlags|log.Lshortfile)

	rpcEndpoint := config.String("BACKFILL_RPC_ENDPOINT", "")
	if rpcEndpoint == "" {
		logger.Fatal("BACKFILL_RPC_ENDPOINT is required")
	}
	fromSlot := config.Uint64("BACKFILL_FROM_SLOT", 0)
	toSlot := config.Uint64("BACKFILL_TO_SLOT", 0)
	if toSlot < fromSlot {
		logger.Fatalf("BACKFILL_TO_SLOT (%d) must be >= BACKFILL_FROM_SLOT (%d)", toSlot, fromSlot)
	}
	concurrency := config.Int("BACKFILL_CONCURRENCY", 4)
	maxTxVersion := config.Int("RPC_MAX_TX_VERSION", 1)

	brokers := config.List("KAFKA_BROKERS", []string{"localhost:9092"})
	inputTopic := config.String("KAFKA_INPUT_TOPIC", "sol_raw_tx_envelopes")

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("received signal %v, shutting down", sig)
		cancel()
	}()

	client := solrpc.NewClient(rpcEndpoint, solrpc.DefaultRequestTimeout)
	writer := kafkaio.NewWriter(brokers, inputTopic)
	defer writer.Close()

	logger.Printf("backfill starting: rpc=%s slots=[%d,%d] concurrency=%d topic=%s",
		rpcEndpoint, fromSlot, toSlot, concurrency, inputTopic)

	slots := make(chan uint64)
	go func() {
		defer close(slots)
		for slot := fromSlot; slot <= toSlot; slot++ {
			select {
			case slots <- slot:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	var processed, published uint64
	var mu sync.Mutex

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for slot := range slots {
				n, err := backfillSlot(ctx, client, writer, slot, uint8(maxTxVersion))
				mu.Lock()
				processed++
				published += uint64(n)
				p := processed
				mu.Unlock()
				if err != nil && !errors.Is(err, solrpc.ErrNotFound) {
					logger.Printf("slot %d: %v", slot, err)
				}
				if p%500 == 0 {
					logger.Printf("progress: slots_processed=%d envelopes_published=%d", p, published)
				}
			}
		}()
	}

	wg.Wait()
	logger.Printf("backfill complete: slots_processed=%d envelopes_published=%d", processed, published)
}

func backfillSlot(ctx context.Context, client *solrpc.Client, writer *kafka.Writer, slot uint64, maxTxVersion uint8) (int, error) {
	sigs, err := client.FetchBlockSignatures(ctx, slot, maxTxVersion)
	if err != nil {
		return 0, err
	}

	msgs := make([]kafka.Message, 0, len(sigs))
	for i, s := range sigs {
		env := schema.RawTxEnvelope{
			SchemaVersion: 1,
			Chain:         "solana",
			Slot:          slot,
			Signature:     s.Signature,
			IndexInBlock:  uint32(i),
			IsSuccess:     s.IsSuccess,
		}
		body, err := json.Marshal(env)
		if err != nil {
			return i, err
		}
		msgs = append(msgs, kafka.Message{Key: []byte(s.Signature), Value: body})
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	writeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := writer.WriteMessages(writeCtx, msgs...); err != nil {
		return 0, err
	}
	return len(msgs), nil
}
