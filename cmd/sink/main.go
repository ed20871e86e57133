// Command sink runs the P3 output consumers: it reads the four output
// topics (native deltas, token deltas, swaps, DLQ) and lands them in
// ClickHouse (analytical store) and Postgres (DLQ archive).
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/stphkoo/solana-indexer/internal/config"
	"github.com/stphkoo/solana-indexer/internal/kafkaio"
	"github.com/stphkoo/solana-indexer/internal/observability"
	"github.com/stphkoo/solana-indexer/internal/schema"
	chstore "github.com/stphkoo/solana-indexer/internal/storage/clickhouse"
	"github.com/stphkoo/solana-indexer/internal/storage/migrations"
	"github.com/stphkoo/solana-indexer/internal/storage/postgres"
)

func main() {
	config.LoadEnvFile(".env")

	logger := log.New(os.Stdout, "[sink] ", log.LstdFlags|log.Lshortfile)

	clickhouseDSN := config.String("CLICKHOUSE_DSN", "")
	postgresDSN := config.String("POSTGRES_DSN", "")
	if clickhouseDSN == "" || postgresDSN == "" {
		logger.Fatal("CLICKHOUSE_DSN and POSTGRES_DSN are required")
	}

	brokers := config.List("KAFKA_BROKERS", []string{"localhost:9092"})
	deltasTopic := config.String("KAFKA_NATIVE_DELTAS_TOPIC", "sol_balance_deltas")
	tokenDeltasTopic := config.String("KAFKA_TOKEN_DELTAS_TOPIC", "sol_token_balance_deltas")
	swapsTopic := config.String("KAFKA_SWAPS_TOPIC", "sol_swaps")
	dlqTopic := config.String("KAFKA_DLQ_TOPIC", "sol_decoder_dlq")
	groupID := config.String("SINK_CONSUMER_GROUP", "solana-sink")
	batchSize := config.Int("SINK_BATCH_SIZE", 500)
	batchTimeout := config.Duration("SINK_BATCH_TIMEOUT", 2*time.Second)
	metricsAddr := config.String("METRICS_ADDR", ":9091")

	if metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("starting metrics server on %s", metricsAddr)
			if err := http.ListenAndServe(metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("metrics server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("received signal %v, shutting down", sig)
		cancel()
	}()

	chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		logger.Fatalf("run clickhouse migrations: %v", err)
	}
	defer chConn.Close()

	pgPool, err := postgres.NewPool(ctx, postgresDSN)
	if err != nil {
		logger.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()
	if err := migrations.RunPostgresMigrations(ctx, pgPool); err != nil {
		logger.Fatalf("run postgres migrations: %v", err)
	}

	deltaStore := chstore.NewDeltaStore(chConn)
	dlqStore := postgres.NewDlqStore(pgPool)

	var wg sync.WaitGroup
	wg.Add(4)

	go runBatchSink(ctx, &wg, logger, "clickhouse", "native_deltas", kafkaio.NewReader(kafkaio.ReaderConfig{Brokers: brokers, Topic: deltasTopic, GroupID: groupID}), batchSize, batchTimeout,
		func(ctx context.Context, batch []kafka.Message) error {
			rows := make([]schema.NativeBalanceDelta, 0, len(batch))
			for _, m := range batch {
				var r schema.NativeBalanceDelta
				if err := json.Unmarshal(m.Value, &r); err != nil {
					return err
				}
				rows = append(rows, r)
			}
			return deltaStore.InsertNativeDeltas(ctx, rows)
		})

	go runBatchSink(ctx, &wg, logger, "clickhouse", "token_deltas", kafkaio.NewReader(kafkaio.ReaderConfig{Brokers: brokers, Topic: tokenDeltasTopic, GroupID: groupID}), batchSize, batchTimeout,
		func(ctx context.Context, batch []kafka.Message) error {
			rows := make([]schema.TokenBalanceDelta, 0, len(batch))
			for _, m := range batch {
				var r schema.TokenBalanceDelta
				if err := json.Unmarshal(m.Value, &r); err != nil {
					return err
				}
				rows = append(rows, r)
			}
			return deltaStore.InsertTokenDeltas(ctx, rows)
		})

	go runBatchSink(ctx, &wg, logger, "clickhouse", "swaps", kafkaio.NewReader(kafkaio.ReaderConfig{Brokers: brokers, Topic: swapsTopic, GroupID: groupID}), batchSize, batchTimeout,
		func(ctx context.Context, batch []kafka.Message) error {
			rows := make([]schema.SwapEvent, 0, len(batch))
			for _, m := range batch {
				var r schema.SwapEvent
				if err := json.Unmarshal(m.Value, &r); err != nil {
					return err
				}
				rows = append(rows, r)
			}
			return deltaStore.InsertSwaps(ctx, rows)
		})

	go runBatchSink(ctx, &wg, logger, "postgres", "dlq", kafkaio.NewReader(kafkaio.ReaderConfig{Brokers: brokers, Topic: dlqTopic, GroupID: groupID}), batchSize, batchTimeout,
		func(ctx context.Context, batch []kafka.Message) error {
			for _, m := range batch {
				var r schema.DlqRecord
				if err := json.Unmarshal(m.Value, &r); err != nil {
					return err
				}
				if err := dlqStore.Insert(ctx, r); err != nil {
					return err
				}
			}
			return nil
		})

	logger.Printf("sink started: clickhouse=%t postgres=%t group=%s batch_size=%d", true, true, groupID, batchSize)
	wg.Wait()
	logger.Println("sink stopped")
}

// runBatchSink reads from r until ctx is cancelled, accumulating up to
// batchSize messages, or until batchTimeout has passed since the last
// flush, before flushing them through write and committing their offsets.
// A write failure leaves the batch in memory and uncommitted, so the next
// flush writes it again, matching the pipeline's at-least-once semantics.
func runBatchSink(ctx context.Context, wg *sync.WaitGroup, logger *log.Logger, store, name string, r *kafka.Reader, batchSize int, batchTimeout time.Duration, write func(context.Context, []kafka.Message) error) {
	defer wg.Done()
	defer r.Close()

	var batch []kafka.Message
	timer := time.NewTimer(batchTimeout)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		err := write(ctx, batch)
		observability.RecordSinkBatch(store, name, time.Since(start).Seconds(), len(batch), err)
		if err != nil {
			logger.Printf("%s: write batch of %d failed: %v", name, len(batch), err)
			return
		}
		if err := r.CommitMessages(ctx, batch...); err != nil {
			logger.Printf("%s: commit batch of %d failed: %v", name, len(batch), err)
			return
		}
		batch = batch[:0]
	}

	type fetchResult struct {
		msg kafka.Message
		err error
	}
	fetched := make(chan fetchResult, 1)
	fetchNow := make(chan struct{}, 1)
	fetchNow <- struct{}{}

	go func() {
		for range fetchNow {
			msg, err := r.FetchMessage(ctx)
			fetched <- fetchResult{msg: msg, err: err}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			flush()
			close(fetchNow)
			return
		case res := <-fetched:
			if res.err != nil {
				if ctx.Err() == nil {
					logger.Printf("%s: fetch error: %v", name, res.err)
				}
				flush()
				close(fetchNow)
				return
			}
			batch = append(batch, res.msg)
			if len(batch) >= batchSize {
				flush()
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(batchTimeout)
			}
			select {
			case fetchNow <- struct{}{}:
			default:
			}
		case <-timer.C:
			flush()
			timer.Reset(batchTimeout)
		}
	}
}
