// Command decoder runs the C5 consumer loop: it reads RawTxEnvelope records
// from the input Kafka topic, hydrates them against Solana RPC (C1),
// extracts balance deltas (C2), detects swaps (C3), classifies failures
// through the retry/DLQ manager (C4), and publishes the derived records to
// their output topics.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stphkoo/solana-indexer/internal/config"
	"github.com/stphkoo/solana-indexer/internal/consumer"
	"github.com/stphkoo/solana-indexer/internal/kafkaio"
	"github.com/stphkoo/solana-indexer/internal/observability"
	"github.com/stphkoo/solana-indexer/internal/retry"
	"github.com/stphkoo/solana-indexer/internal/solrpc"
	"github.com/stphkoo/solana-indexer/internal/swapdetect"
)

func main() {
	config.LoadEnvFile(".env")

	logger := log.New(os.Stdout, "[decoder] ", log.LstdFlags|log.Lshortfile)

	brokers := config.List("KAFKA_BROKERS", []string{"localhost:9092"})
	inputTopic := config.String("KAFKA_INPUT_TOPIC", "sol_raw_tx_envelopes")
	groupID := config.String("KAFKA_CONSUMER_GROUP", "solana-decoder")
	deltasTopic := config.String("KAFKA_NATIVE_DELTAS_TOPIC", "sol_balance_deltas")
	tokenDeltasTopic := config.String("KAFKA_TOKEN_DELTAS_TOPIC", "sol_token_balance_deltas")
	swapsTopic := config.String("KAFKA_SWAPS_TOPIC", "sol_swaps")
	dlqTopic := config.String("KAFKA_DLQ_TOPIC", "sol_decoder_dlq")

	rpcPrimary := config.String("RPC_PRIMARY_URL", "")
	if rpcPrimary == "" {
		logger.Fatal("RPC_PRIMARY_URL is required")
	}
	rpcFallbacks := config.List("RPC_FALLBACK_URLS", nil)
	rpcConcurrency := config.Int("RPC_CONCURRENCY", 4)
	rpcMinDelay := config.Duration("RPC_MIN_DELAY", 250*time.Millisecond)
	rpcTimeout := config.Duration("RPC_REQUEST_TIMEOUT", solrpc.DefaultRequestTimeout)
	rpcMaxTxVersion := config.Int("RPC_MAX_TX_VERSION", 1)

	concurrency := config.Int("DECODER_CONCURRENCY", 4)
	includeFailed := config.Bool("DECODER_INCLUDE_FAILED_PASSTHROUGH", false)
	minConfidence := config.Int("DECODER_MIN_CONFIDENCE", 50)
	explainEnabled := config.Bool("DECODER_EXPLAIN_ENABLED", false)
	explainBudget := config.Int("DECODER_EXPLAIN_BUDGET", 0)
	statsEvery := config.Int("DECODER_STATS_EVERY", 200)
	metricsAddr := config.String("METRICS_ADDR", ":9090")

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

	pool := solrpc.NewPool(solrpc.PoolConfig{
		PrimaryURL:     rpcPrimary,
		FallbackURLs:   rpcFallbacks,
		Concurrency:    rpcConcurrency,
		MinDelay:       rpcMinDelay,
		RequestTimeout: rpcTimeout,
		MaxTxVersion:   uint8(rpcMaxTxVersion),
	})

	registry := swapdetect.NewRegistry()
	registry.Register(swapdetect.NewRaydiumDetector())

	reader := kafkaio.NewReader(kafkaio.ReaderConfig{
		Brokers: brokers,
		Topic:   inputTopic,
		GroupID: groupID,
	})
	defer reader.Close()

	producer := kafkaio.NewOutputProducer(brokers, deltasTopic, tokenDeltasTopic, swapsTopic, dlqTopic)
	defer producer.Close()

	lagStop := make(chan struct{})
	defer close(lagStop)
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				observability.DefaultMetrics.ConsumerLagMessages.Set(float64(reader.Stats().Lag))
				observability.DefaultMetrics.UptimeSeconds.Add(10)
			case <-lagStop:
				return
			}
		}
	}()

	loop := consumer.New(reader, pool, retry.NewAttempts(retry.MaxAttemptsEntries), registry, producer, logger, consumer.Config{
		Concurrency:              concurrency,
		IncludeFailedPassthrough: includeFailed,
		MinConfidence:            uint8(minConfidence),
		ExplainEnabled:           explainEnabled,
		ExplainBudget:            explainBudget,
		StatsEvery:               statsEvery,
	})

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() {
		sig := <-sigCh
		logger.Printf("received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	logger.Printf("decoder starting: input=%s group=%s rpc_primary=%s fallbacks=%d concurrency=%d min_confidence=%d",
		inputTopic, groupID, rpcPrimary, len(rpcFallbacks), concurrency, minConfidence)

	err := loop.Run(ctx)
	done <- err
	cancel()

	if err != nil && ctx.Err() == nil {
		logger.Fatalf("decoder exited with error: %v", err)
	}
	logger.Println("decoder stopped")
}
