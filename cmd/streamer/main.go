// Command streamer subscribes to live Solana program logs over WebSocket
// (P1) and publishes a minimal RawTxEnvelope for each notification to the
// input Kafka topic. It carries no balance or instruction data of its
// own: C1 hydration fills that in once the envelope reaches the decoder.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/stphkoo/solana-indexer/internal/config"
	"github.com/stphkoo/solana-indexer/internal/kafkaio"
	"github.com/stphkoo/solana-indexer/internal/schema"
	"github.com/stphkoo/solana-indexer/internal/wsstream"
)

func main() {
	config.LoadEnvFile(".env")

	logger := log.New(os.Stdout, "[streamer] ", log.LstdFlags|log.Lshortfile)

	wsEndpoint := config.String("SOLANA_WS_ENDPOINT", "")
	if wsEndpoint == "" {
		logger.Fatal("SOLANA_WS_ENDPOINT is required")
	}
	programIDs := config.List("STREAMER_PROGRAM_IDS", nil)
	if len(programIDs) == 0 {
		logger.Fatal("STREAMER_PROGRAM_IDS is required (comma-separated)")
	}

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

	wsConfig := wsstream.DefaultWSConfig()
	wsConfig.Logger = logger
	client, err := wsstream.NewWSClient(ctx, wsEndpoint, &wsConfig)
	if err != nil {
		logger.Fatalf("connect websocket: %v", err)
	}
	defer client.Close()

	notifications, err := client.SubscribeLogs(ctx, wsstream.LogsFilter{Mentions: programIDs})
	if err != nil {
		logger.Fatalf("subscribe logs: %v", err)
	}

	writer := kafkaio.NewWriter(brokers, inputTopic)
	defer writer.Close()

	logger.Printf("streamer started: ws=%s programs=%v topic=%s", wsEndpoint, programIDs, inputTopic)

	var indexInBlock uint32
	lastSlot := int64(-1)
	for {
		select {
		case <-ctx.Done():
			logger.Println("streamer stopped")
			return
		case notif, ok := <-notifications:
			if !ok {
				logger.Println("notification channel closed, exiting")
				return
			}

			if notif.Slot != lastSlot {
				lastSlot = notif.Slot
				indexInBlock = 0
			} else {
				indexInBlock++
			}

			env := schema.RawTxEnvelope{
				SchemaVersion: 1,
				Chain:         "solana",
				Slot:          uint64(notif.Slot),
				Signature:     notif.Signature,
				IndexInBlock:  indexInBlock,
				IsSuccess:     notif.Err == nil,
				ProgramIDs:    programIDs,
			}

			body, err := json.Marshal(env)
			if err != nil {
				logger.Printf("marshal envelope for %s: %v", notif.Signature, err)
				continue
			}

			writeCtx, writeCancel := context.WithTimeout(ctx, 10*time.Second)
			err = writer.WriteMessages(writeCtx, kafka.Message{Key: []byte(notif.Signature), Value: body})
			writeCancel()
			if err != nil {
				logger.Printf("publish envelope for %s: %v", notif.Signature, err)
			}
		}
	}
}
