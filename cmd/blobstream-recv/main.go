// Command blobstream-recv waits for a single sender to complete a transfer
// over UDP and writes the reassembled blob to a local file, or to an S3
// object when -s3-bucket is set.
package main

import (
	"bytes"
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	blobstream "github.com/piot-labs/blobstream"
	"github.com/piot-labs/blobstream/internal/blobsource"
	"github.com/piot-labs/blobstream/internal/checkpoint"
	"github.com/piot-labs/blobstream/internal/config"
	"github.com/piot-labs/blobstream/internal/engine"
	"github.com/piot-labs/blobstream/internal/transport"
	"github.com/piot-labs/blobstream/internal/wire"
)

func main() {
	addr := flag.String("addr", ":17000", "address to listen on")
	outPath := flag.String("out", "", "path to write the received blob to, or the S3 object key when -s3-bucket is set")
	configPath := flag.String("config", "", "optional YAML config file")
	s3Bucket := flag.String("s3-bucket", "", "store the completed blob in this S3 bucket instead of the local filesystem")
	s3Region := flag.String("s3-region", "us-east-1", "S3 region")
	s3Endpoint := flag.String("s3-endpoint", "", "S3-compatible endpoint override (e.g. MinIO)")
	checkpointAddr := flag.String("checkpoint-addr", "", "Redis address for transfer checkpointing (e.g. 127.0.0.1:6379)")
	flag.Parse()

	if *outPath == "" {
		log.Fatal("blobstream-recv: -out is required")
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatal(err)
		}
		cfg = loaded
	}
	if *s3Bucket != "" {
		cfg.Storage.Enabled = true
		cfg.Storage.Bucket = *s3Bucket
		cfg.Storage.Region = *s3Region
		cfg.Storage.Endpoint = *s3Endpoint
	}
	if *checkpointAddr != "" {
		cfg.Checkpoint.Enabled = true
		cfg.Checkpoint.Addr = *checkpointAddr
	}

	logger := newLogger(cfg.Logging.Level)
	defer logger.Sync()

	var checkpoints *checkpoint.Store
	if cfg.Checkpoint.Enabled {
		checkpoints = checkpoint.NewStore(redis.NewClient(&redis.Options{Addr: cfg.Checkpoint.Addr}), cfg.Checkpoint.KeyPrefix, cfg.Checkpoint.TTL)
	}

	listener, err := transport.ListenUDP(*addr)
	if err != nil {
		logger.Fatal("blobstream-recv: failed to listen", zap.Error(err))
	}
	defer listener.Close()

	logger.Info("blobstream-recv: waiting for sender", zap.String("addr", *addr))

	buf := make([]byte, 1100)
	n, peerAddr, err := listener.ReadFrom(buf)
	if err != nil {
		logger.Fatal("blobstream-recv: read failed", zap.Error(err))
	}

	r := bytes.NewReader(buf[:n])
	cmd, err := wire.ReadCommand(r)
	if err != nil || cmd != wire.CmdStartTransfer {
		logger.Fatal("blobstream-recv: expected START_TRANSFER as first frame")
	}
	start, err := wire.DecodeStartTransfer(r)
	if err != nil {
		logger.Fatal("blobstream-recv: malformed START_TRANSFER", zap.Error(err))
	}

	receiver, err := blobstream.NewReceiver(logger, int(start.OctetCount), int(start.FixedChunkSize))
	if err != nil {
		logger.Fatal("blobstream-recv: failed to allocate receiver", zap.Error(err))
	}

	peer := listener.Peer(peerAddr)
	re := engine.NewReceiverEngine(logger, peer, receiver, start.TransferID, cfg.Protocol.ResendThreshold/5)

	ctx := context.Background()
	if checkpoints != nil {
		if prior, found, err := checkpoints.Load(ctx, start.TransferID); err != nil {
			logger.Warn("blobstream-recv: failed to load checkpoint", zap.Error(err))
		} else if found {
			logger.Info("blobstream-recv: found stale checkpoint for this transfer id, starting fresh anyway", zap.Int("priorChunks", len(prior.ReceivedChunks)))
		}
		if err := checkpoints.Save(ctx, checkpoint.State{
			TransferID:      start.TransferID,
			TotalOctetCount: int(start.OctetCount),
			FixedChunkSize:  int(start.FixedChunkSize),
		}); err != nil {
			logger.Warn("blobstream-recv: failed to save checkpoint", zap.Error(err))
		}
	}

	frames := make(chan []byte, 64)
	shutdown := engine.NewShutdownHandler(ctx)
	go shutdown.Wait()

	go func() {
		readBuf := make([]byte, 1100)
		for {
			n, _, err := listener.ReadFrom(readBuf)
			if err != nil {
				return
			}
			frame := make([]byte, n)
			copy(frame, readBuf[:n])
			select {
			case frames <- frame:
			case <-shutdown.Context().Done():
				return
			}
		}
	}()

	start2 := time.Now()
	blob, err := re.RunWithFrames(shutdown.Context(), frames)
	if err != nil {
		logger.Fatal("blobstream-recv: transfer failed", zap.Error(err))
	}

	if err := storeBlob(ctx, cfg, *outPath, blob, logger); err != nil {
		logger.Fatal("blobstream-recv: failed to write output", zap.Error(err))
	}

	if checkpoints != nil {
		if err := checkpoints.Clear(ctx, start.TransferID); err != nil {
			logger.Warn("blobstream-recv: failed to clear checkpoint", zap.Error(err))
		}
	}

	logger.Info("blobstream-recv: done", zap.Duration("elapsed", time.Since(start2)), zap.Int("octetCount", len(blob)))
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}

// storeBlob uploads blob to S3 when cfg.Storage is enabled, writing it to
// the local filesystem otherwise.
func storeBlob(ctx context.Context, cfg config.Config, outPath string, blob []byte, logger *zap.Logger) error {
	if !cfg.Storage.Enabled {
		return os.WriteFile(outPath, blob, 0o644)
	}

	source, err := blobsource.NewS3Source(ctx, blobsource.S3Config{
		Bucket:          cfg.Storage.Bucket,
		Region:          cfg.Storage.Region,
		Endpoint:        cfg.Storage.Endpoint,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
	}, logger)
	if err != nil {
		return err
	}
	return source.StoreBlob(ctx, outPath, blob)
}
