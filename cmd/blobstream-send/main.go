// Command blobstream-send sends a local file (or, when -s3-bucket is set, an
// S3 object) to a blobstream receiver over UDP.
package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"os"
	"time"

	"go.uber.org/zap"

	blobstream "github.com/piot-labs/blobstream"
	"github.com/piot-labs/blobstream/internal/blobsource"
	"github.com/piot-labs/blobstream/internal/config"
	"github.com/piot-labs/blobstream/internal/engine"
	"github.com/piot-labs/blobstream/internal/transport"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:17000", "receiver address")
	path := flag.String("file", "", "path of the file to send, or the S3 object key when -s3-bucket is set")
	configPath := flag.String("config", "", "optional YAML config file")
	s3Bucket := flag.String("s3-bucket", "", "fetch the payload from this S3 bucket instead of the local filesystem")
	s3Region := flag.String("s3-region", "us-east-1", "S3 region")
	s3Endpoint := flag.String("s3-endpoint", "", "S3-compatible endpoint override (e.g. MinIO)")
	flag.Parse()

	if *path == "" {
		log.Fatal("blobstream-send: -file is required")
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

	logger, _ := newLogger(cfg.Logging.Level)
	defer logger.Sync()

	ctx := context.Background()
	payload, err := loadPayload(ctx, cfg, *path, logger)
	if err != nil {
		logger.Fatal("blobstream-send: failed to load payload", zap.Error(err))
	}

	conn, err := transport.DialUDP(*addr)
	if err != nil {
		logger.Fatal("blobstream-send: failed to dial receiver", zap.Error(err))
	}
	defer conn.Close()

	transferID := uint16(rand.Intn(1 << 16))
	sender, err := blobstream.NewSenderWithResendThreshold(logger, transferID, payload, cfg.Protocol.FixedChunkSize, cfg.Protocol.ResendThreshold)
	if err != nil {
		logger.Fatal("blobstream-send: failed to build sender", zap.Error(err))
	}

	se := engine.NewSenderEngine(logger, conn, sender, cfg.Protocol.ResendThreshold/5)

	shutdown := engine.NewShutdownHandler(ctx)
	go shutdown.Wait()

	start := time.Now()
	if err := se.Run(shutdown.Context()); err != nil {
		logger.Fatal("blobstream-send: transfer failed", zap.Error(err))
	}
	logger.Info("blobstream-send: done", zap.Duration("elapsed", time.Since(start)))
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

// loadPayload fetches the payload from S3 when cfg.Storage is enabled,
// falling back to the local filesystem otherwise.
func loadPayload(ctx context.Context, cfg config.Config, path string, logger *zap.Logger) ([]byte, error) {
	if !cfg.Storage.Enabled {
		return os.ReadFile(path)
	}

	source, err := blobsource.NewS3Source(ctx, blobsource.S3Config{
		Bucket:          cfg.Storage.Bucket,
		Region:          cfg.Storage.Region,
		Endpoint:        cfg.Storage.Endpoint,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
	}, logger)
	if err != nil {
		return nil, err
	}
	return source.FetchPayload(ctx, path)
}
