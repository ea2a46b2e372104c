// Package cli implements the lectern command set.
package cli

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/cloo-solutions/lectern/internal/catalog"
	"github.com/cloo-solutions/lectern/internal/config"
	"github.com/cloo-solutions/lectern/internal/openai"
	"github.com/cloo-solutions/lectern/internal/storage"
	"github.com/cloo-solutions/lectern/internal/store"
	"github.com/cloo-solutions/lectern/internal/telemetry"
)

// pipelineDeps bundles the long-lived clients one command run needs.
type pipelineDeps struct {
	LLM     *openai.Client
	Store   *store.Store
	Catalog *catalog.Catalog
	Archive *storage.Archive
}

// Close releases the store and catalog connections.
func (d *pipelineDeps) Close() {
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			log.Printf("closing store: %v", err)
		}
	}
	if d.Catalog != nil {
		if err := d.Catalog.Close(); err != nil {
			log.Printf("closing catalog: %v", err)
		}
	}
}

// buildDeps wires the provider client, vector store and catalog from config.
// The S3 archive is only built when asked for and configured.
func buildDeps(ctx context.Context, cfg *config.Config, withArchive bool) (*pipelineDeps, error) {
	llm := openai.NewClient(openai.Config{
		Endpoint:            cfg.OpenAIEndpoint,
		APIKey:              cfg.OpenAIAPIKey,
		EmbeddingDeployment: cfg.EmbeddingDeployment,
		ChatDeployment:      cfg.ChatDeployment,
		EmbeddingDimensions: cfg.EmbeddingDimensions,
		MaxRetries:          cfg.MaxRetries,
		RequestTimeout:      cfg.RequestTimeout,
	})

	qdrantAPI, err := store.NewQdrantAPI(store.QdrantConfig{
		Host:   cfg.QdrantHost,
		Port:   cfg.QdrantPort,
		APIKey: cfg.QdrantAPIKey,
		UseTLS: cfg.QdrantUseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	deps := &pipelineDeps{
		LLM:   llm,
		Store: store.NewStore(qdrantAPI, llm, store.Config{Dimensions: cfg.EmbeddingDimensions}),
	}

	deps.Catalog, err = catalog.Open(cfg.CatalogPath)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	if withArchive && cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			deps.Close()
			return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
		deps.Archive = storage.NewArchive(s3Client)
	}

	return deps, nil
}

// initTelemetry initializes Sentry when SENTRY_DSN is set. Always returns a
// shutdown function safe to defer.
func initTelemetry() func() {
	dsn := os.Getenv("SENTRY_DSN")
	if dsn == "" {
		return func() {}
	}

	environment := os.Getenv("ENVIRONMENT")
	if environment == "" {
		environment = "development"
	}

	// Default to 10% sampling in production, 100% in development
	sampleRate := 0.1
	if environment == "development" {
		sampleRate = 1.0
	}

	shutdown, err := telemetry.Init(telemetry.Config{
		DSN:              dsn,
		Environment:      environment,
		TracesSampleRate: sampleRate,
	})
	if err != nil {
		log.Printf("telemetry init failed (continuing without tracing): %v", err)
		return func() {}
	}
	return shutdown
}
