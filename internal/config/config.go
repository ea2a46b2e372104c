package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/cloo-solutions/lectern/internal/domain"
)

type Config struct {
	// Azure OpenAI: one endpoint serving an embedding deployment and a chat
	// deployment. All five service settings are required up front; a missing
	// one aborts before any document is touched.
	OpenAIEndpoint      string `envconfig:"OPENAI_ENDPOINT" required:"true"`
	OpenAIAPIKey        string `envconfig:"OPENAI_API_KEY" required:"true"`
	EmbeddingDeployment string `envconfig:"EMBEDDING_DEPLOYMENT" required:"true"`
	ChatDeployment      string `envconfig:"CHAT_DEPLOYMENT" required:"true"`

	QdrantHost   string `envconfig:"QDRANT_HOST" required:"true"`
	QdrantPort   int    `envconfig:"QDRANT_PORT" default:"6334"`
	QdrantAPIKey string `envconfig:"QDRANT_API_KEY"`
	QdrantUseTLS bool   `envconfig:"QDRANT_USE_TLS" default:"false"`

	Collection          string `envconfig:"COLLECTION" default:"course-knowledge"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`

	TranscriptsDir string `envconfig:"TRANSCRIPTS_DIR" default:"transcripts"`
	NotesDir       string `envconfig:"NOTES_DIR" default:"notes"`
	CatalogPath    string `envconfig:"CATALOG_PATH" default:"lectern.db"`

	IndexWorkers   int           `envconfig:"INDEX_WORKERS" default:"4"`
	OnInvalid      string        `envconfig:"ON_INVALID" default:"skip"`
	ChunkChars     int           `envconfig:"CHUNK_CHARS" default:"6000"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"60s"`
	MaxRetries     int           `envconfig:"MAX_RETRIES" default:"3"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"lectern-archive"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("LECTERN", &cfg); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration, "failed to process config", err)
	}

	if !domain.IsValidViolationPolicy(domain.ViolationPolicy(cfg.OnInvalid)) {
		return nil, domain.NewDomainError(domain.ErrCodeConfiguration,
			fmt.Sprintf("LECTERN_ON_INVALID must be %q or %q, got %q",
				domain.ViolationPolicySkip, domain.ViolationPolicyAbort, cfg.OnInvalid))
	}
	if cfg.EmbeddingDimensions <= 0 {
		return nil, domain.NewDomainError(domain.ErrCodeConfiguration, "LECTERN_EMBEDDING_DIMENSIONS must be positive")
	}

	return &cfg, nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) ViolationPolicy() domain.ViolationPolicy {
	return domain.ViolationPolicy(c.OnInvalid)
}
