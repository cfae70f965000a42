package app

import (
	"time"

	"github.com/mirrorpanel/mirrorpanel-backend/internal/platform/envutil"
)

type Config struct {
	Port    string
	LogMode string

	// VectorProvider selects the store backing semantic search:
	// "pgvector" or "memory".
	VectorProvider      string
	EmbeddingDim        int
	VectorRetryAttempts int
	VectorRetryBackoff  time.Duration

	ExportDir string
}

func LoadConfig() Config {
	return Config{
		Port:                envutil.Str("PORT", "8080"),
		LogMode:             envutil.Str("LOG_MODE", "development"),
		VectorProvider:      envutil.Str("VECTOR_PROVIDER", "memory"),
		EmbeddingDim:        envutil.Int("EMBEDDING_DIM", 256),
		VectorRetryAttempts: envutil.Int("VECTOR_RETRY_ATTEMPTS", 3),
		VectorRetryBackoff:  time.Duration(envutil.Int("VECTOR_RETRY_BACKOFF_MS", 100)) * time.Millisecond,
		ExportDir:           envutil.Str("EXPORT_DIR", "exports"),
	}
}
