package app

import (
	"fmt"
	"strings"

	"github.com/mirrorpanel/mirrorpanel-backend/internal/platform/logger"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/platform/pgvector"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/vecstore"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/vecstore/memory"
)

type VectorProvider string

const (
	VectorProviderPgvector VectorProvider = "pgvector"
	VectorProviderMemory   VectorProvider = "memory"
)

// resolveVectorStore builds the configured store and wraps it with retry on
// transient backend failures. The memory provider serves local development
// and tests; pgvector is the production path.
func resolveVectorStore(log *logger.Logger, cfg Config) (vecstore.VectorStore, error) {
	provider := VectorProvider(strings.TrimSpace(strings.ToLower(cfg.VectorProvider)))

	var (
		store vecstore.VectorStore
		err   error
	)
	switch provider {
	case VectorProviderPgvector:
		pgcfg, cfgErr := pgvector.ResolveConfigFromEnv()
		if cfgErr != nil {
			return nil, cfgErr
		}
		log.Info("Selecting vector store provider",
			"provider", provider,
			"table", pgcfg.Table,
			"vector_dim", pgcfg.VectorDim,
		)
		store, err = pgvector.NewVectorStore(log, pgcfg)

	case VectorProviderMemory:
		log.Info("Selecting vector store provider",
			"provider", provider,
			"vector_dim", cfg.EmbeddingDim,
		)
		store, err = memory.New(log, cfg.EmbeddingDim)

	default:
		return nil, fmt.Errorf("unsupported vector provider %q", cfg.VectorProvider)
	}
	if err != nil {
		return nil, err
	}

	return vecstore.WithRetry(store, cfg.VectorRetryAttempts, cfg.VectorRetryBackoff), nil
}
