package pgvector

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	DSN       string
	Table     string
	VectorDim int
	IndexList int
}

type ConfigErrorCode string

const (
	ConfigErrorMissingDSN       ConfigErrorCode = "missing_dsn"
	ConfigErrorMissingVectorDim ConfigErrorCode = "missing_vector_dim"
	ConfigErrorInvalidVectorDim ConfigErrorCode = "invalid_vector_dim"
	ConfigErrorInvalidTable     ConfigErrorCode = "invalid_table"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid pgvector config"
	}
	switch e.Code {
	case ConfigErrorMissingDSN:
		return "PGVECTOR_DSN is required"
	case ConfigErrorMissingVectorDim:
		return "PGVECTOR_DIM is required and must be a positive integer"
	case ConfigErrorInvalidVectorDim:
		return fmt.Sprintf("invalid PGVECTOR_DIM=%q; expected positive integer", e.Value)
	case ConfigErrorInvalidTable:
		return fmt.Sprintf("invalid PGVECTOR_TABLE=%q; expected bare identifier", e.Value)
	default:
		return "invalid pgvector config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func ResolveConfigFromEnv() (Config, error) {
	rawDim := strings.TrimSpace(os.Getenv("PGVECTOR_DIM"))
	dim := 0
	if rawDim != "" {
		parsed, err := strconv.Atoi(rawDim)
		if err != nil {
			return Config{}, &ConfigError{
				Code:  ConfigErrorInvalidVectorDim,
				Value: rawDim,
				Cause: err,
			}
		}
		dim = parsed
	}

	lists := 100
	if rawLists := strings.TrimSpace(os.Getenv("PGVECTOR_IVFFLAT_LISTS")); rawLists != "" {
		if parsed, err := strconv.Atoi(rawLists); err == nil && parsed > 0 {
			lists = parsed
		}
	}

	cfg := Config{
		DSN:       strings.TrimSpace(os.Getenv("PGVECTOR_DSN")),
		Table:     strings.TrimSpace(os.Getenv("PGVECTOR_TABLE")),
		VectorDim: dim,
		IndexList: lists,
	}
	if cfg.Table == "" {
		cfg.Table = "message_embeddings"
	}

	if err := ValidateConfig(cfg, rawDim != ""); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ValidateConfig validates a pgvector config.
// Pass hasRawVectorDim=false when PGVECTOR_DIM is unset so missing vs invalid can be reported separately.
func ValidateConfig(cfg Config, hasRawVectorDim bool) error {
	if cfg.DSN == "" {
		return &ConfigError{Code: ConfigErrorMissingDSN}
	}
	if !validIdentifier(cfg.Table) {
		return &ConfigError{Code: ConfigErrorInvalidTable, Value: cfg.Table}
	}
	if !hasRawVectorDim && cfg.VectorDim == 0 {
		return &ConfigError{Code: ConfigErrorMissingVectorDim}
	}
	if cfg.VectorDim <= 0 {
		return &ConfigError{
			Code:  ConfigErrorInvalidVectorDim,
			Value: strconv.Itoa(cfg.VectorDim),
		}
	}
	return nil
}

func validIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
