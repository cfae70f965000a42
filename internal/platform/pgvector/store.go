package pgvector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mirrorpanel/mirrorpanel-backend/internal/platform/ctxutil"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/platform/logger"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/vecstore"
)

const defaultOpTimeout = 10 * time.Second

// store is the production VectorStore backed by Postgres with the pgvector
// extension. The approximate path rides the ivfflat cosine index; SearchExact
// forces a sequential scan so completeness is guaranteed regardless of index
// training state.
type store struct {
	log  *logger.Logger
	cfg  Config
	pool *pgxpool.Pool
}

func NewVectorStore(log *logger.Logger, cfg Config) (vecstore.VectorStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg, true); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(context.Background(), cfg.DSN)
	if err != nil {
		return nil, classifyPgError("bootstrap", "pgvector pool init failed", err)
	}

	s := &store{
		log:  log.With("service", "PgvectorStore"),
		cfg:  cfg,
		pool: pool,
	}
	if err := s.bootstrap(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info(
		"pgvector store selected",
		"provider", "pgvector",
		"table", cfg.Table,
		"vector_dim", cfg.VectorDim,
		"ivfflat_lists", cfg.IndexList,
	)
	return s, nil
}

func (s *store) bootstrap(ctx context.Context) error {
	const op = "bootstrap"
	ctx, cancel := context.WithTimeout(ctxutil.Default(ctx), 30*time.Second)
	defer cancel()

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s (
				id text PRIMARY KEY,
				study_id text NOT NULL,
				embedding vector(%d) NOT NULL,
				meta jsonb NOT NULL DEFAULT '{}'::jsonb
			)`,
			s.cfg.Table, s.cfg.VectorDim,
		),
		fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS idx_%s_embedding ON %s
				USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d)`,
			s.cfg.Table, s.cfg.Table, s.cfg.IndexList,
		),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_study ON %s (study_id)`, s.cfg.Table, s.cfg.Table),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return classifyPgError(op, "pgvector bootstrap failed", err)
		}
	}
	return nil
}

func (s *store) Dimension() int { return s.cfg.VectorDim }

func (s *store) Upsert(ctx context.Context, records []vecstore.Record) error {
	const op = "upsert"
	if s == nil || s.pool == nil {
		return opUnavailable(op)
	}
	if len(records) == 0 {
		return nil
	}
	if err := vecstore.ValidateRecords(op, records, s.cfg.VectorDim); err != nil {
		return err
	}

	ctx, cancel := opContext(ctx)
	defer cancel()

	batch := &pgx.Batch{}
	sql := fmt.Sprintf(
		`INSERT INTO %s (id, study_id, embedding, meta)
			VALUES ($1, $2, $3::vector, $4)
			ON CONFLICT (id) DO UPDATE
			SET study_id = EXCLUDED.study_id, embedding = EXCLUDED.embedding, meta = EXCLUDED.meta`,
		s.cfg.Table,
	)
	for _, rec := range records {
		meta, err := json.Marshal(orEmptyMeta(rec.Metadata))
		if err != nil {
			return opErr(op, vecstore.OperationErrorValidation, fmt.Sprintf("record %q metadata not serializable", rec.ID), err)
		}
		batch.Queue(sql, strings.TrimSpace(rec.ID), rec.StudyID, VectorLiteral(rec.Vector), meta)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range records {
		if _, err := results.Exec(); err != nil {
			return classifyPgError(op, "pgvector upsert failed", err)
		}
	}
	return nil
}

func (s *store) Query(ctx context.Context, q []float32, filter map[string]any, topK int) ([]vecstore.Match, error) {
	return s.search(ctx, "query", q, filter, topK, false)
}

func (s *store) SearchExact(ctx context.Context, q []float32, filter map[string]any, topK int) ([]vecstore.Match, error) {
	return s.search(ctx, "search_exact", q, filter, topK, true)
}

func (s *store) search(ctx context.Context, op string, q []float32, filter map[string]any, topK int, exact bool) ([]vecstore.Match, error) {
	if s == nil || s.pool == nil {
		return nil, opUnavailable(op)
	}
	if err := vecstore.ValidateQuery(op, q, s.cfg.VectorDim, topK); err != nil {
		return nil, err
	}
	compiled, err := vecstore.CompileFilter(filter)
	if err != nil {
		return nil, err
	}

	// A zero-magnitude query has no angle to measure: <=> would emit NaN
	// scores, so that path scores every match 0 and orders by id, the same
	// contract the in-memory scorer keeps.
	zeroQuery := vecstore.IsZeroVector(q)
	argIndex := 2
	if zeroQuery {
		argIndex = 1
	}
	where, args, err := BuildFilterSQL(compiled.Predicates(), argIndex)
	if err != nil {
		return nil, err
	}

	sql := buildSearchSQL(s.cfg.Table, where, topK, zeroQuery)
	queryArgs := args
	if !zeroQuery {
		queryArgs = append([]any{VectorLiteral(q)}, args...)
	}

	ctx, cancel := opContext(ctx)
	defer cancel()

	var rows pgx.Rows
	if exact {
		tx, txErr := s.pool.Begin(ctx)
		if txErr != nil {
			return nil, classifyPgError(op, "pgvector begin failed", txErr)
		}
		defer func() { _ = tx.Rollback(context.Background()) }()
		for _, setting := range []string{
			`SET LOCAL enable_indexscan = off`,
			`SET LOCAL enable_bitmapscan = off`,
		} {
			if _, setErr := tx.Exec(ctx, setting); setErr != nil {
				return nil, classifyPgError(op, "pgvector exact-scan setup failed", setErr)
			}
		}
		rows, err = tx.Query(ctx, sql, queryArgs...)
	} else {
		rows, err = s.pool.Query(ctx, sql, queryArgs...)
	}
	if err != nil {
		return nil, classifyPgError(op, "pgvector query failed", err)
	}
	defer rows.Close()

	out := make([]vecstore.Match, 0, topK)
	for rows.Next() {
		var (
			id      string
			score   float64
			rawMeta []byte
		)
		if err := rows.Scan(&id, &score, &rawMeta); err != nil {
			return nil, classifyPgError(op, "pgvector scan failed", err)
		}
		meta := map[string]any{}
		if len(rawMeta) > 0 {
			if err := json.Unmarshal(rawMeta, &meta); err != nil {
				return nil, opErr(op, vecstore.OperationErrorValidation, fmt.Sprintf("row %q has malformed meta", id), err)
			}
		}
		out = append(out, vecstore.Match{ID: id, Score: score, Metadata: meta})
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgError(op, "pgvector row iteration failed", err)
	}

	// Cosine distance already orders by score; re-sort for the id tie-break
	// guarantee on exactly equal scores.
	vecstore.SortMatches(out)
	return out, nil
}

func (s *store) Delete(ctx context.Context, ids []string) error {
	const op = "delete"
	if s == nil || s.pool == nil {
		return opUnavailable(op)
	}
	trimmed := make([]string, 0, len(ids))
	for _, id := range ids {
		if t := strings.TrimSpace(id); t != "" {
			trimmed = append(trimmed, t)
		}
	}
	if len(trimmed) == 0 {
		return nil
	}

	ctx, cancel := opContext(ctx)
	defer cancel()
	sql := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, s.cfg.Table)
	if _, err := s.pool.Exec(ctx, sql, trimmed); err != nil {
		return classifyPgError(op, "pgvector delete failed", err)
	}
	return nil
}

// Rebuild retrains the ivfflat centroids over the current rows.
func (s *store) Rebuild(ctx context.Context) error {
	const op = "rebuild"
	if s == nil || s.pool == nil {
		return opUnavailable(op)
	}
	ctx, cancel := context.WithTimeout(ctxutil.Default(ctx), 5*time.Minute)
	defer cancel()
	sql := fmt.Sprintf(`REINDEX INDEX idx_%s_embedding`, s.cfg.Table)
	if _, err := s.pool.Exec(ctx, sql); err != nil {
		return classifyPgError(op, "pgvector reindex failed", err)
	}
	return nil
}

func (s *store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func buildSearchSQL(table, where string, topK int, zeroQuery bool) string {
	if zeroQuery {
		return fmt.Sprintf(
			`SELECT id, 0::double precision AS score, meta
				FROM %s%s
				ORDER BY id ASC
				LIMIT %d`,
			table, where, topK,
		)
	}
	return fmt.Sprintf(
		`SELECT id, 1 - (embedding <=> $1::vector) AS score, meta
			FROM %s%s
			ORDER BY embedding <=> $1::vector ASC, id ASC
			LIMIT %d`,
		table, where, topK,
	)
}

// VectorLiteral renders a vector in pgvector text format, e.g. "[1,0.5,-2]".
func VectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// BuildFilterSQL renders compiled predicates into a WHERE clause over the meta
// jsonb column, with placeholders starting at argIndex. String operands hit
// meta->>field directly; numeric operands are cast to double precision.
func BuildFilterSQL(preds []vecstore.Predicate, argIndex int) (string, []any, error) {
	if len(preds) == 0 {
		return "", nil, nil
	}
	clauses := make([]string, 0, len(preds))
	args := make([]any, 0, len(preds))

	for _, pred := range preds {
		field := strings.TrimSpace(pred.Field)
		if !validIdentifier(field) {
			return "", nil, opErr(
				"filter_translate",
				vecstore.OperationErrorValidation,
				fmt.Sprintf("filter field %q is not a valid identifier", pred.Field),
				nil,
			)
		}
		accessor := fmt.Sprintf("meta->>'%s'", field)

		switch pred.Op {
		case vecstore.FilterOpEq, vecstore.FilterOpNe, vecstore.FilterOpGt, vecstore.FilterOpGte, vecstore.FilterOpLt, vecstore.FilterOpLte:
			sqlOp := map[string]string{
				vecstore.FilterOpEq:  "=",
				vecstore.FilterOpNe:  "<>",
				vecstore.FilterOpGt:  ">",
				vecstore.FilterOpGte: ">=",
				vecstore.FilterOpLt:  "<",
				vecstore.FilterOpLte: "<=",
			}[pred.Op]

			if num, ok := numericOperand(pred.Value); ok {
				clauses = append(clauses, fmt.Sprintf("(%s)::double precision %s $%d", accessor, sqlOp, argIndex))
				args = append(args, num)
			} else if b, ok := pred.Value.(bool); ok {
				clauses = append(clauses, fmt.Sprintf("(%s)::boolean %s $%d", accessor, sqlOp, argIndex))
				args = append(args, b)
			} else {
				clauses = append(clauses, fmt.Sprintf("%s %s $%d", accessor, sqlOp, argIndex))
				args = append(args, fmt.Sprint(pred.Value))
			}
			argIndex++

		case vecstore.FilterOpIn:
			if nums, ok := numericOperands(pred.Values); ok {
				clauses = append(clauses, fmt.Sprintf("(%s)::double precision = ANY($%d)", accessor, argIndex))
				args = append(args, nums)
			} else {
				strs := make([]string, 0, len(pred.Values))
				for _, v := range pred.Values {
					strs = append(strs, fmt.Sprint(v))
				}
				clauses = append(clauses, fmt.Sprintf("%s = ANY($%d)", accessor, argIndex))
				args = append(args, strs)
			}
			argIndex++

		default:
			return "", nil, opErr(
				"filter_translate",
				vecstore.OperationErrorUnsupportedFilter,
				fmt.Sprintf("unsupported filter operator %q", pred.Op),
				nil,
			)
		}
	}

	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func numericOperand(v any) (float64, bool) {
	switch typed := v.(type) {
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case float64:
		return typed, true
	default:
		return 0, false
	}
}

func numericOperands(values []any) ([]float64, bool) {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		num, ok := numericOperand(v)
		if !ok {
			return nil, false
		}
		out = append(out, num)
	}
	return out, true
}

func orEmptyMeta(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	return in
}

func opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = ctxutil.Default(ctx)
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, defaultOpTimeout)
}

func opErr(op string, code vecstore.OperationErrorCode, msg string, cause error) error {
	return &vecstore.OperationError{Code: code, Operation: op, Message: msg, Cause: cause}
}

func opUnavailable(op string) error {
	return opErr(op, vecstore.OperationErrorBackendUnavailable, "pgvector store not initialized", nil)
}

func classifyPgError(op, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, vecstore.OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, vecstore.OperationErrorTimeout, message, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 is connection_exception.
		if strings.HasPrefix(pgErr.Code, "08") || pgErr.Code == "57P01" {
			return opErr(op, vecstore.OperationErrorBackendUnavailable, message, err)
		}
		return opErr(op, vecstore.OperationErrorValidation, message, err)
	}
	return opErr(op, vecstore.OperationErrorBackendUnavailable, message, err)
}
