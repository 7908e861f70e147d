// Package claims implements the read-only SQL sandbox (C6) and the
// four-phase claims intelligence orchestrator (C7): plan → generate SQL
// (parallel) → execute SQL (read-only, sandboxed) → synthesize insights.
package claims

import (
	"context"
	"database/sql"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/travelguard/insurance-core/errs"
	"github.com/travelguard/insurance-core/internal/database"
	"github.com/travelguard/insurance-core/internal/pool"
)

var (
	lineCommentRe  = regexp.MustCompile(`--[^\n]*`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)

	forbiddenKeywords = []string{
		"INSERT", "UPDATE", "DELETE", "DROP", "TRUNCATE", "ALTER",
		"CREATE", "GRANT", "REVOKE", "EXECUTE", "CALL", "MERGE", "REPLACE", "RENAME",
	}

	readOnlyShapeRe = regexp.MustCompile(`(?i)^\s*(WITH\b.*\bSELECT\b|SELECT\b)`)
)

// ValidateReadOnly normalizes sql by stripping comments and checks it is
// a read-only statement: no whole-word occurrence of a forbidden DDL/DML
// keyword, and the first (non-comment) token is SELECT, or WITH … SELECT.
func ValidateReadOnly(query string) error {
	normalized := lineCommentRe.ReplaceAllString(query, "")
	normalized = blockCommentRe.ReplaceAllString(normalized, "")
	normalized = strings.TrimSpace(normalized)

	if normalized == "" {
		return errs.New(errs.InvalidArgument, "empty SQL statement")
	}

	upper := strings.ToUpper(normalized)
	for _, kw := range forbiddenKeywords {
		if wholeWordMatch(upper, kw) {
			return errs.Newf(errs.InvalidArgument, "SQL contains forbidden keyword %q", kw)
		}
	}

	if !readOnlyShapeRe.MatchString(normalized) {
		return errs.New(errs.InvalidArgument, "SQL must start with SELECT or WITH ... SELECT")
	}

	return nil
}

// wholeWordMatch reports whether word occurs in haystack bounded by
// non-alphanumeric characters on both sides. Go's RE2 \b treats
// underscore as a word character, so a plain `\bDROP\b` does NOT match
// inside a column named DROP_ME — but by design this sandbox rejects
// DROP_ME anyway: underscore is deliberately excluded from the boundary
// alphabet below, so the keyword still hits across an underscore. A
// real column that needs a forbidden keyword as a name segment must be
// rejected conservatively rather than risk a real DDL/DML statement
// slipping through an overly clever exception.
func wholeWordMatch(haystack, word string) bool {
	for start := 0; ; {
		idx := strings.Index(haystack[start:], word)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(word)

		beforeOK := idx == 0 || !isAlnumByte(haystack[idx-1])
		afterOK := end == len(haystack) || !isAlnumByte(haystack[end])
		if beforeOK && afterOK {
			return true
		}
		start = idx + 1
	}
}

func isAlnumByte(b byte) bool {
	return (b >= 'A' && b <= 'Z') ||
		(b >= 'a' && b <= 'z') ||
		(b >= '0' && b <= '9')
}

// Sandbox is a connection-pooled, read-only SQL executor: pool of 2-10
// connections, 30s command timeout, 10s connect timeout. Rejects writes
// at the client level even when the underlying account has privileges.
type Sandbox struct {
	pool           *database.PoolManager
	commandTimeout time.Duration
	sampleRowLimit int
	logger         *zap.Logger
}

// SandboxConfig configures timeouts and sampling.
type SandboxConfig struct {
	CommandTimeout time.Duration
	ConnectTimeout time.Duration
	SampleRowLimit int
}

// NewSandbox wraps db with database.SandboxPoolConfig's 2-10 connection
// bound and the documented command timeout.
func NewSandbox(db *gorm.DB, cfg SandboxConfig, logger *zap.Logger) (*Sandbox, error) {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 30 * time.Second
	}
	if cfg.SampleRowLimit <= 0 {
		cfg.SampleRowLimit = 5
	}

	pool, err := database.NewPoolManager(db, database.SandboxPoolConfig(), logger)
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, err, "create claims sandbox pool")
	}

	return &Sandbox{
		pool:           pool,
		commandTimeout: cfg.CommandTimeout,
		sampleRowLimit: cfg.SampleRowLimit,
		logger:         logger.With(zap.String("component", "claims_sandbox")),
	}, nil
}

// Row preserves column order, unlike a map[string]any.
type Row []Column

// Column is one ordered (name, value) pair in a result row.
type Column struct {
	Name  string
	Value any
}

// Execute validates query as read-only, then runs it with the sandbox's
// command timeout, returning rows as ordered column slices.
func (s *Sandbox) Execute(ctx context.Context, query string) ([]Row, error) {
	if err := ValidateReadOnly(query); err != nil {
		return nil, err
	}

	execCtx, cancel := context.WithTimeout(ctx, s.commandTimeout)
	defer cancel()

	sqlDB, err := s.pool.DB().DB()
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, err, "acquire sandbox connection")
	}

	rows, err := sqlDB.QueryContext(execCtx, query)
	if err != nil {
		return nil, errs.Wrap(errs.Runtime, err, "execute sandboxed query")
	}
	defer rows.Close()

	return scanOrdered(rows)
}

// ExecuteSample runs Execute and truncates the result to the sandbox's
// configured sample row limit, reporting the full row count separately.
func (s *Sandbox) ExecuteSample(ctx context.Context, query string) (sample []Row, totalRows int, err error) {
	rows, err := s.Execute(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	totalRows = len(rows)
	if totalRows > s.sampleRowLimit {
		rows = rows[:s.sampleRowLimit]
	}
	return rows, totalRows, nil
}

// Close releases the sandbox's connection pool.
func (s *Sandbox) Close() error {
	return s.pool.Close()
}

func scanOrdered(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, errs.Wrap(errs.Runtime, err, "read result columns")
	}

	var result []Row
	for rows.Next() {
		values := pool.GlobalAnyScanRow.Get()
		if cap(values) < len(columns) {
			values = make([]any, len(columns))
		}
		values = values[:len(columns)]
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			pool.GlobalAnyScanRow.Put(values)
			return nil, errs.Wrap(errs.Runtime, err, "scan result row")
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			row[i] = Column{Name: col, Value: values[i]}
		}
		result = append(result, row)
		pool.GlobalAnyScanRow.Put(values)
	}

	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.Runtime, err, "iterate result rows")
	}

	return result, nil
}
