package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/autoshop-ai/orchestrator/internal/models"
)

// PostgresConfig holds database connection settings.
type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConnections  int           `mapstructure:"max_connections"`
	IdleConnections int           `mapstructure:"idle_connections"`
	MaxLifetime     time.Duration `mapstructure:"max_lifetime"`
}

// PostgresStore persists research requests in Postgres. Sub-questions live in
// their own table so each specialist updates only the rows of its category;
// category findings use jsonb_set so concurrent categories never clobber each
// other's keys.
type PostgresStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewPostgresStore opens a connection pool and pings the database.
func NewPostgresStore(cfg PostgresConfig, logger *zap.Logger) (*PostgresStore, error) {
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = 25
	}
	if cfg.IdleConnections == 0 {
		cfg.IdleConnections = 5
	}
	if cfg.MaxLifetime == 0 {
		cfg.MaxLifetime = 5 * time.Minute
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.IdleConnections)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("Research request store initialized",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
		zap.Int("max_connections", cfg.MaxConnections),
	)
	return &PostgresStore{db: db, logger: logger}, nil
}

// NewPostgresStoreFromDB wraps an existing connection, used by tests.
func NewPostgresStoreFromDB(db *sql.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: sqlx.NewDb(db, "postgres"), logger: logger}
}

const schema = `
CREATE TABLE IF NOT EXISTS research_requests (
    id                TEXT PRIMARY KEY,
    original_question TEXT NOT NULL,
    status            TEXT NOT NULL DEFAULT 'pending',
    category_findings JSONB NOT NULL DEFAULT '{}'::jsonb,
    final_report      TEXT,
    error_message     TEXT,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    started_at        TIMESTAMPTZ,
    completed_at      TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS sub_questions (
    request_id TEXT NOT NULL REFERENCES research_requests(id) ON DELETE CASCADE,
    id         TEXT NOT NULL,
    question   TEXT NOT NULL,
    category   TEXT NOT NULL,
    position   INT  NOT NULL,
    completed  BOOLEAN NOT NULL DEFAULT FALSE,
    findings   TEXT,
    PRIMARY KEY (request_id, id)
);

CREATE INDEX IF NOT EXISTS idx_research_requests_status ON research_requests(status);
CREATE INDEX IF NOT EXISTS idx_sub_questions_request ON sub_questions(request_id, position);
`

// EnsureSchema creates the tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity, used by readiness checks.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

type requestRow struct {
	ID               string         `db:"id"`
	OriginalQuestion string         `db:"original_question"`
	Status           string         `db:"status"`
	CategoryFindings jsonbMap       `db:"category_findings"`
	FinalReport      sql.NullString `db:"final_report"`
	ErrorMessage     sql.NullString `db:"error_message"`
	CreatedAt        time.Time      `db:"created_at"`
	StartedAt        *time.Time     `db:"started_at"`
	CompletedAt      *time.Time     `db:"completed_at"`
}

func (r requestRow) toModel() *models.ResearchRequest {
	req := &models.ResearchRequest{
		ID:               r.ID,
		OriginalQuestion: r.OriginalQuestion,
		Status:           models.RequestStatus(r.Status),
		FinalReport:      r.FinalReport.String,
		Error:            r.ErrorMessage.String,
		CreatedAt:        r.CreatedAt,
		StartedAt:        r.StartedAt,
		CompletedAt:      r.CompletedAt,
	}
	if len(r.CategoryFindings) > 0 {
		req.CategoryFindings = make(map[models.Category]string, len(r.CategoryFindings))
		for k, v := range r.CategoryFindings {
			req.CategoryFindings[models.Category(k)] = v
		}
	}
	return req
}

// Create inserts a new pending request record.
func (s *PostgresStore) Create(ctx context.Context, req *models.ResearchRequest) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO research_requests (id, original_question, status, created_at)
		 VALUES ($1, $2, $3, $4)`,
		req.ID, req.OriginalQuestion, string(req.Status), req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert research request: %w", err)
	}
	return nil
}

// GetByID loads a request and its sub-questions by primary key.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (*models.ResearchRequest, error) {
	var row requestRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, original_question, status, category_findings, final_report,
		        error_message, created_at, started_at, completed_at
		 FROM research_requests WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select research request: %w", err)
	}

	req := row.toModel()
	subs, err := s.loadSubQuestions(ctx, id)
	if err != nil {
		return nil, err
	}
	req.SubQuestions = subs
	return req, nil
}

func (s *PostgresStore) loadSubQuestions(ctx context.Context, id string) ([]models.SubQuestion, error) {
	var subs []models.SubQuestion
	err := s.db.SelectContext(ctx, &subs,
		`SELECT id, question, category, completed, COALESCE(findings, '') AS findings
		 FROM sub_questions WHERE request_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("select sub-questions: %w", err)
	}
	return subs, nil
}

// List returns requests newest first, optionally filtered by status.
// Sub-questions are not hydrated for listings.
func (s *PostgresStore) List(ctx context.Context, status models.RequestStatus) ([]*models.ResearchRequest, error) {
	query := `SELECT id, original_question, status, category_findings, final_report,
	                 error_message, created_at, started_at, completed_at
	          FROM research_requests`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	var rows []requestRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list research requests: %w", err)
	}
	out := make([]*models.ResearchRequest, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// MarkStarted moves a pending request to in_progress. Already-started requests
// are left untouched so the transition stays monotonic.
func (s *PostgresStore) MarkStarted(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE research_requests SET status = $2, started_at = $3
		 WHERE id = $1 AND status = $4`,
		id, string(models.StatusInProgress), at, string(models.StatusPending),
	)
	if err != nil {
		return fmt.Errorf("mark started: %w", err)
	}
	return nil
}

// SetSubQuestions records the decomposition output. Called once per request.
func (s *PostgresStore) SetSubQuestions(ctx context.Context, id string, subs []models.SubQuestion) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for i, sq := range subs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sub_questions (request_id, id, question, category, position)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (request_id, id) DO NOTHING`,
			id, sq.ID, sq.Question, string(sq.Category), i,
		); err != nil {
			return fmt.Errorf("insert sub-question: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sub-questions: %w", err)
	}
	return nil
}

// SaveSubQuestionFindings marks one sub-question complete with its findings.
func (s *PostgresStore) SaveSubQuestionFindings(ctx context.Context, id, subQuestionID, findings string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sub_questions SET completed = TRUE, findings = $3
		 WHERE request_id = $1 AND id = $2`,
		id, subQuestionID, findings,
	)
	if err != nil {
		return fmt.Errorf("save sub-question findings: %w", err)
	}
	return nil
}

// SaveCategoryFindings records a category's aggregated findings. jsonb_set
// touches only this category's key, so sibling specialists never conflict.
func (s *PostgresStore) SaveCategoryFindings(ctx context.Context, id string, category models.Category, findings string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE research_requests
		 SET category_findings = jsonb_set(category_findings, ARRAY[$2], to_jsonb($3::text))
		 WHERE id = $1`,
		id, string(category), findings,
	)
	if err != nil {
		return fmt.Errorf("save category findings: %w", err)
	}
	return nil
}

// Complete writes the successful terminal state. The WHERE clause is the
// compare-and-set: a request already terminal is never overwritten.
func (s *PostgresStore) Complete(ctx context.Context, id, finalReport string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE research_requests
		 SET status = $2, final_report = $3, completed_at = $4
		 WHERE id = $1 AND status NOT IN ($5, $6)`,
		id, string(models.StatusCompleted), finalReport, at,
		string(models.StatusCompleted), string(models.StatusFailed),
	)
	if err != nil {
		return fmt.Errorf("complete research request: %w", err)
	}
	return nil
}

// Fail writes the failed terminal state with the same compare-and-set guard.
func (s *PostgresStore) Fail(ctx context.Context, id, errMsg string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE research_requests
		 SET status = $2, error_message = $3, completed_at = $4
		 WHERE id = $1 AND status NOT IN ($5, $6)`,
		id, string(models.StatusFailed), errMsg, at,
		string(models.StatusCompleted), string(models.StatusFailed),
	)
	if err != nil {
		return fmt.Errorf("fail research request: %w", err)
	}
	return nil
}
