// Package db is the Postgres implementation of store.Store.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"finlit-rag/internal/config"
	"finlit-rag/internal/quiz"
	"finlit-rag/internal/store"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

var ErrNoDSN = errors.New("database dsn is not configured")

type TestResult struct {
	bun.BaseModel   `bun:"table:test_results,alias:tr"`
	ID              int64                 `bun:"id,pk,autoincrement"`
	UserID          string                `bun:"user_id,notnull"`
	Timestamp       string                `bun:"timestamp,notnull"`
	TestType        string                `bun:"test_type,notnull"`
	ParticipantInfo *quiz.ParticipantInfo `bun:"participant_info,type:jsonb"`
	Responses       []quiz.Response       `bun:"responses,type:jsonb"`
	Scores          quiz.Scores           `bun:"scores,type:jsonb"`
	ModelUsed       string                `bun:"model_used"`
}

type Feedback struct {
	bun.BaseModel `bun:"table:feedback,alias:f"`
	ID            int64  `bun:"id,pk,autoincrement"`
	UserID        string `bun:"user_id,notnull"`
	Timestamp     string `bun:"timestamp,notnull"`
	FeedbackType  string `bun:"feedback_type,notnull"`
	Question      string `bun:"question"`
	Answer        string `bun:"answer"`
	Rating        string `bun:"rating"`
	SourcesCount  int    `bun:"sources_count"`
	ModelUsed     string `bun:"model_used"`
	FeedbackText  string `bun:"feedback_text"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(debug)))
	return db
}

func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	if cfg == nil || cfg.DSN == "" {
		return nil, ErrNoDSN
	}
	opts := []pgdriver.Option{pgdriver.WithDSN(withSSLMode(cfg.DSN))}
	if cfg.Password != "" {
		opts = append(opts, pgdriver.WithPassword(cfg.Password))
	}
	return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
}

// withSSLMode disables TLS unless the DSN says otherwise.
func withSSLMode(dsn string) string {
	if strings.Contains(dsn, "sslmode=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&sslmode=disable"
	}
	return dsn + "?sslmode=disable"
}

func InitDB(ctx context.Context, db *bun.DB) error {
	for _, model := range []any{(*TestResult)(nil), (*Feedback)(nil)} {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

// BunStore implements store.Store on Postgres.
type BunStore struct {
	db *bun.DB
}

var _ store.Store = (*BunStore)(nil)

func NewBunStore(db *bun.DB) *BunStore {
	return &BunStore{db: db}
}

func (s *BunStore) Close() error {
	return s.db.Close()
}

func (s *BunStore) AppendResult(ctx context.Context, r store.TestResult) error {
	if err := r.Validate(); err != nil {
		return err
	}
	row := resultRow(r)
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("insert test result: %w", err)
	}
	return nil
}

func (s *BunStore) AppendFeedback(ctx context.Context, f store.Feedback) error {
	if err := f.Validate(); err != nil {
		return err
	}
	row := feedbackRow(f)
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

func (s *BunStore) Results(ctx context.Context) ([]store.TestResult, error) {
	var rows []TestResult
	if err := s.db.NewSelect().Model(&rows).Order("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("select test results: %w", err)
	}
	out := make([]store.TestResult, len(rows))
	for i, row := range rows {
		out[i] = row.record()
	}
	return out, nil
}

func (s *BunStore) Feedback(ctx context.Context) ([]store.Feedback, error) {
	var rows []Feedback
	if err := s.db.NewSelect().Model(&rows).Order("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("select feedback: %w", err)
	}
	out := make([]store.Feedback, len(rows))
	for i, row := range rows {
		out[i] = row.record()
	}
	return out, nil
}

func resultRow(r store.TestResult) TestResult {
	return TestResult{
		UserID:          r.UserID,
		Timestamp:       r.Timestamp,
		TestType:        string(r.TestType),
		ParticipantInfo: r.ParticipantInfo,
		Responses:       r.Responses,
		Scores:          r.Scores,
		ModelUsed:       r.ModelUsed,
	}
}

func (row TestResult) record() store.TestResult {
	return store.TestResult{
		UserID:          row.UserID,
		Timestamp:       row.Timestamp,
		TestType:        quiz.TestType(row.TestType),
		ParticipantInfo: row.ParticipantInfo,
		Responses:       row.Responses,
		Scores:          row.Scores,
		ModelUsed:       row.ModelUsed,
	}
}

func feedbackRow(f store.Feedback) Feedback {
	return Feedback{
		UserID:       f.UserID,
		Timestamp:    f.Timestamp,
		FeedbackType: f.FeedbackType,
		Question:     f.Question,
		Answer:       f.Answer,
		Rating:       f.Rating,
		SourcesCount: f.SourcesCount,
		ModelUsed:    f.ModelUsed,
		FeedbackText: f.FeedbackText,
	}
}

func (row Feedback) record() store.Feedback {
	return store.Feedback{
		UserID:       row.UserID,
		Timestamp:    row.Timestamp,
		FeedbackType: row.FeedbackType,
		Question:     row.Question,
		Answer:       row.Answer,
		Rating:       row.Rating,
		SourcesCount: row.SourcesCount,
		ModelUsed:    row.ModelUsed,
		FeedbackText: row.FeedbackText,
	}
}
