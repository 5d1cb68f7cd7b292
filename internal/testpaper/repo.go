package testpaper

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/emandor/kelas_service/internal/model"
	"github.com/emandor/kelas_service/internal/quizgen"
	"github.com/emandor/kelas_service/internal/quota"
)

var ErrNotFound = errors.New("test not found")

type Repo struct {
	db *sqlx.DB
}

func NewRepo(db *sqlx.DB) *Repo { return &Repo{db: db} }

func (r *Repo) UserQuota(ctx context.Context, userID int64) (quota.UserQuota, error) {
	var row struct {
		TestQuota int `db:"test_quota"`
		TestsUsed int `db:"tests_used"`
	}
	err := r.db.GetContext(ctx, &row, `SELECT test_quota, tests_used FROM users WHERE id=?`, userID)
	if err != nil {
		return quota.UserQuota{}, fmt.Errorf("load quota: %w", err)
	}
	return quota.UserQuota{TestQuota: row.TestQuota, TestsUsed: row.TestsUsed}, nil
}

// CreateTest takes one generation from the owner's quota and inserts the
// test in a single transaction, so a failed insert leaves the quota alone.
// It fails with quota.ErrQuotaExceeded when nothing is left.
func (r *Repo) CreateTest(ctx context.Context, t *model.Test) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET tests_used=tests_used+1 WHERE id=? AND tests_used < test_quota`, t.OwnerID)
	if err != nil {
		return 0, fmt.Errorf("consume quota: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, quota.ErrQuotaExceeded
	}

	res, err = tx.ExecContext(ctx, `
		INSERT INTO tests (owner_id, material_id, title, status, source_text, source_hash)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.OwnerID, t.MaterialID, t.Title, model.TestGenerating, t.SourceText, t.SourceHash)
	if err != nil {
		return 0, fmt.Errorf("insert test: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

const testColumns = `id, owner_id, material_id, title, status, source_hash, error_kind, error_text, question_count, created_at, updated_at`

func (r *Repo) Get(ctx context.Context, id int64) (*model.Test, error) {
	var t model.Test
	err := r.db.GetContext(ctx, &t, `SELECT `+testColumns+` FROM tests WHERE id=?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get test %d: %w", id, err)
	}
	return &t, nil
}

func (r *Repo) SourceText(ctx context.Context, id int64) (string, error) {
	var s string
	err := r.db.GetContext(ctx, &s, `SELECT source_text FROM tests WHERE id=?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return s, err
}

func (r *Repo) ListByOwner(ctx context.Context, ownerID int64) ([]model.Test, error) {
	out := []model.Test{}
	err := r.db.SelectContext(ctx, &out,
		`SELECT `+testColumns+` FROM tests WHERE owner_id=? ORDER BY id DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list tests: %w", err)
	}
	return out, nil
}

func (r *Repo) ListReady(ctx context.Context) ([]model.Test, error) {
	out := []model.Test{}
	err := r.db.SelectContext(ctx, &out,
		`SELECT `+testColumns+` FROM tests WHERE status=? ORDER BY id DESC`, model.TestReady)
	if err != nil {
		return nil, fmt.Errorf("list ready tests: %w", err)
	}
	return out, nil
}

// SetGenerating moves a failed test back to generating. It reports false when
// the test was not in the error state.
func (r *Repo) SetGenerating(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tests SET status=?, error_kind=NULL, error_text=NULL WHERE id=? AND status=?`,
		model.TestGenerating, id, model.TestError)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SaveQuestions replaces the questions of a test and marks it ready, in one
// transaction.
func (r *Repo) SaveQuestions(ctx context.Context, testID int64, qs []quizgen.Question) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM test_questions WHERE test_id=?`, testID); err != nil {
		return fmt.Errorf("clear questions: %w", err)
	}
	for i, q := range qs {
		opts, err := json.Marshal(q.Options)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO test_questions (test_id, position, question, options, correct_answer)
			VALUES (?, ?, ?, ?, ?)`,
			testID, i+1, q.Question, string(opts), q.CorrectAnswer); err != nil {
			return fmt.Errorf("insert question %d: %w", i+1, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE tests SET status=?, question_count=?, error_kind=NULL, error_text=NULL WHERE id=?`,
		model.TestReady, len(qs), testID); err != nil {
		return fmt.Errorf("mark ready: %w", err)
	}
	return tx.Commit()
}

func (r *Repo) MarkError(ctx context.Context, testID int64, kind, text string) error {
	if len(text) > 1024 {
		text = text[:1024]
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE tests SET status=?, error_kind=?, error_text=? WHERE id=?`,
		model.TestError, kind, text, testID)
	return err
}

func (r *Repo) Questions(ctx context.Context, testID int64) ([]model.TestQuestion, error) {
	out := []model.TestQuestion{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, test_id, position, question, options, correct_answer
		FROM test_questions WHERE test_id=? ORDER BY position ASC`, testID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return out, nil
}

func (r *Repo) CreateSubmission(ctx context.Context, s *model.Submission, answers []string) (int64, error) {
	raw, err := json.Marshal(answers)
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO submissions (test_id, user_id, answers, score, total) VALUES (?, ?, ?, ?, ?)`,
		s.TestID, s.UserID, string(raw), s.Score, s.Total)
	if err != nil {
		return 0, fmt.Errorf("insert submission: %w", err)
	}
	return res.LastInsertId()
}
