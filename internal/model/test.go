package model

import (
	"database/sql"
	"time"
)

type Material struct {
	ID        int64     `db:"id" json:"id"`
	OwnerID   int64     `db:"owner_id" json:"owner_id"`
	Title     string    `db:"title" json:"title"`
	Body      string    `db:"body" json:"body,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type TestStatus string

const (
	TestGenerating TestStatus = "generating"
	TestReady      TestStatus = "ready"
	TestError      TestStatus = "error"
)

type Test struct {
	ID            int64          `db:"id" json:"id"`
	OwnerID       int64          `db:"owner_id" json:"owner_id"`
	MaterialID    sql.NullInt64  `db:"material_id" json:"-"`
	Title         string         `db:"title" json:"title"`
	Status        TestStatus     `db:"status" json:"status"`
	SourceText    string         `db:"source_text" json:"-"`
	SourceHash    string         `db:"source_hash" json:"-"`
	ErrorKind     sql.NullString `db:"error_kind" json:"-"`
	ErrorText     sql.NullString `db:"error_text" json:"-"`
	QuestionCount int            `db:"question_count" json:"question_count"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// TestQuestion is a stored question. Options is the JSON array as saved.
type TestQuestion struct {
	ID            int64  `db:"id"`
	TestID        int64  `db:"test_id"`
	Position      int    `db:"position"`
	Question      string `db:"question"`
	Options       []byte `db:"options"`
	CorrectAnswer string `db:"correct_answer"`
}

type Submission struct {
	ID        int64     `db:"id" json:"id"`
	TestID    int64     `db:"test_id" json:"test_id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Score     int       `db:"score" json:"score"`
	Total     int       `db:"total" json:"total"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
