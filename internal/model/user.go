package model

import "time"

type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

type User struct {
	ID          int64      `db:"id" json:"id"`
	Provider    string     `db:"provider" json:"-"`
	ProviderID  string     `db:"provider_id" json:"-"`
	Email       string     `db:"email" json:"email"`
	Name        string     `db:"name" json:"name"`
	Picture     string     `db:"picture" json:"picture"`
	Role        Role       `db:"role" json:"role"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"-"`
	LastLoginAt *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
	TestQuota   int        `db:"test_quota" json:"test_quota"`
	TestsUsed   int        `db:"tests_used" json:"tests_used"`
}
