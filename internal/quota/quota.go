package quota

import "errors"

var ErrQuotaExceeded = errors.New("test generation quota exceeded")

type QuotaChecker interface {
	CanGenerate() bool
	IncrementUsed() error
	Remaining() int
}

// UserQuota is how many tests a user may generate and how many they have.
type UserQuota struct {
	TestQuota int
	TestsUsed int
}

func (u *UserQuota) CanGenerate() bool {
	return u.TestsUsed < u.TestQuota
}

func (u *UserQuota) IncrementUsed() error {
	if !u.CanGenerate() {
		return ErrQuotaExceeded
	}
	u.TestsUsed++
	return nil
}

func (u *UserQuota) Remaining() int {
	if r := u.TestQuota - u.TestsUsed; r > 0 {
		return r
	}
	return 0
}
