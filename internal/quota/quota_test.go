package quota

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserQuota(t *testing.T) {
	q := &UserQuota{TestQuota: 2}
	var _ QuotaChecker = q

	assert.True(t, q.CanGenerate())
	assert.NoError(t, q.IncrementUsed())
	assert.NoError(t, q.IncrementUsed())
	assert.False(t, q.CanGenerate())
	assert.ErrorIs(t, q.IncrementUsed(), ErrQuotaExceeded)
	assert.Equal(t, 2, q.TestsUsed)
	assert.Equal(t, 0, q.Remaining())
}

func TestUserQuota_RemainingNeverNegative(t *testing.T) {
	q := &UserQuota{TestQuota: 1, TestsUsed: 5}
	assert.Equal(t, 0, q.Remaining())
	assert.False(t, q.CanGenerate())
}
