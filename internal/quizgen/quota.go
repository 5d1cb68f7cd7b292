package quizgen

import (
	"errors"
	"strings"

	"github.com/emandor/kelas_service/internal/providers"
)

// quotaSignals are substrings the provider puts in rate-limit errors.
var quotaSignals = []string{"quota", "429", "RESOURCE_EXHAUSTED"}

// IsQuotaSignal reports whether an error message looks like a quota or
// rate-limit rejection.
func IsQuotaSignal(msg string) bool {
	for _, s := range quotaSignals {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func isQuotaError(err error) bool {
	if err == nil {
		return false
	}
	var rl *providers.ErrRateLimit
	if errors.As(err, &rl) {
		return true
	}
	return IsQuotaSignal(err.Error())
}
