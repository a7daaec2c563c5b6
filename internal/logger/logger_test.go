package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeKVs_RedactsSecrets(t *testing.T) {
	out := sanitizeKVs([]interface{}{
		"lesson_id", 7,
		"razorpay_signature", "abc",
		"access_token", "xyz",
		"dangling",
	})

	assert.Equal(t, []interface{}{
		"lesson_id", 7,
		"razorpay_signature", "[REDACTED]",
		"access_token", "[REDACTED]",
		"dangling",
	}, out)
}

func TestNew_FallsBackToInfoOnBadLevel(t *testing.T) {
	l, err := New("dev", "loud")
	assert.NoError(t, err)
	assert.NotNil(t, l)
	assert.False(t, l.SugaredLogger.Desugar().Core().Enabled(-1))
}
