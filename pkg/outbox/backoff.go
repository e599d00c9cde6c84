package outbox

import (
	"math/rand"
	"strings"
	"time"
)

// Backoff returns base * 2^(attempts-1), capped at maxBackoff. Zero attempts wait zero.
func Backoff(attempts int, base, maxBackoff time.Duration) time.Duration {
	if attempts <= 0 || base <= 0 {
		return 0
	}
	d := base
	for i := 1; i < attempts && d < maxBackoff; i++ {
		d *= 2
	}
	return min(d, maxBackoff)
}

func jitter(r *rand.Rand, upTo time.Duration) time.Duration {
	if r == nil || upTo <= 0 {
		return 0
	}
	return time.Duration(r.Int63n(int64(upTo) + 1)) //nolint:gosec
}

// clip cuts s to at most n bytes without splitting a rune.
func clip(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "")
}
