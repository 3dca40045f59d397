package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// reserveScript increments the attempt counter and starts the window on the
// first attempt in one round trip.
var reserveScript = goredis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// PinAttemptLimiter implements ports.PinAttemptLimiter. Attempts are
// counted per wallet; the counter expires window after the first attempt,
// which also ends the lockout.
type PinAttemptLimiter struct {
	client      goredis.UniversalClient
	prefix      string
	maxAttempts int64
	window      time.Duration
}

// NewPinAttemptLimiter creates a limiter that allows maxAttempts comparisons per window.
func NewPinAttemptLimiter(client goredis.UniversalClient, maxAttempts int, window time.Duration) *PinAttemptLimiter {
	return &PinAttemptLimiter{
		client:      client,
		prefix:      keyPrefix + "pin_attempts:",
		maxAttempts: int64(maxAttempts),
		window:      window,
	}
}

func (l *PinAttemptLimiter) key(walletID int64) string {
	return l.prefix + strconv.FormatInt(walletID, 10)
}

// Reserve counts an attempt before the PIN is compared. Attempts past
// maxAttempts are refused until the window expires or Reset is called.
func (l *PinAttemptLimiter) Reserve(ctx context.Context, walletID int64) (int64, bool, error) {
	n, err := reserveScript.Run(ctx, l.client, []string{l.key(walletID)}, l.window.Milliseconds()).Int64()
	if err != nil {
		return 0, false, fmt.Errorf("redis pin attempts reserve: %w", err)
	}
	return n, n <= l.maxAttempts, nil
}

// Reset clears the counter after a successful verification.
func (l *PinAttemptLimiter) Reset(ctx context.Context, walletID int64) error {
	if err := l.client.Del(ctx, l.key(walletID)).Err(); err != nil {
		return fmt.Errorf("redis pin attempts reset: %w", err)
	}
	return nil
}
