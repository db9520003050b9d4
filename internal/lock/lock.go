// Package redlock implements a single-holder redis lock. The payout batch
// takes one before touching any escrow so that two overlapping runs can
// never pay the same provider twice.
package redlock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// unlockScript deletes the key only while the caller still holds it. A lock
// that expired and was re-acquired by a newer run is left untouched.
const unlockScript = `if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end`

// Locker guards one named lock. The token identifies the holder; releasing
// with a stale token is refused.
type Locker struct {
	client redis.UniversalClient
	key    string
	token  string
}

func NewLocker(client redis.UniversalClient, key, token string) *Locker {
	return &Locker{
		client: client,
		key:    key,
		token:  token,
	}
}

// Lock acquires the lock for at most ttl. The expiry bounds how long a
// crashed holder can block everyone else.
func (l *Locker) Lock(ctx context.Context, ttl time.Duration) error {
	acquired, err := l.client.SetNX(ctx, l.key, l.token, ttl).Result()
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("lock %s is held by another run", l.key)
	}
	return nil
}

// Unlock releases the lock if this locker still holds it.
func (l *Locker) Unlock(ctx context.Context) error {
	result, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.token).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("lock %s expired or belongs to another holder", l.key)
	}
	return nil
}
