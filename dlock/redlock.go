package dlock

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"

	"github.com/luoqeng/asynckit/errs"
	"github.com/luoqeng/asynckit/timer"
)

// RedLock is a single-instance redis lock. Contended acquisition retries
// at checkInterval, and the waits between attempts suspend on the shared
// timer driver rather than blocking on time.After.
type RedLock struct {
	rdb    redis.Cmdable
	entity string // unique identity of this locker
}

func NewRedLock(rdb redis.Cmdable, entity string) *RedLock {
	return &RedLock{rdb: rdb, entity: entity}
}

// Lock acquires lockKey, retrying until expiry has been spent waiting.
// expiry also bounds how long the key is held before redis reclaims it.
func (l *RedLock) Lock(ctx context.Context, lockKey string, expiry, checkInterval time.Duration) error {
	lockTries := int(expiry/checkInterval) + 1
	for i := 0; i < lockTries; i++ {
		if i != 0 {
			d, err := timer.NewDelay(checkInterval)
			if err != nil {
				return err
			}
			if _, err := d.Wait(ctx); err != nil {
				d.Cancel()
				return err
			}
		}
		ret := l.rdb.SetNX(ctx, lockKey, l.entity, expiry)
		if ret.Err() != nil {
			return ret.Err()
		}
		if ret.Val() {
			return nil
		}
	}
	return errs.LockFailed.Printf("key=%s", lockKey)
}

// TryLock makes a single acquisition attempt and never suspends.
func (l *RedLock) TryLock(ctx context.Context, lockKey string, expiry time.Duration) bool {
	val, err := l.rdb.SetNX(ctx, lockKey, l.entity, expiry).Result()
	if err != nil {
		return false
	}
	return val
}

const unlockScriptLua = `
	if redis.call("get",KEYS[1]) == ARGV[1] then
		return redis.call("del",KEYS[1])
	else
		return 0
	end
`

var unlockScript = redis.NewScript(unlockScriptLua)

// UnLock releases lockKey only if this locker still owns it.
func (l *RedLock) UnLock(ctx context.Context, lockKey string) (bool, error) {
	val, err := unlockScript.Run(ctx, l.rdb, []string{lockKey}, l.entity).Result()
	if err != nil {
		return false, err
	}
	num, ok := val.(int64)
	if !ok {
		return false, errs.Unknown.Printf("unlock script returned %T", val)
	}
	return num != 0, nil
}

// GeneLockEntity builds a unique identity for a locker instance.
func GeneLockEntity() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		fmt.Fprintf(os.Stderr, "GeneLockEntity rand.Read err:%v", err)
		return xid.New().String()
	}
	return base64.StdEncoding.EncodeToString(b)
}
