// Copyright 2024 zhengshuai.xiao@outlook.com
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
package meta

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/zhengshuai-xiao/fidxsync/internal"
)

var (
	// lockExpiry bounds how long a crashed holder blocks others.
	lockExpiry = 30 * time.Second

	// renewalInterval must stay well below lockExpiry.
	renewalInterval = 10 * time.Second

	lockRetryInterval = 200 * time.Millisecond
)

// KEYS[1]: lock key, ARGV[1]: owner
const releaseLockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`

// KEYS[1]: lock key, ARGV[1]: owner, ARGV[2]: expiry in ms
const renewLockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("pexpire", KEYS[1], ARGV[2])
else
    return 0
end
`

// redisLock is an exclusive lease kept alive by a background renewal while held.
type redisLock struct {
	key        string
	ownerID    string
	rdb        redis.UniversalClient
	cancelFunc context.CancelFunc
	done       chan struct{}
}

func newRedisLock(rdb redis.UniversalClient, key string) *redisLock {
	return &redisLock{
		key:     key,
		ownerID: uuid.NewString(),
		rdb:     rdb,
	}
}

// acquire retries until the lock is taken, timeout passes or ctx ends.
func (l *redisLock) acquire(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := l.rdb.SetNX(ctx, l.key, l.ownerID, lockExpiry).Result()
		if err != nil {
			return fmt.Errorf("failed to acquire %s: %w", l.key, err)
		}
		if ok {
			var renewCtx context.Context
			renewCtx, l.cancelFunc = context.WithCancel(context.Background())
			l.done = make(chan struct{})
			go l.renew(renewCtx)
			logger.Debugf("acquired lock %s as %s", l.key, l.ownerID)
			return nil
		}
		if !time.Now().Before(deadline) {
			holder, _ := l.rdb.Get(ctx, l.key).Result()
			return fmt.Errorf("%w: %s held by %s", internal.ErrLocked, l.key, holder)
		}
		select {
		case <-time.After(lockRetryInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *redisLock) renew(ctx context.Context) {
	defer close(l.done)
	ticker := time.NewTicker(renewalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := l.rdb.Eval(ctx, renewLockScript, []string{l.key}, l.ownerID, lockExpiry.Milliseconds()).Int64()
			if err != nil {
				if ctx.Err() == nil {
					logger.Warnf("failed to renew lock %s: %v, it may expire", l.key, err)
				}
				return
			}
			if ok == 0 {
				logger.Warnf("lost lock %s: it expired or was taken over", l.key)
				return
			}
			logger.Tracef("renewed lock %s", l.key)
		}
	}
}

func (l *redisLock) release() {
	if l.cancelFunc != nil {
		l.cancelFunc()
		<-l.done
	}
	if err := l.rdb.Eval(context.Background(), releaseLockScript, []string{l.key}, l.ownerID).Err(); err != nil {
		logger.Errorf("failed to release lock %s: %v", l.key, err)
		return
	}
	logger.Debugf("released lock %s", l.key)
}
