package meta

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisJournal keeps the records of one synced tree under a key prefix.
//
//	<prefix>:hist:<target>  list of CBOR records, newest first
//	<prefix>:lock:<name>    lease lock
type RedisJournal struct {
	rdb    redis.UniversalClient
	prefix string
	conf   *Config
}

// NewRedisJournal connects to addr. namespace separates trees sharing one
// redis database; the synced directory is a good choice.
func NewRedisJournal(addr, namespace string, conf *Config) (*RedisJournal, error) {
	if conf == nil {
		conf = DefaultConfig()
	}
	rdb, err := newUniversalRedisClient(addr, conf)
	if err != nil {
		return nil, err
	}
	return newRedisJournal(rdb, namespace, conf), nil
}

func newRedisJournal(rdb redis.UniversalClient, namespace string, conf *Config) *RedisJournal {
	if conf.HistoryLen <= 0 {
		conf.HistoryLen = 1
	}
	return &RedisJournal{rdb: rdb, prefix: "fidxsync:" + namespace, conf: conf}
}

func (j *RedisJournal) histKey(target string) string {
	return j.prefix + ":hist:" + target
}

func (j *RedisJournal) Record(ctx context.Context, rec *SyncRecord) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record of %s: %w", rec.Target, err)
	}
	key := j.histKey(rec.Target)
	_, err = j.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, int64(j.conf.HistoryLen-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", rec.Target, err)
	}
	logger.Debugf("recorded %s %s for session %s", rec.Target, rec.Outcome, rec.Session)
	return nil
}

func (j *RedisJournal) Last(ctx context.Context, target string) (*SyncRecord, error) {
	recs, err := j.History(ctx, target, 1)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

func (j *RedisJournal) History(ctx context.Context, target string, n int) ([]*SyncRecord, error) {
	if n <= 0 {
		return nil, nil
	}
	vals, err := j.rdb.LRange(ctx, j.histKey(target), 0, int64(n-1)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read history of %s: %w", target, err)
	}
	recs := make([]*SyncRecord, 0, len(vals))
	for _, v := range vals {
		rec, err := decodeRecord([]byte(v))
		if err != nil {
			logger.Warnf("skipping undecodable record of %s: %v", target, err)
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (j *RedisJournal) Lock(ctx context.Context, resource string, timeout time.Duration) (func(), error) {
	l := newRedisLock(j.rdb, j.prefix+":lock:"+resource)
	if err := l.acquire(ctx, timeout); err != nil {
		return nil, err
	}
	return l.release, nil
}

func (j *RedisJournal) Close() error {
	return j.rdb.Close()
}
