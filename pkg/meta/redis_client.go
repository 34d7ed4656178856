package meta

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/zhengshuai-xiao/fidxsync/internal"
)

type Config struct {
	Retries      int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// HistoryLen caps the records kept per target.
	HistoryLen int
}

func DefaultConfig() *Config {
	return &Config{
		Retries:      3,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		HistoryLen:   20,
	}
}

// newUniversalRedisClient connects to a single node, a cluster
// (host1:port,host2:port) or a sentinel set (master,sentinel1:port,...).
// The address may carry a password (user:pass@host) and a db (/1).
func newUniversalRedisClient(addr string, conf *Config) (redis.UniversalClient, error) {
	uri := addr
	if !strings.Contains(uri, "://") {
		uri = "redis://" + addr
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid redis address format: %w", err)
	}

	hosts := strings.Split(u.Host, ",")
	// ParseURL only understands a single host
	single := *u
	single.Host = hosts[len(hosts)-1]
	opt, err := redis.ParseURL(single.String())
	if err != nil {
		return nil, fmt.Errorf("could not parse redis URL: %w", err)
	}

	if opt.Password == "" {
		opt.Password = os.Getenv("REDIS_PASSWORD")
	}
	if opt.Password == "" {
		opt.Password = os.Getenv("META_PASSWORD")
	}

	universalOptions := &redis.UniversalOptions{
		Addrs:        hosts,
		DB:           opt.DB,
		Username:     opt.Username,
		Password:     opt.Password,
		MaxRetries:   conf.Retries,
		PoolSize:     8,
		ReadTimeout:  conf.ReadTimeout,
		WriteTimeout: conf.WriteTimeout,
	}
	if universalOptions.MaxRetries == 0 {
		universalOptions.MaxRetries = -1
	}

	if len(hosts) > 1 && !strings.Contains(hosts[0], ":") {
		universalOptions.MasterName = hosts[0]
		universalOptions.Addrs = hosts[1:]
		logger.Infof("connecting to redis in sentinel mode, master %s, sentinels %v", universalOptions.MasterName, universalOptions.Addrs)
	} else if len(hosts) > 1 {
		logger.Infof("connecting to redis in cluster mode, nodes %v", universalOptions.Addrs)
	} else {
		logger.Infof("connecting to redis at %s", internal.RemovePassword(uri))
	}

	rdb := redis.NewUniversalClient(universalOptions)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", internal.RemovePassword(uri), err)
	}
	return rdb, nil
}
