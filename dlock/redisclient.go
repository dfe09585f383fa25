package dlock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/luoqeng/asynckit/errs"
)

const (
	RedisMode_Single   = "single"
	RedisMode_Sentinel = "sentinel"
	RedisMode_Cluster  = "cluster"
)

type RedisOpt struct {
	Mode       string // single, sentinel or cluster
	Addrs      []string
	MasterName string // sentinel only
	Password   string
	DB         int // single/sentinel only
}

// NewRedisClient builds the redis client a RedLock runs on, picking the
// topology from opt.Mode and verifying connectivity with a ping.
func NewRedisClient(ctx context.Context, opt *RedisOpt) (redis.Cmdable, error) {
	var rdb redis.Cmdable
	switch opt.Mode {
	case RedisMode_Cluster:
		rdb = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    opt.Addrs,
			Password: opt.Password,
		})
	case RedisMode_Sentinel:
		rdb = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    opt.MasterName,
			SentinelAddrs: opt.Addrs,
			Password:      opt.Password,
			DB:            opt.DB,
		})
	case RedisMode_Single, "":
		if len(opt.Addrs) == 0 {
			return nil, errs.LockFailed.Printf("no redis address")
		}
		rdb = redis.NewClient(&redis.Options{
			Addr:     opt.Addrs[0],
			Password: opt.Password,
			DB:       opt.DB,
		})
	default:
		return nil, errs.LockFailed.Printf("unknown redis mode %s", opt.Mode)
	}

	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		return nil, err
	}
	return rdb, nil
}
