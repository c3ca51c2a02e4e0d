package coordinator

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultLeaseKey 所有实例共享的租约键
const DefaultLeaseKey = "autopost:run-lease"

// RedisLease 基于 Redis 的运行租约：SET NX PX 获取，只有持有者才能释放
// TTL 需要大于单次运行的最长耗时，进程崩溃后租约自动过期
type RedisLease struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisLease 创建租约
func NewRedisLease(client *redis.Client, key string, ttl time.Duration) *RedisLease {
	if key == "" {
		key = DefaultLeaseKey
	}
	return &RedisLease{
		client: client,
		key:    key,
		ttl:    ttl,
	}
}

// Acquire 尝试以 owner 身份获取租约
func (l *RedisLease) Acquire(ctx context.Context, owner string) (bool, error) {
	return l.client.SetNX(ctx, l.key, owner, l.ttl).Result()
}

// Release 仅当租约仍属于 owner 时删除
func (l *RedisLease) Release(ctx context.Context, owner string) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, owner).Err()
}

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)
