package redis_tools

import (
	"context"

	"github.com/redis/go-redis/v9"
)

type RedisDao struct {
	client redis.UniversalClient
}

func NewRedisDao(client redis.UniversalClient) *RedisDao {
	return &RedisDao{
		client: client,
	}
}

// 查不到返回空的map，err = nil
func (rd *RedisDao) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	val := rd.client.HGetAll(ctx, key)
	return val.Result()
}

// ReplaceHash swaps the whole hash for fields in one MULTI/EXEC, so readers
// see either the old or the new set. Empty fields leaves the key deleted.
func (rd *RedisDao) ReplaceHash(ctx context.Context, key string, fields map[string]string) error {
	_, err := rd.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(fields) > 0 {
			values := make(map[string]any, len(fields))
			for k, v := range fields {
				values[k] = v
			}
			pipe.HSet(ctx, key, values)
		}
		return nil
	})
	return err
}

// 删除key，删除返回1，不存在返回0
func (rd *RedisDao) Del(ctx context.Context, keys ...string) (int64, error) {
	val := rd.client.Del(ctx, keys...)
	return val.Result()
}

func (rd *RedisDao) Ping(ctx context.Context) error {
	return rd.client.Ping(ctx).Err()
}
