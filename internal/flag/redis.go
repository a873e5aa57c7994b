package flag

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const flagHashKey = "notify:feature_flags"

// RedisOracle 基于 Redis 哈希表的开关存储
// 字段值三种写法：on / off / 0-100 的灰度百分比，按用户ID取模决定命中
// 字段缺失视为开关未定义，交给调用方的兜底值
type RedisOracle struct {
	client redis.Cmdable
}

func NewRedisOracle(client redis.Cmdable) *RedisOracle {
	return &RedisOracle{client: client}
}

func (o *RedisOracle) Evaluate(ctx context.Context, slug string, uctx UserContext) (bool, error) {
	val, err := o.client.HGet(ctx, flagHashKey, slug).Result()
	if err == redis.Nil {
		return false, fmt.Errorf("开关 %q 未定义", slug)
	}
	if err != nil {
		return false, err
	}
	switch val {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	pct, err := strconv.Atoi(val)
	if err != nil {
		return false, fmt.Errorf("开关 %q 的值 %q 无法解析", slug, val)
	}
	const percentBase = 100
	return uctx.UserID%percentBase < int64(pct), nil
}
