package idempotent

import "context"

// IdempotencyService 入站事件的幂等预判
// FirstSeen 返回 true 表示这个键第一次出现，调用方可以继续处理
type IdempotencyService interface {
	FirstSeen(ctx context.Context, key string) (bool, error)
	MFirstSeen(ctx context.Context, keys ...string) ([]bool, error)
}
