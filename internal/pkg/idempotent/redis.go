package idempotent

import (
	"context"

	"github.com/ecodeclub/ekit/slice"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// BloomIdempotencyService 基于 Redis 布隆过滤器的幂等预判
// 只是预判：误判率内可能把新键判成已见，调用方要能接受极小概率的丢弃
type BloomIdempotencyService struct {
	client     redis.Cmdable
	filterName string
	capacity   uint64  // 预期容量
	errorRate  float64 // 误判率
}

func NewBloomService(client redis.Cmdable, filterName string,
	capacity uint64, errorRate float64,
) *BloomIdempotencyService {
	return &BloomIdempotencyService{
		client:     client,
		filterName: filterName,
		capacity:   capacity,
		errorRate:  errorRate,
	}
}

// FirstSeen BFAdd 返回 true 表示新增成功，即第一次出现
func (s *BloomIdempotencyService) FirstSeen(ctx context.Context, key string) (bool, error) {
	return s.client.BFAdd(ctx, s.filterName, key).Result()
}

func (s *BloomIdempotencyService) MFirstSeen(ctx context.Context, keys ...string) ([]bool, error) {
	if len(keys) == 0 {
		return nil, errors.New("empty keys")
	}
	res := s.client.BFMAdd(ctx, s.filterName, slice.Map(keys, func(_ int, src string) any {
		return src
	})...)
	return res.Result()
}
