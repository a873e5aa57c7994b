package audience

import (
	"context"
	"fmt"

	"gitee.com/flycash/notify-center/internal/domain"
	"gitee.com/flycash/notify-center/internal/errs"
	"gitee.com/flycash/notify-center/internal/repository"
)

const defaultBatchSize = 500

// Iterator 受众的惰性批次序列
// 单次解析内有限且有序；每次 Resolve 从头开始，不支持断点续传
type Iterator struct {
	fetch func(ctx context.Context) ([]int64, error)
}

// Next 取下一批用户ID
// 返回空批次且无错误表示序列结束；底层查询失败时错误包装 errs.ErrAudienceResolution
func (it *Iterator) Next(ctx context.Context) ([]int64, error) {
	return it.fetch(ctx)
}

// Resolver 把受众说明解析为分批的用户ID序列
//
//go:generate mockgen -source=./resolver.go -destination=./mocks/resolver.mock.go -package=audiencemocks -typed Resolver
type Resolver interface {
	Resolve(ctx context.Context, spec domain.AudienceSpec, batchSize int) (*Iterator, error)
}

type resolver struct {
	repo repository.MembershipRepository
}

func NewResolver(repo repository.MembershipRepository) Resolver {
	return &resolver{repo: repo}
}

func (r *resolver) Resolve(_ context.Context, spec domain.AudienceSpec, batchSize int) (*Iterator, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	switch spec.Kind {
	case domain.AudienceList:
		return r.listIterator(spec.UserIDs, batchSize), nil
	case domain.AudienceSegment:
		return r.segmentIterator(spec.Segment, batchSize), nil
	case domain.AudienceAll:
		return r.allIterator(batchSize), nil
	default:
		return nil, fmt.Errorf("%w: AudienceKind = %q", errs.ErrInvalidParameter, spec.Kind)
	}
}

// listIterator 显式ID列表按批次切分
func (r *resolver) listIterator(userIDs []int64, batchSize int) *Iterator {
	offset := 0
	return &Iterator{
		fetch: func(context.Context) ([]int64, error) {
			if offset >= len(userIDs) {
				return nil, nil
			}
			end := offset + batchSize
			if end > len(userIDs) {
				end = len(userIDs)
			}
			batch := userIDs[offset:end]
			offset = end
			return batch, nil
		},
	}
}

// segmentIterator 外部分群成员，按用户ID游标分页
func (r *resolver) segmentIterator(segment string, batchSize int) *Iterator {
	var afterID int64
	done := false
	return &Iterator{
		fetch: func(ctx context.Context) ([]int64, error) {
			if done {
				return nil, nil
			}
			batch, err := r.repo.ListSegmentUserIDsAfter(ctx, segment, afterID, batchSize)
			if err != nil {
				return nil, fmt.Errorf("%w: segment = %s: %w", errs.ErrAudienceResolution, segment, err)
			}
			if len(batch) == 0 {
				done = true
				return nil, nil
			}
			afterID = batch[len(batch)-1]
			if len(batch) < batchSize {
				done = true
			}
			return batch, nil
		},
	}
}

// allIterator 全量用户，按用户ID游标分页
func (r *resolver) allIterator(batchSize int) *Iterator {
	var afterID int64
	done := false
	return &Iterator{
		fetch: func(ctx context.Context) ([]int64, error) {
			if done {
				return nil, nil
			}
			batch, err := r.repo.ListUserIDsAfter(ctx, afterID, batchSize)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", errs.ErrAudienceResolution, err)
			}
			if len(batch) == 0 {
				done = true
				return nil, nil
			}
			afterID = batch[len(batch)-1]
			if len(batch) < batchSize {
				done = true
			}
			return batch, nil
		},
	}
}
