package repository

import (
	"context"

	"gitee.com/flycash/notify-center/internal/repository/dao"
)

// MembershipRepository 受众成员查询接口，只读
// 全量和分群两种受众都按用户ID游标分页，保证单次解析可重启
type MembershipRepository interface {
	ListUserIDsAfter(ctx context.Context, afterID int64, limit int) ([]int64, error)
	ListSegmentUserIDsAfter(ctx context.Context, segment string, afterID int64, limit int) ([]int64, error)
}

type membershipRepository struct {
	dao dao.MembershipDAO
}

func NewMembershipRepository(d dao.MembershipDAO) MembershipRepository {
	return &membershipRepository{dao: d}
}

func (r *membershipRepository) ListUserIDsAfter(ctx context.Context, afterID int64, limit int) ([]int64, error) {
	return r.dao.ListUserIDsAfter(ctx, afterID, limit)
}

func (r *membershipRepository) ListSegmentUserIDsAfter(ctx context.Context, segment string, afterID int64, limit int) ([]int64, error) {
	return r.dao.ListSegmentUserIDsAfter(ctx, segment, afterID, limit)
}
