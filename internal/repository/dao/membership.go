package dao

import (
	"context"

	"github.com/ecodeclub/ekit/slice"
	"github.com/ego-component/egorm"
)

// User 用户表，只读消费，全量扫描的受众来源
type User struct {
	ID     int64 `gorm:"primaryKey"`
	Active bool  `gorm:"NOT NULL;DEFAULT:1"`
	Ctime  int64
	Utime  int64
}

// SegmentMember 分群成员表，外部分群系统同步写入，这里只读
type SegmentMember struct {
	ID      uint64 `gorm:"primaryKey"`
	Segment string `gorm:"type:VARCHAR(128);NOT NULL;uniqueIndex:idx_segment_user,priority:1;comment:'分群标识'"`
	UserID  int64  `gorm:"type:BIGINT;NOT NULL;uniqueIndex:idx_segment_user,priority:2;comment:'用户ID'"`
	Ctime   int64
}

type MembershipDAO interface {
	// ListUserIDsAfter 按用户ID游标分页扫描全量用户
	ListUserIDsAfter(ctx context.Context, afterID int64, limit int) ([]int64, error)
	// ListSegmentUserIDsAfter 按用户ID游标分页扫描一个分群的成员
	ListSegmentUserIDsAfter(ctx context.Context, segment string, afterID int64, limit int) ([]int64, error)
}

type membershipDAO struct {
	db *egorm.Component
}

func NewMembershipDAO(db *egorm.Component) MembershipDAO {
	return &membershipDAO{db: db}
}

func (d *membershipDAO) ListUserIDsAfter(ctx context.Context, afterID int64, limit int) ([]int64, error) {
	var users []User
	err := d.db.WithContext(ctx).
		Select("id").
		Where("id > ? AND active = ?", afterID, true).
		Order("id ASC").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return slice.Map(users, func(_ int, src User) int64 {
		return src.ID
	}), nil
}

func (d *membershipDAO) ListSegmentUserIDsAfter(ctx context.Context, segment string, afterID int64, limit int) ([]int64, error) {
	var members []SegmentMember
	err := d.db.WithContext(ctx).
		Where("segment = ? AND user_id > ?", segment, afterID).
		Order("user_id ASC").
		Limit(limit).
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return slice.Map(members, func(_ int, src SegmentMember) int64 {
		return src.UserID
	}), nil
}
