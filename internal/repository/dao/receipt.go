package dao

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gitee.com/flycash/notify-center/internal/errs"
	"github.com/ego-component/egorm"
	"gorm.io/gorm"
)

// Receipt 站内信收件表
// idempotency_key 非空时唯一：同一逻辑通知的重复投递命中唯一索引后转为更新
type Receipt struct {
	ID             uint64  `gorm:"primaryKey;autoIncrement;comment:'自增ID'"`
	UserID         int64   `gorm:"type:BIGINT;NOT NULL;index:idx_user_ctime,priority:1;comment:'用户ID'"`
	Title          string  `gorm:"type:VARCHAR(512);NOT NULL;comment:'标题'"`
	Body           string  `gorm:"type:TEXT;NOT NULL;comment:'正文'"`
	ContentHash    string  `gorm:"type:VARCHAR(64);NOT NULL;comment:'渲染后内容摘要'"`
	Placement      string  `gorm:"type:VARCHAR(32);NOT NULL;DEFAULT:'inbox';comment:'展示位置'"`
	Priority       string  `gorm:"type:ENUM('LOW','NORMAL','HIGH');NOT NULL;DEFAULT:'NORMAL';comment:'优先级'"`
	Preview        bool    `gorm:"NOT NULL;DEFAULT:1;comment:'是否出现在未读预览'"`
	IdempotencyKey *string `gorm:"type:VARCHAR(64);uniqueIndex:idx_idempotency_key;comment:'幂等键，可空'"`
	ReadTime       int64   `gorm:"NOT NULL;DEFAULT:0;comment:'已读时间，0表示未读'"`
	Ctime          int64   `gorm:"index:idx_user_ctime,priority:2"`
	Utime          int64
}

type ReceiptDAO interface {
	// Upsert 按幂等键写入收件记录
	// 键已存在时更新原记录的内容字段并返回原记录，保证同一逻辑通知至多一条可见投递
	Upsert(ctx context.Context, data Receipt) (Receipt, error)
	GetByID(ctx context.Context, id uint64) (Receipt, error)
	GetByIdempotencyKey(ctx context.Context, key string) (Receipt, error)
	ListByUserID(ctx context.Context, userID int64, offset, limit int) ([]Receipt, error)
	// MarkRead 把一条收件记录标记为已读，幂等
	MarkRead(ctx context.Context, userID int64, id uint64) error
}

type receiptDAO struct {
	db *egorm.Component
}

func NewReceiptDAO(db *egorm.Component) ReceiptDAO {
	return &receiptDAO{db: db}
}

func (d *receiptDAO) Upsert(ctx context.Context, data Receipt) (Receipt, error) {
	now := time.Now().UnixMilli()
	data.Ctime, data.Utime = now, now

	err := d.db.WithContext(ctx).Create(&data).Error
	if err == nil {
		return data, nil
	}
	if !isUniqueConstraintError(err) || data.IdempotencyKey == nil {
		return Receipt{}, err
	}

	// 幂等键冲突：更新已有记录的内容字段，不产生第二条可见投递
	var existing Receipt
	if er := d.db.WithContext(ctx).
		Where("idempotency_key = ?", *data.IdempotencyKey).
		First(&existing).Error; er != nil {
		return Receipt{}, fmt.Errorf("%w: %w", errs.ErrReceiptDuplicate, er)
	}
	updates := map[string]any{
		"title":        data.Title,
		"body":         data.Body,
		"content_hash": data.ContentHash,
		"placement":    data.Placement,
		"priority":     data.Priority,
		"preview":      data.Preview,
		"utime":        now,
	}
	if er := d.db.WithContext(ctx).Model(&Receipt{}).
		Where("id = ?", existing.ID).
		Updates(updates).Error; er != nil {
		return Receipt{}, er
	}
	existing.Title = data.Title
	existing.Body = data.Body
	existing.ContentHash = data.ContentHash
	existing.Placement = data.Placement
	existing.Priority = data.Priority
	existing.Preview = data.Preview
	existing.Utime = now
	return existing, nil
}

func (d *receiptDAO) GetByID(ctx context.Context, id uint64) (Receipt, error) {
	var res Receipt
	err := d.db.WithContext(ctx).Where("id = ?", id).First(&res).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Receipt{}, fmt.Errorf("%w: id = %d", errs.ErrReceiptNotFound, id)
	}
	if err != nil {
		return Receipt{}, err
	}
	return res, nil
}

func (d *receiptDAO) GetByIdempotencyKey(ctx context.Context, key string) (Receipt, error) {
	var res Receipt
	err := d.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&res).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Receipt{}, fmt.Errorf("%w: idempotency_key = %s", errs.ErrReceiptNotFound, key)
	}
	if err != nil {
		return Receipt{}, err
	}
	return res, nil
}

func (d *receiptDAO) ListByUserID(ctx context.Context, userID int64, offset, limit int) ([]Receipt, error) {
	var res []Receipt
	err := d.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("ctime DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&res).Error
	return res, err
}

func (d *receiptDAO) MarkRead(ctx context.Context, userID int64, id uint64) error {
	now := time.Now().UnixMilli()
	return d.db.WithContext(ctx).Model(&Receipt{}).
		Where("id = ? AND user_id = ? AND read_time = 0", id, userID).
		Updates(map[string]any{
			"read_time": now,
			"utime":     now,
		}).Error
}
