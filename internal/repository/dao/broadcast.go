package dao

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gitee.com/flycash/notify-center/internal/domain"
	"gitee.com/flycash/notify-center/internal/errs"
	"github.com/ego-component/egorm"
	"gorm.io/gorm"
)

// Broadcast 广播任务表
type Broadcast struct {
	ID              uint64 `gorm:"primaryKey;comment:'雪花算法ID'"`
	Title           string `gorm:"type:VARCHAR(512);NOT NULL;comment:'标题'"`
	Body            string `gorm:"type:TEXT;NOT NULL;comment:'正文'"`
	TemplateSlug    string `gorm:"type:VARCHAR(128);NOT NULL;DEFAULT:'';comment:'模板引用，空表示使用字面内容'"`
	TemplateVars    string `gorm:"type:TEXT;NOT NULL;comment:'广播级模板变量，JSON'"`
	AudienceKind    string `gorm:"type:ENUM('LIST','SEGMENT','ALL');NOT NULL;comment:'受众类型'"`
	AudienceUserIDs string `gorm:"type:TEXT;NOT NULL;comment:'显式用户ID列表，JSON数组'"`
	AudienceSegment string `gorm:"type:VARCHAR(128);NOT NULL;DEFAULT:'';comment:'分群标识'"`
	Status          string `gorm:"type:ENUM('DRAFT','SCHEDULED','SENDING','SENT','FAILED','CANCELED');NOT NULL;DEFAULT:'DRAFT';index:idx_status_scheduled,priority:1;comment:'状态'"`
	CreatedBy       string `gorm:"type:VARCHAR(128);NOT NULL;comment:'创建者'"`
	ScheduledAt     int64  `gorm:"NOT NULL;DEFAULT:0;index:idx_status_scheduled,priority:2;comment:'计划发送时间'"`
	StartedAt       int64  `gorm:"NOT NULL;DEFAULT:0;comment:'开始发送时间'"`
	FinishedAt      int64  `gorm:"NOT NULL;DEFAULT:0;comment:'结束时间'"`
	TotalCount      int64  `gorm:"NOT NULL;DEFAULT:0;comment:'已处理接收者数'"`
	SentCount       int64  `gorm:"NOT NULL;DEFAULT:0;comment:'成功数'"`
	FailedCount     int64  `gorm:"NOT NULL;DEFAULT:0;comment:'失败数'"`
	Ctime           int64
	Utime           int64
}

type BroadcastDAO interface {
	Create(ctx context.Context, data Broadcast) (Broadcast, error)
	GetByID(ctx context.Context, id uint64) (Broadcast, error)
	List(ctx context.Context, status string, offset, limit int) ([]Broadcast, error)

	// ClaimDue 原子抢占到期的广播任务
	// 对每个候选执行一次条件更新（status=SCHEDULED AND scheduled_at<=now -> SENDING）
	// 条件更新是多实例并发安全的边界：同一任务恰好一个调用方胜出
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]Broadcast, error)
	// ClaimOne 抢占单个广播任务，不满足抢占条件时返回 errs.ErrBroadcastNotClaimable
	ClaimOne(ctx context.Context, id uint64, now time.Time) (Broadcast, error)

	// UpdateCounters 推进进度计数
	UpdateCounters(ctx context.Context, id uint64, total, sent, failed int64) error
	// Finalize 写入终态和最终计数
	Finalize(ctx context.Context, id uint64, status string, total, sent, failed int64, finishedAt time.Time) error

	// Schedule DRAFT -> SCHEDULED
	Schedule(ctx context.Context, id uint64, scheduledAt time.Time) error
	// Cancel DRAFT/SCHEDULED -> CANCELED，其他状态返回 errs.ErrBroadcastStatusInvalid
	Cancel(ctx context.Context, id uint64) error

	// MarkTimeoutSendingAsFailed 把卡在 SENDING 超过期限的任务置为失败
	// 兜底崩溃的执行实例，避免广播永远停在发送中
	MarkTimeoutSendingAsFailed(ctx context.Context, age time.Duration, batchSize int) (int64, error)
}

type broadcastDAO struct {
	db *egorm.Component
}

func NewBroadcastDAO(db *egorm.Component) BroadcastDAO {
	return &broadcastDAO{db: db}
}

func (d *broadcastDAO) Create(ctx context.Context, data Broadcast) (Broadcast, error) {
	now := time.Now().UnixMilli()
	data.Ctime, data.Utime = now, now
	err := d.db.WithContext(ctx).Create(&data).Error
	return data, err
}

func (d *broadcastDAO) GetByID(ctx context.Context, id uint64) (Broadcast, error) {
	var res Broadcast
	err := d.db.WithContext(ctx).Where("id = ?", id).First(&res).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Broadcast{}, fmt.Errorf("%w: id = %d", errs.ErrBroadcastNotFound, id)
	}
	if err != nil {
		return Broadcast{}, err
	}
	return res, nil
}

func (d *broadcastDAO) List(ctx context.Context, status string, offset, limit int) ([]Broadcast, error) {
	var res []Broadcast
	query := d.db.WithContext(ctx).Model(&Broadcast{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Order("ctime DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&res).Error
	return res, err
}

func (d *broadcastDAO) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Broadcast, error) {
	nowMillis := now.UnixMilli()
	var candidates []Broadcast
	err := d.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", domain.BroadcastStatusScheduled.String(), nowMillis).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	claimed := make([]Broadcast, 0, len(candidates))
	for i := range candidates {
		b, er := d.claim(ctx, candidates[i].ID, now)
		if er != nil {
			// 其他实例先抢到了，跳过即可
			continue
		}
		claimed = append(claimed, b)
	}
	return claimed, nil
}

func (d *broadcastDAO) ClaimOne(ctx context.Context, id uint64, now time.Time) (Broadcast, error) {
	return d.claim(ctx, id, now)
}

// claim 单次条件状态转移，RowsAffected == 1 即胜出
func (d *broadcastDAO) claim(ctx context.Context, id uint64, now time.Time) (Broadcast, error) {
	nowMillis := now.UnixMilli()
	res := d.db.WithContext(ctx).Model(&Broadcast{}).
		Where("id = ? AND status = ? AND scheduled_at <= ?",
			id, domain.BroadcastStatusScheduled.String(), nowMillis).
		Updates(map[string]any{
			"status":     domain.BroadcastStatusSending.String(),
			"started_at": nowMillis,
			"utime":      nowMillis,
		})
	if res.Error != nil {
		return Broadcast{}, res.Error
	}
	if res.RowsAffected < 1 {
		return Broadcast{}, fmt.Errorf("%w: id = %d", errs.ErrBroadcastNotClaimable, id)
	}
	return d.GetByID(ctx, id)
}

func (d *broadcastDAO) UpdateCounters(ctx context.Context, id uint64, total, sent, failed int64) error {
	return d.db.WithContext(ctx).Model(&Broadcast{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"total_count":  total,
			"sent_count":   sent,
			"failed_count": failed,
			"utime":        time.Now().UnixMilli(),
		}).Error
}

func (d *broadcastDAO) Finalize(ctx context.Context, id uint64, status string, total, sent, failed int64, finishedAt time.Time) error {
	return d.db.WithContext(ctx).Model(&Broadcast{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       status,
			"total_count":  total,
			"sent_count":   sent,
			"failed_count": failed,
			"finished_at":  finishedAt.UnixMilli(),
			"utime":        time.Now().UnixMilli(),
		}).Error
}

func (d *broadcastDAO) Schedule(ctx context.Context, id uint64, scheduledAt time.Time) error {
	now := time.Now().UnixMilli()
	res := d.db.WithContext(ctx).Model(&Broadcast{}).
		Where("id = ? AND status = ?", id, domain.BroadcastStatusDraft.String()).
		Updates(map[string]any{
			"status":       domain.BroadcastStatusScheduled.String(),
			"scheduled_at": scheduledAt.UnixMilli(),
			"utime":        now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected < 1 {
		return fmt.Errorf("%w: id = %d", errs.ErrBroadcastStatusInvalid, id)
	}
	return nil
}

func (d *broadcastDAO) Cancel(ctx context.Context, id uint64) error {
	now := time.Now().UnixMilli()
	res := d.db.WithContext(ctx).Model(&Broadcast{}).
		Where("id = ? AND status IN ?", id,
			[]string{domain.BroadcastStatusDraft.String(), domain.BroadcastStatusScheduled.String()}).
		Updates(map[string]any{
			"status": domain.BroadcastStatusCanceled.String(),
			"utime":  now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected < 1 {
		return fmt.Errorf("%w: id = %d", errs.ErrBroadcastStatusInvalid, id)
	}
	return nil
}

func (d *broadcastDAO) MarkTimeoutSendingAsFailed(ctx context.Context, age time.Duration, batchSize int) (int64, error) {
	now := time.Now()
	ddl := now.Add(-age).UnixMilli()
	sub := d.db.Model(&Broadcast{}).
		Select("id").
		Limit(batchSize).
		Where("status = ? AND utime <= ?", domain.BroadcastStatusSending.String(), ddl)
	res := d.db.WithContext(ctx).Model(&Broadcast{}).
		Where("id IN (?)", sub).
		Updates(map[string]any{
			"status":      domain.BroadcastStatusFailed.String(),
			"finished_at": now.UnixMilli(),
			"utime":       now.UnixMilli(),
		})
	return res.RowsAffected, res.Error
}
