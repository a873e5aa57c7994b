package repository

import (
	"context"
	"encoding/json"
	"time"

	"gitee.com/flycash/notify-center/internal/domain"
	"gitee.com/flycash/notify-center/internal/repository/dao"
	"github.com/ecodeclub/ekit/slice"
)

// BroadcastRepository 广播任务仓储接口
type BroadcastRepository interface {
	Create(ctx context.Context, broadcast domain.Broadcast) (domain.Broadcast, error)
	Get(ctx context.Context, id uint64) (domain.Broadcast, error)
	List(ctx context.Context, status domain.BroadcastStatus, offset, limit int) ([]domain.Broadcast, error)

	// ClaimDue 原子抢占到期的广播，恰好一个调用方胜出
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.Broadcast, error)
	// ClaimOne 抢占单个广播，不满足条件时返回 errs.ErrBroadcastNotClaimable
	ClaimOne(ctx context.Context, id uint64, now time.Time) (domain.Broadcast, error)

	UpdateCounters(ctx context.Context, id uint64, total, sent, failed int64) error
	Finalize(ctx context.Context, id uint64, status domain.BroadcastStatus,
		total, sent, failed int64, finishedAt time.Time) error

	Schedule(ctx context.Context, id uint64, scheduledAt time.Time) error
	Cancel(ctx context.Context, id uint64) error
	MarkTimeoutSendingAsFailed(ctx context.Context, age time.Duration, batchSize int) (int64, error)
}

type broadcastRepository struct {
	dao dao.BroadcastDAO
}

func NewBroadcastRepository(d dao.BroadcastDAO) BroadcastRepository {
	return &broadcastRepository{dao: d}
}

func (r *broadcastRepository) Create(ctx context.Context, broadcast domain.Broadcast) (domain.Broadcast, error) {
	entity, err := r.toEntity(broadcast)
	if err != nil {
		return domain.Broadcast{}, err
	}
	created, err := r.dao.Create(ctx, entity)
	if err != nil {
		return domain.Broadcast{}, err
	}
	return r.toDomain(created), nil
}

func (r *broadcastRepository) Get(ctx context.Context, id uint64) (domain.Broadcast, error) {
	entity, err := r.dao.GetByID(ctx, id)
	if err != nil {
		return domain.Broadcast{}, err
	}
	return r.toDomain(entity), nil
}

func (r *broadcastRepository) List(ctx context.Context, status domain.BroadcastStatus, offset, limit int) ([]domain.Broadcast, error) {
	entities, err := r.dao.List(ctx, status.String(), offset, limit)
	if err != nil {
		return nil, err
	}
	return slice.Map(entities, func(_ int, src dao.Broadcast) domain.Broadcast {
		return r.toDomain(src)
	}), nil
}

func (r *broadcastRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.Broadcast, error) {
	entities, err := r.dao.ClaimDue(ctx, now, limit)
	if err != nil {
		return nil, err
	}
	return slice.Map(entities, func(_ int, src dao.Broadcast) domain.Broadcast {
		return r.toDomain(src)
	}), nil
}

func (r *broadcastRepository) ClaimOne(ctx context.Context, id uint64, now time.Time) (domain.Broadcast, error) {
	entity, err := r.dao.ClaimOne(ctx, id, now)
	if err != nil {
		return domain.Broadcast{}, err
	}
	return r.toDomain(entity), nil
}

func (r *broadcastRepository) UpdateCounters(ctx context.Context, id uint64, total, sent, failed int64) error {
	return r.dao.UpdateCounters(ctx, id, total, sent, failed)
}

func (r *broadcastRepository) Finalize(ctx context.Context, id uint64, status domain.BroadcastStatus,
	total, sent, failed int64, finishedAt time.Time,
) error {
	return r.dao.Finalize(ctx, id, status.String(), total, sent, failed, finishedAt)
}

func (r *broadcastRepository) Schedule(ctx context.Context, id uint64, scheduledAt time.Time) error {
	return r.dao.Schedule(ctx, id, scheduledAt)
}

func (r *broadcastRepository) Cancel(ctx context.Context, id uint64) error {
	return r.dao.Cancel(ctx, id)
}

func (r *broadcastRepository) MarkTimeoutSendingAsFailed(ctx context.Context, age time.Duration, batchSize int) (int64, error) {
	return r.dao.MarkTimeoutSendingAsFailed(ctx, age, batchSize)
}

func (r *broadcastRepository) toDomain(e dao.Broadcast) domain.Broadcast {
	var userIDs []int64
	_ = json.Unmarshal([]byte(e.AudienceUserIDs), &userIDs)
	var vars map[string]string
	_ = json.Unmarshal([]byte(e.TemplateVars), &vars)

	res := domain.Broadcast{
		ID:           e.ID,
		Title:        e.Title,
		Body:         e.Body,
		TemplateSlug: e.TemplateSlug,
		TemplateVars: vars,
		Audience: domain.AudienceSpec{
			Kind:    domain.AudienceKind(e.AudienceKind),
			UserIDs: userIDs,
			Segment: e.AudienceSegment,
		},
		Status:      domain.BroadcastStatus(e.Status),
		CreatedBy:   e.CreatedBy,
		TotalCount:  e.TotalCount,
		SentCount:   e.SentCount,
		FailedCount: e.FailedCount,
		Ctime:       time.UnixMilli(e.Ctime),
		Utime:       time.UnixMilli(e.Utime),
	}
	if e.ScheduledAt > 0 {
		res.ScheduledAt = time.UnixMilli(e.ScheduledAt)
	}
	if e.StartedAt > 0 {
		res.StartedAt = time.UnixMilli(e.StartedAt)
	}
	if e.FinishedAt > 0 {
		res.FinishedAt = time.UnixMilli(e.FinishedAt)
	}
	return res
}

func (r *broadcastRepository) toEntity(d domain.Broadcast) (dao.Broadcast, error) {
	userIDs, err := d.MarshalAudienceUserIDs()
	if err != nil {
		return dao.Broadcast{}, err
	}
	vars, err := d.MarshalTemplateVars()
	if err != nil {
		return dao.Broadcast{}, err
	}
	res := dao.Broadcast{
		ID:              d.ID,
		Title:           d.Title,
		Body:            d.Body,
		TemplateSlug:    d.TemplateSlug,
		TemplateVars:    vars,
		AudienceKind:    string(d.Audience.Kind),
		AudienceUserIDs: userIDs,
		AudienceSegment: d.Audience.Segment,
		Status:          d.Status.String(),
		CreatedBy:       d.CreatedBy,
		TotalCount:      d.TotalCount,
		SentCount:       d.SentCount,
		FailedCount:     d.FailedCount,
	}
	if !d.ScheduledAt.IsZero() {
		res.ScheduledAt = d.ScheduledAt.UnixMilli()
	}
	if !d.StartedAt.IsZero() {
		res.StartedAt = d.StartedAt.UnixMilli()
	}
	if !d.FinishedAt.IsZero() {
		res.FinishedAt = d.FinishedAt.UnixMilli()
	}
	return res, nil
}
