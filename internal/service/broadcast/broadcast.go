package broadcast

import (
	"context"
	"fmt"
	"time"

	"gitee.com/flycash/notify-center/internal/domain"
	"gitee.com/flycash/notify-center/internal/errs"
	"gitee.com/flycash/notify-center/internal/repository"
	"github.com/sony/sonyflake"
)

// Service 广播任务管理接口
// 生命周期：DRAFT --Schedule--> SCHEDULED --抢占--> SENDING --> SENT|FAILED
// CANCELED 只能从 DRAFT/SCHEDULED 进入；终态不允许任何后续转移
//
//go:generate mockgen -source=./broadcast.go -destination=./mocks/broadcast.mock.go -package=broadcastmocks -typed Service
type Service interface {
	Create(ctx context.Context, broadcast domain.Broadcast) (domain.Broadcast, error)
	Schedule(ctx context.Context, id uint64, scheduledAt time.Time) error
	Cancel(ctx context.Context, id uint64) error
	Get(ctx context.Context, id uint64) (domain.Broadcast, error)
	List(ctx context.Context, status domain.BroadcastStatus, offset, limit int) ([]domain.Broadcast, error)
}

type service struct {
	repo  repository.BroadcastRepository
	idGen *sonyflake.Sonyflake
}

func NewService(repo repository.BroadcastRepository, idGen *sonyflake.Sonyflake) Service {
	return &service{
		repo:  repo,
		idGen: idGen,
	}
}

func (s *service) Create(ctx context.Context, broadcast domain.Broadcast) (domain.Broadcast, error) {
	if err := broadcast.Validate(); err != nil {
		return domain.Broadcast{}, err
	}
	switch broadcast.Status {
	case "":
		broadcast.Status = domain.BroadcastStatusDraft
	case domain.BroadcastStatusDraft:
	case domain.BroadcastStatusScheduled:
		if broadcast.ScheduledAt.IsZero() {
			return domain.Broadcast{}, fmt.Errorf("%w: SCHEDULED 状态必须携带计划发送时间", errs.ErrInvalidParameter)
		}
	default:
		return domain.Broadcast{}, fmt.Errorf("%w: 创建时状态只能是 DRAFT 或 SCHEDULED", errs.ErrInvalidParameter)
	}

	id, err := s.idGen.NextID()
	if err != nil {
		return domain.Broadcast{}, fmt.Errorf("%w: %w", errs.ErrIDGenerateFailed, err)
	}
	broadcast.ID = id
	return s.repo.Create(ctx, broadcast)
}

func (s *service) Schedule(ctx context.Context, id uint64, scheduledAt time.Time) error {
	if scheduledAt.IsZero() {
		return fmt.Errorf("%w: 计划发送时间不能为空", errs.ErrInvalidParameter)
	}
	return s.repo.Schedule(ctx, id, scheduledAt)
}

func (s *service) Cancel(ctx context.Context, id uint64) error {
	return s.repo.Cancel(ctx, id)
}

func (s *service) Get(ctx context.Context, id uint64) (domain.Broadcast, error) {
	return s.repo.Get(ctx, id)
}

func (s *service) List(ctx context.Context, status domain.BroadcastStatus, offset, limit int) ([]domain.Broadcast, error) {
	return s.repo.List(ctx, status, offset, limit)
}
