package repository

import (
	"context"
	"time"

	"gitee.com/flycash/notify-center/internal/domain"
	"gitee.com/flycash/notify-center/internal/repository/dao"
	"github.com/ecodeclub/ekit/slice"
)

// ReceiptRepository 收件记录仓储接口
type ReceiptRepository interface {
	// Upsert 按幂等键写入，键冲突时更新原记录并返回原记录
	Upsert(ctx context.Context, receipt domain.Receipt) (domain.Receipt, error)
	GetByID(ctx context.Context, id uint64) (domain.Receipt, error)
	GetByIdempotencyKey(ctx context.Context, key string) (domain.Receipt, error)
	ListForUser(ctx context.Context, userID int64, offset, limit int) ([]domain.Receipt, error)
	MarkRead(ctx context.Context, userID int64, id uint64) error
}

type receiptRepository struct {
	dao dao.ReceiptDAO
}

func NewReceiptRepository(d dao.ReceiptDAO) ReceiptRepository {
	return &receiptRepository{dao: d}
}

func (r *receiptRepository) Upsert(ctx context.Context, receipt domain.Receipt) (domain.Receipt, error) {
	entity, err := r.dao.Upsert(ctx, r.toEntity(receipt))
	if err != nil {
		return domain.Receipt{}, err
	}
	return r.toDomain(entity), nil
}

func (r *receiptRepository) GetByID(ctx context.Context, id uint64) (domain.Receipt, error) {
	entity, err := r.dao.GetByID(ctx, id)
	if err != nil {
		return domain.Receipt{}, err
	}
	return r.toDomain(entity), nil
}

func (r *receiptRepository) GetByIdempotencyKey(ctx context.Context, key string) (domain.Receipt, error) {
	entity, err := r.dao.GetByIdempotencyKey(ctx, key)
	if err != nil {
		return domain.Receipt{}, err
	}
	return r.toDomain(entity), nil
}

func (r *receiptRepository) ListForUser(ctx context.Context, userID int64, offset, limit int) ([]domain.Receipt, error) {
	entities, err := r.dao.ListByUserID(ctx, userID, offset, limit)
	if err != nil {
		return nil, err
	}
	return slice.Map(entities, func(_ int, src dao.Receipt) domain.Receipt {
		return r.toDomain(src)
	}), nil
}

func (r *receiptRepository) MarkRead(ctx context.Context, userID int64, id uint64) error {
	return r.dao.MarkRead(ctx, userID, id)
}

func (r *receiptRepository) toDomain(e dao.Receipt) domain.Receipt {
	res := domain.Receipt{
		ID:          e.ID,
		UserID:      e.UserID,
		Title:       e.Title,
		Body:        e.Body,
		ContentHash: e.ContentHash,
		Placement:   e.Placement,
		Priority:    domain.EventPriority(e.Priority),
		Preview:     e.Preview,
		Ctime:       time.UnixMilli(e.Ctime),
		Utime:       time.UnixMilli(e.Utime),
	}
	if e.IdempotencyKey != nil {
		res.IdempotencyKey = *e.IdempotencyKey
	}
	if e.ReadTime > 0 {
		res.ReadTime = time.UnixMilli(e.ReadTime)
	}
	return res
}

func (r *receiptRepository) toEntity(d domain.Receipt) dao.Receipt {
	res := dao.Receipt{
		ID:          d.ID,
		UserID:      d.UserID,
		Title:       d.Title,
		Body:        d.Body,
		ContentHash: d.ContentHash,
		Placement:   d.Placement,
		Priority:    string(d.Priority),
		Preview:     d.Preview,
	}
	if d.IdempotencyKey != "" {
		key := d.IdempotencyKey
		res.IdempotencyKey = &key
	}
	if !d.ReadTime.IsZero() {
		res.ReadTime = d.ReadTime.UnixMilli()
	}
	return res
}
