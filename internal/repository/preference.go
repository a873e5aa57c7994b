package repository

import (
	"context"
	"encoding/json"
	"time"

	"gitee.com/flycash/notify-center/internal/domain"
	"gitee.com/flycash/notify-center/internal/repository/dao"
	"github.com/ecodeclub/ekit/slice"
)

// PreferenceRepository 偏好仓储接口
type PreferenceRepository interface {
	// ListForUser 查询一个用户的全部偏好记录
	ListForUser(ctx context.Context, userID int64) ([]domain.PreferenceRecord, error)

	// ReplaceForUser 原子替换一个用户的全部偏好记录并追加审计记录
	ReplaceForUser(ctx context.Context, userID int64,
		records []domain.PreferenceRecord, audits []domain.ConsentAuditRecord) error
}

// AuditRepository 同意审计仓储接口，只追加
type AuditRepository interface {
	AppendMany(ctx context.Context, audits []domain.ConsentAuditRecord) error
	ListForUser(ctx context.Context, userID int64, offset, limit int) ([]domain.ConsentAuditRecord, error)
}

type preferenceRepository struct {
	dao dao.PreferenceDAO
}

func NewPreferenceRepository(d dao.PreferenceDAO) PreferenceRepository {
	return &preferenceRepository{dao: d}
}

func (r *preferenceRepository) ListForUser(ctx context.Context, userID int64) ([]domain.PreferenceRecord, error) {
	entities, err := r.dao.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return slice.Map(entities, func(_ int, src dao.Preference) domain.PreferenceRecord {
		return r.toDomain(src)
	}), nil
}

func (r *preferenceRepository) ReplaceForUser(ctx context.Context, userID int64,
	records []domain.PreferenceRecord, audits []domain.ConsentAuditRecord,
) error {
	prefEntities := slice.Map(records, func(_ int, src domain.PreferenceRecord) dao.Preference {
		return r.toEntity(src)
	})
	auditEntities := slice.Map(audits, func(_ int, src domain.ConsentAuditRecord) dao.ConsentAudit {
		return toAuditEntity(src)
	})
	return r.dao.ReplaceByUserID(ctx, userID, prefEntities, auditEntities)
}

func (r *preferenceRepository) toDomain(e dao.Preference) domain.PreferenceRecord {
	var quietHours []int
	// 存储层的脏数据按空处理，不影响读取
	_ = json.Unmarshal([]byte(e.QuietHours), &quietHours)
	return domain.PreferenceRecord{
		ID:         e.ID,
		UserID:     e.UserID,
		TopicKey:   e.TopicKey,
		ChannelKey: e.ChannelKey,
		OptIn:      e.OptIn,
		Digest:     domain.DigestMode(e.Digest),
		QuietHours: quietHours,
		Source:     e.Source,
		Actor:      e.Actor,
		RequestID:  e.RequestID,
		Version:    e.Version,
		Ctime:      time.UnixMilli(e.Ctime),
		Utime:      time.UnixMilli(e.Utime),
	}
}

func (r *preferenceRepository) toEntity(d domain.PreferenceRecord) dao.Preference {
	quietHours := "[]"
	if len(d.QuietHours) > 0 {
		if bs, err := json.Marshal(d.QuietHours); err == nil {
			quietHours = string(bs)
		}
	}
	return dao.Preference{
		ID:         d.ID,
		UserID:     d.UserID,
		TopicKey:   d.TopicKey,
		ChannelKey: d.ChannelKey,
		OptIn:      d.OptIn,
		Digest:     d.Digest.String(),
		QuietHours: quietHours,
		Source:     d.Source,
		Actor:      d.Actor,
		RequestID:  d.RequestID,
		Version:    d.Version,
	}
}

type auditRepository struct {
	dao dao.AuditDAO
}

func NewAuditRepository(d dao.AuditDAO) AuditRepository {
	return &auditRepository{dao: d}
}

func (r *auditRepository) AppendMany(ctx context.Context, audits []domain.ConsentAuditRecord) error {
	if len(audits) == 0 {
		return nil
	}
	entities := slice.Map(audits, func(_ int, src domain.ConsentAuditRecord) dao.ConsentAudit {
		return toAuditEntity(src)
	})
	return r.dao.BatchCreate(ctx, entities)
}

func (r *auditRepository) ListForUser(ctx context.Context, userID int64, offset, limit int) ([]domain.ConsentAuditRecord, error) {
	entities, err := r.dao.ListByUserID(ctx, userID, offset, limit)
	if err != nil {
		return nil, err
	}
	return slice.Map(entities, func(_ int, src dao.ConsentAudit) domain.ConsentAuditRecord {
		return toAuditDomain(src)
	}), nil
}

func toAuditEntity(d domain.ConsentAuditRecord) dao.ConsentAudit {
	previous := ""
	if d.Previous != nil {
		if bs, err := json.Marshal(d.Previous); err == nil {
			previous = string(bs)
		}
	}
	current := ""
	if bs, err := json.Marshal(d.Current); err == nil {
		current = string(bs)
	}
	return dao.ConsentAudit{
		ID:         d.ID,
		UserID:     d.UserID,
		TopicKey:   d.TopicKey,
		ChannelKey: d.ChannelKey,
		Previous:   previous,
		Current:    current,
		Source:     d.Source,
		Actor:      d.Actor,
		RequestID:  d.RequestID,
	}
}

func toAuditDomain(e dao.ConsentAudit) domain.ConsentAuditRecord {
	res := domain.ConsentAuditRecord{
		ID:         e.ID,
		UserID:     e.UserID,
		TopicKey:   e.TopicKey,
		ChannelKey: e.ChannelKey,
		Source:     e.Source,
		Actor:      e.Actor,
		RequestID:  e.RequestID,
		Ctime:      time.UnixMilli(e.Ctime),
	}
	if e.Previous != "" {
		var prev domain.PreferenceRecord
		if err := json.Unmarshal([]byte(e.Previous), &prev); err == nil {
			res.Previous = &prev
		}
	}
	_ = json.Unmarshal([]byte(e.Current), &res.Current)
	return res
}
