package repository

import (
	"context"
	"encoding/json"
	"time"

	"gitee.com/flycash/notify-center/internal/domain"
	"gitee.com/flycash/notify-center/internal/repository/dao"
	ca "github.com/patrickmn/go-cache"
)

// TemplateRepository 模板仓储接口
type TemplateRepository interface {
	// GetBySlug 按引用标识查询模板
	GetBySlug(ctx context.Context, slug string) (domain.ChannelTemplate, error)
	Create(ctx context.Context, template domain.ChannelTemplate) (domain.ChannelTemplate, error)
}

const templateCacheTTL = 5 * time.Minute

// templateRepository 带本地缓存的模板仓储
// 广播场景下同一模板会被高频读取，本地缓存把读放大挡在数据库之外
type templateRepository struct {
	dao   dao.TemplateDAO
	cache *ca.Cache
}

func NewTemplateRepository(d dao.TemplateDAO) TemplateRepository {
	return &templateRepository{
		dao:   d,
		cache: ca.New(templateCacheTTL, 10*time.Minute),
	}
}

func (r *templateRepository) GetBySlug(ctx context.Context, slug string) (domain.ChannelTemplate, error) {
	if v, ok := r.cache.Get(slug); ok {
		return v.(domain.ChannelTemplate), nil
	}
	entity, err := r.dao.GetBySlug(ctx, slug)
	if err != nil {
		return domain.ChannelTemplate{}, err
	}
	tpl := r.toDomain(entity)
	r.cache.Set(slug, tpl, templateCacheTTL)
	return tpl, nil
}

func (r *templateRepository) Create(ctx context.Context, template domain.ChannelTemplate) (domain.ChannelTemplate, error) {
	entity, err := r.toEntity(template)
	if err != nil {
		return domain.ChannelTemplate{}, err
	}
	created, err := r.dao.Create(ctx, entity)
	if err != nil {
		return domain.ChannelTemplate{}, err
	}
	return r.toDomain(created), nil
}

func (r *templateRepository) toDomain(e dao.ChannelTemplate) domain.ChannelTemplate {
	var vars map[string]string
	_ = json.Unmarshal([]byte(e.Variables), &vars)
	return domain.ChannelTemplate{
		ID:        e.ID,
		Slug:      e.Slug,
		Subject:   e.Subject,
		Body:      e.Body,
		Locale:    e.Locale,
		Variables: vars,
		Active:    e.Active,
		Ctime:     time.UnixMilli(e.Ctime),
		Utime:     time.UnixMilli(e.Utime),
	}
}

func (r *templateRepository) toEntity(d domain.ChannelTemplate) (dao.ChannelTemplate, error) {
	vars := "{}"
	if len(d.Variables) > 0 {
		bs, err := json.Marshal(d.Variables)
		if err != nil {
			return dao.ChannelTemplate{}, err
		}
		vars = string(bs)
	}
	return dao.ChannelTemplate{
		ID:        d.ID,
		Slug:      d.Slug,
		Subject:   d.Subject,
		Body:      d.Body,
		Locale:    d.Locale,
		Variables: vars,
		Active:    d.Active,
	}, nil
}
