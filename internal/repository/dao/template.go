package dao

import (
	"context"
	"errors"
	"fmt"

	"gitee.com/flycash/notify-center/internal/errs"
	"github.com/ego-component/egorm"
	"gorm.io/gorm"
)

// ChannelTemplate 内容模板表
type ChannelTemplate struct {
	ID        uint64 `gorm:"primaryKey;comment:'雪花算法ID'"`
	Slug      string `gorm:"type:VARCHAR(128);NOT NULL;uniqueIndex:idx_slug;comment:'业务侧引用的唯一标识'"`
	Subject   string `gorm:"type:VARCHAR(512);NOT NULL;comment:'标题模板'"`
	Body      string `gorm:"type:TEXT;NOT NULL;comment:'正文模板'"`
	Locale    string `gorm:"type:VARCHAR(16);NOT NULL;DEFAULT:'zh-CN';comment:'模板语言'"`
	Variables string `gorm:"type:TEXT;NOT NULL;comment:'变量默认值，JSON'"`
	Active    bool   `gorm:"NOT NULL;DEFAULT:1;comment:'是否启用'"`
	Ctime     int64
	Utime     int64
}

type TemplateDAO interface {
	// GetBySlug 查询启用状态的模板，不存在或未启用返回 errs.ErrTemplateNotFound
	GetBySlug(ctx context.Context, slug string) (ChannelTemplate, error)
	Create(ctx context.Context, data ChannelTemplate) (ChannelTemplate, error)
}

type templateDAO struct {
	db *egorm.Component
}

func NewTemplateDAO(db *egorm.Component) TemplateDAO {
	return &templateDAO{db: db}
}

func (d *templateDAO) GetBySlug(ctx context.Context, slug string) (ChannelTemplate, error) {
	var res ChannelTemplate
	err := d.db.WithContext(ctx).
		Where("slug = ? AND active = ?", slug, true).
		First(&res).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ChannelTemplate{}, fmt.Errorf("%w: slug = %s", errs.ErrTemplateNotFound, slug)
	}
	if err != nil {
		return ChannelTemplate{}, err
	}
	return res, nil
}

func (d *templateDAO) Create(ctx context.Context, data ChannelTemplate) (ChannelTemplate, error) {
	err := d.db.WithContext(ctx).Create(&data).Error
	return data, err
}
