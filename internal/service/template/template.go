package template

import (
	"context"

	"gitee.com/flycash/notify-center/internal/domain"
	"gitee.com/flycash/notify-center/internal/repository"
)

// Service 模板服务接口
//
//go:generate mockgen -source=./template.go -destination=./mocks/template.mock.go -package=templatemocks -typed Service
type Service interface {
	// GetBySlug 按引用标识查询模板，不存在返回 errs.ErrTemplateNotFound
	GetBySlug(ctx context.Context, slug string) (domain.ChannelTemplate, error)
	// RenderWith 用合并后的变量渲染标题和正文
	// 变量优先级：模板默认值 < 事件上下文 < 显式变量
	RenderWith(tpl domain.ChannelTemplate, context, explicit map[string]string) (title, body string, err error)
}

type service struct {
	repo repository.TemplateRepository
}

func NewService(repo repository.TemplateRepository) Service {
	return &service{repo: repo}
}

func (s *service) GetBySlug(ctx context.Context, slug string) (domain.ChannelTemplate, error) {
	return s.repo.GetBySlug(ctx, slug)
}

func (s *service) RenderWith(tpl domain.ChannelTemplate, context, explicit map[string]string) (string, string, error) {
	vars := MergeVars(tpl.Variables, context, explicit)
	title, err := Render(tpl.Subject, vars)
	if err != nil {
		return "", "", err
	}
	body, err := Render(tpl.Body, vars)
	if err != nil {
		return "", "", err
	}
	return title, body, nil
}
