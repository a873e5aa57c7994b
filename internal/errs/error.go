package errs

import (
	"errors"
)

// 定义统一的错误类型
var (
	ErrInvalidParameter = errors.New("参数错误")
	ErrIDGenerateFailed = errors.New("ID生成失败")

	ErrTopicNotFound        = errors.New("通知主题不存在")
	ErrChannelNotFound      = errors.New("通知渠道不存在")
	ErrRuleDuplicate        = errors.New("同一主题渠道组合配置了多条规则")
	ErrTemplateNotFound     = errors.New("模板不存在")
	ErrTemplateRenderFailed = errors.New("模板渲染失败")

	ErrPreferenceNotFound = errors.New("偏好记录不存在")
	ErrReceiptNotFound    = errors.New("收件记录不存在")
	ErrReceiptDuplicate   = errors.New("收件记录幂等键冲突")

	ErrBroadcastNotFound      = errors.New("广播任务不存在")
	ErrBroadcastNotClaimable  = errors.New("广播任务不满足抢占条件")
	ErrBroadcastStatusInvalid = errors.New("广播任务状态不允许此操作")

	ErrAudienceResolution = errors.New("受众解析失败")
)
