package domain

import (
	"fmt"

	"gitee.com/flycash/notify-center/internal/errs"
)

// EventPriority 事件优先级
type EventPriority string

const (
	PriorityLow    EventPriority = "LOW"
	PriorityNormal EventPriority = "NORMAL"
	PriorityHigh   EventPriority = "HIGH"
)

func (p EventPriority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return true
	default:
		return false
	}
}

// NotificationEvent 归一化后的入站事件
// 每条总线消息构造一次，投递后即丢弃，不单独落库
type NotificationEvent struct {
	TopicKey     string            // 原始主题，投递时归一化为标准主题
	UserID       int64             // 接收用户
	Title        string            // 字面标题，与模板二选一
	Body         string            // 字面正文
	TemplateSlug string            // 模板引用，非空时优先于字面内容
	TemplateVars map[string]string // 显式模板变量，优先级最高
	Context      map[string]string // 事件上下文，优先级介于模板默认值和显式变量之间
	Locale       string            // 期望的模板语言，空表示不校验
	Priority     EventPriority
	ChannelHint  string            // 渠道提示，仅用于展示位置
	Metadata     map[string]string // 任意附加元数据，不参与幂等键计算
	DedupID      string            // 调用方提供的去重标识，参与幂等键计算
}

func (e NotificationEvent) Validate() error {
	if e.TopicKey == "" {
		return fmt.Errorf("%w: TopicKey 不能为空", errs.ErrInvalidParameter)
	}
	if e.UserID <= 0 {
		return fmt.Errorf("%w: UserID = %d", errs.ErrInvalidParameter, e.UserID)
	}
	if e.TemplateSlug == "" && e.Title == "" && e.Body == "" {
		return fmt.Errorf("%w: 事件必须携带模板引用或字面内容", errs.ErrInvalidParameter)
	}
	return nil
}
