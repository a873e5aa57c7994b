package inbound

import (
	"strings"

	"gitee.com/flycash/notify-center/internal/domain"
)

// 入站事件默认监听的总线主题
const EventName = "notification_events"

// NotificationPayload 总线消息的宽松载荷
// 上游生产方版本不一、字段残缺是常态，解析阶段只做归一化不做校验，
// 校验统一交给投递管道
type NotificationPayload struct {
	Topic        string            `json:"topic"`
	UserID       int64             `json:"userId"`
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	TemplateSlug string            `json:"templateSlug"`
	TemplateVars map[string]string `json:"templateVars"`
	Context      map[string]string `json:"context"`
	Locale       string            `json:"locale"`
	Priority     string            `json:"priority"`
	ChannelHint  string            `json:"channelHint"`
	Metadata     map[string]string `json:"metadata"`
	DedupID      string            `json:"dedupId"`
}

// toDomain 归一化为投递事件：去首尾空白、优先级统一大写
func (p NotificationPayload) toDomain() domain.NotificationEvent {
	return domain.NotificationEvent{
		TopicKey:     strings.TrimSpace(p.Topic),
		UserID:       p.UserID,
		Title:        strings.TrimSpace(p.Title),
		Body:         strings.TrimSpace(p.Body),
		TemplateSlug: strings.TrimSpace(p.TemplateSlug),
		TemplateVars: p.TemplateVars,
		Context:      p.Context,
		Locale:       strings.TrimSpace(p.Locale),
		Priority:     domain.EventPriority(strings.ToUpper(strings.TrimSpace(p.Priority))),
		ChannelHint:  strings.TrimSpace(p.ChannelHint),
		Metadata:     p.Metadata,
		DedupID:      strings.TrimSpace(p.DedupID),
	}
}
