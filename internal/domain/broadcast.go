package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"gitee.com/flycash/notify-center/internal/errs"
)

// BroadcastStatus 广播任务状态
type BroadcastStatus string

const (
	BroadcastStatusDraft     BroadcastStatus = "DRAFT"     // 草稿
	BroadcastStatusScheduled BroadcastStatus = "SCHEDULED" // 已排期，等待抢占
	BroadcastStatusSending   BroadcastStatus = "SENDING"   // 发送中，仅能通过原子抢占进入
	BroadcastStatusSent      BroadcastStatus = "SENT"      // 发送完成，终态
	BroadcastStatusFailed    BroadcastStatus = "FAILED"    // 发送失败，终态
	BroadcastStatusCanceled  BroadcastStatus = "CANCELED"  // 已取消，终态
)

func (s BroadcastStatus) String() string {
	return string(s)
}

// IsTerminal 终态不允许再被抢占
func (s BroadcastStatus) IsTerminal() bool {
	return s == BroadcastStatusSent || s == BroadcastStatusFailed || s == BroadcastStatusCanceled
}

// AudienceKind 受众类型
type AudienceKind string

const (
	AudienceList    AudienceKind = "LIST"    // 显式用户ID列表
	AudienceSegment AudienceKind = "SEGMENT" // 外部分群
	AudienceAll     AudienceKind = "ALL"     // 全量用户
)

// AudienceSpec 广播受众说明
type AudienceSpec struct {
	Kind    AudienceKind
	UserIDs []int64 // Kind == LIST 时使用
	Segment string  // Kind == SEGMENT 时使用
}

func (a AudienceSpec) Validate() error {
	switch a.Kind {
	case AudienceList:
		if len(a.UserIDs) == 0 {
			return fmt.Errorf("%w: LIST 受众必须提供用户ID", errs.ErrInvalidParameter)
		}
	case AudienceSegment:
		if a.Segment == "" {
			return fmt.Errorf("%w: SEGMENT 受众必须提供分群标识", errs.ErrInvalidParameter)
		}
	case AudienceAll:
	default:
		return fmt.Errorf("%w: AudienceKind = %q", errs.ErrInvalidParameter, a.Kind)
	}
	return nil
}

// Broadcast 运营批量广播任务
type Broadcast struct {
	ID           uint64
	Title        string
	Body         string
	TemplateSlug string            // 非空时优先于字面内容，整个广播只解析一次
	TemplateVars map[string]string // 广播级模板变量
	Audience     AudienceSpec
	Status       BroadcastStatus
	CreatedBy    string
	ScheduledAt  time.Time
	StartedAt    time.Time
	FinishedAt   time.Time
	TotalCount   int64 // 已处理的接收者总数
	SentCount    int64 // 投递成功数
	FailedCount  int64 // 投递失败数
	Ctime        time.Time
	Utime        time.Time
}

func (b *Broadcast) Validate() error {
	if b.TemplateSlug == "" && (b.Title == "" || b.Body == "") {
		return fmt.Errorf("%w: 广播必须携带模板引用或完整的字面内容", errs.ErrInvalidParameter)
	}
	return b.Audience.Validate()
}

// Due 是否满足抢占条件
func (b *Broadcast) Due(now time.Time) bool {
	return b.Status == BroadcastStatusScheduled && !b.ScheduledAt.After(now)
}

func (b *Broadcast) MarshalAudienceUserIDs() (string, error) {
	if len(b.Audience.UserIDs) == 0 {
		return "[]", nil
	}
	bs, err := json.Marshal(b.Audience.UserIDs)
	if err != nil {
		return "", err
	}
	return string(bs), nil
}

func (b *Broadcast) MarshalTemplateVars() (string, error) {
	if len(b.TemplateVars) == 0 {
		return "{}", nil
	}
	bs, err := json.Marshal(b.TemplateVars)
	if err != nil {
		return "", err
	}
	return string(bs), nil
}
