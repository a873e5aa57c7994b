package domain

import (
	"fmt"

	"gitee.com/flycash/notify-center/internal/errs"
)

// DeliveryRequirement 主题渠道组合的投递要求
type DeliveryRequirement string

const (
	RequirementMandatory DeliveryRequirement = "MANDATORY"  // 强制投递，用户不可关闭
	RequirementDefaultOn DeliveryRequirement = "DEFAULT_ON" // 默认开启，用户可关闭
	RequirementOptIn     DeliveryRequirement = "OPT_IN"     // 默认关闭，用户显式开启后才投递
	RequirementDisabled  DeliveryRequirement = "DISABLED"   // 禁用，任何解析路径都不可见
)

func (r DeliveryRequirement) String() string {
	return string(r)
}

func (r DeliveryRequirement) IsValid() bool {
	switch r {
	case RequirementMandatory, RequirementDefaultOn, RequirementOptIn, RequirementDisabled:
		return true
	default:
		return false
	}
}

// DefaultOptIn 在没有存储记录、规则也没有覆盖默认值时的生效开关
func (r DeliveryRequirement) DefaultOptIn() bool {
	return r == RequirementMandatory || r == RequirementDefaultOn
}

// DigestMode 渠道上的聚合投递节奏
type DigestMode string

const (
	DigestInstant DigestMode = "INSTANT"
	DigestDaily   DigestMode = "DAILY"
	DigestWeekly  DigestMode = "WEEKLY"
	DigestNone    DigestMode = "NONE"
)

func (d DigestMode) String() string {
	return string(d)
}

func (d DigestMode) IsValid() bool {
	switch d {
	case DigestInstant, DigestDaily, DigestWeekly, DigestNone:
		return true
	default:
		return false
	}
}

// 内置渠道
const (
	ChannelInApp = "in_app"
	ChannelEmail = "email"
	ChannelPush  = "push"
)

// Topic 通知主题，配置加载时创建的只读参考数据
type Topic struct {
	Key               string     // 主题唯一标识
	Category          string     // 展示分类
	DisplayName       string     // 展示名称
	DefaultDigest     DigestMode // 默认聚合节奏
	DefaultQuietHours []int      // 默认免打扰小时（0-23）
	Position          int        // 展示顺序
}

func (t Topic) Validate() error {
	if t.Key == "" {
		return fmt.Errorf("%w: Topic.Key 不能为空", errs.ErrInvalidParameter)
	}
	if t.DefaultDigest != "" && !t.DefaultDigest.IsValid() {
		return fmt.Errorf("%w: Topic.DefaultDigest = %q", errs.ErrInvalidParameter, t.DefaultDigest)
	}
	for _, h := range t.DefaultQuietHours {
		if h < 0 || h > 23 {
			return fmt.Errorf("%w: Topic.DefaultQuietHours 包含非法小时 %d", errs.ErrInvalidParameter, h)
		}
	}
	return nil
}

// NotificationChannel 投递渠道，配置加载时创建的只读参考数据
type NotificationChannel struct {
	Key             string // 渠道唯一标识
	DisplayName     string
	Category        string
	SupportsDigest  bool   // 是否支持聚合投递
	RequiresConsent bool   // 是否要求显式同意
	Active          bool   // 渠道是否启用
	FlagSlug        string // 关联的特性开关，空表示不做开关控制
	FlagFallback    bool   // 开关服务不可用时的兜底取值
}

func (c NotificationChannel) Validate() error {
	if c.Key == "" {
		return fmt.Errorf("%w: Channel.Key 不能为空", errs.ErrInvalidParameter)
	}
	return nil
}

// Rule 主题渠道组合的投递规则，每个组合至多一条
type Rule struct {
	TopicKey      string
	ChannelKey    string
	Requirement   DeliveryRequirement
	DefaultOptIn  *bool       // 可选的默认开关覆盖
	DefaultDigest *DigestMode // 可选的默认聚合节奏覆盖
	FlagSlug      *string     // 可选的特性开关覆盖，优先于渠道级开关
	Position      int         // 展示顺序
}

func (r Rule) Validate() error {
	if r.TopicKey == "" || r.ChannelKey == "" {
		return fmt.Errorf("%w: Rule 必须同时指定主题和渠道", errs.ErrInvalidParameter)
	}
	if !r.Requirement.IsValid() {
		return fmt.Errorf("%w: Rule.Requirement = %q", errs.ErrInvalidParameter, r.Requirement)
	}
	if r.DefaultDigest != nil && !r.DefaultDigest.IsValid() {
		return fmt.Errorf("%w: Rule.DefaultDigest = %q", errs.ErrInvalidParameter, *r.DefaultDigest)
	}
	return nil
}

// EffectiveOptIn 没有存储记录时的生效开关
func (r Rule) EffectiveOptIn() bool {
	if r.Requirement == RequirementMandatory {
		return true
	}
	if r.DefaultOptIn != nil {
		return *r.DefaultOptIn
	}
	return r.Requirement.DefaultOptIn()
}
