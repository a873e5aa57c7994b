package domain

import (
	"fmt"
	"sort"
	"time"

	"gitee.com/flycash/notify-center/internal/errs"
)

// PreferenceRecord 用户在一个主题渠道组合上的偏好
// 每次写入都会生成新的记录（整批替换），不做原地修改
type PreferenceRecord struct {
	ID         uint64
	UserID     int64
	TopicKey   string
	ChannelKey string
	OptIn      bool
	Digest     DigestMode
	QuietHours []int  // 免打扰小时（0-23），已排序去重
	Source     string // 同意来源（web/api/import 等）
	Actor      string // 最后修改者
	RequestID  string // 触发本次修改的请求ID
	Version    int    // 同意版本，按用户单调递增，同一批写入共享一个版本
	Ctime      time.Time
	Utime      time.Time
}

func (p PreferenceRecord) Validate() error {
	if p.UserID <= 0 {
		return fmt.Errorf("%w: UserID = %d", errs.ErrInvalidParameter, p.UserID)
	}
	if p.TopicKey == "" || p.ChannelKey == "" {
		return fmt.Errorf("%w: 偏好记录必须同时指定主题和渠道", errs.ErrInvalidParameter)
	}
	if !p.Digest.IsValid() {
		return fmt.Errorf("%w: Digest = %q", errs.ErrInvalidParameter, p.Digest)
	}
	for _, h := range p.QuietHours {
		if h < 0 || h > 23 {
			return fmt.Errorf("%w: QuietHours 包含非法小时 %d", errs.ErrInvalidParameter, h)
		}
	}
	return nil
}

// SameState 判断两条记录在审计意义上是否等价
// 只比较开关、聚合节奏和免打扰小时，版本和时间戳不参与
func (p PreferenceRecord) SameState(other PreferenceRecord) bool {
	if p.OptIn != other.OptIn || p.Digest != other.Digest {
		return false
	}
	if len(p.QuietHours) != len(other.QuietHours) {
		return false
	}
	for i := range p.QuietHours {
		if p.QuietHours[i] != other.QuietHours[i] {
			return false
		}
	}
	return true
}

// NormalizeQuietHours 过滤非法小时并排序去重
func NormalizeQuietHours(hours []int) []int {
	if len(hours) == 0 {
		return nil
	}
	seen := make(map[int]struct{}, len(hours))
	res := make([]int, 0, len(hours))
	for _, h := range hours {
		if h < 0 || h > 23 {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		res = append(res, h)
	}
	sort.Ints(res)
	return res
}

// PreferenceUpdate 一次偏好写入中针对单个主题渠道组合的增量修改
// nil 字段表示本次不修改该字段
type PreferenceUpdate struct {
	TopicKey   string
	ChannelKey string
	OptIn      *bool
	Digest     *DigestMode
	QuietHours []int // nil 表示不修改，空切片表示清空
	HasQuiet   bool  // 区分"未提供"和"清空"
}

// PreferenceEntry 生效偏好视图中的一项
type PreferenceEntry struct {
	Channel    NotificationChannel
	Rule       Rule
	OptIn      bool
	Digest     DigestMode
	QuietHours []int
	Locked     bool // 强制投递的组合，展示为不可编辑
	Stored     bool // 是否存在显式的存储记录
}

// TopicPreferences 单个主题下全部可用渠道的生效偏好
type TopicPreferences struct {
	Topic   Topic
	Entries []PreferenceEntry
}
