package domain

import "time"

// Receipt 站内信收件记录
// 幂等键非空时全局唯一：同一逻辑通知的第二次投递更新已有记录而不是新增
type Receipt struct {
	ID             uint64
	UserID         int64
	Title          string
	Body           string
	ContentHash    string // 渲染后内容的摘要
	Placement      string // 展示位置（inbox/banner 等）
	Priority       EventPriority
	Preview        bool // 是否在未读预览中展示
	IdempotencyKey string
	ReadTime       time.Time // 零值表示未读
	Ctime          time.Time
	Utime          time.Time
}

func (r Receipt) IsRead() bool {
	return !r.ReadTime.IsZero()
}
