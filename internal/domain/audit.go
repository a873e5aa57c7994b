package domain

import "time"

// ConsentAuditRecord 偏好状态变更的审计记录，只追加不修改
type ConsentAuditRecord struct {
	ID         uint64
	UserID     int64
	TopicKey   string
	ChannelKey string
	Previous   *PreferenceRecord // 首次写入时为 nil
	Current    PreferenceRecord
	Source     string
	Actor      string
	RequestID  string
	Ctime      time.Time
}
