package domain

import "time"

// ChannelTemplate 内容模板
type ChannelTemplate struct {
	ID        uint64
	Slug      string            // 业务侧引用的唯一标识
	Subject   string            // 标题模板
	Body      string            // 正文模板
	Locale    string            // 模板语言
	Variables map[string]string // 变量默认值，优先级最低
	Active    bool
	Ctime     time.Time
	Utime     time.Time
}
