package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
)

// 字段间的分隔符，避免不同字段拼接后产生相同输入
const sep = "\x1f"

// IdempotencyKey 计算一条逻辑通知的幂等键
// 输入覆盖：主题、用户、渲染前后的标题正文、模板引用、排序后的模板变量、调用方去重标识
// 只在这些输入上相同的两条事件视为同一条逻辑通知
func IdempotencyKey(topicKey string, userID int64, title, body, templateSlug string, vars map[string]string, dedupID string) string {
	h := sha256.New()
	h.Write([]byte(topicKey))
	h.Write([]byte(sep))
	h.Write([]byte(strconv.FormatInt(userID, 10)))
	h.Write([]byte(sep))
	h.Write([]byte(title))
	h.Write([]byte(sep))
	h.Write([]byte(body))
	h.Write([]byte(sep))
	h.Write([]byte(templateSlug))
	h.Write([]byte(sep))
	writeSortedVars(h, vars)
	h.Write([]byte(sep))
	h.Write([]byte(dedupID))
	return hex.EncodeToString(h.Sum(nil))
}

func writeSortedVars(h interface{ Write(p []byte) (int, error) }, vars map[string]string) {
	if len(vars) == 0 {
		return
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = h.Write([]byte(k))
		_, _ = h.Write([]byte("="))
		_, _ = h.Write([]byte(vars[k]))
		_, _ = h.Write([]byte(sep))
	}
}

// Content 计算渲染后内容的摘要，用于收件记录
func Content(title, body string) string {
	h := sha256.New()
	h.Write([]byte(title))
	h.Write([]byte(sep))
	h.Write([]byte(body))
	return hex.EncodeToString(h.Sum(nil))
}
