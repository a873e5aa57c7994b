package inbound

import (
	"encoding/json"
	"testing"

	"gitee.com/flycash/notify-center/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadNormalization(t *testing.T) {
	t.Parallel()
	raw := `{
		"topic": "  content.new_comment.v2 ",
		"userId": 42,
		"title": " 有人评论了你 ",
		"body": "点击查看",
		"priority": "high",
		"dedupId": " evt-123 "
	}`
	var payload NotificationPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))

	event := payload.toDomain()
	assert.Equal(t, "content.new_comment.v2", event.TopicKey)
	assert.Equal(t, int64(42), event.UserID)
	assert.Equal(t, "有人评论了你", event.Title)
	assert.Equal(t, domain.PriorityHigh, event.Priority)
	assert.Equal(t, "evt-123", event.DedupID)
}

func TestPayloadToleratesUnknownAndMissingFields(t *testing.T) {
	t.Parallel()
	// 上游生产方可能多发字段，也可能少发字段，解析阶段都不报错
	raw := `{"topic": "billing.invoice", "userId": 7, "templateSlug": "invoice-ready", "futureField": true}`
	var payload NotificationPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))

	event := payload.toDomain()
	assert.Equal(t, "billing.invoice", event.TopicKey)
	assert.Equal(t, "invoice-ready", event.TemplateSlug)
	assert.Empty(t, event.Title)
	assert.False(t, event.Priority.IsValid())
}
