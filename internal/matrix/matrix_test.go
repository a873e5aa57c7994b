package matrix

import (
	"testing"

	"gitee.com/flycash/notify-center/internal/domain"
	"gitee.com/flycash/notify-center/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Topics: []TopicConfig{
			{Key: "order.shipped", Category: "transactional", DisplayName: "订单发货", Position: 2},
			{Key: "content.new_comment", Category: "engagement", DisplayName: "新评论", Position: 1,
				DefaultDigest: "DAILY", DefaultQuietHours: []int{22, 23, 0, 7}},
		},
		Channels: []ChannelConfig{
			{Key: "in_app", DisplayName: "站内信", Active: true},
			{Key: "email", DisplayName: "邮件", Active: true, SupportsDigest: true, FlagSlug: "email-channel", FlagFallback: true},
			{Key: "push", DisplayName: "推送", Active: false},
		},
		Rules: []RuleConfig{
			{Topic: "order.shipped", Channel: "in_app", Requirement: "MANDATORY", Position: 1},
			{Topic: "order.shipped", Channel: "email", Requirement: "DEFAULT_ON", Position: 2},
			{Topic: "content.new_comment", Channel: "in_app", Requirement: "OPT_IN", Position: 1},
			{Topic: "content.new_comment", Channel: "email", Requirement: "DISABLED", Position: 2},
		},
		Aliases: map[string]string{
			"content.engagement": "content.new_comment",
		},
	}
}

func TestNew_DuplicateRule(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Rules = append(cfg.Rules, RuleConfig{Topic: "order.shipped", Channel: "in_app", Requirement: "OPT_IN"})
	_, err := New(cfg)
	assert.ErrorIs(t, err, errs.ErrRuleDuplicate)
}

func TestNew_UnknownReferences(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr error
	}{
		{
			name: "规则引用未定义主题",
			mutate: func(cfg *Config) {
				cfg.Rules = append(cfg.Rules, RuleConfig{Topic: "nope", Channel: "in_app", Requirement: "OPT_IN"})
			},
			wantErr: errs.ErrTopicNotFound,
		},
		{
			name: "规则引用未定义渠道",
			mutate: func(cfg *Config) {
				cfg.Rules = append(cfg.Rules, RuleConfig{Topic: "order.shipped", Channel: "nope", Requirement: "OPT_IN"})
			},
			wantErr: errs.ErrChannelNotFound,
		},
		{
			name: "别名指向未定义主题",
			mutate: func(cfg *Config) {
				cfg.Aliases["legacy.topic"] = "nope"
			},
			wantErr: errs.ErrTopicNotFound,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			tc.mutate(&cfg)
			_, err := New(cfg)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestMatrix_NormalizeTopic(t *testing.T) {
	t.Parallel()
	m, err := New(testConfig())
	require.NoError(t, err)

	testCases := []struct {
		name    string
		raw     string
		want    string
		wantOK  bool
	}{
		{name: "标准主题原样返回", raw: "order.shipped", want: "order.shipped", wantOK: true},
		{name: "剥离版本后缀", raw: "order.shipped.v1", want: "order.shipped", wantOK: true},
		{name: "剥离多位版本后缀", raw: "order.shipped.v12", want: "order.shipped", wantOK: true},
		{name: "套用别名表", raw: "content.engagement", want: "content.new_comment", wantOK: true},
		{name: "版本后缀加别名", raw: "content.engagement.v2", want: "content.new_comment", wantOK: true},
		{name: "未注册主题", raw: "unknown.topic", wantOK: false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := m.NormalizeTopic(tc.raw)
			assert.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestMatrix_GetRule(t *testing.T) {
	t.Parallel()
	m, err := New(testConfig())
	require.NoError(t, err)

	r, ok := m.GetRule("order.shipped", "in_app")
	require.True(t, ok)
	assert.Equal(t, domain.RequirementMandatory, r.Requirement)

	// DISABLED 规则对任何解析路径都不可见
	_, ok = m.GetRule("content.new_comment", "email")
	assert.False(t, ok)

	// 未配置的组合
	_, ok = m.GetRule("order.shipped", "push")
	assert.False(t, ok)
}

func TestMatrix_Ordering(t *testing.T) {
	t.Parallel()
	m, err := New(testConfig())
	require.NoError(t, err)

	topics := m.TopicsInOrder()
	require.Len(t, topics, 2)
	assert.Equal(t, "content.new_comment", topics[0].Key)
	assert.Equal(t, "order.shipped", topics[1].Key)

	rules := m.TopicRules("order.shipped")
	require.Len(t, rules, 2)
	assert.Equal(t, "in_app", rules[0].ChannelKey)
	assert.Equal(t, "email", rules[1].ChannelKey)

	// DISABLED 规则不出现在主题规则列表里
	rules = m.TopicRules("content.new_comment")
	require.Len(t, rules, 1)
	assert.Equal(t, "in_app", rules[0].ChannelKey)
}
