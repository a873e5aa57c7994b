package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"gitee.com/flycash/notify-center/internal/domain"
	"gitee.com/flycash/notify-center/internal/errs"
	"gitee.com/flycash/notify-center/internal/flag"
	"gitee.com/flycash/notify-center/internal/matrix"
	"gitee.com/flycash/notify-center/internal/service/email"
	emailmocks "gitee.com/flycash/notify-center/internal/service/email/mocks"
	"gitee.com/flycash/notify-center/internal/service/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type stubOracle struct {
	flags map[string]bool
}

func (s *stubOracle) Evaluate(_ context.Context, slug string, _ flag.UserContext) (bool, error) {
	v, ok := s.flags[slug]
	if !ok {
		return false, nil
	}
	return v, nil
}

type fakePreferenceRepo struct {
	records map[int64][]domain.PreferenceRecord
}

func (f *fakePreferenceRepo) ListForUser(_ context.Context, userID int64) ([]domain.PreferenceRecord, error) {
	return f.records[userID], nil
}

func (f *fakePreferenceRepo) ReplaceForUser(context.Context, int64,
	[]domain.PreferenceRecord, []domain.ConsentAuditRecord,
) error {
	return nil
}

// fakeReceiptRepo 幂等键语义与数据库实现一致：键冲突更新原记录
type fakeReceiptRepo struct {
	mu     sync.Mutex
	nextID uint64
	byKey  map[string]*domain.Receipt
}

func newFakeReceiptRepo() *fakeReceiptRepo {
	return &fakeReceiptRepo{byKey: make(map[string]*domain.Receipt)}
}

func (f *fakeReceiptRepo) Upsert(_ context.Context, receipt domain.Receipt) (domain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.byKey[receipt.IdempotencyKey]; ok {
		existing.Title = receipt.Title
		existing.Body = receipt.Body
		existing.ContentHash = receipt.ContentHash
		return *existing, nil
	}
	f.nextID++
	receipt.ID = f.nextID
	f.byKey[receipt.IdempotencyKey] = &receipt
	return receipt, nil
}

func (f *fakeReceiptRepo) GetByID(_ context.Context, id uint64) (domain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.byKey {
		if r.ID == id {
			return *r, nil
		}
	}
	return domain.Receipt{}, errs.ErrReceiptNotFound
}

func (f *fakeReceiptRepo) GetByIdempotencyKey(_ context.Context, key string) (domain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.byKey[key]; ok {
		return *r, nil
	}
	return domain.Receipt{}, errs.ErrReceiptNotFound
}

func (f *fakeReceiptRepo) ListForUser(_ context.Context, userID int64, _, _ int) ([]domain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []domain.Receipt
	for _, r := range f.byKey {
		if r.UserID == userID {
			res = append(res, *r)
		}
	}
	return res, nil
}

func (f *fakeReceiptRepo) MarkRead(context.Context, int64, uint64) error {
	return nil
}

func (f *fakeReceiptRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byKey)
}

// fakeTemplateSvc 固定模板表，渲染走真实的严格替换逻辑
type fakeTemplateSvc struct {
	templates map[string]domain.ChannelTemplate
}

func (f *fakeTemplateSvc) GetBySlug(_ context.Context, slug string) (domain.ChannelTemplate, error) {
	tpl, ok := f.templates[slug]
	if !ok {
		return domain.ChannelTemplate{}, fmt.Errorf("%w: slug = %s", errs.ErrTemplateNotFound, slug)
	}
	return tpl, nil
}

func (f *fakeTemplateSvc) RenderWith(tpl domain.ChannelTemplate, ctx, explicit map[string]string) (string, string, error) {
	vars := template.MergeVars(tpl.Variables, ctx, explicit)
	title, err := template.Render(tpl.Subject, vars)
	if err != nil {
		return "", "", err
	}
	body, err := template.Render(tpl.Body, vars)
	if err != nil {
		return "", "", err
	}
	return title, body, nil
}

func deliveryMatrix(t *testing.T) *matrix.Matrix {
	t.Helper()
	m, err := matrix.New(matrix.Config{
		Topics: []matrix.TopicConfig{
			{Key: "account.security", Category: "account", DisplayName: "账号安全", Position: 1},
			{Key: "content.new_comment", Category: "content", DisplayName: "新评论", Position: 2},
			{Key: "marketing.promo", Category: "marketing", DisplayName: "活动推广", Position: 3},
		},
		Channels: []matrix.ChannelConfig{
			{Key: "in_app", DisplayName: "站内信", SupportsDigest: true, Active: true},
			{Key: "email", DisplayName: "邮件", SupportsDigest: true, Active: true},
		},
		Rules: []matrix.RuleConfig{
			{Topic: "account.security", Channel: "in_app", Requirement: "MANDATORY", Position: 1},
			{Topic: "content.new_comment", Channel: "in_app", Requirement: "DEFAULT_ON", Position: 1},
			{Topic: "content.new_comment", Channel: "email", Requirement: "OPT_IN", Position: 2},
			{Topic: "marketing.promo", Channel: "in_app", Requirement: "DISABLED", Position: 1},
		},
		Aliases: map[string]string{
			"content.engagement": "content.new_comment",
		},
	})
	require.NoError(t, err)
	return m
}

type testEnv struct {
	svc       Service
	prefs     *fakePreferenceRepo
	receipts  *fakeReceiptRepo
	transport *emailmocks.MockTransport
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctrl := gomock.NewController(t)
	env := &testEnv{
		prefs:     &fakePreferenceRepo{records: make(map[int64][]domain.PreferenceRecord)},
		receipts:  newFakeReceiptRepo(),
		transport: emailmocks.NewMockTransport(ctrl),
	}
	env.svc = NewService(
		deliveryMatrix(t),
		&stubOracle{},
		env.prefs,
		env.receipts,
		&fakeTemplateSvc{templates: map[string]domain.ChannelTemplate{
			"comment-created": {
				Slug:      "comment-created",
				Subject:   "${author} 评论了你",
				Body:      "${author}: ${text}",
				Locale:    "zh-CN",
				Variables: map[string]string{"text": "..."},
				Active:    true,
			},
		}},
		env.transport,
	)
	return env
}

func commentEvent(userID int64) domain.NotificationEvent {
	return domain.NotificationEvent{
		TopicKey:     "content.new_comment",
		UserID:       userID,
		TemplateSlug: "comment-created",
		TemplateVars: map[string]string{"author": "李雷", "text": "写得不错"},
	}
}

func TestDeliverToInboxHappyPath(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	receipt, err := env.svc.DeliverToInbox(t.Context(), commentEvent(1))
	require.NoError(t, err)
	require.NotNil(t, receipt)

	assert.Equal(t, int64(1), receipt.UserID)
	assert.Equal(t, "李雷 评论了你", receipt.Title)
	assert.Equal(t, "李雷: 写得不错", receipt.Body)
	assert.NotEmpty(t, receipt.IdempotencyKey)
	assert.Equal(t, "inbox", receipt.Placement)
	assert.Equal(t, domain.PriorityNormal, receipt.Priority)
}

func TestDeliverToInboxIdempotent(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	first, err := env.svc.DeliverToInbox(t.Context(), commentEvent(1))
	require.NoError(t, err)
	require.NotNil(t, first)

	// 同一逻辑事件的第二次投递更新原记录，不产生第二条可见投递
	second, err := env.svc.DeliverToInbox(t.Context(), commentEvent(1))
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, env.receipts.count())
}

func TestDeliverToInboxTopicNormalization(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	// 带版本后缀的历史别名归一化为标准主题
	event := commentEvent(1)
	event.TopicKey = "content.engagement.v2"
	receipt, err := env.svc.DeliverToInbox(t.Context(), event)
	require.NoError(t, err)
	require.NotNil(t, receipt)

	// 归一化后与标准主题的事件共享幂等键
	dup, err := env.svc.DeliverToInbox(t.Context(), commentEvent(1))
	require.NoError(t, err)
	require.NotNil(t, dup)
	assert.Equal(t, receipt.ID, dup.ID)
}

func TestDeliverToInboxDropsSilently(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		event domain.NotificationEvent
	}{
		{
			name: "未注册主题",
			event: domain.NotificationEvent{
				TopicKey: "unknown.topic", UserID: 1, Title: "标题", Body: "正文",
			},
		},
		{
			name:  "非法事件",
			event: domain.NotificationEvent{TopicKey: "content.new_comment", UserID: 0, Title: "标题", Body: "正文"},
		},
		{
			name: "规则禁用",
			event: domain.NotificationEvent{
				TopicKey: "marketing.promo", UserID: 1, Title: "标题", Body: "正文",
			},
		},
		{
			name: "模板缺失",
			event: domain.NotificationEvent{
				TopicKey: "content.new_comment", UserID: 1, TemplateSlug: "no-such-template",
			},
		},
		{
			name: "缺少模板变量",
			event: domain.NotificationEvent{
				TopicKey: "content.new_comment", UserID: 1, TemplateSlug: "comment-created",
				// 缺 author，严格渲染报错
				TemplateVars: map[string]string{"text": "你好"},
			},
		},
		{
			name: "模板语言不匹配",
			event: domain.NotificationEvent{
				TopicKey: "content.new_comment", UserID: 1, TemplateSlug: "comment-created",
				TemplateVars: map[string]string{"author": "李雷"},
				Locale:       "en-US",
			},
		},
		{
			name: "渲染后内容为空",
			event: domain.NotificationEvent{
				TopicKey: "content.new_comment", UserID: 1, Title: "   ", Body: "正文",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)
			receipt, err := env.svc.DeliverToInbox(t.Context(), tt.event)
			require.NoError(t, err)
			assert.Nil(t, receipt)
			assert.Equal(t, 0, env.receipts.count())
		})
	}
}

func TestDeliverToInboxRespectsStoredOptOut(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.prefs.records[1] = []domain.PreferenceRecord{
		{UserID: 1, TopicKey: "content.new_comment", ChannelKey: "in_app",
			OptIn: false, Digest: domain.DigestInstant, Version: 1},
	}

	receipt, err := env.svc.DeliverToInbox(t.Context(), commentEvent(1))
	require.NoError(t, err)
	assert.Nil(t, receipt)
}

func TestDeliverToInboxMandatoryIgnoresOptOut(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.prefs.records[1] = []domain.PreferenceRecord{
		{UserID: 1, TopicKey: "account.security", ChannelKey: "in_app",
			OptIn: false, Digest: domain.DigestInstant, Version: 1},
	}

	receipt, err := env.svc.DeliverToInbox(t.Context(), domain.NotificationEvent{
		TopicKey: "account.security",
		UserID:   1,
		Title:    "异地登录提醒",
		Body:     "检测到新设备登录",
		Priority: domain.PriorityHigh,
	})
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.Equal(t, domain.PriorityHigh, receipt.Priority)
}

func TestDeliverToInboxEmailFanOut(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	// 邮件是 OPT_IN：显式开启过才分发
	env.prefs.records[1] = []domain.PreferenceRecord{
		{UserID: 1, TopicKey: "content.new_comment", ChannelKey: "email",
			OptIn: true, Digest: domain.DigestInstant, Version: 1},
	}
	env.transport.EXPECT().
		Dispatch(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, payload email.Payload) error {
			assert.Equal(t, "user1@example.com", payload.To)
			assert.Equal(t, "李雷 评论了你", payload.Subject)
			return nil
		})

	event := commentEvent(1)
	event.Metadata = map[string]string{"recipient_email": "user1@example.com"}
	receipt, err := env.svc.DeliverToInbox(t.Context(), event)
	require.NoError(t, err)
	assert.NotNil(t, receipt)
}

func TestDeliverToInboxEmailFanOutSkippedWithoutOptIn(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	// 没有显式开启邮件：不应触达 transport（mock 未设置期望，调用即失败）

	event := commentEvent(1)
	event.Metadata = map[string]string{"recipient_email": "user1@example.com"}
	receipt, err := env.svc.DeliverToInbox(t.Context(), event)
	require.NoError(t, err)
	assert.NotNil(t, receipt)
}

func TestDeliverToInboxEmailFailureDoesNotRollBack(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.prefs.records[1] = []domain.PreferenceRecord{
		{UserID: 1, TopicKey: "content.new_comment", ChannelKey: "email",
			OptIn: true, Digest: domain.DigestInstant, Version: 1},
	}
	env.transport.EXPECT().
		Dispatch(gomock.Any(), gomock.Any()).
		Return(errors.New("smtp unreachable"))

	event := commentEvent(1)
	event.Metadata = map[string]string{"recipient_email": "user1@example.com"}

	// 邮件分发失败只记日志，站内投递照常成功
	receipt, err := env.svc.DeliverToInbox(t.Context(), event)
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.Equal(t, 1, env.receipts.count())
}
