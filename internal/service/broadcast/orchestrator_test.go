package broadcast

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"gitee.com/flycash/notify-center/internal/domain"
	"gitee.com/flycash/notify-center/internal/errs"
	"gitee.com/flycash/notify-center/internal/service/audience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBroadcastRepo 内存版广播仓储，抢占语义与数据库实现一致
type fakeBroadcastRepo struct {
	mu    sync.Mutex
	items map[uint64]*domain.Broadcast
}

func newFakeBroadcastRepo(items ...domain.Broadcast) *fakeBroadcastRepo {
	repo := &fakeBroadcastRepo{items: make(map[uint64]*domain.Broadcast)}
	for i := range items {
		b := items[i]
		repo.items[b.ID] = &b
	}
	return repo
}

func (f *fakeBroadcastRepo) Create(_ context.Context, b domain.Broadcast) (domain.Broadcast, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[b.ID] = &b
	return b, nil
}

func (f *fakeBroadcastRepo) Get(_ context.Context, id uint64) (domain.Broadcast, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.items[id]
	if !ok {
		return domain.Broadcast{}, errs.ErrBroadcastNotFound
	}
	return *b, nil
}

func (f *fakeBroadcastRepo) List(_ context.Context, status domain.BroadcastStatus, _, _ int) ([]domain.Broadcast, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []domain.Broadcast
	for _, b := range f.items {
		if status == "" || b.Status == status {
			res = append(res, *b)
		}
	}
	return res, nil
}

func (f *fakeBroadcastRepo) ClaimDue(_ context.Context, now time.Time, limit int) ([]domain.Broadcast, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []domain.Broadcast
	for _, b := range f.items {
		if len(res) >= limit {
			break
		}
		if b.Due(now) {
			b.Status = domain.BroadcastStatusSending
			b.StartedAt = now
			res = append(res, *b)
		}
	}
	return res, nil
}

func (f *fakeBroadcastRepo) ClaimOne(_ context.Context, id uint64, now time.Time) (domain.Broadcast, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.items[id]
	if !ok {
		return domain.Broadcast{}, errs.ErrBroadcastNotFound
	}
	if !b.Due(now) {
		return domain.Broadcast{}, errs.ErrBroadcastNotClaimable
	}
	b.Status = domain.BroadcastStatusSending
	b.StartedAt = now
	return *b, nil
}

func (f *fakeBroadcastRepo) UpdateCounters(_ context.Context, id uint64, total, sent, failed int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.items[id]
	b.TotalCount, b.SentCount, b.FailedCount = total, sent, failed
	return nil
}

func (f *fakeBroadcastRepo) Finalize(_ context.Context, id uint64, status domain.BroadcastStatus,
	total, sent, failed int64, finishedAt time.Time,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.items[id]
	b.Status = status
	b.TotalCount, b.SentCount, b.FailedCount = total, sent, failed
	b.FinishedAt = finishedAt
	return nil
}

func (f *fakeBroadcastRepo) Schedule(_ context.Context, id uint64, scheduledAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.items[id]
	if !ok {
		return errs.ErrBroadcastNotFound
	}
	if b.Status != domain.BroadcastStatusDraft {
		return errs.ErrBroadcastStatusInvalid
	}
	b.Status = domain.BroadcastStatusScheduled
	b.ScheduledAt = scheduledAt
	return nil
}

func (f *fakeBroadcastRepo) Cancel(_ context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.items[id]
	if !ok {
		return errs.ErrBroadcastNotFound
	}
	if b.Status != domain.BroadcastStatusDraft && b.Status != domain.BroadcastStatusScheduled {
		return errs.ErrBroadcastStatusInvalid
	}
	b.Status = domain.BroadcastStatusCanceled
	return nil
}

func (f *fakeBroadcastRepo) MarkTimeoutSendingAsFailed(_ context.Context, age time.Duration, _ int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ddl := time.Now().Add(-age)
	var n int64
	for _, b := range f.items {
		if b.Status == domain.BroadcastStatusSending && b.StartedAt.Before(ddl) {
			b.Status = domain.BroadcastStatusFailed
			n++
		}
	}
	return n, nil
}

// fakeDelivery 按用户ID决定投递结果
type fakeDelivery struct {
	mu sync.Mutex
	// failing 里的用户返回错误，skipped 里的用户静默丢弃，其余返回收件记录
	failing map[int64]bool
	skipped map[int64]bool
	events  []domain.NotificationEvent
}

func (f *fakeDelivery) DeliverToInbox(_ context.Context, event domain.NotificationEvent) (*domain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	if f.failing[event.UserID] {
		return nil, errors.New("mock delivery error")
	}
	if f.skipped[event.UserID] {
		return nil, nil
	}
	return &domain.Receipt{UserID: event.UserID, Title: event.Title, Body: event.Body}, nil
}

// fakeTemplates 固定的模板表
type fakeTemplates struct {
	templates map[string]domain.ChannelTemplate
}

func (f *fakeTemplates) GetBySlug(_ context.Context, slug string) (domain.ChannelTemplate, error) {
	tpl, ok := f.templates[slug]
	if !ok {
		return domain.ChannelTemplate{}, fmt.Errorf("%w: slug = %s", errs.ErrTemplateNotFound, slug)
	}
	return tpl, nil
}

func (f *fakeTemplates) RenderWith(tpl domain.ChannelTemplate, _, explicit map[string]string) (string, string, error) {
	title := tpl.Subject
	body := tpl.Body
	for k, v := range explicit {
		title = strings.ReplaceAll(title, "${"+k+"}", v)
		body = strings.ReplaceAll(body, "${"+k+"}", v)
	}
	return title, body, nil
}

func newTestOrchestrator(repo *fakeBroadcastRepo, d *fakeDelivery, tpls *fakeTemplates) *Orchestrator {
	if tpls == nil {
		tpls = &fakeTemplates{}
	}
	return NewOrchestrator(repo, audience.NewResolver(nil), d, tpls)
}

func scheduledBroadcast(id uint64, userIDs []int64) domain.Broadcast {
	return domain.Broadcast{
		ID:    id,
		Title: "系统维护公告",
		Body:  "今晚 23:00 起系统升级",
		Audience: domain.AudienceSpec{
			Kind:    domain.AudienceList,
			UserIDs: userIDs,
		},
		Status:      domain.BroadcastStatusScheduled,
		ScheduledAt: time.Now().Add(-time.Minute),
	}
}

func TestOrchestratorProcessOneAllDelivered(t *testing.T) {
	t.Parallel()
	repo := newFakeBroadcastRepo(scheduledBroadcast(1, []int64{10, 20, 30}))
	d := &fakeDelivery{}
	orch := newTestOrchestrator(repo, d, nil)

	final, err := orch.ProcessOne(t.Context(), 1, time.Now())
	require.NoError(t, err)
	require.NotNil(t, final)

	assert.Equal(t, domain.BroadcastStatusSent, final.Status)
	assert.Equal(t, int64(3), final.TotalCount)
	assert.Equal(t, int64(3), final.SentCount)
	assert.Equal(t, int64(0), final.FailedCount)
	assert.False(t, final.FinishedAt.IsZero())

	// 每个接收者携带同一个去重键，重复执行不会造成二次投递
	for _, ev := range d.events {
		assert.Equal(t, "broadcast:1", ev.DedupID)
		assert.Equal(t, broadcastTopicKey, ev.TopicKey)
	}
}

func TestOrchestratorProcessOneMixedOutcomes(t *testing.T) {
	t.Parallel()
	repo := newFakeBroadcastRepo(scheduledBroadcast(2, []int64{10, 20}))
	d := &fakeDelivery{failing: map[int64]bool{20: true}}
	orch := newTestOrchestrator(repo, d, nil)

	final, err := orch.ProcessOne(t.Context(), 2, time.Now())
	require.NoError(t, err)
	require.NotNil(t, final)

	// 单个接收者失败不影响其余接收者，但任务终态是 FAILED
	assert.Equal(t, domain.BroadcastStatusFailed, final.Status)
	assert.Equal(t, int64(2), final.TotalCount)
	assert.Equal(t, int64(1), final.SentCount)
	assert.Equal(t, int64(1), final.FailedCount)
}

func TestOrchestratorProcessOneSkippedRecipients(t *testing.T) {
	t.Parallel()
	repo := newFakeBroadcastRepo(scheduledBroadcast(3, []int64{10, 20, 30}))
	// 用户20退订：静默丢弃既不算成功也不算失败
	d := &fakeDelivery{skipped: map[int64]bool{20: true}}
	orch := newTestOrchestrator(repo, d, nil)

	final, err := orch.ProcessOne(t.Context(), 3, time.Now())
	require.NoError(t, err)
	require.NotNil(t, final)

	assert.Equal(t, domain.BroadcastStatusSent, final.Status)
	assert.Equal(t, int64(3), final.TotalCount)
	assert.Equal(t, int64(2), final.SentCount)
	assert.Equal(t, int64(0), final.FailedCount)
}

func TestOrchestratorProcessOneTemplateMissing(t *testing.T) {
	t.Parallel()
	b := scheduledBroadcast(4, []int64{10, 20})
	b.Title, b.Body = "", ""
	b.TemplateSlug = "no-such-template"
	repo := newFakeBroadcastRepo(b)
	d := &fakeDelivery{}
	orch := newTestOrchestrator(repo, d, nil)

	final, err := orch.ProcessOne(t.Context(), 4, time.Now())
	require.NoError(t, err)
	require.NotNil(t, final)

	// 结构性失败：任务整体置为 FAILED，零进度，不触达任何接收者
	assert.Equal(t, domain.BroadcastStatusFailed, final.Status)
	assert.Equal(t, int64(0), final.TotalCount)
	assert.Equal(t, int64(0), final.SentCount)
	assert.Equal(t, int64(0), final.FailedCount)
	assert.Empty(t, d.events)
}

func TestOrchestratorProcessOneWithTemplate(t *testing.T) {
	t.Parallel()
	b := scheduledBroadcast(5, []int64{10})
	b.Title, b.Body = "", ""
	b.TemplateSlug = "maintenance"
	b.TemplateVars = map[string]string{"window": "23:00-02:00"}
	repo := newFakeBroadcastRepo(b)
	d := &fakeDelivery{}
	tpls := &fakeTemplates{templates: map[string]domain.ChannelTemplate{
		"maintenance": {
			Slug:    "maintenance",
			Subject: "维护通知",
			Body:    "维护窗口：${window}",
		},
	}}
	orch := newTestOrchestrator(repo, d, tpls)

	final, err := orch.ProcessOne(t.Context(), 5, time.Now())
	require.NoError(t, err)
	require.NotNil(t, final)

	assert.Equal(t, domain.BroadcastStatusSent, final.Status)
	require.Len(t, d.events, 1)
	// 模板在广播级渲染一次，接收者拿到的是已物化的内容
	assert.Equal(t, "维护通知", d.events[0].Title)
	assert.Equal(t, "维护窗口：23:00-02:00", d.events[0].Body)
	assert.Empty(t, d.events[0].TemplateSlug)
}

func TestOrchestratorProcessOneNotDue(t *testing.T) {
	t.Parallel()
	b := scheduledBroadcast(6, []int64{10})
	b.ScheduledAt = time.Now().Add(time.Hour)
	repo := newFakeBroadcastRepo(b)
	d := &fakeDelivery{}
	orch := newTestOrchestrator(repo, d, nil)

	final, err := orch.ProcessOne(t.Context(), 6, time.Now())
	require.NoError(t, err)
	// 未到期：稳态结果，不是故障
	assert.Nil(t, final)
	assert.Empty(t, d.events)

	got, err := repo.Get(t.Context(), 6)
	require.NoError(t, err)
	assert.Equal(t, domain.BroadcastStatusScheduled, got.Status)
}

func TestOrchestratorProcessOneTerminalNotClaimable(t *testing.T) {
	t.Parallel()
	for _, status := range []domain.BroadcastStatus{
		domain.BroadcastStatusSent,
		domain.BroadcastStatusFailed,
		domain.BroadcastStatusCanceled,
		domain.BroadcastStatusSending,
		domain.BroadcastStatusDraft,
	} {
		b := scheduledBroadcast(7, []int64{10})
		b.Status = status
		repo := newFakeBroadcastRepo(b)
		d := &fakeDelivery{}
		orch := newTestOrchestrator(repo, d, nil)

		final, err := orch.ProcessOne(t.Context(), 7, time.Now())
		require.NoError(t, err)
		assert.Nil(t, final, "status = %s", status)
		assert.Empty(t, d.events, "status = %s", status)
	}
}

func TestOrchestratorProcessDueClaimsOnce(t *testing.T) {
	t.Parallel()
	repo := newFakeBroadcastRepo(
		scheduledBroadcast(8, []int64{10}),
		scheduledBroadcast(9, []int64{20}),
	)
	d := &fakeDelivery{}
	orch := newTestOrchestrator(repo, d, nil)

	n, err := orch.ProcessDue(t.Context(), time.Now(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// 第二轮没有可抢占的任务
	n, err = orch.ProcessDue(t.Context(), time.Now(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestOrchestratorSweepStuck(t *testing.T) {
	t.Parallel()
	b := scheduledBroadcast(11, []int64{10})
	b.Status = domain.BroadcastStatusSending
	b.StartedAt = time.Now().Add(-time.Hour)
	repo := newFakeBroadcastRepo(b)
	orch := newTestOrchestrator(repo, &fakeDelivery{}, nil)

	n, err := orch.SweepStuck(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.Get(t.Context(), 11)
	require.NoError(t, err)
	assert.Equal(t, domain.BroadcastStatusFailed, got.Status)
}
