package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gitee.com/flycash/notify-center/internal/domain"
	"gitee.com/flycash/notify-center/internal/errs"
	"gitee.com/flycash/notify-center/internal/repository"
	"gitee.com/flycash/notify-center/internal/service/audience"
	"gitee.com/flycash/notify-center/internal/service/delivery"
	"gitee.com/flycash/notify-center/internal/service/template"
	"github.com/gotomicro/ego/core/elog"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

const (
	// 广播统一走的主题，矩阵里必须注册为强制规则
	broadcastTopicKey = "platform.broadcast"

	defaultRecipientBatchSize  = 500
	defaultRecipientConcurrent = 32
	defaultSweepAge            = 30 * time.Minute
	defaultSweepBatchSize      = 100
)

// Orchestrator 广播执行器
// 抢占到期任务后逐个接收者走站内信投递管道，单个接收者失败不影响其余接收者
type Orchestrator struct {
	repo        repository.BroadcastRepository
	resolver    audience.Resolver
	deliverySvc delivery.Service
	templateSvc template.Service

	batchSize  int
	concurrent int
	logger     *elog.Component
}

func NewOrchestrator(
	repo repository.BroadcastRepository,
	resolver audience.Resolver,
	deliverySvc delivery.Service,
	templateSvc template.Service,
) *Orchestrator {
	return &Orchestrator{
		repo:        repo,
		resolver:    resolver,
		deliverySvc: deliverySvc,
		templateSvc: templateSvc,
		batchSize:   defaultRecipientBatchSize,
		concurrent:  defaultRecipientConcurrent,
		logger:      elog.DefaultLogger,
	}
}

// ProcessDue 抢占并执行所有到期的广播，返回本轮抢到的任务数
// 抢占是条件更新，多实例并发调用时每个任务恰好一个实例胜出
func (o *Orchestrator) ProcessDue(ctx context.Context, now time.Time, limit int) (int, error) {
	claimed, err := o.repo.ClaimDue(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("抢占到期广播失败: %w", err)
	}
	for i := range claimed {
		o.process(ctx, claimed[i])
	}
	return len(claimed), nil
}

// ProcessOne 抢占并执行单个广播
// 任务不满足抢占条件（状态不对或未到期）时返回 (nil, nil)，这是稳态结果不是故障
func (o *Orchestrator) ProcessOne(ctx context.Context, id uint64, now time.Time) (*domain.Broadcast, error) {
	claimed, err := o.repo.ClaimOne(ctx, id, now)
	if err != nil {
		if errors.Is(err, errs.ErrBroadcastNotClaimable) {
			return nil, nil
		}
		return nil, err
	}
	o.process(ctx, claimed)
	final, err := o.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &final, nil
}

// process 执行一个已抢占的广播
// 结构性失败（模板缺失、渲染失败、受众不可解析）把任务整体置为 FAILED 且零进度；
// 接收者级失败只累加失败计数，最终状态由失败计数是否为零决定
func (o *Orchestrator) process(ctx context.Context, b domain.Broadcast) {
	title, body, err := o.resolveContent(ctx, &b)
	if err != nil {
		o.fail(ctx, b.ID, 0, 0, 0, err)
		return
	}

	iter, err := o.resolver.Resolve(ctx, b.Audience, o.batchSize)
	if err != nil {
		o.fail(ctx, b.ID, 0, 0, 0, err)
		return
	}

	var total, sent, failed int64
	for {
		batch, err1 := iter.Next(ctx)
		if err1 != nil {
			// 受众序列中途断裂：保留已取得的进度，任务置为 FAILED
			o.fail(ctx, b.ID, total, sent, failed, err1)
			return
		}
		if len(batch) == 0 {
			break
		}

		batchSent, batchFailed := o.deliverBatch(ctx, &b, batch, title, body)
		total += int64(len(batch))
		sent += batchSent
		failed += batchFailed

		if err1 = o.repo.UpdateCounters(ctx, b.ID, total, sent, failed); err1 != nil {
			o.logger.Warn("更新广播进度失败",
				elog.FieldErr(err1),
				elog.Any("broadcastID", b.ID))
		}
	}

	status := domain.BroadcastStatusSent
	if failed > 0 {
		status = domain.BroadcastStatusFailed
	}
	if err = o.repo.Finalize(ctx, b.ID, status, total, sent, failed, time.Now()); err != nil {
		o.logger.Error("写入广播终态失败",
			elog.FieldErr(err),
			elog.Any("broadcastID", b.ID))
		return
	}
	o.logger.Info("广播执行完成",
		elog.Any("broadcastID", b.ID),
		elog.String("status", status.String()),
		elog.Int64("total", total),
		elog.Int64("sent", sent),
		elog.Int64("failed", failed))
}

// resolveContent 物化广播内容：引用模板时整个广播只解析渲染一次
func (o *Orchestrator) resolveContent(ctx context.Context, b *domain.Broadcast) (string, string, error) {
	if b.TemplateSlug == "" {
		return b.Title, b.Body, nil
	}
	tpl, err := o.templateSvc.GetBySlug(ctx, b.TemplateSlug)
	if err != nil {
		return "", "", fmt.Errorf("广播模板不可用: %w", err)
	}
	title, body, err := o.templateSvc.RenderWith(tpl, nil, b.TemplateVars)
	if err != nil {
		return "", "", fmt.Errorf("广播模板渲染失败: %w", err)
	}
	return title, body, nil
}

// deliverBatch 并发投递一批接收者，并发度有上限
// 投递返回错误计失败；返回收件记录计成功；静默丢弃（退订等）两者都不计
func (o *Orchestrator) deliverBatch(ctx context.Context, b *domain.Broadcast,
	batch []int64, title, body string,
) (sent, failed int64) {
	// 同一广播对同一接收者的去重键固定，任务被重复执行也不会产生第二条可见投递
	dedupID := fmt.Sprintf("broadcast:%d", b.ID)

	var mu sync.Mutex
	var merr *multierror.Error
	var eg errgroup.Group
	eg.SetLimit(o.concurrent)
	for _, userID := range batch {
		uid := userID
		eg.Go(func() error {
			receipt, err := o.deliverySvc.DeliverToInbox(ctx, domain.NotificationEvent{
				TopicKey: broadcastTopicKey,
				UserID:   uid,
				Title:    title,
				Body:     body,
				DedupID:  dedupID,
			})
			switch {
			case err != nil:
				atomic.AddInt64(&failed, 1)
				mu.Lock()
				merr = multierror.Append(merr, fmt.Errorf("userID %d: %w", uid, err))
				mu.Unlock()
			case receipt != nil:
				atomic.AddInt64(&sent, 1)
			}
			return nil
		})
	}
	_ = eg.Wait()

	if err := merr.ErrorOrNil(); err != nil {
		o.logger.Warn("广播批次存在投递失败",
			elog.FieldErr(err),
			elog.Any("broadcastID", b.ID),
			elog.Int("batchSize", len(batch)))
	}
	return sent, failed
}

// fail 结构性失败统一出口
func (o *Orchestrator) fail(ctx context.Context, id uint64, total, sent, failed int64, cause error) {
	o.logger.Error("广播执行失败",
		elog.FieldErr(cause),
		elog.Any("broadcastID", id))
	if err := o.repo.Finalize(ctx, id, domain.BroadcastStatusFailed,
		total, sent, failed, time.Now()); err != nil {
		o.logger.Error("写入广播终态失败",
			elog.FieldErr(err),
			elog.Any("broadcastID", id))
	}
}

// SweepStuck 把卡在 SENDING 超过时限的任务批量置为 FAILED
// 兜底执行器崩溃后遗留的僵尸任务，由定时任务周期触发
func (o *Orchestrator) SweepStuck(ctx context.Context) (int64, error) {
	n, err := o.repo.MarkTimeoutSendingAsFailed(ctx, defaultSweepAge, defaultSweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("清理超时广播失败: %w", err)
	}
	if n > 0 {
		o.logger.Warn("清理卡死的广播任务", elog.Int64("count", n))
	}
	return n, nil
}
