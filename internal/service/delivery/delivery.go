package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gitee.com/flycash/notify-center/internal/domain"
	"gitee.com/flycash/notify-center/internal/errs"
	"gitee.com/flycash/notify-center/internal/flag"
	"gitee.com/flycash/notify-center/internal/matrix"
	"gitee.com/flycash/notify-center/internal/pkg/hash"
	"gitee.com/flycash/notify-center/internal/repository"
	"gitee.com/flycash/notify-center/internal/service/email"
	"gitee.com/flycash/notify-center/internal/service/template"
	"github.com/gotomicro/ego/core/elog"
)

// 事件元数据里携带收件邮箱的键
const metadataEmailKey = "recipient_email"

// Service 投递服务接口
//
//go:generate mockgen -source=./delivery.go -destination=./mocks/delivery.mock.go -package=deliverymocks -typed Service
type Service interface {
	// DeliverToInbox 把一条归一化事件投递到站内信
	// 返回 (nil, nil) 表示不可投递：未知主题、渠道停用、开关关闭、缺少显式开启、
	// 模板缺失或语言不匹配、渲染后内容为空——这些是稳态结果，不是故障，静默丢弃
	// 同一幂等键的第二次调用更新已有收件记录，不产生第二条可见投递
	DeliverToInbox(ctx context.Context, event domain.NotificationEvent) (*domain.Receipt, error)
}

type service struct {
	matrix      *matrix.Matrix
	oracle      flag.Oracle
	prefRepo    repository.PreferenceRepository
	receiptRepo repository.ReceiptRepository
	templateSvc template.Service
	transport   email.Transport
	logger      *elog.Component
}

func NewService(
	m *matrix.Matrix,
	oracle flag.Oracle,
	prefRepo repository.PreferenceRepository,
	receiptRepo repository.ReceiptRepository,
	templateSvc template.Service,
	transport email.Transport,
) Service {
	return &service{
		matrix:      m,
		oracle:      oracle,
		prefRepo:    prefRepo,
		receiptRepo: receiptRepo,
		templateSvc: templateSvc,
		transport:   transport,
		logger:      elog.DefaultLogger,
	}
}

func (s *service) DeliverToInbox(ctx context.Context, event domain.NotificationEvent) (*domain.Receipt, error) {
	if err := event.Validate(); err != nil {
		// 入站管道的宽松语义：非法事件丢弃，不向上抛错
		s.logger.Warn("事件字段非法，丢弃", elog.FieldErr(err))
		return nil, nil
	}

	// 1. 主题归一化：剥版本后缀、套别名表；未注册主题静默丢弃，不打断入站管道
	topicKey, ok := s.matrix.NormalizeTopic(event.TopicKey)
	if !ok {
		s.logger.Info("未注册的主题，丢弃",
			elog.String("topic", event.TopicKey),
			elog.Int64("userID", event.UserID))
		return nil, nil
	}

	// 2. 站内信渠道可用性
	evaluator := flag.NewEvaluator(s.oracle, flag.UserContext{UserID: event.UserID})
	rule, ok := s.channelAvailable(ctx, evaluator, topicKey, domain.ChannelInApp)
	if !ok {
		return nil, nil
	}

	// 3. 用户偏好
	stored, err := s.prefRepo.ListForUser(ctx, event.UserID)
	if err != nil {
		return nil, fmt.Errorf("查询用户偏好失败: %w", err)
	}
	if !effectiveOptIn(rule, findRecord(stored, topicKey, domain.ChannelInApp)) {
		return nil, nil
	}

	// 4. 内容物化
	title, body, ok := s.materializeContent(ctx, event)
	if !ok {
		return nil, nil
	}

	// 5. 按幂等键落收件记录：同一逻辑事件至多一条可见投递
	key := hash.IdempotencyKey(topicKey, event.UserID, title, body,
		event.TemplateSlug, event.TemplateVars, event.DedupID)
	receipt, err := s.receiptRepo.Upsert(ctx, domain.Receipt{
		UserID:         event.UserID,
		Title:          title,
		Body:           body,
		ContentHash:    hash.Content(title, body),
		Placement:      placement(event),
		Priority:       priority(event),
		Preview:        true,
		IdempotencyKey: key,
	})
	if err != nil {
		return nil, fmt.Errorf("写入收件记录失败: %w", err)
	}

	// 6. 邮件二次分发：尽力而为，失败只记日志，绝不回滚已提交的站内投递
	s.fanOutEmail(ctx, evaluator, stored, topicKey, event, title, body)

	return &receipt, nil
}

// channelAvailable 渠道存在、启用且开关放行时返回规则
func (s *service) channelAvailable(ctx context.Context, evaluator *flag.Evaluator,
	topicKey, channelKey string,
) (domain.Rule, bool) {
	rule, ok := s.matrix.GetRule(topicKey, channelKey)
	if !ok {
		return domain.Rule{}, false
	}
	channel, ok := s.matrix.Channel(channelKey)
	if !ok || !channel.Active {
		return domain.Rule{}, false
	}
	if !evaluator.RuleEnabled(ctx, rule.FlagSlug, channel.FlagSlug, channel.FlagFallback) {
		return domain.Rule{}, false
	}
	return rule, true
}

// effectiveOptIn 生效开关判定
// 强制规则恒为开启；有存储记录用存储值；没有记录时 OPT_IN 规则要求显式开启过才投递
func effectiveOptIn(rule domain.Rule, record *domain.PreferenceRecord) bool {
	if rule.Requirement == domain.RequirementMandatory {
		return true
	}
	if record != nil {
		return record.OptIn
	}
	return rule.EffectiveOptIn()
}

// materializeContent 物化标题和正文
// 模板缺失、语言不匹配、渲染失败、渲染后为空都按不可投递丢弃
func (s *service) materializeContent(ctx context.Context, event domain.NotificationEvent) (string, string, bool) {
	title, body := event.Title, event.Body
	if event.TemplateSlug != "" {
		tpl, err := s.templateSvc.GetBySlug(ctx, event.TemplateSlug)
		if err != nil {
			if !errors.Is(err, errs.ErrTemplateNotFound) {
				s.logger.Error("查询模板失败", elog.FieldErr(err),
					elog.String("slug", event.TemplateSlug))
			}
			return "", "", false
		}
		if event.Locale != "" && tpl.Locale != "" && event.Locale != tpl.Locale {
			s.logger.Info("模板语言不匹配，丢弃",
				elog.String("slug", event.TemplateSlug),
				elog.String("want", event.Locale),
				elog.String("got", tpl.Locale))
			return "", "", false
		}
		title, body, err = s.templateSvc.RenderWith(tpl, event.Context, event.TemplateVars)
		if err != nil {
			s.logger.Warn("模板渲染失败，丢弃", elog.FieldErr(err),
				elog.String("slug", event.TemplateSlug))
			return "", "", false
		}
	}
	if strings.TrimSpace(title) == "" || strings.TrimSpace(body) == "" {
		return "", "", false
	}
	return title, body, true
}

// fanOutEmail 邮件渠道的二次分发
func (s *service) fanOutEmail(ctx context.Context, evaluator *flag.Evaluator,
	stored []domain.PreferenceRecord, topicKey string,
	event domain.NotificationEvent, title, body string,
) {
	rule, ok := s.channelAvailable(ctx, evaluator, topicKey, domain.ChannelEmail)
	if !ok {
		return
	}
	if !effectiveOptIn(rule, findRecord(stored, topicKey, domain.ChannelEmail)) {
		return
	}
	to := event.Metadata[metadataEmailKey]
	if to == "" {
		return
	}
	if err := s.transport.Dispatch(ctx, email.Payload{
		To:      to,
		Subject: title,
		Text:    body,
	}); err != nil {
		s.logger.Warn("邮件分发失败，忽略",
			elog.FieldErr(err),
			elog.Int64("userID", event.UserID),
			elog.String("topic", topicKey))
	}
}

func findRecord(records []domain.PreferenceRecord, topicKey, channelKey string) *domain.PreferenceRecord {
	for i := range records {
		if records[i].TopicKey == topicKey && records[i].ChannelKey == channelKey {
			return &records[i]
		}
	}
	return nil
}

func placement(event domain.NotificationEvent) string {
	if event.ChannelHint != "" {
		return event.ChannelHint
	}
	return "inbox"
}

func priority(event domain.NotificationEvent) domain.EventPriority {
	if event.Priority.IsValid() {
		return event.Priority
	}
	return domain.PriorityNormal
}
