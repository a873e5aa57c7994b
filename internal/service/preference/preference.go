package preference

import (
	"context"
	"fmt"

	"gitee.com/flycash/notify-center/internal/domain"
	"gitee.com/flycash/notify-center/internal/errs"
	"gitee.com/flycash/notify-center/internal/flag"
	"gitee.com/flycash/notify-center/internal/matrix"
	"gitee.com/flycash/notify-center/internal/repository"
	"github.com/gofrs/uuid"
	"github.com/gotomicro/ego/core/elog"
	"github.com/sony/sonyflake"
)

// Service 偏好服务接口
//
//go:generate mockgen -source=./preference.go -destination=./mocks/preference.mock.go -package=preferencemocks -typed Service
type Service interface {
	// GetPreferences 一个用户的生效偏好视图
	// 对每个主题的每条规则：渠道停用或被开关关闭的组合不出现；
	// 有存储记录用存储值，否则回落到规则/主题默认值；强制组合恒为开启且不可编辑
	GetPreferences(ctx context.Context, userID int64) ([]domain.TopicPreferences, error)

	// SetPreferences 校验并持久化偏好修改
	// 对每个可用组合：增量修改叠加在旧存储值和规则默认值之上；
	// 整批记录共享一个递增后的同意版本；只有实际变化的组合才产生审计记录；
	// 全部组合原子替换写入，不可用渠道遗留的陈旧组合随之清除
	SetPreferences(ctx context.Context, userID int64, updates []domain.PreferenceUpdate,
		actor, source, requestID string) error
}

type service struct {
	matrix *matrix.Matrix
	oracle flag.Oracle
	repo   repository.PreferenceRepository
	idGen  *sonyflake.Sonyflake
	logger *elog.Component
}

func NewService(
	m *matrix.Matrix,
	oracle flag.Oracle,
	repo repository.PreferenceRepository,
	idGen *sonyflake.Sonyflake,
) Service {
	return &service{
		matrix: m,
		oracle: oracle,
		repo:   repo,
		idGen:  idGen,
		logger: elog.DefaultLogger,
	}
}

// availablePair 一个对当前用户可用的主题渠道组合
type availablePair struct {
	topic   domain.Topic
	channel domain.NotificationChannel
	rule    domain.Rule
}

// availablePairs 枚举当前用户可用的全部组合
// 求值器按请求新建，开关调用次数与触达的不同开关数同阶
func (s *service) availablePairs(ctx context.Context, userID int64) []availablePair {
	evaluator := flag.NewEvaluator(s.oracle, flag.UserContext{UserID: userID})
	var res []availablePair
	for _, topic := range s.matrix.TopicsInOrder() {
		for _, rule := range s.matrix.TopicRules(topic.Key) {
			channel, ok := s.matrix.Channel(rule.ChannelKey)
			if !ok || !channel.Active {
				continue
			}
			if !evaluator.RuleEnabled(ctx, rule.FlagSlug, channel.FlagSlug, channel.FlagFallback) {
				continue
			}
			res = append(res, availablePair{topic: topic, channel: channel, rule: rule})
		}
	}
	return res
}

func (s *service) GetPreferences(ctx context.Context, userID int64) ([]domain.TopicPreferences, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: userID = %d", errs.ErrInvalidParameter, userID)
	}
	stored, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("查询偏好记录失败: %w", err)
	}
	index := indexRecords(stored)

	var res []domain.TopicPreferences
	var current *domain.TopicPreferences
	for _, pair := range s.availablePairs(ctx, userID) {
		if current == nil || current.Topic.Key != pair.topic.Key {
			res = append(res, domain.TopicPreferences{Topic: pair.topic})
			current = &res[len(res)-1]
		}
		entry := s.effectiveEntry(pair, index)
		current.Entries = append(current.Entries, entry)
	}
	return res, nil
}

// effectiveEntry 单个组合的生效偏好：存储值优先，其次规则/主题默认值
func (s *service) effectiveEntry(pair availablePair, index map[string]domain.PreferenceRecord) domain.PreferenceEntry {
	entry := domain.PreferenceEntry{
		Channel:    pair.channel,
		Rule:       pair.rule,
		OptIn:      pair.rule.EffectiveOptIn(),
		Digest:     defaultDigest(pair),
		QuietHours: pair.topic.DefaultQuietHours,
	}
	if rec, ok := index[pairKey(pair.topic.Key, pair.channel.Key)]; ok {
		entry.OptIn = rec.OptIn
		entry.Digest = rec.Digest
		entry.QuietHours = rec.QuietHours
		entry.Stored = true
	}
	if pair.rule.Requirement == domain.RequirementMandatory {
		// 强制组合始终开启，存储值不生效
		entry.OptIn = true
		entry.Locked = true
	}
	if !pair.channel.SupportsDigest {
		entry.Digest = domain.DigestInstant
	}
	return entry
}

func (s *service) SetPreferences(ctx context.Context, userID int64, updates []domain.PreferenceUpdate,
	actor, source, requestID string,
) error {
	if userID <= 0 {
		return fmt.Errorf("%w: userID = %d", errs.ErrInvalidParameter, userID)
	}
	if requestID == "" {
		uid, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("%w: %w", errs.ErrIDGenerateFailed, err)
		}
		requestID = uid.String()
	}

	stored, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("查询偏好记录失败: %w", err)
	}
	index := indexRecords(stored)

	// 整批写入共享一个同意版本：一次写入就是一个同意"代"
	version := 1
	for i := range stored {
		if stored[i].Version >= version {
			version = stored[i].Version + 1
		}
	}

	updateIndex := make(map[string]domain.PreferenceUpdate, len(updates))
	for i := range updates {
		updateIndex[pairKey(updates[i].TopicKey, updates[i].ChannelKey)] = updates[i]
	}

	var records []domain.PreferenceRecord
	var audits []domain.ConsentAuditRecord
	for _, pair := range s.availablePairs(ctx, userID) {
		key := pairKey(pair.topic.Key, pair.channel.Key)

		var prev *domain.PreferenceRecord
		if rec, ok := index[key]; ok {
			prev = &rec
		}

		record, err1 := s.mergedRecord(pair, prev, updateIndex[key], userID)
		if err1 != nil {
			return err1
		}
		record.Source = source
		record.Actor = actor
		record.RequestID = requestID
		record.Version = version
		records = append(records, record)

		// 实际变化才产生审计记录；首次显式写入视为 null -> 新状态的变化
		if prev == nil || !record.SameState(*prev) {
			audits = append(audits, domain.ConsentAuditRecord{
				UserID:     userID,
				TopicKey:   pair.topic.Key,
				ChannelKey: pair.channel.Key,
				Previous:   prev,
				Current:    record,
				Source:     source,
				Actor:      actor,
				RequestID:  requestID,
			})
		}
	}

	for i := range audits {
		id, err1 := s.idGen.NextID()
		if err1 != nil {
			return fmt.Errorf("%w: %w", errs.ErrIDGenerateFailed, err1)
		}
		audits[i].ID = id
	}

	if err = s.repo.ReplaceForUser(ctx, userID, records, audits); err != nil {
		return fmt.Errorf("替换偏好记录失败: %w", err)
	}
	return nil
}

// mergedRecord 增量修改叠加在旧值和默认值之上
// 非法字段按"未修改"处理：这是有意的宽松策略，局部失效不升级为整体失败
func (s *service) mergedRecord(pair availablePair, prev *domain.PreferenceRecord,
	upd domain.PreferenceUpdate, userID int64,
) (domain.PreferenceRecord, error) {
	record := domain.PreferenceRecord{
		UserID:     userID,
		TopicKey:   pair.topic.Key,
		ChannelKey: pair.channel.Key,
		OptIn:      pair.rule.EffectiveOptIn(),
		Digest:     defaultDigest(pair),
		QuietHours: pair.topic.DefaultQuietHours,
	}
	if prev != nil {
		record.OptIn = prev.OptIn
		record.Digest = prev.Digest
		record.QuietHours = prev.QuietHours
	}
	if upd.OptIn != nil {
		record.OptIn = *upd.OptIn
	}
	if upd.Digest != nil && upd.Digest.IsValid() {
		record.Digest = *upd.Digest
	}
	if upd.HasQuiet {
		record.QuietHours = domain.NormalizeQuietHours(upd.QuietHours)
	}
	if pair.rule.Requirement == domain.RequirementMandatory {
		// 强制组合无视输入
		record.OptIn = true
	}
	if !pair.channel.SupportsDigest {
		record.Digest = domain.DigestInstant
	}

	id, err := s.idGen.NextID()
	if err != nil {
		return domain.PreferenceRecord{}, fmt.Errorf("%w: %w", errs.ErrIDGenerateFailed, err)
	}
	record.ID = id
	return record, nil
}

func defaultDigest(pair availablePair) domain.DigestMode {
	if pair.rule.DefaultDigest != nil {
		return *pair.rule.DefaultDigest
	}
	if pair.topic.DefaultDigest != "" {
		return pair.topic.DefaultDigest
	}
	return domain.DigestInstant
}

func pairKey(topicKey, channelKey string) string {
	return topicKey + "|" + channelKey
}

func indexRecords(records []domain.PreferenceRecord) map[string]domain.PreferenceRecord {
	index := make(map[string]domain.PreferenceRecord, len(records))
	for i := range records {
		index[pairKey(records[i].TopicKey, records[i].ChannelKey)] = records[i]
	}
	return index
}
