package matrix

import (
	"fmt"
	"regexp"
	"sort"

	"gitee.com/flycash/notify-center/internal/domain"
	"gitee.com/flycash/notify-center/internal/errs"
	"github.com/gotomicro/ego/core/econf"
)

// TopicConfig 主题配置项
type TopicConfig struct {
	Key               string
	Category          string
	DisplayName       string
	DefaultDigest     string
	DefaultQuietHours []int
	Position          int
}

// ChannelConfig 渠道配置项
type ChannelConfig struct {
	Key             string
	DisplayName     string
	Category        string
	SupportsDigest  bool
	RequiresConsent bool
	Active          bool
	FlagSlug        string
	FlagFallback    bool
}

// RuleConfig 主题渠道规则配置项
type RuleConfig struct {
	Topic         string
	Channel       string
	Requirement   string
	DefaultOptIn  *bool
	DefaultDigest string
	FlagSlug      string
	Position      int
}

// Config 通知矩阵的完整配置
// 主题别名也是配置数据，用于兼容历史主题名的迁移
type Config struct {
	Topics   []TopicConfig
	Channels []ChannelConfig
	Rules    []RuleConfig
	Aliases  map[string]string
}

// 主题上的版本后缀，如 order.shipped.v2
var versionSuffix = regexp.MustCompile(`\.v\d+$`)

// Matrix 主题、渠道和投递规则的只读注册表
// 配置加载时构建一次，运行期不再变化
type Matrix struct {
	topics   map[string]domain.Topic
	channels map[string]domain.NotificationChannel
	rules    map[string]map[string]domain.Rule
	aliases  map[string]string

	topicOrder   []domain.Topic
	channelOrder []domain.NotificationChannel
}

// Load 从全局配置的 matrix 配置块构建注册表
func Load() (*Matrix, error) {
	var cfg Config
	if err := econf.UnmarshalKey("matrix", &cfg); err != nil {
		return nil, fmt.Errorf("解析通知矩阵配置失败: %w", err)
	}
	return New(cfg)
}

func New(cfg Config) (*Matrix, error) {
	m := &Matrix{
		topics:   make(map[string]domain.Topic, len(cfg.Topics)),
		channels: make(map[string]domain.NotificationChannel, len(cfg.Channels)),
		rules:    make(map[string]map[string]domain.Rule, len(cfg.Topics)),
		aliases:  make(map[string]string, len(cfg.Aliases)),
	}

	for i := range cfg.Topics {
		t := domain.Topic{
			Key:               cfg.Topics[i].Key,
			Category:          cfg.Topics[i].Category,
			DisplayName:       cfg.Topics[i].DisplayName,
			DefaultDigest:     domain.DigestMode(cfg.Topics[i].DefaultDigest),
			DefaultQuietHours: domain.NormalizeQuietHours(cfg.Topics[i].DefaultQuietHours),
			Position:          cfg.Topics[i].Position,
		}
		if t.DefaultDigest == "" {
			t.DefaultDigest = domain.DigestInstant
		}
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, ok := m.topics[t.Key]; ok {
			return nil, fmt.Errorf("%w: 主题 %q 重复", errs.ErrInvalidParameter, t.Key)
		}
		m.topics[t.Key] = t
		m.topicOrder = append(m.topicOrder, t)
	}

	for i := range cfg.Channels {
		c := domain.NotificationChannel{
			Key:             cfg.Channels[i].Key,
			DisplayName:     cfg.Channels[i].DisplayName,
			Category:        cfg.Channels[i].Category,
			SupportsDigest:  cfg.Channels[i].SupportsDigest,
			RequiresConsent: cfg.Channels[i].RequiresConsent,
			Active:          cfg.Channels[i].Active,
			FlagSlug:        cfg.Channels[i].FlagSlug,
			FlagFallback:    cfg.Channels[i].FlagFallback,
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if _, ok := m.channels[c.Key]; ok {
			return nil, fmt.Errorf("%w: 渠道 %q 重复", errs.ErrInvalidParameter, c.Key)
		}
		m.channels[c.Key] = c
		m.channelOrder = append(m.channelOrder, c)
	}

	for i := range cfg.Rules {
		rc := cfg.Rules[i]
		r := domain.Rule{
			TopicKey:     rc.Topic,
			ChannelKey:   rc.Channel,
			Requirement:  domain.DeliveryRequirement(rc.Requirement),
			DefaultOptIn: rc.DefaultOptIn,
			Position:     rc.Position,
		}
		if rc.DefaultDigest != "" {
			d := domain.DigestMode(rc.DefaultDigest)
			r.DefaultDigest = &d
		}
		if rc.FlagSlug != "" {
			s := rc.FlagSlug
			r.FlagSlug = &s
		}
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, ok := m.topics[r.TopicKey]; !ok {
			return nil, fmt.Errorf("%w: 规则引用了未定义的主题 %q", errs.ErrTopicNotFound, r.TopicKey)
		}
		if _, ok := m.channels[r.ChannelKey]; !ok {
			return nil, fmt.Errorf("%w: 规则引用了未定义的渠道 %q", errs.ErrChannelNotFound, r.ChannelKey)
		}
		if _, ok := m.rules[r.TopicKey][r.ChannelKey]; ok {
			return nil, fmt.Errorf("%w: (%s, %s)", errs.ErrRuleDuplicate, r.TopicKey, r.ChannelKey)
		}
		if m.rules[r.TopicKey] == nil {
			m.rules[r.TopicKey] = make(map[string]domain.Rule)
		}
		m.rules[r.TopicKey][r.ChannelKey] = r
	}

	for from, to := range cfg.Aliases {
		if _, ok := m.topics[to]; !ok {
			return nil, fmt.Errorf("%w: 别名 %q 指向未定义的主题 %q", errs.ErrTopicNotFound, from, to)
		}
		m.aliases[from] = to
	}

	sort.SliceStable(m.topicOrder, func(i, j int) bool {
		return m.topicOrder[i].Position < m.topicOrder[j].Position
	})
	return m, nil
}

// NormalizeTopic 把入站主题归一化为标准主题
// 先剥离版本后缀，再套用别名表；未注册的主题返回 false，调用方按不可投递处理
func (m *Matrix) NormalizeTopic(raw string) (string, bool) {
	key := versionSuffix.ReplaceAllString(raw, "")
	if to, ok := m.aliases[key]; ok {
		key = to
	}
	if _, ok := m.topics[key]; !ok {
		return "", false
	}
	return key, true
}

// Topic 按主题键查询
func (m *Matrix) Topic(key string) (domain.Topic, bool) {
	t, ok := m.topics[key]
	return t, ok
}

// Channel 按渠道键查询
func (m *Matrix) Channel(key string) (domain.NotificationChannel, bool) {
	c, ok := m.channels[key]
	return c, ok
}

// GetRule 查询一个主题渠道组合的规则
// 未配置或规则为 DISABLED 都返回 false：两者对调用方都是"此渠道不可投递"
func (m *Matrix) GetRule(topicKey, channelKey string) (domain.Rule, bool) {
	r, ok := m.rules[topicKey][channelKey]
	if !ok || r.Requirement == domain.RequirementDisabled {
		return domain.Rule{}, false
	}
	return r, true
}

// TopicsInOrder 全部主题，按展示顺序
func (m *Matrix) TopicsInOrder() []domain.Topic {
	res := make([]domain.Topic, len(m.topicOrder))
	copy(res, m.topicOrder)
	return res
}

// ChannelsInOrder 全部渠道，按配置顺序
func (m *Matrix) ChannelsInOrder() []domain.NotificationChannel {
	res := make([]domain.NotificationChannel, len(m.channelOrder))
	copy(res, m.channelOrder)
	return res
}

// TopicRules 一个主题下全部可见规则，按展示顺序
func (m *Matrix) TopicRules(topicKey string) []domain.Rule {
	rules := m.rules[topicKey]
	res := make([]domain.Rule, 0, len(rules))
	for k := range rules {
		if rules[k].Requirement == domain.RequirementDisabled {
			continue
		}
		res = append(res, rules[k])
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].Position < res[j].Position
	})
	return res
}
