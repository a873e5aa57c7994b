package flag

import (
	"context"

	"github.com/gotomicro/ego/core/elog"
)

// UserContext 开关求值时携带的用户上下文
type UserContext struct {
	UserID int64
	Attrs  map[string]string
}

// Oracle 外部特性开关服务
//
//go:generate mockgen -source=./evaluator.go -destination=./mocks/oracle.mock.go -package=flagmocks -typed Oracle
type Oracle interface {
	Evaluate(ctx context.Context, slug string, uctx UserContext) (bool, error)
}

// Evaluator 单次请求内的开关求值器
// 结果按 slug 记忆化，把对开关服务的调用次数限制在"本次触达的不同开关数"
// 不是进程级缓存：每次投递/偏好请求都要新建一个实例，避免陈旧开关值跨请求泄漏
// 非并发安全
type Evaluator struct {
	oracle Oracle
	uctx   UserContext
	memo   map[string]bool
	logger *elog.Component
}

func NewEvaluator(oracle Oracle, uctx UserContext) *Evaluator {
	return &Evaluator{
		oracle: oracle,
		uctx:   uctx,
		memo:   make(map[string]bool, 4),
		logger: elog.DefaultLogger,
	}
}

// IsEnabled 求值一个开关
// 空 slug 视为无条件开启；开关服务出错时记日志并返回兜底值，绝不向调用方抛错
// 通知可用性在开关存储故障时要优雅降级，而不是整体失效
func (e *Evaluator) IsEnabled(ctx context.Context, slug string, fallback bool) bool {
	if slug == "" {
		return true
	}
	if v, ok := e.memo[slug]; ok {
		return v
	}
	v, err := e.oracle.Evaluate(ctx, slug, e.uctx)
	if err != nil {
		e.logger.Warn("特性开关求值失败，使用兜底值",
			elog.FieldErr(err),
			elog.String("slug", slug),
			elog.Any("fallback", fallback))
		v = fallback
	}
	e.memo[slug] = v
	return v
}

// RuleEnabled 求值一条规则：规则级开关覆盖优先于渠道级开关
func (e *Evaluator) RuleEnabled(ctx context.Context, ruleSlug *string, channelSlug string, fallback bool) bool {
	if ruleSlug != nil {
		return e.IsEnabled(ctx, *ruleSlug, fallback)
	}
	return e.IsEnabled(ctx, channelSlug, fallback)
}
