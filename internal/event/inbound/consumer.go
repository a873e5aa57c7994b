package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gitee.com/flycash/notify-center/internal/domain"
	"gitee.com/flycash/notify-center/internal/pkg/idempotent"
	"gitee.com/flycash/notify-center/internal/service/delivery"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/gotomicro/ego/core/elog"
)

const (
	defaultBatchSize    = 64
	defaultBatchTimeout = time.Second
)

// EventConsumer 入站事件消费者
// 宽松管道：非法消息丢弃并跳过，基础设施故障不提交进度等待重投；
// 重投的消息靠收件记录的幂等键兜底，不会产生第二条可见投递
type EventConsumer struct {
	svc        delivery.Service
	consumer   *kafka.Consumer
	idempotent idempotent.IdempotencyService

	batchSize    int
	batchTimeout time.Duration

	logger *elog.Component
}

func NewEventConsumer(
	svc delivery.Service,
	consumer *kafka.Consumer,
	idem idempotent.IdempotencyService,
) (*EventConsumer, error) {
	return NewEventConsumerWithTopic(svc, consumer, idem, EventName)
}

func NewEventConsumerWithTopic(
	svc delivery.Service,
	consumer *kafka.Consumer,
	idem idempotent.IdempotencyService,
	topic string,
) (*EventConsumer, error) {
	if err := consumer.SubscribeTopics([]string{topic}, nil); err != nil {
		return nil, err
	}
	return &EventConsumer{
		svc:          svc,
		consumer:     consumer,
		idempotent:   idem,
		batchSize:    defaultBatchSize,
		batchTimeout: defaultBatchTimeout,
		logger:       elog.DefaultLogger,
	}, nil
}

func (c *EventConsumer) Start(ctx context.Context) {
	go func() {
		for {
			if ctx.Err() != nil {
				return
			}
			if err := c.Consume(ctx); err != nil {
				c.logger.Error("消费通知事件失败", elog.FieldErr(err))
			}
		}
	}()
}

// Consume 聚合一个批次并逐条投递，批次内单条失败即中止且不提交进度
func (c *EventConsumer) Consume(ctx context.Context) error {
	var (
		events            []domain.NotificationEvent
		processedMessages []*kafka.Message
	)

	batchTimer := time.NewTimer(c.batchTimeout)
	defer batchTimer.Stop()

collectBatch:
	for {
		select {
		case <-ctx.Done():
			break collectBatch
		case <-batchTimer.C:
			break collectBatch
		default:
			if len(events) >= c.batchSize {
				break collectBatch
			}
		}

		msg, err := c.consumer.ReadMessage(c.batchTimeout)
		if err != nil {
			var kErr kafka.Error
			if errors.As(err, &kErr) && kErr.Code() == kafka.ErrTimedOut {
				// 聚合当前批次已超时
				break
			}
			return fmt.Errorf("获取消息失败: %w", err)
		}

		var payload NotificationPayload
		if err = json.Unmarshal(msg.Value, &payload); err != nil {
			// 解析失败，跳过本条，继续下一轮；进度随批次一起提交
			c.logger.Warn("解析消息失败",
				elog.FieldErr(err),
				elog.Any("msg", msg))
			processedMessages = append(processedMessages, msg)
			continue
		}

		event := payload.toDomain()
		if !c.firstSeen(ctx, event) {
			processedMessages = append(processedMessages, msg)
			continue
		}

		events = append(events, event)
		processedMessages = append(processedMessages, msg)
	}

	if len(processedMessages) == 0 {
		return nil
	}

	for i := range events {
		// 不可投递的事件在管道内部静默丢弃并返回 (nil, nil)，
		// 这里的错误只剩基础设施故障：不提交进度，等待整批重投
		if _, err := c.svc.DeliverToInbox(ctx, events[i]); err != nil {
			return fmt.Errorf("投递入站事件失败: %w", err)
		}
	}

	// 按分区分组，只提交每个分区的最后一条消息
	lastMessages := make(map[int32]*kafka.Message)
	for _, msg := range processedMessages {
		lastMessages[msg.TopicPartition.Partition] = msg
	}
	for _, lastMsg := range lastMessages {
		if _, err := c.consumer.CommitMessage(lastMsg); err != nil {
			c.logger.Warn("提交消息失败",
				elog.FieldErr(err),
				elog.Any("partition", lastMsg.TopicPartition.Partition),
				elog.Any("offset", lastMsg.TopicPartition.Offset))
			return err
		}
	}
	return nil
}

// firstSeen 布隆过滤器预判去重
// 只有携带去重标识的事件参与预判；过滤器故障时放行，由收件记录的唯一索引兜底
func (c *EventConsumer) firstSeen(ctx context.Context, event domain.NotificationEvent) bool {
	if c.idempotent == nil || event.DedupID == "" {
		return true
	}
	key := fmt.Sprintf("%s:%d:%s", event.TopicKey, event.UserID, event.DedupID)
	first, err := c.idempotent.FirstSeen(ctx, key)
	if err != nil {
		c.logger.Warn("幂等预判失败，降级放行",
			elog.FieldErr(err),
			elog.String("key", key))
		return true
	}
	if !first {
		c.logger.Info("重复事件，丢弃",
			elog.String("key", key))
	}
	return first
}
