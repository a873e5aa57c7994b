package email

import (
	"context"

	"github.com/gotomicro/ego/core/elog"
)

// Payload 一封外发邮件
type Payload struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Transport 邮件发送接口
// 对调用方是尽力而为：发送失败由调用方记日志吞掉，不影响已提交的站内投递
//
//go:generate mockgen -source=./transport.go -destination=./mocks/transport.mock.go -package=emailmocks -typed Transport
type Transport interface {
	Dispatch(ctx context.Context, payload Payload) error
}

// consoleTransport 把邮件打到日志，开发和测试环境使用
type consoleTransport struct {
	logger *elog.Component
}

func NewConsoleTransport() Transport {
	return &consoleTransport{
		logger: elog.DefaultLogger,
	}
}

func (t *consoleTransport) Dispatch(_ context.Context, payload Payload) error {
	t.logger.Info("发送邮件",
		elog.String("to", payload.To),
		elog.String("subject", payload.Subject),
		elog.String("text", payload.Text))
	return nil
}
