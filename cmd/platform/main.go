package main

import (
	"context"

	"gitee.com/flycash/notify-center/internal/ioc"
	"github.com/gotomicro/ego"
	"github.com/gotomicro/ego/core/elog"
)

func main() {
	egoApp := ego.New()
	app := ioc.InitApp()

	ctx := context.Background()
	app.Consumer.Start(ctx)
	for _, t := range app.Tasks {
		go t.Start(ctx)
	}

	if err := egoApp.Cron(app.Crons...).Run(); err != nil {
		elog.Panic("startup", elog.Any("err", err))
	}
}
