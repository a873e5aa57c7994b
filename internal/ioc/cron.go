package ioc

import (
	broadcastsvc "gitee.com/flycash/notify-center/internal/service/broadcast"
	"github.com/gotomicro/ego/task/ecron"
)

func Crons(sweep *broadcastsvc.SweepCron) []ecron.Ecron {
	c1 := ecron.Load("cron.broadcastSweep").Build(ecron.WithJob(sweep.Do))
	return []ecron.Ecron{c1}
}
