package ioc

import (
	broadcastsvc "gitee.com/flycash/notify-center/internal/service/broadcast"
)

func InitTasks(t1 *broadcastsvc.DispatchTask) []Task {
	return []Task{
		t1,
	}
}
