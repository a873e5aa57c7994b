package broadcast

import (
	"context"
	"time"

	"gitee.com/flycash/notify-center/internal/pkg/loopjob"
	"github.com/meoying/dlock-go"
)

// DispatchTask 周期性抢占并执行到期的广播
// 分布式锁只用来减少多实例间的无效竞争，正确性靠抢占时的条件更新保证
type DispatchTask struct {
	dclient dlock.Client
	orch    *Orchestrator
}

func NewDispatchTask(dclient dlock.Client, orch *Orchestrator) *DispatchTask {
	return &DispatchTask{dclient: dclient, orch: orch}
}

func (t *DispatchTask) Start(ctx context.Context) {
	const key = "broadcast_dispatch"
	lj := loopjob.NewInfiniteLoop(t.dclient, t.dispatchDue, key)
	lj.Run(ctx)
}

func (t *DispatchTask) dispatchDue(ctx context.Context) error {
	const claimLimit = 10
	const idleSleepTime = time.Second * 10
	n, err := t.orch.ProcessDue(ctx, time.Now(), claimLimit)
	if err != nil {
		return err
	}
	// 没抢到满额说明到期任务不多，歇一会儿
	if n < claimLimit {
		time.Sleep(idleSleepTime)
	}
	return nil
}

// SweepCron 清理执行器崩溃后卡在 SENDING 的僵尸任务，由 ecron 周期触发
type SweepCron struct {
	orch *Orchestrator
}

func NewSweepCron(orch *Orchestrator) *SweepCron {
	return &SweepCron{orch: orch}
}

func (c *SweepCron) Do(ctx context.Context) error {
	_, err := c.orch.SweepStuck(ctx)
	return err
}
