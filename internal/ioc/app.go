package ioc

import (
	"context"

	"gitee.com/flycash/notify-center/internal/event/inbound"
	"gitee.com/flycash/notify-center/internal/flag"
	"gitee.com/flycash/notify-center/internal/matrix"
	"gitee.com/flycash/notify-center/internal/pkg/idempotent"
	"gitee.com/flycash/notify-center/internal/repository"
	"gitee.com/flycash/notify-center/internal/repository/dao"
	"gitee.com/flycash/notify-center/internal/service/audience"
	broadcastsvc "gitee.com/flycash/notify-center/internal/service/broadcast"
	"gitee.com/flycash/notify-center/internal/service/delivery"
	"gitee.com/flycash/notify-center/internal/service/email"
	"gitee.com/flycash/notify-center/internal/service/preference"
	"gitee.com/flycash/notify-center/internal/service/template"
	"github.com/gotomicro/ego/task/ecron"
	"github.com/sony/sonyflake"
)

// Task 常驻后台任务，Start 阻塞运行直到 ctx 取消
type Task interface {
	Start(ctx context.Context)
}

// App 进程内的全部组件
type App struct {
	Consumer *inbound.EventConsumer
	Tasks    []Task
	Crons    []ecron.Ecron

	PreferenceSvc preference.Service
	DeliverySvc   delivery.Service
	BroadcastSvc  broadcastsvc.Service
	ReceiptRepo   repository.ReceiptRepository
	AuditRepo     repository.AuditRepository
}

func InitApp() *App {
	db := InitDB()
	redisClient := InitRedisClient()
	dclient := InitDlockClient(redisClient)

	m, err := matrix.Load()
	if err != nil {
		panic(err)
	}

	idGen := sonyflake.NewSonyflake(sonyflake.Settings{})
	oracle := flag.NewRedisOracle(redisClient)

	prefRepo := repository.NewPreferenceRepository(dao.NewPreferenceDAO(db))
	auditRepo := repository.NewAuditRepository(dao.NewAuditDAO(db))
	receiptRepo := repository.NewReceiptRepository(dao.NewReceiptDAO(db))
	broadcastRepo := repository.NewBroadcastRepository(dao.NewBroadcastDAO(db))
	templateRepo := repository.NewTemplateRepository(dao.NewTemplateDAO(db))
	membershipRepo := repository.NewMembershipRepository(dao.NewMembershipDAO(db))

	templateSvc := template.NewService(templateRepo)
	deliverySvc := delivery.NewService(m, oracle, prefRepo, receiptRepo,
		templateSvc, email.NewConsoleTransport())
	preferenceSvc := preference.NewService(m, oracle, prefRepo, idGen)

	resolver := audience.NewResolver(membershipRepo)
	orch := broadcastsvc.NewOrchestrator(broadcastRepo, resolver, deliverySvc, templateSvc)
	broadcastSvc := broadcastsvc.NewService(broadcastRepo, idGen)

	const bloomCapacity = 10_000_000
	const bloomErrorRate = 0.01
	idem := idempotent.NewBloomService(redisClient, "notify:event_dedup",
		bloomCapacity, bloomErrorRate)
	consumer, err := inbound.NewEventConsumer(deliverySvc, InitKafkaConsumer(), idem)
	if err != nil {
		panic(err)
	}

	return &App{
		Consumer: consumer,
		Tasks: InitTasks(
			broadcastsvc.NewDispatchTask(dclient, orch),
		),
		Crons:         Crons(broadcastsvc.NewSweepCron(orch)),
		PreferenceSvc: preferenceSvc,
		DeliverySvc:   deliverySvc,
		BroadcastSvc:  broadcastSvc,
		ReceiptRepo:   receiptRepo,
		AuditRepo:     auditRepo,
	}
}
