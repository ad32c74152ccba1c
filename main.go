package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/MartinHagen/Tempora/app/controllers"
	"github.com/MartinHagen/Tempora/internal/pkg/billing"
	"github.com/MartinHagen/Tempora/internal/pkg/cache"
	"github.com/MartinHagen/Tempora/internal/pkg/database"
	"github.com/MartinHagen/Tempora/internal/pkg/env"
	"github.com/MartinHagen/Tempora/internal/pkg/jobqueue"
	"github.com/MartinHagen/Tempora/internal/pkg/quota"
	"github.com/MartinHagen/Tempora/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	// Configuration is read once at bootstrap and injected; business packages
	// never touch the environment themselves.
	billingCfg := billing.ConfigFromEnv()
	controllers.SetupBilling(billingCfg)

	tracker := quota.NewTracker(
		quota.NewRedisStore(cache.GetClient()),
		quota.ConfigFromEnv(),
		billing.NewServiceFromDB(database.GetDB(), billingCfg).GetPlan,
	)
	controllers.SetupQuota(tracker)

	startJobQueue(billingCfg)

	app := fiber.New(fiber.Config{
		AppName: "Tempora",
	})
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", monitor.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}

// startJobQueue registers the background processors and starts the workers.
// Ledger pruning runs on a daily schedule; plan reconciles are enqueued on
// demand (for example after login).
func startJobQueue(cfg billing.Config) {
	manager := jobqueue.GetManager()
	queue := manager.GetQueue()

	queue.RegisterProcessor(jobqueue.JobTypeLedgerPrune, func(ctx context.Context, _ *jobqueue.Job) error {
		svc := billing.NewServiceFromDB(database.GetDB(), cfg)
		pruned, err := svc.PruneProcessedEvents(ctx, time.Now())
		if err != nil {
			return err
		}
		if pruned > 0 {
			log.Printf("pruned %d processed webhook events", pruned)
		}
		return nil
	})

	queue.RegisterProcessor(jobqueue.JobTypePlanReconcile, func(ctx context.Context, job *jobqueue.Job) error {
		payload, err := jobqueue.PlanReconcileJobPayloadFromMap(job.Payload)
		if err != nil {
			return err
		}
		svc := billing.NewServiceFromDB(database.GetDB(), cfg)
		_, err = svc.ReconcileUserPlan(ctx, payload.UserID)
		return err
	})

	manager.Start()
}
