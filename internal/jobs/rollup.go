package jobs

import (
	"fmt"
	"log"
	"time"

	"modelmux/internal/services"

	"github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"
)

// RollupJob runs the daily cost aggregation on a cron schedule
type RollupJob struct {
	scheduler gocron.Scheduler
	costs     *services.CostService
	cronExpr  string
}

// NewRollupJob validates the cron expression and prepares the scheduler
func NewRollupJob(costs *services.CostService, cronExpr string) (*RollupJob, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(cronExpr); err != nil {
		return nil, fmt.Errorf("invalid rollup cron expression %q: %w", cronExpr, err)
	}

	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &RollupJob{
		scheduler: scheduler,
		costs:     costs,
		cronExpr:  cronExpr,
	}, nil
}

// Start registers the rollup task and starts the scheduler
func (j *RollupJob) Start() error {
	_, err := j.scheduler.NewJob(
		gocron.CronJob(j.cronExpr, false),
		gocron.NewTask(func() {
			if err := j.costs.RollupDaily(); err != nil {
				log.Printf("⚠️ [JOBS] Daily cost rollup failed: %v", err)
			}
		}),
		gocron.WithName("cost_daily_rollup"),
	)
	if err != nil {
		return fmt.Errorf("failed to register rollup job: %w", err)
	}

	j.scheduler.Start()
	log.Printf("⏰ [JOBS] Daily cost rollup scheduled (cron: %s)", j.cronExpr)
	return nil
}

// Stop shuts the scheduler down
func (j *RollupJob) Stop() error {
	log.Println("⏹️ [JOBS] Stopping scheduler...")
	return j.scheduler.Shutdown()
}
