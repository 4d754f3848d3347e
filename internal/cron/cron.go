package cron

import (
	"context"
	"os"
	"sync"
	"time"

	cronv3 "github.com/robfig/cron/v3"

	"github.com/customeros/lenderinbox/interfaces"
	cron_config "github.com/customeros/lenderinbox/internal/cron/config"
	"github.com/customeros/lenderinbox/internal/logger"
	"github.com/customeros/lenderinbox/internal/tracing"
	"github.com/customeros/lenderinbox/internal/utils"
)

const (
	// GroupListener serializes jobs that open mailbox connections
	GroupListener = "listener"

	jobHeartbeat = "heartbeat"
	jobRunOnce   = "run_once"

	defaultRunTimeout = 5 * time.Minute
)

var jobLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: map[string]*sync.Mutex{
		GroupListener: new(sync.Mutex),
	},
}

type CronManager struct {
	cfg        *cron_config.Config
	log        logger.Logger
	cron       *cronv3.Cron
	runner     interfaces.BatchRunner
	runTimeout time.Duration
	jobIDs     map[string]cronv3.EntryID
	stopOnce   sync.Once
}

func NewCronManager(cfg *cron_config.Config, log logger.Logger, runner interfaces.BatchRunner, runTimeout time.Duration) *CronManager {
	if cfg == nil {
		cfg = &cron_config.Config{}
	}
	if runTimeout <= 0 {
		runTimeout = defaultRunTimeout
	}
	return &CronManager{
		cfg:        cfg,
		log:        log,
		runner:     runner,
		runTimeout: runTimeout,
		jobIDs:     make(map[string]cronv3.EntryID),
	}
}

// Start creates the scheduler, registers the configured jobs and starts it.
func (cm *CronManager) Start() error {
	cm.log.Info("Starting cron manager")
	// seconds field enabled, overlapping runs skipped
	c := cronv3.New(
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
			cronv3.Recover(cronv3.DefaultLogger),
		),
	)
	if err := cm.registerJobs(c); err != nil {
		return err
	}
	c.Start()
	cm.cron = c
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish.
func (cm *CronManager) Stop() {
	cm.stopOnce.Do(func() {
		if cm.cron != nil {
			cm.log.Info("Stopping cron manager")
			<-cm.cron.Stop().Done()
		}
	})
}

func (cm *CronManager) registerJobs(c *cronv3.Cron) error {
	if cm.cfg.CronScheduleHeartbeat != "" {
		podName := os.Getenv("POD_NAME")
		if podName == "" {
			podName = "local"
		}
		id, err := c.AddFunc(cm.cfg.CronScheduleHeartbeat, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.log.Infof("Cron heartbeat from pod: %s", podName)
		})
		if err != nil {
			cm.log.Errorf("Could not add heartbeat cron job: %v", err)
			return err
		}
		cm.jobIDs[jobHeartbeat] = id
		cm.log.Infof("Registered heartbeat job with schedule: %s", cm.cfg.CronScheduleHeartbeat)
	}

	if cm.cfg.CronScheduleRunOnce != "" && cm.runner != nil {
		id, err := c.AddFunc(cm.cfg.CronScheduleRunOnce, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.runOnce()
		})
		if err != nil {
			cm.log.Errorf("Could not add run-once cron job: %v", err)
			return err
		}
		cm.jobIDs[jobRunOnce] = id
		cm.log.Infof("Registered run-once job with schedule: %s", cm.cfg.CronScheduleRunOnce)
	}
	return nil
}

// runOnce is skipped when another listener job still holds the group lock.
func (cm *CronManager) runOnce() {
	lock := jobLocks.locks[GroupListener]
	if !lock.TryLock() {
		cm.log.Warn("Previous listener run still in progress, skipping")
		return
	}
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), cm.runTimeout)
	defer cancel()
	ctx = utils.SetAppSourceInContext(ctx, "cron")

	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.runOnce")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	summary, err := cm.runner.RunOnce(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Scheduled listener run failed: %v", err)
		return
	}
	span.SetTag(tracing.SpanTagRunId, summary.RunID)
	cm.log.Infof("Scheduled listener run %s processed %d messages across %d mailboxes",
		summary.RunID, summary.ProcessedCount, len(summary.Mailboxes))
}
