package cron

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/customeros/lenderinbox/dto"
	cron_config "github.com/customeros/lenderinbox/internal/cron/config"
	"github.com/customeros/lenderinbox/internal/logger"
)

type mockBatchRunner struct {
	mock.Mock
}

func (m *mockBatchRunner) RunOnce(ctx context.Context) (*dto.RunSummary, error) {
	args := m.Called(ctx)
	summary, _ := args.Get(0).(*dto.RunSummary)
	return summary, args.Error(1)
}

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func TestNewCronManager(t *testing.T) {
	cfg := &cron_config.Config{CronScheduleHeartbeat: "0 * * * * *"}
	log := getLogger()
	runner := &mockBatchRunner{}

	cm := NewCronManager(cfg, log, runner, 0)

	assert.NotNil(t, cm)
	assert.Equal(t, cfg, cm.cfg)
	assert.Equal(t, log, cm.log)
	assert.Equal(t, defaultRunTimeout, cm.runTimeout)
	assert.NotNil(t, cm.jobIDs)
}

func TestCronManager_StartRegistersJobs(t *testing.T) {
	cfg := &cron_config.Config{
		CronScheduleHeartbeat: "0 * * * * *",
		CronScheduleRunOnce:   "0 */5 * * * *",
	}
	cm := NewCronManager(cfg, getLogger(), &mockBatchRunner{}, time.Minute)

	require.NoError(t, cm.Start())
	defer cm.Stop()

	assert.Contains(t, cm.jobIDs, jobHeartbeat)
	assert.Contains(t, cm.jobIDs, jobRunOnce)
	assert.Len(t, cm.cron.Entries(), 2)
}

func TestCronManager_EmptyScheduleDisablesJob(t *testing.T) {
	cfg := &cron_config.Config{CronScheduleHeartbeat: "0 * * * * *"}
	cm := NewCronManager(cfg, getLogger(), &mockBatchRunner{}, time.Minute)

	require.NoError(t, cm.Start())
	defer cm.Stop()

	assert.NotContains(t, cm.jobIDs, jobRunOnce)
}

func TestCronManager_InvalidSchedule(t *testing.T) {
	cfg := &cron_config.Config{CronScheduleRunOnce: "every now and then"}
	cm := NewCronManager(cfg, getLogger(), &mockBatchRunner{}, time.Minute)

	assert.Error(t, cm.Start())
}

func TestCronManager_RunOnceCallsRunnerWithDeadline(t *testing.T) {
	runner := &mockBatchRunner{}
	runner.On("RunOnce", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	})).Return(&dto.RunSummary{RunID: "run_1", ProcessedCount: 2}, nil).Once()
	cm := NewCronManager(&cron_config.Config{}, getLogger(), runner, time.Minute)

	cm.runOnce()

	runner.AssertExpectations(t)
}

func TestCronManager_RunOnceErrorIsLogged(t *testing.T) {
	runner := &mockBatchRunner{}
	runner.On("RunOnce", mock.Anything).Return(nil, errors.New("store unreachable")).Once()
	cm := NewCronManager(&cron_config.Config{}, getLogger(), runner, time.Minute)

	assert.NotPanics(t, cm.runOnce)
	runner.AssertExpectations(t)
}

func TestCronManager_RunOnceSkipsWhileLocked(t *testing.T) {
	runner := &mockBatchRunner{}
	cm := NewCronManager(&cron_config.Config{}, getLogger(), runner, time.Minute)

	lock := jobLocks.locks[GroupListener]
	lock.Lock()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		cm.runOnce()
	}()
	wg.Wait()
	lock.Unlock()

	runner.AssertNotCalled(t, "RunOnce", mock.Anything)
}

func TestCronManager_StopIsIdempotent(t *testing.T) {
	cm := NewCronManager(&cron_config.Config{}, getLogger(), nil, time.Minute)
	require.NoError(t, cm.Start())

	cm.Stop()
	assert.NotPanics(t, cm.Stop)
}
