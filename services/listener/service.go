package listener

import (
	"context"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/customeros/lenderinbox/config"
	"github.com/customeros/lenderinbox/dto"
	"github.com/customeros/lenderinbox/interfaces"
	"github.com/customeros/lenderinbox/internal/logger"
	"github.com/customeros/lenderinbox/internal/metrics"
	"github.com/customeros/lenderinbox/internal/models"
	"github.com/customeros/lenderinbox/internal/tracing"
	"github.com/customeros/lenderinbox/internal/utils"
)

const stopTimeout = 10 * time.Second

var ErrAlreadyRunning = errors.New("listener daemon already running")

type worker struct {
	cfg    *models.MailboxConfig
	cancel context.CancelFunc
	done   chan struct{}
}

// Service drives mailbox sessions either once over every mailbox or
// continuously with one worker per mailbox.
type Service struct {
	credentials interfaces.MailboxCredentialRepository
	dialer      interfaces.MailboxDialer
	session     *Session
	locks       *mailboxLocks
	cfg         *config.ListenerConfig
	log         logger.Logger
	now         func() time.Time

	mu       sync.Mutex
	cancel   context.CancelFunc
	workers  map[string]*worker
	wg       sync.WaitGroup
	runDone  chan struct{}
	statusMu sync.RWMutex
	statuses map[string]interfaces.MailboxStatus
}

var _ interfaces.ListenerService = (*Service)(nil)

func NewService(
	credentials interfaces.MailboxCredentialRepository,
	dialer interfaces.MailboxDialer,
	processor interfaces.ReplyProcessor,
	cfg *config.ListenerConfig,
	log logger.Logger,
) *Service {
	if cfg == nil {
		cfg = config.DefaultListenerConfig()
	}
	return &Service{
		credentials: credentials,
		dialer:      dialer,
		session:     NewSession(processor, log),
		locks:       newMailboxLocks(),
		cfg:         cfg,
		log:         log,
		now:         utils.Now,
		workers:     make(map[string]*worker),
		statuses:    make(map[string]interfaces.MailboxStatus),
	}
}

func (s *Service) loadMailboxes(ctx context.Context) ([]*models.MailboxConfig, error) {
	rows, err := s.credentials.GetActiveMailboxCredentials(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load mailbox credentials")
	}
	return GroupMailboxCredentials(rows, s.log), nil
}

// RunOnce processes every configured mailbox sequentially. Mailbox failures are
// reported on the summary; only a configuration load failure is returned.
func (s *Service) RunOnce(ctx context.Context) (*dto.RunSummary, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ListenerService.RunOnce")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	return s.runOnce(ctx, span, "")
}

// RunOnceForApplication is RunOnce limited to the mailboxes serving applicationID.
func (s *Service) RunOnceForApplication(ctx context.Context, applicationID string) (*dto.RunSummary, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ListenerService.RunOnceForApplication")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("application.id", applicationID)

	return s.runOnce(ctx, span, applicationID)
}

func (s *Service) runOnce(ctx context.Context, span opentracing.Span, applicationID string) (*dto.RunSummary, error) {

	runID := utils.GenerateNanoIDWithPrefix("run", 12)
	ctx = utils.SetRunIDInContext(ctx, runID)
	span.SetTag(tracing.SpanTagRunId, runID)

	summary := &dto.RunSummary{
		RunID:     runID,
		StartedAt: s.now(),
		Mailboxes: []dto.MailboxSummary{},
	}

	mailboxes, err := s.loadMailboxes(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		metrics.RecordRun(err)
		return nil, err
	}
	if applicationID != "" {
		mailboxes = servingApplication(mailboxes, applicationID)
		if len(mailboxes) == 0 {
			s.log.Warnf("run %s: no mailbox serves application %s", runID, applicationID)
		}
	}
	span.LogFields(tracingLog.Int("mailboxes", len(mailboxes)))

	since := s.now().Add(-s.cfg.BatchLookback)
	for _, mailbox := range mailboxes {
		if err := ctx.Err(); err != nil {
			summary.AddMailbox(dto.MailboxSummary{
				Key:            mailbox.Key,
				Host:           mailbox.Host,
				Username:       mailbox.Username,
				ApplicationIDs: mailbox.ApplicationIDs,
				Error:          "not run: " + err.Error(),
			})
			continue
		}
		summary.AddMailbox(s.runMailboxOnce(ctx, mailbox, since))
	}

	summary.FinishedAt = s.now()
	metrics.RecordRun(nil)
	s.log.Infof("run %s finished: %d mailboxes, %d processed, %d errors",
		runID, len(summary.Mailboxes), summary.ProcessedCount, len(summary.Errors))
	return summary, nil
}

func (s *Service) runMailboxOnce(ctx context.Context, mailbox *models.MailboxConfig, since time.Time) dto.MailboxSummary {
	release, err := s.locks.acquire(ctx, mailbox.Key)
	if err != nil {
		return dto.MailboxSummary{
			Key:            mailbox.Key,
			Host:           mailbox.Host,
			Username:       mailbox.Username,
			ApplicationIDs: mailbox.ApplicationIDs,
			Error:          "not run: " + err.Error(),
		}
	}
	defer release()

	started := time.Now()
	defer metrics.ObserveCycle(metrics.ModeBatch, started)

	client, err := s.dialer.Dial(ctx, mailbox)
	if err != nil {
		s.log.Warnf("[%s] connection failed: %v", mailbox.Key, err)
		metrics.RecordConnectionFailure(mailbox.Key, metrics.ModeBatch)
		s.recordError(mailbox, err)
		return dto.MailboxSummary{
			Key:            mailbox.Key,
			Host:           mailbox.Host,
			Username:       mailbox.Username,
			ApplicationIDs: mailbox.ApplicationIDs,
			Error:          err.Error(),
		}
	}
	defer s.logout(mailbox.Key, client)

	summary := s.session.Run(ctx, client, mailbox, since)
	s.recordCycle(mailbox, summary, false)
	return summary
}

// Run starts one worker per mailbox and blocks until ctx is done or Stop is
// called. The initial configuration load error is returned; later refresh
// failures keep the current workers.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.runDone = make(chan struct{})
	runDone := s.runDone
	s.mu.Unlock()

	defer func() {
		cancel()
		s.waitWorkers()
		s.mu.Lock()
		s.cancel = nil
		s.workers = make(map[string]*worker)
		s.mu.Unlock()
		metrics.MailboxesWatched.Set(0)
		close(runDone)
	}()

	runCtx = utils.SetAppSourceInContext(runCtx, "listener-daemon")
	if err := s.refresh(runCtx); err != nil {
		return err
	}

	interval := s.cfg.ConfigRefreshInterval
	if interval <= 0 {
		interval = config.DefaultListenerConfig().ConfigRefreshInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-runCtx.Done():
			s.log.Info("listener daemon stopping")
			return nil
		case <-ticker.C:
			if err := s.refresh(runCtx); err != nil {
				s.log.Errorf("failed to refresh mailbox configuration: %v", err)
			}
		}
	}
}

// Stop cancels every worker and waits a bounded time for them to log out.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	runDone := s.runDone
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	select {
	case <-runDone:
	case <-time.After(stopTimeout):
		s.log.Warn("timed out waiting for mailbox workers to stop")
	}
}

func (s *Service) Status() map[string]interfaces.MailboxStatus {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()

	result := make(map[string]interfaces.MailboxStatus, len(s.statuses))
	for key, status := range s.statuses {
		result[key] = status
	}
	return result
}

// refresh reconciles running workers with the stored configuration: new
// mailboxes start, removed ones stop and changed ones restart.
func (s *Service) refresh(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ListenerService.refresh")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	mailboxes, err := s.loadMailboxes(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	wanted := make(map[string]*models.MailboxConfig, len(mailboxes))
	for _, mailbox := range mailboxes {
		wanted[mailbox.Key] = mailbox
	}

	s.mu.Lock()
	var stopping []*worker
	for key, w := range s.workers {
		if cfg, ok := wanted[key]; !ok || !cfg.Equal(w.cfg) {
			w.cancel()
			stopping = append(stopping, w)
			delete(s.workers, key)
		}
	}
	s.mu.Unlock()

	for _, w := range stopping {
		select {
		case <-w.done:
		case <-time.After(stopTimeout):
			s.log.Warnf("[%s] worker did not stop in time", w.cfg.Key)
		}
		if _, ok := wanted[w.cfg.Key]; !ok {
			s.removeStatus(w.cfg.Key)
		}
	}

	s.mu.Lock()
	for _, mailbox := range mailboxes {
		if _, running := s.workers[mailbox.Key]; running {
			continue
		}
		s.startWorker(ctx, mailbox)
	}
	watched := len(s.workers)
	s.mu.Unlock()

	metrics.MailboxesWatched.Set(float64(watched))
	span.LogFields(tracingLog.Int("mailboxes", watched), tracingLog.Int("restarted", len(stopping)))
	return nil
}

// startWorker must be called with s.mu held.
func (s *Service) startWorker(ctx context.Context, mailbox *models.MailboxConfig) {
	workerCtx, cancel := context.WithCancel(ctx)
	w := &worker{
		cfg:    mailbox,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.workers[mailbox.Key] = w
	s.setStatus(mailbox, func(status *interfaces.MailboxStatus) {})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(w.done)
		s.watch(workerCtx, w)
	}()
	s.log.Infof("[%s] watching mailbox for %d applications", mailbox.Key, len(mailbox.ApplicationIDs))
}

func (s *Service) waitWorkers() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopTimeout):
		s.log.Warn("timed out waiting for mailbox workers")
	}
}

// watch keeps one mailbox connected until ctx is done, reconnecting with
// exponential backoff after every failure.
func (s *Service) watch(ctx context.Context, w *worker) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("[%s] recovered from panic in mailbox worker: %v", w.cfg.Key, r)
		}
	}()

	b := &backoff.Backoff{
		Min:    s.cfg.BackoffMin,
		Max:    s.cfg.BackoffMax,
		Factor: 2,
	}

	for {
		err := s.watchConnection(ctx, w.cfg, b)
		if ctx.Err() != nil {
			return
		}

		wait := b.Duration()
		metrics.RecordConnectionFailure(w.cfg.Key, metrics.ModeDaemon)
		s.recordError(w.cfg, err)
		s.log.Warnf("[%s] mailbox connection lost: %v, reconnecting in %s", w.cfg.Key, err, wait)

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (s *Service) watchConnection(ctx context.Context, mailbox *models.MailboxConfig, b *backoff.Backoff) error {
	client, err := s.dialer.Dial(ctx, mailbox)
	if err != nil {
		return err
	}
	defer s.logout(mailbox.Key, client)
	b.Reset()

	for {
		release, err := s.locks.acquire(ctx, mailbox.Key)
		if err != nil {
			return err
		}
		started := time.Now()
		since := s.now().Add(-s.cfg.DaemonLookback)
		summary := s.session.Run(ctx, client, mailbox, since)
		release()
		metrics.ObserveCycle(metrics.ModeDaemon, started)
		s.recordCycle(mailbox, summary, true)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if summary.Error != "" {
			return errors.New(summary.Error)
		}
		if summary.ConnectionError != "" {
			return errors.New(summary.ConnectionError)
		}

		if err := client.WaitForUpdate(ctx); err != nil {
			return err
		}
	}
}

func servingApplication(mailboxes []*models.MailboxConfig, applicationID string) []*models.MailboxConfig {
	var serving []*models.MailboxConfig
	for _, mailbox := range mailboxes {
		if mailbox.Serves(applicationID) {
			serving = append(serving, mailbox)
		}
	}
	return serving
}

func (s *Service) logout(key string, client interfaces.MailboxClient) {
	if err := client.Logout(); err != nil {
		s.log.Debugf("[%s] logout: %v", key, err)
	}
}

func (s *Service) setStatus(mailbox *models.MailboxConfig, update func(status *interfaces.MailboxStatus)) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	status := s.statuses[mailbox.Key]
	status.Key = mailbox.Key
	status.ApplicationIDs = mailbox.ApplicationIDs
	update(&status)
	s.statuses[mailbox.Key] = status
}

func (s *Service) removeStatus(key string) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	delete(s.statuses, key)
}

func (s *Service) recordError(mailbox *models.MailboxConfig, err error) {
	s.setStatus(mailbox, func(status *interfaces.MailboxStatus) {
		status.Connected = false
		if err != nil {
			status.LastError = err.Error()
		}
		status.LastChecked = s.now()
	})
}

func (s *Service) recordCycle(mailbox *models.MailboxConfig, summary dto.MailboxSummary, connected bool) {
	s.setStatus(mailbox, func(status *interfaces.MailboxStatus) {
		status.Connected = connected && !summary.Failed()
		status.LastError = summary.Error
		if summary.ConnectionError != "" {
			status.LastError = summary.ConnectionError
		}
		status.LastChecked = s.now()
		status.Processed = summary.Processed
		status.Skipped = summary.Skipped
		status.Errored = summary.Errored
	})
}
