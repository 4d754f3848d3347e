package events

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/lenderinbox/dto"
	"github.com/customeros/lenderinbox/interfaces"
	"github.com/customeros/lenderinbox/internal/logger"
	"github.com/customeros/lenderinbox/internal/tracing"
	"github.com/customeros/lenderinbox/internal/utils"
)

const appSourceRunRequested = "run-requested-event"

// RunRequestedListener triggers a batch pass when the backend asks for one.
type RunRequestedListener struct {
	BaseEventListener
	runner  interfaces.ApplicationRunner
	timeout time.Duration
}

func NewRunRequestedListener(log logger.Logger, runner interfaces.ApplicationRunner, timeout time.Duration) *RunRequestedListener {
	return &RunRequestedListener{
		BaseEventListener: NewBaseEventListener(log, GetEventType[dto.RunRequested](), QueueRunRequests),
		runner:            runner,
		timeout:           timeout,
	}
}

// Handle returns nil for run-level failures; only malformed events are nacked.
// A request naming an application only runs the mailboxes serving it.
func (l *RunRequestedListener) Handle(ctx context.Context, input any) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RunRequestedListener.Handle")
	defer span.Finish()
	tracing.SetDefaultListenerSpanTags(ctx, span)

	event, err := l.ValidateBaseEvent(ctx, input)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	request, err := DecodeEventData[dto.RunRequested](ctx, event)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	span.LogKV("reason", request.Reason, "applicationId", request.ApplicationID)

	ctx = utils.SetAppSourceInContext(ctx, appSourceRunRequested)
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	var summary *dto.RunSummary
	if request.ApplicationID != "" {
		summary, err = l.runner.RunOnceForApplication(ctx, request.ApplicationID)
	} else {
		summary, err = l.runner.RunOnce(ctx)
	}
	if err != nil {
		tracing.TraceErr(span, err)
		l.logger.Errorf("Requested run failed (%s): %v", request.Reason, err)
		return nil
	}
	l.logger.Infof("Requested run %s finished (%s): %d processed across %d mailboxes",
		summary.RunID, request.Reason, summary.ProcessedCount, len(summary.Mailboxes))
	return nil
}
